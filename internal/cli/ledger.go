package cli

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"rcv-cert-ledger/internal/usecase/approval"
	"rcv-cert-ledger/internal/usecase/recovery"
)

func newStatusCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Compare certificates on the ledger with the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				st, err := b.recovery.Status(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
}

func newCertificatesCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "certificates",
		Short: "List certificates anchored from the configured origin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				certs, scanned, err := b.recovery.Certificates(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"transactions_scanned": scanned,
					"certificates":         certs,
				})
			})
		},
	}
}

func newRecoverCmd(open opener) *cobra.Command {
	var tx string
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Rebuild missing entities from ledger certificates",
		Long: `Scan every transaction sent from the ledger origin and recreate or
backfill the entities they certify. Entities already in the store are left
untouched. Use --tx to reconcile a single transaction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				if tx != "" {
					it, err := b.recovery.RecoverOne(ctx, tx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), it)
				}
				rep, err := b.recovery.RecoverAll(ctx)
				if rep != nil {
					if perr := printJSON(cmd.OutOrStdout(), rep); perr != nil {
						return perr
					}
				}
				if err != nil {
					return err
				}
				if !rep.Success() {
					return errors.Errorf("recovery finished with %d failed certificates", len(rep.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tx, "tx", "", "reconcile only this transaction hash")
	return cmd
}

func newVerifyCmd(open opener) *cobra.Command {
	var pdfHash string
	cmd := &cobra.Command{
		Use:   "verify <tx>",
		Short: "Check that a transaction carries an anchored certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				if pdfHash != "" {
					v, err := b.recovery.VerifyPDFHash(ctx, args[0], pdfHash)
					if err != nil {
						return err
					}
					if err := printJSON(cmd.OutOrStdout(), v); err != nil {
						return err
					}
					if !v.Matches {
						return errors.New("document hash does not match the anchored hash")
					}
					return nil
				}
				v, err := b.recovery.Verify(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), v)
			})
		},
	}
	cmd.Flags().StringVar(&pdfHash, "pdf-hash", "", "also compare this document hash with the anchored one")
	return cmd
}

func newRebuildCmd(open opener) *cobra.Command {
	var (
		ov       recovery.Overrides
		operator string
	)
	cmd := &cobra.Command{
		Use:   "rebuild <tx>",
		Short: "Recreate one entity from a certificate with operator-supplied values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if operator == "" {
				operator = defaultOperator()
			}
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				res, err := b.recovery.Rebuild(ctx, args[0], ov, operator)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&ov.EntityType, "entity-type", "", "expected entity type (company or product)")
	f.StringVar(&ov.Name, "name", "", "company name")
	f.StringVar(&ov.Address, "address", "", "company address")
	f.StringVar(&ov.LicenseNumber, "license", "", "company license number")
	f.StringVar(&ov.Phone, "phone", "", "company phone")
	f.StringVar(&ov.Email, "email", "", "company email")
	f.StringVar(&ov.BusinessType, "business-type", "", "company business type")
	f.StringVar(&ov.CompanyID, "company-id", "", "existing company for a product")
	f.StringVar(&ov.BrandName, "brand", "", "product brand")
	f.StringVar(&ov.ProductName, "product-name", "", "product name")
	f.StringVar(&ov.LTONumber, "lto", "", "product LTO number")
	f.StringVar(&ov.CFPRNumber, "cfpr", "", "product CFPR number")
	f.StringVar(&ov.LotNumber, "lot", "", "product lot number")
	f.StringVar(&ov.ProductClassification, "classification", "", "product classification")
	f.StringVar(&ov.ProductSubClassification, "sub-classification", "", "product sub-classification")
	f.StringVar(&ov.ExpirationDate, "expiration-date", "", "product expiration date (YYYY-MM-DD)")
	f.StringVar(&operator, "operator", "", "identity recorded as creator (defaults to $USER)")
	return cmd
}

func newAnchorRetryCmd(open opener) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "anchor-retry",
		Short: "Anchor approved records that are not yet on the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				out, err := b.anchors.RetryUnanchored(ctx, limit)
				if perr := printJSON(cmd.OutOrStdout(), out); perr != nil {
					return perr
				}
				if err != nil {
					return err
				}
				failed := 0
				for _, o := range out {
					if o.Error != "" {
						failed++
					}
				}
				if failed > 0 {
					return errors.Errorf("%d of %d records could not be anchored", failed, len(out))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to anchor")
	return cmd
}

func newRematerializeCmd(open opener) *cobra.Command {
	var (
		draftFile string
		operator  string
	)
	cmd := &cobra.Command{
		Use:   "rematerialize <approval-id>",
		Short: "Retry entity creation for an approved record, then anchor it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := approval.RematerializeInput{ApprovalID: args[0], OperatorID: operator}
			if in.OperatorID == "" {
				in.OperatorID = defaultOperator()
			}
			if draftFile != "" {
				raw, err := readFileArg(cmd, draftFile)
				if err != nil {
					return errors.Wrap(err, "read draft")
				}
				if !json.Valid(raw) {
					return errors.New("draft is not valid JSON")
				}
				in.PendingEntityData = raw
			}
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				res, err := b.anchors.Rematerialize(ctx, in)
				if res != nil {
					if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&draftFile, "draft-file", "", "corrected pending entity JSON, - for stdin")
	f.StringVar(&operator, "operator", "", "identity recorded in the log (defaults to $USER)")
	return cmd
}

func defaultOperator() string {
	if u := strings.TrimSpace(os.Getenv("USER")); u != "" {
		return "cli:" + u
	}
	return "cli"
}
