package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"rcv-cert-ledger/internal/app"
	"rcv-cert-ledger/internal/config"
	"rcv-cert-ledger/internal/infrastructure/logging"
	"rcv-cert-ledger/internal/usecase/approval"
	"rcv-cert-ledger/internal/usecase/recovery"
)

type recoveryService interface {
	Certificates(ctx context.Context) ([]recovery.Certificate, int, error)
	RecoverAll(ctx context.Context) (*recovery.Report, error)
	RecoverOne(ctx context.Context, txRef string) (*recovery.Item, error)
	Status(ctx context.Context) (*recovery.Status, error)
	Verify(ctx context.Context, txRef string) (*recovery.Verification, error)
	VerifyPDFHash(ctx context.Context, txRef, pdfHash string) (*recovery.PDFVerification, error)
	Rebuild(ctx context.Context, txRef string, ov recovery.Overrides, operatorID string) (*recovery.RebuildResult, error)
}

type anchorService interface {
	RetryUnanchored(ctx context.Context, limit int) ([]approval.AnchorOutcome, error)
	Rematerialize(ctx context.Context, in approval.RematerializeInput) (*approval.VoteResult, error)
}

type backend struct {
	recovery recoveryService
	anchors  anchorService
	close    func()
}

// opener connects to the store and ledger on demand; offline commands never call it.
type opener func(ctx context.Context) (*backend, error)

func Execute(version string) error {
	return newRootCmd(version, openApp).Execute()
}

func openApp(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a, err := app.Build(ctx, cfg, prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	return &backend{recovery: a.Recovery, anchors: a.Approvals, close: a.Close}, nil
}

func newRootCmd(version string, open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rcvctl",
		Short:         "Operate the certificate approval ledger",
		Long:          "rcvctl runs ledger recovery, verification and anchoring maintenance against the configured store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	cmd.AddCommand(
		newStatusCmd(open),
		newCertificatesCmd(open),
		newRecoverCmd(open),
		newVerifyCmd(open),
		newRebuildCmd(open),
		newAnchorRetryCmd(open),
		newRematerializeCmd(open),
		newSignCmd(),
		newTokenCmd(),
	)
	return cmd
}

// withBackend opens the backend for one command run and always closes it.
func withBackend(cmd *cobra.Command, open opener, fn func(ctx context.Context, b *backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := open(ctx)
	if err != nil {
		return err
	}
	if b.close != nil {
		defer b.close()
	}
	return fn(ctx, b)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readFileArg reads a flag-named file; "-" means stdin.
func readFileArg(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(file)
}
