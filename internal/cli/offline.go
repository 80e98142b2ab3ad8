package cli

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"rcv-cert-ledger/internal/adapter/middleware"
	"rcv-cert-ledger/internal/config"
	"rcv-cert-ledger/internal/usecase/signature"
)

// newSignCmd signs a message the way a browser wallet does, for approvers
// working from a terminal.
func newSignCmd() *cobra.Command {
	var (
		keyHex  string
		message string
		file    string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "personal_sign a signing message with a local key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if keyHex == "" {
				keyHex = os.Getenv("RCV_SIGNER_KEY")
			}
			key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
			if err != nil {
				return errors.Wrap(err, "signer key")
			}
			msg := message
			if file != "" {
				raw, err := readFileArg(cmd, file)
				if err != nil {
					return errors.Wrap(err, "read message")
				}
				msg = string(raw)
			}
			if msg == "" {
				return errors.New("nothing to sign: pass --message or --message-file")
			}
			sig, err := signature.Sign(key, msg)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"wallet":    crypto.PubkeyToAddress(key.PublicKey).Hex(),
				"signature": sig,
			})
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "hex private key (defaults to $RCV_SIGNER_KEY)")
	cmd.Flags().StringVar(&message, "message", "", "exact message to sign")
	cmd.Flags().StringVar(&file, "message-file", "", "read the message from a file, - for stdin")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		secret  string
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if subject == "" {
				return errors.New("--sub is required")
			}
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}
			if secret == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				secret = cfg.JWTSigningKey
			}
			if secret == "" {
				return errors.New("no signing key: pass --secret or set JWT_SIGNING_KEY")
			}
			now := time.Now()
			tok, err := middleware.SignToken([]byte(secret), middleware.Claims{
				Role: strings.ToUpper(role),
				RegisteredClaims: jwt.RegisteredClaims{
					ID:        uuid.NewString(),
					Subject:   subject,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
			})
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), tok+"\n")
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC signing key (defaults to JWT_SIGNING_KEY)")
	cmd.Flags().StringVar(&subject, "sub", "", "identity id")
	cmd.Flags().StringVar(&role, "role", "USER", "role claim, ADMIN for approvers")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
