package signature

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"rcv-cert-ledger/internal/domain/approval"
)

// Verifier checks personal_sign (EIP-191) signatures.
type Verifier struct{}

func NewVerifier() *Verifier { return &Verifier{} }

// Recover returns the checksummed address that produced signature over message.
func (v *Verifier) Recover(message, signature string) (string, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return "", errors.Wrap(approval.ErrInvalidSignature, "signature is not hex")
	}
	if len(sig) != crypto.SignatureLength {
		return "", errors.Wrapf(approval.ErrInvalidSignature, "signature length %d", len(sig))
	}
	// wallets emit v as 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return "", errors.Wrap(approval.ErrInvalidSignature, "bad recovery id")
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", errors.Wrap(approval.ErrInvalidSignature, err.Error())
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// Verify succeeds only if signature over message recovers to expected.
// Mismatches are logged in full here and returned as a
// *approval.SignatureMismatchError that unwraps to ErrInvalidSignature.
func (v *Verifier) Verify(message, signature, expected string) error {
	if !common.IsHexAddress(expected) {
		return errors.Wrap(approval.ErrInvalidSignature, "no valid wallet on file")
	}
	recovered, err := v.Recover(message, signature)
	if err != nil {
		return err
	}
	if !strings.EqualFold(recovered, expected) {
		log.WithFields(log.Fields{
			"security":  "signature_mismatch",
			"recovered": recovered,
			"expected":  expected,
		}).Warn("signature verification failed")
		return &approval.SignatureMismatchError{Recovered: recovered, Expected: expected}
	}
	return nil
}

// Sign produces a personal_sign signature with v in {27,28}, the form
// browser wallets return.
func Sign(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", errors.Wrap(err, "sign message")
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
