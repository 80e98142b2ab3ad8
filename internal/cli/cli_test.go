package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rcv-cert-ledger/internal/adapter/middleware"
	approvalDomain "rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/usecase/approval"
	"rcv-cert-ledger/internal/usecase/recovery"
	"rcv-cert-ledger/internal/usecase/signature"
)

type fakeRecovery struct {
	recoveryService
	report   *recovery.Report
	err      error
	pdf      *recovery.PDFVerification
	rebuilt  recovery.Overrides
	operator string
}

func (f *fakeRecovery) RecoverAll(context.Context) (*recovery.Report, error) { return f.report, f.err }
func (f *fakeRecovery) VerifyPDFHash(context.Context, string, string) (*recovery.PDFVerification, error) {
	return f.pdf, f.err
}
func (f *fakeRecovery) Rebuild(_ context.Context, tx string, ov recovery.Overrides, op string) (*recovery.RebuildResult, error) {
	f.rebuilt, f.operator = ov, op
	return &recovery.RebuildResult{TxRef: tx, EntityID: "e-1"}, nil
}

type fakeAnchors struct {
	out   []approval.AnchorOutcome
	remat *approval.RematerializeInput
	err   error
}

func (f fakeAnchors) RetryUnanchored(context.Context, int) ([]approval.AnchorOutcome, error) {
	return f.out, nil
}

func (f fakeAnchors) Rematerialize(_ context.Context, in approval.RematerializeInput) (*approval.VoteResult, error) {
	*f.remat = in
	return &approval.VoteResult{Approval: &approval.ApprovalDTO{ApprovalID: in.ApprovalID, Status: "approved"}}, f.err
}

func run(t *testing.T, b *backend, args ...string) (string, error) {
	t.Helper()
	open := func(context.Context) (*backend, error) { return b, nil }
	cmd := newRootCmd("test", open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRecover(t *testing.T) {
	t.Run("clean run", func(t *testing.T) {
		f := &fakeRecovery{report: &recovery.Report{CompaniesCreated: 2}}
		out, err := run(t, &backend{recovery: f}, "recover")
		require.NoError(t, err)
		assert.Contains(t, out, `"companies_created": 2`)
	})
	t.Run("failures exit non-zero after printing", func(t *testing.T) {
		f := &fakeRecovery{report: &recovery.Report{Errors: []string{"CERT-1: boom"}}}
		out, err := run(t, &backend{recovery: f}, "recover")
		require.Error(t, err)
		assert.Contains(t, out, "CERT-1: boom")
	})
	t.Run("scan error", func(t *testing.T) {
		f := &fakeRecovery{err: recovery.ErrScanInProgress}
		_, err := run(t, &backend{recovery: f}, "recover")
		assert.ErrorIs(t, err, recovery.ErrScanInProgress)
	})
}

func TestVerify_PDFMismatch(t *testing.T) {
	f := &fakeRecovery{pdf: &recovery.PDFVerification{Matches: false, AnchoredHash: "0xabc"}}
	out, err := run(t, &backend{recovery: f}, "verify", "0x01", "--pdf-hash", "0xdef")
	require.Error(t, err)
	assert.Contains(t, out, `"anchored_hash": "0xabc"`)
}

func TestRebuild_Flags(t *testing.T) {
	f := &fakeRecovery{}
	closed := false
	_, err := run(t, &backend{recovery: f, close: func() { closed = true }}, "rebuild", "0x01",
		"--address", "1 Main St", "--license", "LIC-9", "--operator", "ops-1")
	require.NoError(t, err)
	assert.True(t, closed, "backend not closed")
	assert.Equal(t, "1 Main St", f.rebuilt.Address)
	assert.Equal(t, "LIC-9", f.rebuilt.LicenseNumber)
	assert.Equal(t, "ops-1", f.operator)
}

func TestAnchorRetry(t *testing.T) {
	b := &backend{anchors: fakeAnchors{out: []approval.AnchorOutcome{
		{ApprovalID: "a1", Status: "anchored"},
		{ApprovalID: "a2", Error: "ledger timeout"},
	}}}
	out, err := run(t, b, "anchor-retry", "--limit", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, out, `"approval_id": "a2"`)

	_, err = run(t, b, "anchor-retry", "--limit", "0")
	require.Error(t, err)
}

func TestRematerialize(t *testing.T) {
	draft := filepath.Join(t.TempDir(), "draft.json")
	require.NoError(t, os.WriteFile(draft, []byte(`{"companyId":"co-1"}`), 0o600))

	var got approval.RematerializeInput
	b := &backend{anchors: fakeAnchors{remat: &got}}
	out, err := run(t, b, "rematerialize", "ap-1", "--draft-file", draft, "--operator", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, `"approval_id": "ap-1"`)
	assert.Equal(t, "ap-1", got.ApprovalID)
	assert.Equal(t, "ops", got.OperatorID)
	assert.JSONEq(t, `{"companyId":"co-1"}`, string(got.PendingEntityData))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o600))
	_, err = run(t, b, "rematerialize", "ap-1", "--draft-file", bad)
	require.Error(t, err)

	b.anchors = fakeAnchors{remat: &got, err: approvalDomain.ErrMaterializationFailed}
	out, err = run(t, b, "rematerialize", "ap-2")
	require.ErrorIs(t, err, approvalDomain.ErrMaterializationFailed)
	assert.Contains(t, out, `"approval_id": "ap-2"`)
	assert.Empty(t, got.PendingEntityData)
}

func TestOpenError(t *testing.T) {
	cmd := newRootCmd("test", func(context.Context) (*backend, error) {
		return nil, errors.New("no database")
	})
	cmd.SetArgs([]string{"status"})
	cmd.SetOut(&bytes.Buffer{})
	assert.EqualError(t, cmd.Execute(), "no database")
}

func TestSign_RecoversToWallet(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	out, err := run(t, &backend{}, "sign", "--key", hexutil.Encode(crypto.FromECDSA(key)), "--message", "approve CERT-1")
	require.NoError(t, err)

	var got struct{ Wallet, Signature string }
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), got.Wallet)
	assert.NoError(t, signature.NewVerifier().Verify("approve CERT-1", got.Signature, got.Wallet))
}

func TestSign_Errors(t *testing.T) {
	t.Setenv("RCV_SIGNER_KEY", "")
	_, err := run(t, &backend{}, "sign", "--message", "x")
	assert.Error(t, err)

	key, _ := crypto.GenerateKey()
	_, err = run(t, &backend{}, "sign", "--key", hexutil.Encode(crypto.FromECDSA(key)))
	assert.ErrorContains(t, err, "nothing to sign")
}

func TestToken(t *testing.T) {
	out, err := run(t, &backend{}, "token", "--secret", "s3cret", "--sub", "user-7", "--role", "admin", "--ttl", "5m")
	require.NoError(t, err)

	var claims middleware.Claims
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), &claims, func(*jwt.Token) (any, error) {
		return []byte("s3cret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.Subject)
	assert.Equal(t, "ADMIN", claims.Role)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), claims.ExpiresAt.Time, time.Minute)

	_, err = run(t, &backend{}, "token", "--secret", "s", "--ttl", "5m")
	assert.ErrorContains(t, err, "--sub")
}
