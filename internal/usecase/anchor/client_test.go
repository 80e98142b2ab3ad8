package anchor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rcv-cert-ledger/internal/adapter/repository/gormrepo"
	"rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/domain/catalog"
	"rcv-cert-ledger/internal/domain/ledger"
	"rcv-cert-ledger/internal/infrastructure/metrics"
	"rcv-cert-ledger/internal/testutil/ledgermock"
	"rcv-cert-ledger/internal/testutil/sqlitedb"
	"rcv-cert-ledger/internal/usecase/anchor"
	"rcv-cert-ledger/pkg/id"
)

const origin = "0x1111111111111111111111111111111111111111"

// seedApproved stores a company and an approved record that materialized it.
func seedApproved(t *testing.T, db *gorm.DB) (*approval.Record, *catalog.Company) {
	t.Helper()
	ctx := context.Background()
	c := &catalog.Company{ID: id.NewUUID(), Name: "Acme Corp", Address: "1 Main St", LicenseNumber: "LIC-1", Email: "ops@acme.test"}
	require.NoError(t, gormrepo.NewCompanyRepository(db).Create(ctx, c))

	rec := &approval.Record{
		ID:                id.NewUUID(),
		CertificateID:     "CERT-COMP-" + c.ID,
		EntityType:        approval.EntityCompany,
		EntityID:          c.ID,
		EntityName:        c.Name,
		PDFHash:           "0xfeed",
		Status:            approval.StatusApproved,
		SubmittedBy:       "user-1",
		RequiredApprovals: 1,
		EntityCreated:     true,
		SubmissionVersion: 1,
	}
	rec.AppendApprover(approval.Approver{
		ApproverID:     "admin-1",
		ApproverName:   "Ann Admin",
		ApproverWallet: "0xaaaa",
		Timestamp:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Signature:      "0x01",
	})
	require.NoError(t, gormrepo.NewApprovalRepository(db).Create(ctx, rec))
	return rec, c
}

func TestAnchor_Success(t *testing.T) {
	db := sqlitedb.Open(t)
	ctx := context.Background()
	rec, company := seedApproved(t, db)

	chain := ledgermock.NewChain(origin)
	m := metrics.New(prometheus.NewRegistry())
	client := anchor.NewClient(gormrepo.NewGormUoW(db), chain, time.Second, m)

	receipt, err := client.Anchor(ctx, rec.ID)
	require.NoError(t, err)
	require.NotEmpty(t, receipt.TxRef)

	got, err := gormrepo.NewApprovalRepository(db).GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, got.Anchored())
	assert.Equal(t, receipt.TxRef, *got.LedgerTxRef)
	assert.Equal(t, receipt.BlockRef, *got.LedgerBlockRef)
	assert.Nil(t, got.AnchorClaimedAt)
	assert.Empty(t, got.AnchorError)
	assert.Equal(t, "anchored", got.AnchorStatus())

	co, err := gormrepo.NewCompanyRepository(db).GetByID(ctx, company.ID)
	require.NoError(t, err)
	require.NotNil(t, co.LedgerTxRef)
	assert.Equal(t, receipt.TxRef, *co.LedgerTxRef)

	tx, err := chain.GetTransaction(ctx, receipt.TxRef)
	require.NoError(t, err)
	p, err := ledger.DecodeHex(tx.Input)
	require.NoError(t, err)
	assert.Equal(t, ledger.VersionCurrent, p.Version)
	assert.Equal(t, rec.CertificateID, p.CertificateID)
	require.True(t, p.HasEntitySnapshot())
	assert.Equal(t, "LIC-1", p.Entity.LicenseNumber)
	require.Len(t, p.Approvers, 1)
	assert.Equal(t, "2025-01-02T03:04:05.000Z", p.Approvers[0].Date)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnchorAttempts.WithLabelValues("ok")))

	_, err = client.Anchor(ctx, rec.ID)
	assert.ErrorIs(t, err, approval.ErrAlreadyAnchored)
}

func TestAnchor_Refusals(t *testing.T) {
	db := sqlitedb.Open(t)
	ctx := context.Background()
	client := anchor.NewClient(gormrepo.NewGormUoW(db), ledgermock.NewChain(origin), time.Second, nil)
	repo := gormrepo.NewApprovalRepository(db)

	t.Run("not approved", func(t *testing.T) {
		rec, _ := seedApproved(t, db)
		rec.Status = approval.StatusRejected
		require.NoError(t, repo.Save(ctx, rec))
		_, err := client.Anchor(ctx, rec.ID)
		assert.ErrorIs(t, err, approval.ErrInvalidState)
	})

	t.Run("quorum not reached", func(t *testing.T) {
		rec, _ := seedApproved(t, db)
		rec.RequiredApprovals = 3
		require.NoError(t, repo.Save(ctx, rec))
		_, err := client.Anchor(ctx, rec.ID)
		assert.ErrorIs(t, err, approval.ErrInvalidState)
	})

	t.Run("claimed by another worker", func(t *testing.T) {
		rec, _ := seedApproved(t, db)
		now := time.Now().UTC()
		rec.AnchorClaimedAt = &now
		require.NoError(t, repo.Save(ctx, rec))
		_, err := client.Anchor(ctx, rec.ID)
		assert.ErrorIs(t, err, approval.ErrAnchorInProgress)
	})

	t.Run("stale claim is taken over", func(t *testing.T) {
		rec, _ := seedApproved(t, db)
		old := time.Now().UTC().Add(-time.Hour)
		rec.AnchorClaimedAt = &old
		require.NoError(t, repo.Save(ctx, rec))
		_, err := client.Anchor(ctx, rec.ID)
		assert.NoError(t, err)
	})

	t.Run("unknown record", func(t *testing.T) {
		_, err := client.Anchor(ctx, id.NewUUID())
		assert.ErrorIs(t, err, approval.ErrNotFound)
	})
}

func TestAnchor_SendFailures(t *testing.T) {
	tests := []struct {
		name    string
		send    func(ctx context.Context, data []byte) (string, error)
		wantErr error
	}{
		{
			name: "rpc error",
			send: func(context.Context, []byte) (string, error) {
				return "", errors.New("insufficient funds for gas")
			},
			wantErr: approval.ErrLedgerWriteFailed,
		},
		{
			name: "node unresponsive",
			send: func(ctx context.Context, _ []byte) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
			wantErr: approval.ErrLedgerTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := sqlitedb.Open(t)
			ctx := context.Background()
			rec, company := seedApproved(t, db)

			chain := ledgermock.NewChain(origin)
			chain.SendFn = tt.send
			client := anchor.NewClient(gormrepo.NewGormUoW(db), chain, 20*time.Millisecond, nil)

			_, err := client.Anchor(ctx, rec.ID)
			require.ErrorIs(t, err, tt.wantErr)

			got, err := gormrepo.NewApprovalRepository(db).GetByID(ctx, rec.ID)
			require.NoError(t, err)
			assert.False(t, got.Anchored())
			assert.Nil(t, got.AnchorClaimedAt, "claim released for retry")
			assert.Nil(t, got.AnchorPendingTx)
			assert.NotEmpty(t, got.AnchorError)
			assert.Equal(t, "failed", got.AnchorStatus())
			assert.Equal(t, approval.StatusApproved, got.Status)

			co, err := gormrepo.NewCompanyRepository(db).GetByID(ctx, company.ID)
			require.NoError(t, err)
			assert.Nil(t, co.LedgerTxRef)

			// a later retry succeeds and clears the error
			chain.SendFn = nil
			_, err = client.Anchor(ctx, rec.ID)
			require.NoError(t, err)
			got, err = gormrepo.NewApprovalRepository(db).GetByID(ctx, rec.ID)
			require.NoError(t, err)
			assert.Empty(t, got.AnchorError)
		})
	}
}

func TestAnchor_ConfirmTimeoutDoesNotResend(t *testing.T) {
	db := sqlitedb.Open(t)
	ctx := context.Background()
	rec, company := seedApproved(t, db)
	repo := gormrepo.NewApprovalRepository(db)

	// the tx is mined, but the receipt does not arrive before the deadline
	chain := ledgermock.NewChain(origin)
	chain.ConfirmFn = func(ctx context.Context, _ string) (*ledger.Receipt, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	client := anchor.NewClient(gormrepo.NewGormUoW(db), chain, 20*time.Millisecond, nil)

	_, err := client.Anchor(ctx, rec.ID)
	require.ErrorIs(t, err, approval.ErrLedgerTimeout)
	require.Equal(t, 1, chain.Sent())

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.False(t, got.Anchored())
	require.NotNil(t, got.AnchorPendingTx)
	broadcast := *got.AnchorPendingTx
	assert.Nil(t, got.AnchorClaimedAt)

	chain.ConfirmFn = nil
	receipt, err := client.Anchor(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, broadcast, receipt.TxRef)
	assert.Equal(t, 1, chain.Sent(), "retry confirmed the earlier tx instead of sending another")

	got, err = repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, got.Anchored())
	assert.Equal(t, broadcast, *got.LedgerTxRef)
	assert.Nil(t, got.AnchorPendingTx)

	co, err := gormrepo.NewCompanyRepository(db).GetByID(ctx, company.ID)
	require.NoError(t, err)
	require.NotNil(t, co.LedgerTxRef)
	assert.Equal(t, broadcast, *co.LedgerTxRef)

	txs, err := chain.ListByOrigin(ctx, origin)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestAnchor_DroppedOrRevertedPendingTxIsResent(t *testing.T) {
	tests := []struct {
		name    string
		pending func(c *ledgermock.Chain) string
	}{
		{name: "dropped", pending: func(*ledgermock.Chain) string { return "0x" + id.NewID32() + id.NewID32() }},
		{name: "reverted", pending: func(c *ledgermock.Chain) string { return c.Append([]byte("x"), true).Hash }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := sqlitedb.Open(t)
			ctx := context.Background()
			rec, _ := seedApproved(t, db)
			repo := gormrepo.NewApprovalRepository(db)

			chain := ledgermock.NewChain(origin)
			stale := tt.pending(chain)
			rec.AnchorPendingTx = &stale
			require.NoError(t, repo.Save(ctx, rec))
			client := anchor.NewClient(gormrepo.NewGormUoW(db), chain, time.Second, nil)

			_, err := client.Anchor(ctx, rec.ID)
			require.ErrorIs(t, err, approval.ErrLedgerWriteFailed)
			assert.Zero(t, chain.Sent())
			got, err := repo.GetByID(ctx, rec.ID)
			require.NoError(t, err)
			assert.Nil(t, got.AnchorPendingTx, "unusable tx forgotten")

			receipt, err := client.Anchor(ctx, rec.ID)
			require.NoError(t, err)
			assert.NotEqual(t, stale, receipt.TxRef)
			assert.Equal(t, 1, chain.Sent())
		})
	}
}

func TestAnchor_RequiresMaterializedEntity(t *testing.T) {
	db := sqlitedb.Open(t)
	ctx := context.Background()
	rec, _ := seedApproved(t, db)
	rec.EntityCreated = false
	rec.EntityID = "pending"
	require.NoError(t, gormrepo.NewApprovalRepository(db).Save(ctx, rec))

	chain := ledgermock.NewChain(origin)
	client := anchor.NewClient(gormrepo.NewGormUoW(db), chain, time.Second, nil)
	_, err := client.Anchor(ctx, rec.ID)
	require.ErrorIs(t, err, approval.ErrEntityNotMaterialized)
	assert.Zero(t, chain.Sent())
}

func TestAnchor_NoSubmitter(t *testing.T) {
	client := anchor.NewClient(nil, nil, time.Second, nil)
	_, err := client.Anchor(context.Background(), "x")
	assert.ErrorIs(t, err, approval.ErrLedgerWriteFailed)
}
