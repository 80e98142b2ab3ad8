package gormrepo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"

	"rcv-cert-ledger/internal/adapter/repository/gormrepo"
	approvalDomain "rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/testutil/sqlitedb"
	"rcv-cert-ledger/pkg/id"
)

func makeRecord(certificateID string, status approvalDomain.Status) *approvalDomain.Record {
	r := &approvalDomain.Record{
		ID:                id.NewUUID(),
		CertificateID:     certificateID,
		EntityType:        approvalDomain.EntityProduct,
		EntityID:          approvalDomain.EntityIDPending,
		EntityName:        "Acme Vitamin C",
		PDFHash:           "0xfeed",
		Status:            status,
		SubmittedBy:       "user-1",
		RequiredApprovals: 2,
		SubmissionVersion: 1,
		PendingEntityData: datatypes.JSON(`{"productName":"Acme Vitamin C"}`),
	}
	if status == approvalDomain.StatusPending {
		r.PendingGuard = approvalDomain.PendingGuardFor(certificateID)
	}
	return r
}

func TestApproval_CreateAndGet(t *testing.T) {
	db := sqlitedb.Open(t)
	repo := gormrepo.NewApprovalRepository(db)
	ctx := context.Background()

	in := makeRecord("CERT-001", approvalDomain.StatusPending)
	now := time.Now().UTC().Truncate(time.Millisecond)
	in.AppendApprover(approvalDomain.Approver{ApproverID: "admin-1", ApproverName: "Ann", Timestamp: now, Signature: "0x01"})

	if err := repo.Create(ctx, in); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, in.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.CertificateID != "CERT-001" || got.ApprovalCount != 1 || len(got.Approvers) != 1 {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Approvers[0].ApproverID != "admin-1" || !got.Approvers[0].Timestamp.Equal(now) {
		t.Fatalf("approvers not round-tripped: %+v", got.Approvers)
	}
	if string(got.PendingEntityData) != `{"productName":"Acme Vitamin C"}` {
		t.Fatalf("pending entity data = %s", got.PendingEntityData)
	}

	locked, err := repo.GetByIDForUpdate(ctx, in.ID)
	if err != nil || locked.ID != in.ID {
		t.Fatalf("GetByIDForUpdate: %+v %v", locked, err)
	}

	pending, err := repo.FindPendingByCertificate(ctx, "CERT-001")
	if err != nil || pending.ID != in.ID {
		t.Fatalf("FindPendingByCertificate: %+v %v", pending, err)
	}
}

func TestApproval_NotFound(t *testing.T) {
	db := sqlitedb.Open(t)
	repo := gormrepo.NewApprovalRepository(db)
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "nope"); !errors.Is(err, approvalDomain.ErrNotFound) {
		t.Fatalf("GetByID: want ErrNotFound, got %v", err)
	}
	if _, err := repo.FindPendingByCertificate(ctx, "nope"); !errors.Is(err, approvalDomain.ErrNotFound) {
		t.Fatalf("FindPendingByCertificate: want ErrNotFound, got %v", err)
	}
	if _, err := repo.LatestByEntity(ctx, approvalDomain.EntityCompany, "x"); !errors.Is(err, approvalDomain.ErrNotFound) {
		t.Fatalf("LatestByEntity: want ErrNotFound, got %v", err)
	}
	if _, err := repo.FindByLedgerTx(ctx, "0xabc"); !errors.Is(err, approvalDomain.ErrNotFound) {
		t.Fatalf("FindByLedgerTx: want ErrNotFound, got %v", err)
	}
}

func TestApproval_OnePendingPerCertificate(t *testing.T) {
	db := sqlitedb.Open(t)
	repo := gormrepo.NewApprovalRepository(db)
	ctx := context.Background()

	first := makeRecord("CERT-DUP", approvalDomain.StatusPending)
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second := makeRecord("CERT-DUP", approvalDomain.StatusPending)
	if err := repo.Create(ctx, second); !errors.Is(err, approvalDomain.ErrDuplicateSubmission) {
		t.Fatalf("Create second: want ErrDuplicateSubmission, got %v", err)
	}

	// once the first leaves pending the guard is released
	first.MarkRejected("admin-1", "Ann", "blurry", "0x01", time.Now().UTC())
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("Save rejected: %v", err)
	}
	third := makeRecord("CERT-DUP", approvalDomain.StatusPending)
	if err := repo.Create(ctx, third); err != nil {
		t.Fatalf("Create after rejection: %v", err)
	}

	// terminal records never collide with each other
	rejectedAgain := makeRecord("CERT-DUP", approvalDomain.StatusRejected)
	if err := repo.Create(ctx, rejectedAgain); err != nil {
		t.Fatalf("Create second terminal record: %v", err)
	}
}

func TestApproval_LedgerRefUnique(t *testing.T) {
	db := sqlitedb.Open(t)
	repo := gormrepo.NewApprovalRepository(db)
	ctx := context.Background()

	tx := "0x" + id.NewID32() + id.NewID32()
	a := makeRecord("CERT-A", approvalDomain.StatusApproved)
	a.LedgerTxRef = &tx
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	b := makeRecord("CERT-B", approvalDomain.StatusApproved)
	if err := repo.Create(ctx, b); err != nil {
		t.Fatalf("Create b: %v", err)
	}
	b.LedgerTxRef = &tx
	if err := repo.Save(ctx, b); !errors.Is(err, approvalDomain.ErrAlreadyAnchored) {
		t.Fatalf("Save with reused tx: want ErrAlreadyAnchored, got %v", err)
	}

	got, err := repo.FindByLedgerTx(ctx, tx)
	if err != nil || got.ID != a.ID {
		t.Fatalf("FindByLedgerTx: %+v %v", got, err)
	}
}

func TestApproval_Listings(t *testing.T) {
	db := sqlitedb.Open(t)
	repo := gormrepo.NewApprovalRepository(db)
	ctx := context.Background()

	p := makeRecord("CERT-P", approvalDomain.StatusPending)
	ready := makeRecord("CERT-R", approvalDomain.StatusApproved)
	ready.ApprovalCount, ready.RequiredApprovals = 2, 2
	ready.EntityID = id.NewUUID()
	ready.EntityCreated = true
	unmaterialized := makeRecord("CERT-M", approvalDomain.StatusApproved)
	unmaterialized.ApprovalCount, unmaterialized.RequiredApprovals = 1, 1
	unmaterialized.MaterializationError = "company not found"
	unmaterialized.SubmittedBy = "user-3"
	anchoredTx := "0xanchored"
	anchored := makeRecord("CERT-X", approvalDomain.StatusApproved)
	anchored.ApprovalCount, anchored.RequiredApprovals = 1, 1
	anchored.LedgerTxRef = &anchoredTx
	other := makeRecord("CERT-O", approvalDomain.StatusRejected)
	other.SubmittedBy = "user-2"

	for _, r := range []*approvalDomain.Record{p, ready, unmaterialized, anchored, other} {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create %s: %v", r.CertificateID, err)
		}
	}

	pending, err := repo.ListByStatus(ctx, approvalDomain.StatusPending)
	if err != nil || len(pending) != 1 || pending[0].ID != p.ID {
		t.Fatalf("ListByStatus pending: %+v %v", pending, err)
	}

	unanchored, err := repo.ListUnanchored(ctx, 10)
	if err != nil || len(unanchored) != 1 || unanchored[0].ID != ready.ID {
		t.Fatalf("ListUnanchored: %+v %v", unanchored, err)
	}

	mine, err := repo.ListBySubmitter(ctx, "user-1", nil)
	if err != nil || len(mine) != 3 {
		t.Fatalf("ListBySubmitter all: len=%d err=%v", len(mine), err)
	}
	rejected := approvalDomain.StatusRejected
	theirs, err := repo.ListBySubmitter(ctx, "user-2", &rejected)
	if err != nil || len(theirs) != 1 {
		t.Fatalf("ListBySubmitter rejected: len=%d err=%v", len(theirs), err)
	}

	latest, err := repo.LatestByEntity(ctx, approvalDomain.EntityProduct, ready.EntityID)
	if err != nil || latest.ID != ready.ID {
		t.Fatalf("LatestByEntity: %+v %v", latest, err)
	}

	byCert, err := repo.ListByCertificate(ctx, "CERT-P")
	if err != nil || len(byCert) != 1 {
		t.Fatalf("ListByCertificate: len=%d err=%v", len(byCert), err)
	}
}
