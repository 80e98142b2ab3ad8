package uowmock

import (
	"context"
	"errors"
	"testing"

	"rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/domain/uow"
	"rcv-cert-ledger/internal/testutil/approvalmock"
)

func TestUnsetFunctionsReturnUnimplemented(t *testing.T) {
	m := &UoW{}
	if err := m.WithinTx(context.Background(), func(uow.Repos) error { return nil }); !errors.Is(err, errUnimplemented) {
		t.Fatalf("WithinTx err = %v", err)
	}
	err := m.WithinApprovalTx(context.Background(), "a1", func(uow.Repos, *approval.Record) error { return nil })
	if !errors.Is(err, errUnimplemented) {
		t.Fatalf("WithinApprovalTx err = %v", err)
	}
}

func TestPassthrough(t *testing.T) {
	ctx := context.Background()
	locked := &approval.Record{ID: "a1", Status: approval.StatusPending}
	var asked string
	apprs := &approvalmock.Repo{
		GetByIDForUpdateFn: func(_ context.Context, id string) (*approval.Record, error) {
			asked = id
			if id != "a1" {
				return nil, approval.ErrNotFound
			}
			return locked, nil
		},
	}
	m := Passthrough(uow.Repos{Approvals: apprs})

	var got *approval.Record
	if err := m.WithinApprovalTx(ctx, "a1", func(r uow.Repos, rec *approval.Record) error {
		if r.Approvals != apprs {
			t.Fatal("repos not passed through")
		}
		got = rec
		return nil
	}); err != nil {
		t.Fatalf("WithinApprovalTx: %v", err)
	}
	if asked != "a1" || got != locked {
		t.Fatalf("record not loaded through the repo: asked=%q got=%v", asked, got)
	}

	called := false
	err := m.WithinApprovalTx(ctx, "missing", func(uow.Repos, *approval.Record) error { called = true; return nil })
	if !errors.Is(err, approval.ErrNotFound) || called {
		t.Fatalf("missing record: err=%v called=%v", err, called)
	}

	boom := errors.New("boom")
	if err := m.WithinTx(ctx, func(uow.Repos) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("WithinTx err = %v", err)
	}
}
