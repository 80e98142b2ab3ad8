package approvalmock

import (
	"context"
	"errors"
	"testing"

	domain "rcv-cert-ledger/internal/domain/approval"
)

func TestRepo_Create(t *testing.T) {
	ctx := context.Background()
	r := &domain.Record{ID: "APR-1", CertificateID: "CERT-1"}

	called := false
	wantErr := errors.New("boom")
	m := &Repo{
		CreateFn: func(gotCtx context.Context, got *domain.Record) error {
			called = true
			if gotCtx != ctx {
				t.Fatalf("ctx mismatch")
			}
			if got != r {
				t.Fatalf("arg mismatch")
			}
			return wantErr
		},
	}
	if err := m.Create(ctx, r); !errors.Is(err, wantErr) {
		t.Fatalf("Create: want %v, got %v", wantErr, err)
	}
	if !called {
		t.Fatalf("CreateFn not called")
	}

	// Default (nil func) → no-op, nil error
	m = &Repo{}
	if err := m.Create(ctx, r); err != nil {
		t.Fatalf("Create default: want nil, got %v", err)
	}
}

func TestRepo_GetByIDForUpdate(t *testing.T) {
	ctx := context.Background()
	want := &domain.Record{ID: "APR-2"}

	m := &Repo{
		GetByIDForUpdateFn: func(_ context.Context, id string) (*domain.Record, error) {
			if id != "APR-2" {
				t.Fatalf("id mismatch: got %s", id)
			}
			return want, nil
		},
	}
	got, err := m.GetByIDForUpdate(ctx, "APR-2")
	if err != nil {
		t.Fatalf("GetByIDForUpdate: unexpected err %v", err)
	}
	if got != want {
		t.Fatalf("GetByIDForUpdate: want %+v, got %+v", want, got)
	}

	// Default (nil func) → ErrNotFound
	m = &Repo{}
	got, err = m.GetByIDForUpdate(ctx, "APR-2")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByIDForUpdate default: want ErrNotFound, got %v", err)
	}
	if got != nil {
		t.Fatalf("GetByIDForUpdate default: want nil, got %+v", got)
	}
}

func TestRepo_ListBySubmitter(t *testing.T) {
	ctx := context.Background()
	status := domain.StatusRejected

	m := &Repo{
		ListBySubmitterFn: func(_ context.Context, submitterID string, s *domain.Status) ([]domain.Record, error) {
			if submitterID != "U-1" || s == nil || *s != domain.StatusRejected {
				t.Fatalf("args mismatch: %s %v", submitterID, s)
			}
			return []domain.Record{{ID: "A"}, {ID: "B"}}, nil
		},
	}
	got, err := m.ListBySubmitter(ctx, "U-1", &status)
	if err != nil || len(got) != 2 {
		t.Fatalf("ListBySubmitter: got %v, %v", got, err)
	}

	m = &Repo{}
	got, err = m.ListBySubmitter(ctx, "U-1", nil)
	if err != nil || got != nil {
		t.Fatalf("ListBySubmitter default: want nil, nil; got %v, %v", got, err)
	}
}
