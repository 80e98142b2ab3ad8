package identitymock

import (
	"context"
	"errors"
	"testing"

	domain "rcv-cert-ledger/internal/domain/identity"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	m := Static(
		domain.Identity{ID: "A1", Role: domain.RoleAdmin, WalletAddress: "0xabc", WalletAuthorized: true},
		domain.Identity{ID: "A2", Role: domain.RoleAdmin, WalletAddress: "0xdef"},
		domain.Identity{ID: "U1", Role: domain.RoleUser},
	)

	n, err := m.CountQuorumEligible(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CountQuorumEligible: want 1, got %d (%v)", n, err)
	}
	got, err := m.GetByID(ctx, "A2")
	if err != nil || got.WalletAddress != "0xdef" {
		t.Fatalf("GetByID: got %+v, %v", got, err)
	}
	if _, err := m.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID missing: want ErrNotFound, got %v", err)
	}
}

func TestRepo_Defaults(t *testing.T) {
	m := &Repo{}
	if _, err := m.GetByID(context.Background(), "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("default GetByID: want ErrNotFound, got %v", err)
	}
	if n, err := m.CountQuorumEligible(context.Background()); n != 0 || err != nil {
		t.Fatalf("default CountQuorumEligible: got %d, %v", n, err)
	}
}
