package approval

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	domain "rcv-cert-ledger/internal/domain/approval"
)

// RegisterOnLedger is the manual anchoring retry for one record.
func (u *Usecase) RegisterOnLedger(ctx context.Context, approvalID string) (*ApprovalDTO, error) {
	if u.anchor == nil {
		return nil, errors.WithMessage(domain.ErrLedgerWriteFailed, "ledger not configured")
	}
	if _, err := u.anchor.Anchor(ctx, approvalID); err != nil {
		return nil, err
	}
	return u.Get(ctx, approvalID)
}

// RetryUnanchored anchors up to limit records from ReadyForLedger, one at a
// time, and reports every outcome. It stops early only when ctx ends.
func (u *Usecase) RetryUnanchored(ctx context.Context, limit int) ([]AnchorOutcome, error) {
	rs, err := u.approvals.ListUnanchored(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]AnchorOutcome, 0, len(rs))
	for _, r := range rs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, *u.anchorOne(ctx, r.ID))
	}
	log.WithField("count", len(out)).Info("unanchored approvals retried")
	return out, nil
}
