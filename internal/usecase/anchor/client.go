package anchor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/domain/ledger"
	"rcv-cert-ledger/internal/domain/uow"
	"rcv-cert-ledger/internal/infrastructure/metrics"
	"rcv-cert-ledger/internal/usecase/signature"
)

// claimGrace extends an anchoring claim past the submit timeout so a slow
// confirmation is not raced by a retry.
const claimGrace = 30 * time.Second

// Client anchors approved certificates on the ledger. Anchoring is a
// retryable side effect: failures leave the ledger fields unset.
type Client struct {
	uow       uow.UnitOfWork
	submitter ledger.Submitter
	timeout   time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewClient(tx uow.UnitOfWork, submitter ledger.Submitter, timeout time.Duration, m *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		uow:       tx,
		submitter: submitter,
		timeout:   timeout,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// attempt is what a claim hands to the sender: either a fresh payload or a
// tx already broadcast by an earlier attempt.
type attempt struct {
	payload   []byte
	pendingTx string
}

// Anchor writes the record's payload to the ledger and stores the receipt on
// the record exactly once. A tx broadcast by an earlier, unconfirmed attempt
// is confirmed rather than sent again. Errors: approval.ErrInvalidState,
// approval.ErrEntityNotMaterialized, approval.ErrAlreadyAnchored,
// approval.ErrAnchorInProgress, approval.ErrLedgerTimeout,
// approval.ErrLedgerWriteFailed.
func (c *Client) Anchor(ctx context.Context, approvalID string) (*ledger.Receipt, error) {
	start := time.Now()
	if c.submitter == nil {
		return nil, fmt.Errorf("%w: ledger submitter not configured", approval.ErrLedgerWriteFailed)
	}

	att, err := c.claim(ctx, approvalID)
	if err != nil {
		c.metrics.Anchor("refused", start)
		return nil, err
	}
	logger := log.WithField("approval_id", approvalID)

	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	txRef := att.pendingTx
	if txRef == "" {
		if txRef, err = c.submitter.Send(sctx, att.payload); err != nil {
			return nil, c.fail(ctx, sctx, start, approvalID, err, false)
		}
		txRef = strings.ToLower(txRef)
		c.markSent(context.WithoutCancel(ctx), approvalID, txRef)
	} else {
		logger.WithField("tx_hash", txRef).Info("confirming previously broadcast anchoring tx")
	}

	receipt, err := c.submitter.Confirm(sctx, txRef)
	if err != nil {
		// a dropped or reverted tx will never anchor anything; the next attempt sends a new one
		forget := errors.Is(err, ledger.ErrTxNotFound) || errors.Is(err, ledger.ErrTxFailed)
		return nil, c.fail(ctx, sctx, start, approvalID, err, forget)
	}
	receipt.TxRef = strings.ToLower(receipt.TxRef)

	if err := c.commit(context.WithoutCancel(ctx), approvalID, receipt); err != nil {
		c.metrics.Anchor("commit_failed", start)
		logger.WithField("tx_hash", receipt.TxRef).WithError(err).Error("anchored on ledger but failed to store receipt")
		return receipt, err
	}
	c.metrics.Anchor("ok", start)
	logger.WithFields(log.Fields{
		"tx_hash": receipt.TxRef,
		"block":   receipt.BlockRef,
	}).Info("certificate anchored")
	return receipt, nil
}

// claim validates the record and marks an attempt in flight. The payload is
// only built when no earlier tx is awaiting confirmation.
func (c *Client) claim(ctx context.Context, approvalID string) (attempt, error) {
	var att attempt
	err := c.uow.WithinApprovalTx(ctx, approvalID, func(r uow.Repos, rec *approval.Record) error {
		if rec.Status != approval.StatusApproved || !rec.QuorumReached() {
			return approval.ErrInvalidState
		}
		if rec.Anchored() {
			return approval.ErrAlreadyAnchored
		}
		if !rec.EntityCreated {
			return approval.ErrEntityNotMaterialized
		}
		now := c.now()
		if rec.AnchorClaimedAt != nil && now.Sub(*rec.AnchorClaimedAt) < c.timeout+claimGrace {
			return approval.ErrAnchorInProgress
		}
		if rec.AnchorPendingTx != nil && *rec.AnchorPendingTx != "" {
			att.pendingTx = *rec.AnchorPendingTx
		} else {
			p, err := BuildPayload(ctx, r, rec, signature.FormatTimestamp(now))
			if err != nil {
				return err
			}
			if att.payload, err = ledger.Encode(p); err != nil {
				return err
			}
		}
		rec.AnchorClaimedAt = &now
		return r.Approvals.Save(ctx, rec)
	})
	return att, err
}

// markSent records the broadcast tx before waiting on it. Failing to store it
// is logged only: the tx is out and confirmation may still commit it.
func (c *Client) markSent(ctx context.Context, approvalID, txRef string) {
	err := c.uow.WithinApprovalTx(ctx, approvalID, func(r uow.Repos, rec *approval.Record) error {
		rec.AnchorPendingTx = &txRef
		return r.Approvals.Save(ctx, rec)
	})
	if err != nil {
		log.WithFields(log.Fields{"approval_id": approvalID, "tx_hash": txRef}).
			WithError(err).Error("failed to record broadcast anchoring tx")
	}
}

// fail classifies a send or confirm error, releases the claim and returns
// the error handed to callers.
func (c *Client) fail(ctx, sctx context.Context, start time.Time, approvalID string, err error, forget bool) error {
	outcome, wrapped := "failed", fmt.Errorf("%w: %w", approval.ErrLedgerWriteFailed, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(sctx.Err(), context.DeadlineExceeded) {
		outcome, wrapped = "timeout", fmt.Errorf("%w after %s: %w", approval.ErrLedgerTimeout, c.timeout, err)
	}
	c.metrics.Anchor(outcome, start)
	log.WithField("approval_id", approvalID).WithError(err).Warn("ledger anchoring failed")
	c.release(context.WithoutCancel(ctx), approvalID, wrapped.Error(), forget)
	return wrapped
}

func (c *Client) release(ctx context.Context, approvalID, reason string, forget bool) {
	err := c.uow.WithinApprovalTx(ctx, approvalID, func(r uow.Repos, rec *approval.Record) error {
		rec.AnchorClaimedAt = nil
		rec.AnchorError = reason
		if forget {
			rec.AnchorPendingTx = nil
		}
		return r.Approvals.Save(ctx, rec)
	})
	if err != nil {
		log.WithField("approval_id", approvalID).WithError(err).Error("failed to release anchoring claim")
	}
}

// commit stores the receipt and points the materialized entity at the tx.
func (c *Client) commit(ctx context.Context, approvalID string, receipt *ledger.Receipt) error {
	return c.uow.WithinApprovalTx(ctx, approvalID, func(r uow.Repos, rec *approval.Record) error {
		if rec.Anchored() {
			return approval.ErrAlreadyAnchored
		}
		tx, block, ts := receipt.TxRef, receipt.BlockRef, receipt.Timestamp.UTC()
		rec.LedgerTxRef, rec.LedgerBlockRef, rec.LedgerTimestamp = &tx, &block, &ts
		rec.AnchorClaimedAt = nil
		rec.AnchorPendingTx = nil
		rec.AnchorError = ""
		if err := r.Approvals.Save(ctx, rec); err != nil {
			return err
		}
		if !rec.EntityCreated {
			return nil
		}
		switch rec.EntityType {
		case approval.EntityProduct:
			p, err := r.Products.GetByID(ctx, rec.EntityID)
			if err != nil {
				return err
			}
			p.LedgerTxRef = &tx
			return r.Products.Save(ctx, p)
		case approval.EntityCompany:
			co, err := r.Companies.GetByID(ctx, rec.EntityID)
			if err != nil {
				return err
			}
			co.LedgerTxRef = &tx
			return r.Companies.Save(ctx, co)
		}
		return nil
	})
}
