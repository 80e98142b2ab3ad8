package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrTxNotFound       = errors.New("transaction not found on ledger")
	ErrTxFailed         = errors.New("transaction reverted on ledger")
	ErrIndexUnavailable = errors.New("transaction index unavailable")
)

// Receipt is what a confirmed anchoring transaction yields.
type Receipt struct {
	TxRef     string
	BlockRef  uint64
	Timestamp time.Time
}

// Submitter sends data-carrying, zero-value self-transactions from one origin.
// Sending and confirming are separate so a caller can persist the tx ref
// before it waits.
type Submitter interface {
	Origin() string
	// Send broadcasts data and returns the tx ref without waiting for it to be mined.
	Send(ctx context.Context, data []byte) (string, error)
	// Confirm blocks until txRef is mined or ctx expires. ErrTxNotFound means
	// the node does not know txRef at all; ErrTxFailed means it reverted.
	Confirm(ctx context.Context, txRef string) (*Receipt, error)
}

// IndexedTx is one row of the origin's transaction history.
type IndexedTx struct {
	Hash          string
	BlockNumber   uint64
	Timestamp     time.Time
	Input         string
	IsError       bool
	ReceiptFailed bool
}

func (t IndexedTx) Failed() bool { return t.IsError || t.ReceiptFailed }

// Index lists transactions sent by an origin, oldest first.
type Index interface {
	ListByOrigin(ctx context.Context, origin string) ([]IndexedTx, error)
}

// Reader fetches one confirmed transaction straight from a ledger node.
type Reader interface {
	GetTransaction(ctx context.Context, txRef string) (*IndexedTx, error)
}
