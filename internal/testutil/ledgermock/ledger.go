package ledgermock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"rcv-cert-ledger/internal/domain/ledger"
	"rcv-cert-ledger/pkg/id"
)

var (
	_ ledger.Submitter = (*Chain)(nil)
	_ ledger.Index     = (*Chain)(nil)
	_ ledger.Reader    = (*Chain)(nil)
)

// Chain is an in-memory ledger: every sent transaction is mined at once and
// indexed. SendFn and ConfirmFn, when set, replace the default behaviour.
type Chain struct {
	From      string
	SendFn    func(ctx context.Context, data []byte) (string, error)
	ConfirmFn func(ctx context.Context, txRef string) (*ledger.Receipt, error)
	ListFn    func(ctx context.Context, origin string) ([]ledger.IndexedTx, error)

	mu    sync.Mutex
	txs   []ledger.IndexedTx
	block uint64
	sent  int
}

func NewChain(origin string) *Chain {
	return &Chain{From: strings.ToLower(origin), block: 1000}
}

func (c *Chain) Origin() string { return c.From }

func (c *Chain) Send(ctx context.Context, data []byte) (string, error) {
	if c.SendFn != nil {
		return c.SendFn(ctx, data)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.sent++
	c.mu.Unlock()
	return c.Append(data, false).Hash, nil
}

func (c *Chain) Confirm(ctx context.Context, txRef string) (*ledger.Receipt, error) {
	if c.ConfirmFn != nil {
		return c.ConfirmFn(ctx, txRef)
	}
	tx, err := c.GetTransaction(ctx, txRef)
	if err != nil {
		return nil, err
	}
	if tx.Failed() {
		return nil, ledger.ErrTxFailed
	}
	return &ledger.Receipt{TxRef: tx.Hash, BlockRef: tx.BlockNumber, Timestamp: tx.Timestamp}, nil
}

// Sent counts transactions broadcast through the default Send.
func (c *Chain) Sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// Append records a transaction directly, e.g. one written by an older deployment.
func (c *Chain) Append(data []byte, failed bool) ledger.IndexedTx {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block++
	tx := ledger.IndexedTx{
		Hash:        "0x" + id.NewID32() + id.NewID32(),
		BlockNumber: c.block,
		Timestamp:   time.Unix(1_700_000_000+int64(c.block), 0).UTC(),
		Input:       hexutil.Encode(data),
		IsError:     failed,
	}
	c.txs = append(c.txs, tx)
	return tx
}

func (c *Chain) ListByOrigin(ctx context.Context, origin string) ([]ledger.IndexedTx, error) {
	if c.ListFn != nil {
		return c.ListFn(ctx, origin)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !strings.EqualFold(origin, c.From) {
		return nil, nil
	}
	return append([]ledger.IndexedTx(nil), c.txs...), nil
}

func (c *Chain) GetTransaction(_ context.Context, txRef string) (*ledger.IndexedTx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range c.txs {
		if strings.EqualFold(tx.Hash, txRef) {
			t := tx
			return &t, nil
		}
	}
	return nil, ledger.ErrTxNotFound
}
