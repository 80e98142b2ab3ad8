// Package ethrpc anchors certificates as data-carrying, zero-value
// self-transactions on an EVM chain and reads them back from a node.
package ethrpc

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"rcv-cert-ledger/internal/domain/ledger"
)

// Backend is the subset of the node API the client needs. *ethclient.Client
// satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

var (
	_ ledger.Submitter = (*Client)(nil)
	_ ledger.Reader    = (*Client)(nil)
)

type Client struct {
	backend  Backend
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasLimit uint64
	poll     time.Duration
}

type Option func(*Client)

// WithPollInterval sets how often a pending receipt is re-requested.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.poll = d }
}

func New(backend Backend, privateKeyHex string, chainID int64, gasLimit uint64, opts ...Option) (*Client, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parse ledger private key")
	}
	c := &Client{
		backend:  backend,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(chainID),
		gasLimit: gasLimit,
		poll:     2 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Dial connects to rpcURL and builds a Client on it.
func Dial(ctx context.Context, rpcURL, privateKeyHex string, chainID int64, gasLimit uint64) (*Client, func(), error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(err, "dial ledger node")
	}
	c, err := New(ec, privateKeyHex, chainID, gasLimit)
	if err != nil {
		ec.Close()
		return nil, nil, err
	}
	return c, ec.Close, nil
}

func (c *Client) Origin() string { return strings.ToLower(c.from.Hex()) }

// Send signs a transaction carrying data to the client's own address and
// broadcasts it.
func (c *Client) Send(ctx context.Context, data []byte) (string, error) {
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", pkgerrors.Wrap(err, "pending nonce")
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return "", pkgerrors.Wrap(err, "suggest gas tip")
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", pkgerrors.Wrap(err, "latest header")
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	to := c.from
	tx, err := types.SignNewTx(c.key, types.LatestSignerForChainID(c.chainID), &types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       c.gasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})
	if err != nil {
		return "", pkgerrors.Wrap(err, "sign transaction")
	}
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return "", pkgerrors.Wrap(err, "send transaction")
	}
	log.WithFields(log.Fields{"tx_hash": tx.Hash().Hex(), "nonce": nonce, "bytes": len(data)}).Info("ledger transaction sent")
	return strings.ToLower(tx.Hash().Hex()), nil
}

// Confirm waits for txRef's receipt. A reverted transaction yields
// ErrTxFailed; one the node has never seen (or dropped) yields ErrTxNotFound.
func (c *Client) Confirm(ctx context.Context, txRef string) (*ledger.Receipt, error) {
	b, err := hexutil.Decode(txRef)
	if err != nil || len(b) != common.HashLength {
		return nil, ledger.ErrTxNotFound
	}
	hash := common.BytesToHash(b)
	if _, _, err := c.backend.TransactionByHash(ctx, hash); errors.Is(err, ethereum.NotFound) {
		return nil, pkgerrors.WithMessagef(ledger.ErrTxNotFound, "tx %s", txRef)
	} else if err != nil {
		return nil, pkgerrors.Wrap(err, "transaction by hash")
	}

	rcpt, err := c.waitMined(ctx, hash)
	if err != nil {
		return nil, err
	}
	if rcpt.Status == types.ReceiptStatusFailed {
		return nil, pkgerrors.WithMessagef(ledger.ErrTxFailed, "tx %s", txRef)
	}
	return &ledger.Receipt{
		TxRef:     strings.ToLower(hash.Hex()),
		BlockRef:  rcpt.BlockNumber.Uint64(),
		Timestamp: c.blockTime(ctx, rcpt.BlockNumber),
	}, nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	t := time.NewTicker(c.poll)
	defer t.Stop()
	for {
		rcpt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return rcpt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, pkgerrors.Wrap(err, "transaction receipt")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// blockTime falls back to now when the header cannot be fetched; the
// receipt is already final at that point.
func (c *Client) blockTime(ctx context.Context, number *big.Int) time.Time {
	h, err := c.backend.HeaderByNumber(ctx, number)
	if err != nil {
		log.WithError(err).WithField("block", number).Warn("block header unavailable")
		return time.Now().UTC()
	}
	return time.Unix(int64(h.Time), 0).UTC()
}

// GetTransaction returns a mined transaction with its receipt status.
// Pending and unknown transactions yield ErrTxNotFound.
func (c *Client) GetTransaction(ctx context.Context, txRef string) (*ledger.IndexedTx, error) {
	b, err := hexutil.Decode(txRef)
	if err != nil || len(b) != common.HashLength {
		return nil, ledger.ErrTxNotFound
	}
	hash := common.BytesToHash(b)
	tx, pending, err := c.backend.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) || (err == nil && pending) {
		return nil, ledger.ErrTxNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "transaction by hash")
	}
	rcpt, err := c.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ledger.ErrTxNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "transaction receipt")
	}
	return &ledger.IndexedTx{
		Hash:          strings.ToLower(hash.Hex()),
		BlockNumber:   rcpt.BlockNumber.Uint64(),
		Timestamp:     c.blockTime(ctx, rcpt.BlockNumber),
		Input:         hexutil.Encode(tx.Data()),
		ReceiptFailed: rcpt.Status == types.ReceiptStatusFailed,
	}, nil
}
