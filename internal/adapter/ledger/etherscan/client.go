// Package etherscan lists an origin's transaction history through an
// Etherscan-compatible account API.
package etherscan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"rcv-cert-ledger/internal/domain/ledger"
)

const noTransactions = "No transactions found"

var _ ledger.Index = (*Client)(nil)

type Config struct {
	BaseURL string
	APIKey  string
	ChainID int64
	// PageSize is capped at 10000 by the API.
	PageSize      int
	RatePerSecond float64
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

func New(cfg Config, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 10000 {
		cfg.PageSize = 10000
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Client{cfg: cfg, http: hc, limiter: rate.NewLimiter(limit, 1)}
}

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type apiTx struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	Input           string `json:"input"`
	IsError         string `json:"isError"`
	TxReceiptStatus string `json:"txreceipt_status"`
}

// ListByOrigin pages through the history ascending. A full page continues
// from its last block; transactions repeated across pages are dropped.
func (c *Client) ListByOrigin(ctx context.Context, origin string) ([]ledger.IndexedTx, error) {
	var (
		out   []ledger.IndexedTx
		seen  = map[string]bool{}
		start uint64
	)
	for {
		page, err := c.page(ctx, origin, start)
		if err != nil {
			return nil, err
		}
		var last uint64
		for _, raw := range page {
			tx, err := convert(raw)
			if err != nil {
				return nil, err
			}
			last = tx.BlockNumber
			if seen[tx.Hash] || !strings.EqualFold(raw.From, origin) {
				continue
			}
			seen[tx.Hash] = true
			out = append(out, tx)
		}
		if len(page) < c.cfg.PageSize || last == start {
			break
		}
		start = last
	}
	log.WithFields(log.Fields{"origin": origin, "transactions": len(out)}).Debug("origin history listed")
	return out, nil
}

func (c *Client) page(ctx context.Context, origin string, startBlock uint64) ([]apiTx, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("chainid", strconv.FormatInt(c.cfg.ChainID, 10))
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", origin)
	q.Set("startblock", strconv.FormatUint(startBlock, 10))
	q.Set("endblock", "99999999")
	q.Set("page", "1")
	q.Set("offset", strconv.Itoa(c.cfg.PageSize))
	q.Set("sort", "asc")
	q.Set("apikey", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build index request")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(ledger.ErrIndexUnavailable, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ledger.ErrIndexUnavailable, "status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(ledger.ErrIndexUnavailable, "decode response")
	}
	if body.Status != "1" {
		if body.Message == noTransactions {
			return nil, nil
		}
		// error responses carry the reason as a string result
		var reason string
		_ = json.Unmarshal(body.Result, &reason)
		return nil, errors.Wrapf(ledger.ErrIndexUnavailable, "%s: %s", body.Message, reason)
	}
	var txs []apiTx
	if err := json.Unmarshal(body.Result, &txs); err != nil {
		return nil, errors.Wrap(ledger.ErrIndexUnavailable, "decode transactions")
	}
	return txs, nil
}

func convert(t apiTx) (ledger.IndexedTx, error) {
	block, err := strconv.ParseUint(t.BlockNumber, 10, 64)
	if err != nil {
		return ledger.IndexedTx{}, errors.Wrapf(ledger.ErrIndexUnavailable, "block number %q", t.BlockNumber)
	}
	ts, err := strconv.ParseInt(t.TimeStamp, 10, 64)
	if err != nil {
		return ledger.IndexedTx{}, errors.Wrapf(ledger.ErrIndexUnavailable, "timestamp %q", t.TimeStamp)
	}
	return ledger.IndexedTx{
		Hash:          strings.ToLower(t.Hash),
		BlockNumber:   block,
		Timestamp:     time.Unix(ts, 0).UTC(),
		Input:         t.Input,
		IsError:       t.IsError == "1",
		ReceiptFailed: t.TxReceiptStatus == "0",
	}, nil
}
