// Package ton provides TON blockchain interaction for the proof pipeline:
// toncenter indexer queries, service-wallet transfer submission and
// incoming-transaction matching.
package ton

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/markaproof/marka/pkg/logger"
)

// Client talks to a toncenter-compatible indexer and broadcasts transfers
// from the service wallet. Indexer reads may run fully concurrently; the
// submit path serialises seqno acquisition and broadcast.
type Client struct {
	restBase   string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
	log        *logger.Logger

	walletAddress string
	walletSeed    string
	amountNano    uint64
	commentPrefix string

	submitMu sync.Mutex
}

// Config holds client configuration. WalletAddress and WalletSeed may be
// left empty when the service-wallet submit path is unused; Submit then
// fails fast with ErrConfig.
type Config struct {
	Endpoint      string // toncenter endpoint, e.g. https://toncenter.com/api/v2/jsonRPC
	APIKey        string
	WalletAddress string
	WalletSeed    string
	ProofAmount   string // whole TON, e.g. "0.05"
	CommentPrefix string
	Timeout       time.Duration
	MaxRetries    int
	RetryBase     time.Duration
}

// NewClient creates a toncenter client.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: toncenter endpoint required", ErrConfig)
	}
	parsed, err := url.Parse(cfg.Endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: toncenter endpoint %q invalid", ErrConfig, cfg.Endpoint)
	}

	amountNano := uint64(50_000_000) // 0.05 TON
	if cfg.ProofAmount != "" {
		amountNano, err = ParseTON(cfg.ProofAmount)
		if err != nil {
			return nil, fmt.Errorf("%w: proof amount: %v", ErrConfig, err)
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	retryBase := cfg.RetryBase
	if retryBase == 0 {
		retryBase = time.Second
	}
	if log == nil {
		log = logger.NewDefault("ton")
	}

	return &Client{
		restBase:      parsed.Scheme + "://" + parsed.Host,
		apiKey:        cfg.APIKey,
		httpClient:    &http.Client{Timeout: timeout},
		maxRetries:    maxRetries,
		retryBase:     retryBase,
		log:           log,
		walletAddress: cfg.WalletAddress,
		walletSeed:    cfg.WalletSeed,
		amountNano:    amountNano,
		commentPrefix: cfg.CommentPrefix,
	}, nil
}

// ExpectedAmount returns the expected payment in nanotons.
func (c *Client) ExpectedAmount() uint64 { return c.amountNano }

// CommentPrefix returns the configured on-chain comment prefix.
func (c *Client) CommentPrefix() string { return c.commentPrefix }

// WalletAddress parses and returns the configured receiving address.
func (c *Client) WalletAddress() (Address, error) {
	if c.walletAddress == "" {
		return Address{}, fmt.Errorf("%w: wallet address missing", ErrConfig)
	}
	addr, err := ParseAddress(c.walletAddress)
	if err != nil {
		return Address{}, fmt.Errorf("%w: wallet address: %v", ErrConfig, err)
	}
	return addr, nil
}

// Transaction is one indexer-reported transaction to an address. It exists
// only for matching and is never persisted.
type Transaction struct {
	LT          string
	HashBase64  string
	HashHex     string
	Source      string
	Destination string
	ValueNano   uint64
	Comment     string
}

// WalletState is the sender wallet's view of its own chain state.
type WalletState struct {
	Seqno      uint32
	LastTxLT   string
	LastTxHash string // base64
}

// PendingLinkage is the provisional ledger linkage known right after a
// broadcast. The indexer remains the source of truth for confirmation.
type PendingLinkage struct {
	LT      string
	HashHex string
}

type envelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
	Code   int             `json:"code"`
}

type rawTransaction struct {
	TransactionID struct {
		LT   string `json:"lt"`
		Hash string `json:"hash"`
	} `json:"transaction_id"`
	InMsg *struct {
		Source      string `json:"source"`
		Destination string `json:"destination"`
		Value       string `json:"value"`
		Message     string `json:"message"`
	} `json:"in_msg"`
}

// GetTransactions queries the indexer for the most recent transactions to
// an address, most recent first. Transient failures, 5xx responses and
// malformed or empty bodies are retried with exponential backoff; after
// retries exhaust the call fails with ErrLedgerUnavailable.
func (c *Client) GetTransactions(ctx context.Context, address string, limit int, ltHint, hashHint string) ([]Transaction, error) {
	query := url.Values{
		"address":  {address},
		"limit":    {strconv.Itoa(limit)},
		"archival": {"true"},
	}
	if ltHint != "" {
		query.Set("lt", ltHint)
	}
	if hashHint != "" {
		query.Set("hash", hashHint)
	}

	var raw []rawTransaction
	err := c.withRetry(ctx, "getTransactions", func() error {
		result, err := c.get(ctx, "/api/v2/getTransactions", query)
		if err != nil {
			return err
		}
		raw = raw[:0]
		if err := json.Unmarshal(result, &raw); err != nil {
			return fmt.Errorf("decode transactions: %w", err)
		}
		if len(raw) == 0 {
			return fmt.Errorf("empty transaction list")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	txs := make([]Transaction, 0, len(raw))
	for _, r := range raw {
		tx := Transaction{
			LT:         r.TransactionID.LT,
			HashBase64: r.TransactionID.Hash,
		}
		if decoded, err := base64.StdEncoding.DecodeString(r.TransactionID.Hash); err == nil {
			tx.HashHex = hex.EncodeToString(decoded)
		}
		if r.InMsg != nil {
			tx.Source = r.InMsg.Source
			tx.Destination = r.InMsg.Destination
			tx.Comment = r.InMsg.Message
			if v, err := strconv.ParseUint(r.InMsg.Value, 10, 64); err == nil {
				tx.ValueNano = v
			}
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// RecentIncoming fetches the most recent transactions to the configured
// receiving wallet, most recent first.
func (c *Client) RecentIncoming(ctx context.Context, limit int) ([]Transaction, error) {
	if c.walletAddress == "" {
		return nil, fmt.Errorf("%w: wallet address missing", ErrConfig)
	}
	return c.GetTransactions(ctx, c.walletAddress, limit, "", "")
}

// GetWalletState reads the sender wallet's seqno and last transaction id.
func (c *Client) GetWalletState(ctx context.Context, address string) (WalletState, error) {
	var state WalletState
	err := c.withRetry(ctx, "getWalletInformation", func() error {
		result, err := c.get(ctx, "/api/v2/getWalletInformation", url.Values{"address": {address}})
		if err != nil {
			return err
		}
		var raw struct {
			Seqno             uint32 `json:"seqno"`
			LastTransactionID struct {
				LT   string `json:"lt"`
				Hash string `json:"hash"`
			} `json:"last_transaction_id"`
		}
		if err := json.Unmarshal(result, &raw); err != nil {
			return fmt.Errorf("decode wallet information: %w", err)
		}
		state = WalletState{
			Seqno:      raw.Seqno,
			LastTxLT:   raw.LastTransactionID.LT,
			LastTxHash: raw.LastTransactionID.Hash,
		}
		return nil
	})
	return state, err
}

// SendBoc broadcasts a serialized external message.
func (c *Client) SendBoc(ctx context.Context, boc []byte) error {
	payload, err := json.Marshal(map[string]string{
		"boc": base64.StdEncoding.EncodeToString(boc),
	})
	if err != nil {
		return fmt.Errorf("marshal boc: %w", err)
	}
	return c.withRetry(ctx, "sendBoc", func() error {
		_, err := c.post(ctx, "/api/v2/sendBoc", payload)
		return err
	})
}

// Submit anchors a fingerprint from the service wallet: it reads the
// current seqno, broadcasts a value transfer to the receiving address
// carrying the tagged fingerprint as a comment, and returns the wallet's
// last known transaction as a provisional linkage.
//
// Seqno acquisition and broadcast form a critical section: two concurrent
// submissions racing on the same seqno would cancel each other out.
func (c *Client) Submit(ctx context.Context, fp string) (PendingLinkage, error) {
	if c.walletAddress == "" || c.walletSeed == "" {
		return PendingLinkage{}, fmt.Errorf("%w: wallet credentials missing", ErrConfig)
	}
	dest, err := c.WalletAddress()
	if err != nil {
		return PendingLinkage{}, err
	}
	wallet, err := NewWalletFromSeed(c.walletSeed)
	if err != nil {
		return PendingLinkage{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	state, err := c.GetWalletState(ctx, c.walletAddress)
	if err != nil {
		return PendingLinkage{}, err
	}

	boc, err := wallet.BuildExternalMessage(Transfer{
		Seqno:       state.Seqno,
		Source:      dest,
		Destination: dest,
		AmountNano:  c.amountNano,
		Comment:     c.commentPrefix + fp,
		Bounce:      false,
	})
	if err != nil {
		return PendingLinkage{}, fmt.Errorf("build transfer: %w", err)
	}

	if err := c.SendBoc(ctx, boc); err != nil {
		return PendingLinkage{}, err
	}

	after, err := c.GetWalletState(ctx, c.walletAddress)
	if err != nil {
		return PendingLinkage{}, err
	}
	linkage := PendingLinkage{LT: after.LastTxLT}
	if decoded, err := base64.StdEncoding.DecodeString(after.LastTxHash); err == nil {
		linkage.HashHex = hex.EncodeToString(decoded)
	}
	c.log.WithField("lt", linkage.LT).Info("anchor transfer broadcast")
	return linkage, nil
}

// withRetry runs fn with an explicit attempt counter and exponential
// backoff (base delay doubling each attempt). Every retry re-executes the
// query from scratch. Exhaustion surfaces as ErrLedgerUnavailable.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryBase << uint(attempt-1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%w: %s: %v", ErrLedgerUnavailable, op, ctx.Err())
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		c.log.WithError(lastErr).
			WithField("op", op).
			WithField("attempt", attempt).
			Warn("indexer call failed")
	}
	return fmt.Errorf("%w: %s: %v", ErrLedgerUnavailable, op, lastErr)
}

// permanentError marks failures that retrying cannot fix (4xx responses).
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restBase+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.restBase+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("toncenter status %d: %s", resp.StatusCode, truncate(respBody, 200))
	}
	if resp.StatusCode >= 400 {
		return nil, &permanentError{err: fmt.Errorf("toncenter status %d: %s", resp.StatusCode, truncate(respBody, 200))}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !env.OK {
		if env.Error == "" {
			env.Error = "response missing result"
		}
		return nil, fmt.Errorf("toncenter error: %s", env.Error)
	}
	return env.Result, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}
