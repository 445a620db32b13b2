package ton

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, srv *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.Endpoint = srv.URL + "/api/v2/jsonRPC"
	if cfg.RetryBase == 0 {
		cfg.RetryBase = time.Millisecond
	}
	c, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func txListBody(t *testing.T, txs []map[string]interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"ok": true, "result": txs})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestGetTransactionsParsesIndexerResponse(t *testing.T) {
	hash := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/getTransactions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit = %s, want 50", got)
		}
		w.Write(txListBody(t, []map[string]interface{}{{
			"transaction_id": map[string]string{"lt": "123", "hash": hash},
			"in_msg": map[string]string{
				"source":      "0:1111111111111111111111111111111111111111111111111111111111111111",
				"destination": "0:2222222222222222222222222222222222222222222222222222222222222222",
				"value":       "50000000",
				"message":     "Proof:abc",
			},
		}}))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	txs, err := c.GetTransactions(context.Background(), "addr", 50, "", "")
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	tx := txs[0]
	if tx.LT != "123" || tx.ValueNano != 50_000_000 || tx.Comment != "Proof:abc" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if tx.HashHex != hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef")) {
		t.Fatalf("hash hex = %s", tx.HashHex)
	}
}

func TestGetTransactionsRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(txListBody(t, []map[string]interface{}{{
			"transaction_id": map[string]string{"lt": "1", "hash": ""},
		}}))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	if _, err := c.GetTransactions(context.Background(), "addr", 10, "", ""); err != nil {
		t.Fatalf("expected recovery after retries, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Fatalf("calls = %d, want 4", got)
	}
}

func TestGetTransactionsExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{MaxRetries: 3})
	_, err := c.GetTransactions(context.Background(), "addr", 10, "", "")
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("err = %v, want ErrLedgerUnavailable", err)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Fatalf("calls = %d, want initial attempt plus 3 retries", got)
	}
}

func TestGetTransactionsRetriesMalformedBody(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{MaxRetries: 2})
	_, err := c.GetTransactions(context.Background(), "addr", 10, "", "")
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("err = %v, want ErrLedgerUnavailable", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestGetTransactionsRetriesEmptyList(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write(txListBody(t, []map[string]interface{}{}))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{MaxRetries: 1})
	_, err := c.GetTransactions(context.Background(), "addr", 10, "", "")
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("err = %v, want ErrLedgerUnavailable", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	_, err := c.GetTransactions(context.Background(), "addr", 10, "", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("4xx must not be reported as ledger unavailability: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want exactly one attempt", got)
	}
}

func TestRecentIncomingRequiresWalletAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	if _, err := c.RecentIncoming(context.Background(), 10); !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestSubmitRequiresCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{WalletAddress: testAddr(0x44).Raw()})
	if _, err := c.Submit(context.Background(), matchFingerprint); !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestSubmitBroadcastsAndReturnsLinkage(t *testing.T) {
	wallet := testAddr(0x44)
	lastHash := base64.StdEncoding.EncodeToString([]byte("abcdefghijklmnopqrstuvwxyz012345"))

	var bocPosts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/getWalletInformation":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"ok": true,
				"result": map[string]interface{}{
					"seqno": 9,
					"last_transaction_id": map[string]string{
						"lt":   "424242",
						"hash": lastHash,
					},
				},
			})
		case "/api/v2/sendBoc":
			var payload struct {
				Boc string `json:"boc"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("decode sendBoc payload: %v", err)
			}
			raw, err := base64.StdEncoding.DecodeString(payload.Boc)
			if err != nil {
				t.Errorf("boc is not base64: %v", err)
			}
			if _, err := ParseBOC(raw); err != nil {
				t.Errorf("broadcast boc does not parse: %v", err)
			}
			atomic.AddInt32(&bocPosts, 1)
			json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "result": map[string]string{}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{
		WalletAddress: wallet.Friendly(true, false),
		WalletSeed:    testSeed,
		ProofAmount:   "0.05",
		CommentPrefix: "Proof:",
	})

	linkage, err := c.Submit(context.Background(), matchFingerprint)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if atomic.LoadInt32(&bocPosts) != 1 {
		t.Fatal("expected exactly one broadcast")
	}
	if linkage.LT != "424242" {
		t.Fatalf("linkage LT = %s, want 424242", linkage.LT)
	}
	if linkage.HashHex != hex.EncodeToString([]byte("abcdefghijklmnopqrstuvwxyz012345")) {
		t.Fatalf("linkage hash = %s", linkage.HashHex)
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	if _, err := NewClient(Config{}, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("missing endpoint: err = %v, want ErrConfig", err)
	}
	if _, err := NewClient(Config{Endpoint: "https://toncenter.com/api/v2/jsonRPC", ProofAmount: "abc"}, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("bad amount: err = %v, want ErrConfig", err)
	}
}
