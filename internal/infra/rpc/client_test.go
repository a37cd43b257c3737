package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/metrics"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient("testnet", Config{URL: srv.URL, Timeout: time.Second}, metrics.NewCollector())
	if err != nil {
		t.Fatalf("client construction failed: %v", err)
	}
	return c
}

func TestCallSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req.Method != "eth_blockNumber" {
			t.Errorf("expected eth_blockNumber, got %s", req.Method)
		}
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": "0x10"})
	})

	var result string
	if err := c.Call(context.Background(), "eth_blockNumber", nil, &result); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if result != "0x10" {
		t.Errorf("expected 0x10, got %s", result)
	}
}

func TestRateLimitIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := c.Call(context.Background(), "eth_blockNumber", nil, nil)
	if !domain.IsTransient(err) {
		t.Errorf("expected transient error for 429, got %v", err)
	}
}

func TestAuthFailureIsFatal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	err := c.Call(context.Background(), "eth_blockNumber", nil, nil)
	if !domain.IsFatalTransport(err) {
		t.Errorf("expected fatal error for 403, got %v", err)
	}
}

func TestInvalidParamsIsFatal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": 1,
			"error": map[string]any{"code": -32602, "message": "invalid params"},
		})
	})

	err := c.Call(context.Background(), "eth_getBlockByNumber", []any{"bogus"}, nil)
	if !domain.IsFatalTransport(err) {
		t.Errorf("expected fatal error for -32602, got %v", err)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.Call(context.Background(), "eth_blockNumber", nil, nil)
	if !domain.IsTransient(err) {
		t.Errorf("expected transient error for 502, got %v", err)
	}
}

func TestTimeoutIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	c.httpClient.Timeout = 20 * time.Millisecond

	err := c.Call(context.Background(), "eth_blockNumber", nil, nil)
	if !domain.IsTransient(err) {
		t.Errorf("expected transient error on timeout, got %v", err)
	}
}

func TestGetDecodesJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/blocks/tip/height" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte("812000"))
	})

	var height uint64
	if err := c.Get(context.Background(), "/blocks/tip/height", &height); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if height != 812000 {
		t.Errorf("expected 812000, got %d", height)
	}
}

func TestGetBadRequestIsFatal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("Invalid Bitcoin address"))
	})

	var out any
	err := c.Get(context.Background(), "/address/garbage/txs", &out)
	if !domain.IsFatalTransport(err) {
		t.Errorf("expected fatal error for 400, got %v", err)
	}
}

func TestMetricsRecorded(t *testing.T) {
	collector := metrics.NewCollector()
	collector.Enable()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": "0x1"})
	}))
	defer srv.Close()

	c, err := NewClient("testnet", Config{URL: srv.URL}, collector)
	if err != nil {
		t.Fatalf("client construction failed: %v", err)
	}

	var result string
	c.Call(context.Background(), "eth_blockNumber", nil, &result)
	c.Call(context.Background(), "eth_blockNumber", nil, &result)

	if s := collector.Snapshot(); s.TotalRequests != 2 {
		t.Errorf("expected 2 recorded requests, got %d", s.TotalRequests)
	}
}
