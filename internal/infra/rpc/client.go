// Package rpc provides the shared HTTP plumbing used by chain adapters:
// a JSON-RPC 2.0 client and a REST helper, both classifying failures into
// transient and fatal transport errors.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/metrics"
)

// Config holds endpoint settings for one client. Immutable for the lifetime
// of the monitors sharing it.
type Config struct {
	URL     string
	Timeout time.Duration

	// ConnectorLimit caps concurrent connections to the endpoint. Excess
	// requests queue inside the transport rather than failing outright,
	// bounded by the per-call timeout.
	ConnectorLimit int

	ProxyURL string
}

// Client is a JSON-RPC / REST client bound to one endpoint. Safe for
// concurrent use; the underlying connection pool is shared across monitors
// watching the same network.
type Client struct {
	network    string
	endpoint   string
	httpClient *http.Client
	collector  *metrics.Collector
}

// NewClient builds a client for the given network endpoint.
func NewClient(network string, cfg Config, collector *metrics.Collector) (*Client, error) {
	if cfg.URL == "" {
		return nil, &domain.ConfigError{Field: "rpc_url", Reason: "must not be empty"}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	tr := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if cfg.ConnectorLimit > 0 {
		tr.MaxConnsPerHost = cfg.ConnectorLimit
	}
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, &domain.ConfigError{Field: "proxy_url", Reason: err.Error()}
		}
		tr.Proxy = http.ProxyURL(proxy)
	}

	if collector == nil {
		collector = metrics.Default()
	}

	return &Client{
		network:  network,
		endpoint: cfg.URL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
		collector: collector,
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call makes a single JSON-RPC 2.0 call and unmarshals the result. Exceeding
// the per-call timeout surfaces as a transient transport error.
func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	start := time.Now()
	err := c.call(ctx, method, params, result)
	latency := time.Since(start)

	c.collector.RecordRequest(latency, err != nil)
	metrics.RPCCallsTotal.WithLabelValues(c.network, method).Inc()
	metrics.RPCLatency.WithLabelValues(c.network, method).Observe(latency.Seconds())
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(c.network, errorType(err)).Inc()
	}
	return err
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return domain.FatalError(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.FatalError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts, resets, DNS hiccups: all retryable.
		return domain.TransientError(fmt.Errorf("rpc call %s: %w", method, err))
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, resp.Header.Get("Retry-After")); err != nil {
		return err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.TransientError(fmt.Errorf("read response: %w", err))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return domain.TransientError(fmt.Errorf("parse response: %w", err))
	}
	if rpcResp.Error != nil {
		return classifyRPCError(method, rpcResp.Error)
	}

	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return domain.TransientError(fmt.Errorf("decode result of %s: %w", method, err))
		}
	}
	return nil
}

// Get performs a REST GET relative to the endpoint and unmarshals the JSON
// response body. Used by address-index style APIs (Esplora and friends).
func (c *Client) Get(ctx context.Context, path string, result any) error {
	start := time.Now()
	err := c.get(ctx, path, result)
	latency := time.Since(start)

	c.collector.RecordRequest(latency, err != nil)
	metrics.RPCCallsTotal.WithLabelValues(c.network, "GET").Inc()
	metrics.RPCLatency.WithLabelValues(c.network, "GET").Observe(latency.Seconds())
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(c.network, errorType(err)).Inc()
	}
	return err
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	u := strings.TrimRight(c.endpoint, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.FatalError(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.TransientError(fmt.Errorf("get %s: %w", path, err))
	}
	defer resp.Body.Close()

	// Address-shaped endpoints reject malformed input with 400; retrying
	// never helps.
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.FatalError(fmt.Errorf("get %s: http %d: %s", path, resp.StatusCode, string(body)))
	}
	if err := classifyStatus(resp.StatusCode, resp.Header.Get("Retry-After")); err != nil {
		return err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.TransientError(fmt.Errorf("read response: %w", err))
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return domain.TransientError(fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

func classifyStatus(code int, retryAfter string) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests:
		return domain.TransientError(fmt.Errorf("rate limited (429), retry after: %s", retryAfter))
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return domain.FatalError(fmt.Errorf("authentication rejected (http %d)", code))
	case code >= 500:
		return domain.TransientError(fmt.Errorf("server error (http %d)", code))
	default:
		return domain.TransientError(fmt.Errorf("unexpected http %d", code))
	}
}

// classifyRPCError maps JSON-RPC error codes: request-shape errors
// (-32700..-32602) never succeed on retry, everything else might.
func classifyRPCError(method string, e *rpcError) error {
	err := fmt.Errorf("rpc error on %s: %s (code %d)", method, e.Message, e.Code)
	if e.Code == -32700 || e.Code == -32600 || e.Code == -32601 || e.Code == -32602 {
		return domain.FatalError(err)
	}
	return domain.TransientError(err)
}

func errorType(err error) string {
	if domain.IsTransient(err) {
		return "transient"
	}
	return "fatal"
}
