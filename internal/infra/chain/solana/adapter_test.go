package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/rpc"
	"github.com/vietddude/paywatch/internal/metrics"
)

const watchAddr = "7cVfgArCheMR6Cs4t6vz5rfnqd56vZq4ndaBrY5xkxXy"

func testAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := rpc.NewClient("solana", rpc.Config{URL: srv.URL, Timeout: time.Second}, metrics.NewCollector())
	if err != nil {
		t.Fatalf("client construction failed: %v", err)
	}
	network := domain.Network{Name: "solana", Symbol: "SOL", Family: domain.FamilySVM, Decimals: 9}
	return NewAdapter(network, client, nil)
}

func solHandler(t *testing.T, slot uint64, sigs []map[string]any, txs map[string]map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request: %v", err)
		}

		respond := func(result any) {
			json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": result})
		}

		switch req.Method {
		case "getSlot":
			respond(slot)
		case "getSignaturesForAddress":
			respond(sigs)
		case "getTransaction":
			respond(txs[req.Params[0].(string)])
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
	}
}

func solTarget() domain.WatchTarget {
	return domain.WatchTarget{
		Address:          watchAddr,
		ExpectedAmount:   decimal.RequireFromString("0.25"),
		Currency:         "SOL",
		MinConfirmations: 1,
	}
}

func TestPollDetectsIncomingLamports(t *testing.T) {
	sigs := []map[string]any{
		{"signature": "sig2", "slot": 1010, "err": nil},
		{"signature": "sig1", "slot": 1000, "err": nil},
	}
	txs := map[string]map[string]any{
		"sig1": {
			"slot": 1000,
			"meta": map[string]any{
				"err":          nil,
				"preBalances":  []uint64{5_000_000_000, 1_000_000_000},
				"postBalances": []uint64{4_750_000_000, 1_250_000_000},
			},
			"transaction": map[string]any{
				"message": map[string]any{
					"accountKeys": []map[string]any{
						{"pubkey": "SenderAddr111111111111111111111111111111111"},
						{"pubkey": watchAddr},
					},
				},
			},
		},
		"sig2": {
			"slot": 1010,
			"meta": map[string]any{
				"err":          nil,
				"preBalances":  []uint64{1_250_000_000},
				"postBalances": []uint64{1_200_000_000}, // outgoing, ignore
			},
			"transaction": map[string]any{
				"message": map[string]any{
					"accountKeys": []map[string]any{{"pubkey": watchAddr}},
				},
			},
		},
	}

	a := testAdapter(t, solHandler(t, 1020, sigs, txs))

	candidates, cursor, err := a.Poll(context.Background(), solTarget(), "")
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 incoming candidate, got %d", len(candidates))
	}

	c := candidates[0]
	if c.TxID != "sig1" {
		t.Errorf("expected sig1, got %s", c.TxID)
	}
	if !c.Amount.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("expected 0.25 SOL, got %s", c.Amount)
	}
	// slot 1000, tip 1020: depth 21
	if c.Confirmations != 21 {
		t.Errorf("expected 21 confirmations, got %d", c.Confirmations)
	}
	if cursor != "sig2" {
		t.Errorf("expected cursor at newest signature, got %s", cursor)
	}
}

func TestPollSkipsFailedTransactions(t *testing.T) {
	sigs := []map[string]any{
		{"signature": "sigbad", "slot": 1000, "err": map[string]any{"InstructionError": []any{}}},
	}
	a := testAdapter(t, solHandler(t, 1010, sigs, nil))

	candidates, _, err := a.Poll(context.Background(), solTarget(), "")
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected failed tx to be skipped, got %d candidates", len(candidates))
	}
}

func TestPollEmptyKeepsCursor(t *testing.T) {
	a := testAdapter(t, solHandler(t, 1010, []map[string]any{}, nil))

	_, cursor, err := a.Poll(context.Background(), solTarget(), "sig9")
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if cursor != "sig9" {
		t.Errorf("expected cursor unchanged, got %s", cursor)
	}
}

// movableLedger serves the RPC surface with a slot tip and signature list
// that tests can change between polls.
type movableLedger struct {
	mu   sync.Mutex
	slot uint64
	sigs []map[string]any
	txs  map[string]map[string]any
}

func (l *movableLedger) set(slot uint64, sigs []map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slot = slot
	l.sigs = sigs
}

func (l *movableLedger) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request: %v", err)
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		respond := func(result any) {
			json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": result})
		}

		switch req.Method {
		case "getSlot":
			respond(l.slot)
		case "getSignaturesForAddress":
			respond(l.sigs)
		case "getTransaction":
			respond(l.txs[req.Params[0].(string)])
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
	}
}

func TestPollReportsGrowingDepthAcrossPolls(t *testing.T) {
	ledger := &movableLedger{
		txs: map[string]map[string]any{
			"sig1": {
				"slot": 1000,
				"meta": map[string]any{
					"err":          nil,
					"preBalances":  []uint64{5_000_000_000, 1_000_000_000},
					"postBalances": []uint64{4_750_000_000, 1_250_000_000},
				},
				"transaction": map[string]any{
					"message": map[string]any{
						"accountKeys": []map[string]any{
							{"pubkey": "SenderAddr111111111111111111111111111111111"},
							{"pubkey": watchAddr},
						},
					},
				},
			},
		},
	}
	ledger.set(1000, []map[string]any{{"signature": "sig1", "slot": 1000, "err": nil}})
	a := testAdapter(t, ledger.handler(t))

	tgt := solTarget()
	tgt.MinConfirmations = 3

	// Credit lands at the tip: depth 1, below the required 3.
	candidates, cursor, err := a.Poll(context.Background(), tgt, "")
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Confirmations != 1 {
		t.Fatalf("expected one candidate at depth 1, got %v", candidates)
	}

	// Tip advances with no new signatures: the tracked credit reaches
	// depth 3 and is re-reported once.
	ledger.set(1002, []map[string]any{})
	candidates, cursor, err = a.Poll(context.Background(), tgt, cursor)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected the credit re-reported at new depth, got %v", candidates)
	}
	if candidates[0].TxID != "sig1" || candidates[0].Confirmations != 3 {
		t.Errorf("expected sig1 at depth 3, got %s at %d", candidates[0].TxID, candidates[0].Confirmations)
	}
	if cursor != "sig1" {
		t.Errorf("expected cursor held at sig1, got %s", cursor)
	}

	// Required depth reached: the credit is no longer tracked.
	ledger.set(1005, []map[string]any{})
	candidates, _, err = a.Poll(context.Background(), tgt, cursor)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected no candidates after required depth reached, got %v", candidates)
	}
}

func TestPollRejectsMalformedAddress(t *testing.T) {
	a := testAdapter(t, solHandler(t, 1010, nil, nil))

	tgt := solTarget()
	tgt.Address = "tooshort"

	_, _, err := a.Poll(context.Background(), tgt, "")
	if !domain.IsFatalTransport(err) {
		t.Errorf("expected fatal error, got %v", err)
	}
}
