// Package solana implements a pull transport for SVM chains using the
// signature-index RPC surface (getSignaturesForAddress / getTransaction).
package solana

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/rpc"
	"github.com/vietddude/paywatch/internal/infra/transport"
)

// signatureBatch caps how many signatures one poll inspects.
const signatureBatch = 50

// Adapter translates Solana RPC data into candidate transactions. Solana has
// no per-transaction confirmation ladder; depth is derived from slot distance
// to the current tip.
type Adapter struct {
	network domain.Network
	client  *rpc.Client
	log     *slog.Logger

	// credits still gathering depth, by signature; re-reported on later
	// polls until they clear the target's required confirmations
	pending map[string]pendingTx
}

type pendingTx struct {
	slot     uint64
	amount   decimal.Decimal
	reported uint64
}

// NewAdapter creates a Solana adapter.
func NewAdapter(network domain.Network, client *rpc.Client, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		network: network,
		client:  client,
		log:     log.With("adapter", "solana", "network", network.Name),
		pending: make(map[string]pendingTx),
	}
}

type signatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	Err       any    `json:"err"`
}

type txResult struct {
	Slot        uint64  `json:"slot"`
	Meta        *txMeta `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys []accountKey `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

type txMeta struct {
	Err          any      `json:"err"`
	PreBalances  []uint64 `json:"preBalances"`
	PostBalances []uint64 `json:"postBalances"`
}

type accountKey struct {
	Pubkey string `json:"pubkey"`
}

// Poll lists new signatures touching the address since the cursor, fetches
// each transaction and reports positive balance deltas as incoming payments.
// The cursor is the most recent signature seen. A credit found below the
// required depth is re-reported on later polls as the slot tip advances, so
// the confirmation count observed downstream keeps growing until finality.
func (a *Adapter) Poll(
	ctx context.Context,
	target domain.WatchTarget,
	cursor transport.Cursor,
) ([]domain.CandidateTransaction, transport.Cursor, error) {
	if l := len(target.Address); l < 32 || l > 44 {
		return nil, cursor, domain.FatalError(fmt.Errorf("malformed solana address: %s", target.Address))
	}

	head, err := a.currentSlot(ctx)
	if err != nil {
		return nil, cursor, err
	}

	opts := map[string]any{"limit": signatureBatch}
	if cursor != "" {
		opts["until"] = string(cursor)
	}

	var sigs []signatureInfo
	if err := a.client.Call(ctx, "getSignaturesForAddress", []any{target.Address, opts}, &sigs); err != nil {
		return nil, cursor, err
	}

	next := cursor
	if len(sigs) > 0 {
		next = transport.Cursor(sigs[0].Signature)
	}

	var candidates []domain.CandidateTransaction
	// Newest first from the RPC; deliver oldest first.
	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i]
		if sig.Err != nil {
			continue
		}
		amount, ok, err := a.incomingAmount(ctx, sig.Signature, target.Address)
		if err != nil {
			return nil, cursor, err
		}
		if !ok {
			continue
		}
		conf := uint64(1)
		if head > sig.Slot {
			conf = head - sig.Slot + 1
		}
		candidates = append(candidates, domain.CandidateTransaction{
			TxID:          sig.Signature,
			Amount:        amount,
			Currency:      a.network.Symbol,
			BlockHeight:   sig.Slot,
			Confirmations: conf,
			Source:        domain.SourcePull,
		})
	}

	required := target.MinConfirmations
	for _, c := range candidates {
		if c.Confirmations < required {
			a.pending[c.TxID] = pendingTx{slot: c.BlockHeight, amount: c.Amount, reported: c.Confirmations}
		}
	}
	candidates = append(candidates, a.deepened(head, required)...)

	return candidates, next, nil
}

// deepened re-reports tracked credits whose depth grew with the new tip.
// A credit is dropped once it has been reported at the required depth.
func (a *Adapter) deepened(head, required uint64) []domain.CandidateTransaction {
	var out []domain.CandidateTransaction
	for sig, p := range a.pending {
		if head < p.slot {
			continue
		}
		conf := head - p.slot + 1
		if conf <= p.reported {
			continue
		}
		out = append(out, domain.CandidateTransaction{
			TxID:          sig,
			Amount:        p.amount,
			Currency:      a.network.Symbol,
			BlockHeight:   p.slot,
			Confirmations: conf,
			Source:        domain.SourcePull,
		})
		if conf >= required {
			delete(a.pending, sig)
			continue
		}
		p.reported = conf
		a.pending[sig] = p
	}
	return out
}

func (a *Adapter) currentSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := a.client.Call(ctx, "getSlot", []any{map[string]any{"commitment": "confirmed"}}, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// incomingAmount returns the lamport delta credited to address by the
// transaction, converted to whole coins. ok is false when the transaction
// did not increase the address balance.
func (a *Adapter) incomingAmount(ctx context.Context, signature, address string) (decimal.Decimal, bool, error) {
	var tx txResult
	params := []any{signature, map[string]any{
		"encoding":                       "jsonParsed",
		"maxSupportedTransactionVersion": 0,
	}}
	if err := a.client.Call(ctx, "getTransaction", params, &tx); err != nil {
		return decimal.Zero, false, err
	}
	if tx.Meta == nil || tx.Meta.Err != nil {
		return decimal.Zero, false, nil
	}

	idx := -1
	for i, key := range tx.Transaction.Message.AccountKeys {
		if key.Pubkey == address {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(tx.Meta.PreBalances) || idx >= len(tx.Meta.PostBalances) {
		return decimal.Zero, false, nil
	}

	pre := tx.Meta.PreBalances[idx]
	post := tx.Meta.PostBalances[idx]
	if post <= pre {
		return decimal.Zero, false, nil
	}

	lamports := decimal.NewFromUint64(post - pre)
	return lamports.Shift(-a.network.Decimals), true, nil
}

var _ transport.PullTransport = (*Adapter)(nil)
