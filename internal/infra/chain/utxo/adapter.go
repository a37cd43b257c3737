// Package utxo implements a pull transport for Bitcoin-like chains backed by
// an Esplora-style address index (Blockstream API shape).
package utxo

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/rpc"
	"github.com/vietddude/paywatch/internal/infra/transport"
)

// Adapter polls the address-txs endpoint and reports outputs paying the
// watched address. Esplora returns recent history on every call, so depth
// growth is observed by re-reporting a transaction on each poll until it has
// been delivered at the required confirmation count.
type Adapter struct {
	network domain.Network
	client  *rpc.Client
	log     *slog.Logger

	// deepest confirmation count already delivered, by txid
	delivered map[string]uint64
}

// NewAdapter creates a UTXO adapter.
func NewAdapter(network domain.Network, client *rpc.Client, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		network:   network,
		client:    client,
		log:       log.With("adapter", "utxo", "network", network.Name),
		delivered: make(map[string]uint64),
	}
}

type esploraTx struct {
	TxID   string `json:"txid"`
	Status struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHeight uint64 `json:"block_height"`
	} `json:"status"`
	Vout []esploraVout `json:"vout"`
}

type esploraVout struct {
	Address string `json:"scriptpubkey_address"`
	Value   uint64 `json:"value"`
}

// Poll fetches the address's recent transactions and reports those paying it,
// at their current depth. The cursor is the tip height when the watch began;
// transactions confirmed at or below it predate the watch and are skipped.
func (a *Adapter) Poll(
	ctx context.Context,
	target domain.WatchTarget,
	cursor transport.Cursor,
) ([]domain.CandidateTransaction, transport.Cursor, error) {
	if l := len(target.Address); l < 26 || l > 90 {
		return nil, cursor, domain.FatalError(fmt.Errorf("malformed utxo address: %s", target.Address))
	}

	tip, err := a.tipHeight(ctx)
	if err != nil {
		return nil, cursor, err
	}

	if cursor == "" {
		return nil, transport.Cursor(strconv.FormatUint(tip, 10)), nil
	}
	floor, err := strconv.ParseUint(string(cursor), 10, 64)
	if err != nil {
		return nil, cursor, domain.FatalError(fmt.Errorf("corrupt cursor %q: %w", cursor, err))
	}

	var txs []esploraTx
	if err := a.client.Get(ctx, "/address/"+target.Address+"/txs", &txs); err != nil {
		return nil, cursor, err
	}

	required := target.MinConfirmations

	var candidates []domain.CandidateTransaction
	// Newest first from the API; deliver oldest first.
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		if tx.Status.Confirmed && tx.Status.BlockHeight <= floor {
			continue
		}

		amount, ok := a.paidAmount(tx, target.Address)
		if !ok {
			continue
		}

		var conf uint64
		if tx.Status.Confirmed && tip >= tx.Status.BlockHeight {
			conf = tip - tx.Status.BlockHeight + 1
		}
		if prev, seen := a.delivered[tx.TxID]; seen && (prev >= required || conf <= prev) {
			continue
		}
		a.delivered[tx.TxID] = conf

		candidates = append(candidates, domain.CandidateTransaction{
			TxID:          tx.TxID,
			Amount:        amount,
			Currency:      a.network.Symbol,
			BlockHeight:   tx.Status.BlockHeight,
			Confirmations: conf,
			Source:        domain.SourcePull,
		})
	}

	return candidates, cursor, nil
}

func (a *Adapter) tipHeight(ctx context.Context) (uint64, error) {
	var tip uint64
	if err := a.client.Get(ctx, "/blocks/tip/height", &tip); err != nil {
		return 0, err
	}
	return tip, nil
}

// paidAmount sums the outputs locked to address, converted from sats to
// whole coins. ok is false when no output pays the address.
func (a *Adapter) paidAmount(tx esploraTx, address string) (decimal.Decimal, bool) {
	var sats uint64
	for _, out := range tx.Vout {
		if out.Address == address {
			sats += out.Value
		}
	}
	if sats == 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromUint64(sats).Shift(-a.network.Decimals), true
}

var _ transport.PullTransport = (*Adapter)(nil)
