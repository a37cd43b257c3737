// Package evm implements pull and push transports for account-model chains
// speaking the Ethereum JSON-RPC protocol.
package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/rpc"
	"github.com/vietddude/paywatch/internal/infra/transport"
)

// maxBlocksPerPoll caps how far one poll scans so a lagging cursor cannot
// trigger an unbounded burst of block fetches.
const maxBlocksPerPoll = 10

// Adapter translates Ethereum JSON-RPC data into candidate transactions.
// It implements PullTransport always and PushTransport when a WS URL is set.
type Adapter struct {
	network domain.Network
	client  *rpc.Client
	wsURL   string
	log     *slog.Logger

	// matches still gathering depth, by txid; re-reported on later polls
	// until they clear the target's required confirmations
	pending map[string]pendingTx
}

type pendingTx struct {
	height   uint64
	amount   decimal.Decimal
	reported uint64
}

// NewAdapter creates an EVM adapter. wsURL may be empty, disabling push.
func NewAdapter(network domain.Network, client *rpc.Client, wsURL string, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		network: network,
		client:  client,
		wsURL:   wsURL,
		log:     log.With("adapter", "evm", "network", network.Name),
		pending: make(map[string]pendingTx),
	}
}

type rpcBlock struct {
	Number       string       `json:"number"`
	Hash         string       `json:"hash"`
	Transactions []rpcBlockTx `json:"transactions"`
}

type rpcBlockTx struct {
	Hash  string `json:"hash"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// Poll scans new blocks since the cursor and returns transfers into the
// target address. An empty cursor starts at the current tip, so only
// transactions mined after the watch began are reported. A transfer found
// below the required depth is re-reported on later polls as the head
// advances, so the confirmation count observed downstream keeps growing
// until finality.
func (a *Adapter) Poll(
	ctx context.Context,
	target domain.WatchTarget,
	cursor transport.Cursor,
) ([]domain.CandidateTransaction, transport.Cursor, error) {
	if !validAddress(target.Address) {
		return nil, cursor, domain.FatalError(fmt.Errorf("malformed evm address: %s", target.Address))
	}

	head, err := a.blockNumber(ctx)
	if err != nil {
		return nil, cursor, err
	}

	if cursor == "" {
		return nil, transport.Cursor(strconv.FormatUint(head, 10)), nil
	}

	last, err := strconv.ParseUint(string(cursor), 10, 64)
	if err != nil {
		return nil, cursor, domain.FatalError(fmt.Errorf("corrupt cursor %q: %w", cursor, err))
	}
	if last >= head {
		// No new blocks means no depth growth either.
		return nil, cursor, nil
	}

	from := last + 1
	to := head
	if to-from+1 > maxBlocksPerPoll {
		to = from + maxBlocksPerPoll - 1
	}

	var candidates []domain.CandidateTransaction
	for n := from; n <= to; n++ {
		block, err := a.getBlock(ctx, n)
		if err != nil {
			// Cursor stays put; the failed block is rescanned next poll.
			return nil, transport.Cursor(strconv.FormatUint(n-1, 10)), err
		}
		for _, tx := range block.Transactions {
			if !strings.EqualFold(tx.To, target.Address) {
				continue
			}
			amount, err := weiToDecimal(tx.Value, a.network.Decimals)
			if err != nil {
				a.log.Warn("Skipping tx with unparsable value", "tx", tx.Hash, "error", err)
				continue
			}
			candidates = append(candidates, domain.CandidateTransaction{
				TxID:          tx.Hash,
				Amount:        amount,
				Currency:      a.network.Symbol,
				BlockHeight:   n,
				Confirmations: head - n + 1,
				Source:        domain.SourcePull,
			})
		}
	}

	required := target.MinConfirmations
	for _, c := range candidates {
		if c.Confirmations < required {
			a.pending[c.TxID] = pendingTx{height: c.BlockHeight, amount: c.Amount, reported: c.Confirmations}
		}
	}
	candidates = append(candidates, a.deepened(head, required)...)

	return candidates, transport.Cursor(strconv.FormatUint(to, 10)), nil
}

// deepened re-reports tracked matches whose depth grew with the new head.
// A match is dropped once it has been reported at the required depth.
func (a *Adapter) deepened(head, required uint64) []domain.CandidateTransaction {
	var out []domain.CandidateTransaction
	for txID, p := range a.pending {
		if head < p.height {
			continue
		}
		conf := head - p.height + 1
		if conf <= p.reported {
			continue
		}
		out = append(out, domain.CandidateTransaction{
			TxID:          txID,
			Amount:        p.amount,
			Currency:      a.network.Symbol,
			BlockHeight:   p.height,
			Confirmations: conf,
			Source:        domain.SourcePull,
		})
		if conf >= required {
			delete(a.pending, txID)
			continue
		}
		p.reported = conf
		a.pending[txID] = p
	}
	return out
}

func (a *Adapter) blockNumber(ctx context.Context) (uint64, error) {
	var hex string
	if err := a.client.Call(ctx, "eth_blockNumber", nil, &hex); err != nil {
		return 0, err
	}
	return parseHexUint(hex)
}

func (a *Adapter) getBlock(ctx context.Context, number uint64) (*rpcBlock, error) {
	var block rpcBlock
	numHex := "0x" + strconv.FormatUint(number, 16)
	if err := a.client.Call(ctx, "eth_getBlockByNumber", []any{numHex, true}, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func validAddress(addr string) bool {
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return false
	}
	_, ok := new(big.Int).SetString(addr[2:], 16)
	return ok
}

func parseHexUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, domain.TransientError(fmt.Errorf("malformed hex quantity %q: %w", s, err))
	}
	return v, nil
}

// weiToDecimal converts a hex wei quantity into a whole-coin decimal using
// the network's configured precision.
func weiToDecimal(hexValue string, decimals int32) (decimal.Decimal, error) {
	wei, ok := new(big.Int).SetString(strings.TrimPrefix(hexValue, "0x"), 16)
	if !ok {
		return decimal.Zero, fmt.Errorf("malformed hex value %q", hexValue)
	}
	return decimal.NewFromBigInt(wei, -decimals), nil
}
