package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// Subscribe opens a WS connection, subscribes to new block headers and
// streams transfers into the target address. Confirmation counts for already
// delivered transactions are re-emitted as the chain advances so the tracker
// sees the depth grow; re-delivery is fine, dedup happens downstream.
func (a *Adapter) Subscribe(
	ctx context.Context,
	target domain.WatchTarget,
) (<-chan domain.CandidateTransaction, <-chan error, error) {
	if a.wsURL == "" {
		return nil, nil, domain.FatalError(fmt.Errorf("network %s has no ws endpoint", a.network.Name))
	}
	if !validAddress(target.Address) {
		return nil, nil, domain.FatalError(fmt.Errorf("malformed evm address: %s", target.Address))
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.wsURL, nil)
	if err != nil {
		return nil, nil, domain.TransientError(fmt.Errorf("ws dial %s: %w", a.wsURL, err))
	}

	sub := wsRequest{JSONRPC: "2.0", ID: 1, Method: "eth_subscribe", Params: []any{"newHeads"}}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, nil, domain.TransientError(fmt.Errorf("ws subscribe: %w", err))
	}

	var ack wsResponse
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, nil, domain.TransientError(fmt.Errorf("ws subscribe ack: %w", err))
	}
	if ack.Error != nil {
		conn.Close()
		return nil, nil, domain.TransientError(fmt.Errorf("ws subscribe rejected: %s", ack.Error.Message))
	}

	txCh := make(chan domain.CandidateTransaction)
	errCh := make(chan error, 1)

	// Unblock the blocking read when the session is cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go a.readLoop(ctx, conn, target, txCh, errCh)

	return txCh, errCh, nil
}

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type wsResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *wsError        `json:"error"`
	Params *wsNotifyParams `json:"params"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsNotifyParams struct {
	Result json.RawMessage `json:"result"`
}

type wsHead struct {
	Number string `json:"number"`
}

// readLoop consumes newHeads notifications. For every head it fetches the
// full block over HTTP, emits matching transfers, then re-emits tracked
// transactions with their updated depth until they clear the target's
// required confirmations.
func (a *Adapter) readLoop(
	ctx context.Context,
	conn *websocket.Conn,
	target domain.WatchTarget,
	txCh chan<- domain.CandidateTransaction,
	errCh chan<- error,
) {
	defer close(txCh)
	defer close(errCh)
	defer conn.Close()

	// transactions still gathering depth, by txid
	type match struct {
		height uint64
		amount decimal.Decimal
	}
	pending := make(map[string]match)
	required := target.MinConfirmations
	if required == 0 {
		required = 1
	}

	for {
		var msg wsResponse
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			errCh <- domain.TransientError(fmt.Errorf("ws read: %w", err))
			return
		}
		if msg.Params == nil {
			continue
		}

		var head wsHead
		if err := json.Unmarshal(msg.Params.Result, &head); err != nil {
			a.log.Warn("Unparsable head notification", "error", err)
			continue
		}
		height, err := parseHexUint(head.Number)
		if err != nil {
			a.log.Warn("Unparsable head number", "error", err)
			continue
		}

		block, err := a.getBlock(ctx, height)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			errCh <- err
			return
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
			pending[tx.Hash] = match{height: height, amount: amount}
			if !send(ctx, txCh, domain.CandidateTransaction{
				TxID:          tx.Hash,
				Amount:        amount,
				Currency:      a.network.Symbol,
				BlockHeight:   height,
				Confirmations: 1,
				Source:        domain.SourcePush,
			}) {
				return
			}
		}

		// Advance depth for earlier matches.
		for txID, m := range pending {
			if m.height == height {
				continue
			}
			conf := height - m.height + 1
			if !send(ctx, txCh, domain.CandidateTransaction{
				TxID:          txID,
				Amount:        m.amount,
				Currency:      a.network.Symbol,
				BlockHeight:   m.height,
				Confirmations: conf,
				Source:        domain.SourcePush,
			}) {
				return
			}
			if conf >= required {
				delete(pending, txID)
			}
		}
	}
}

func send(ctx context.Context, ch chan<- domain.CandidateTransaction, tx domain.CandidateTransaction) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- tx:
		return true
	}
}

