package watch

import (
	"sync"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// ConfirmationTracker decides when an observed candidate transaction has
// reached the required confirmation depth. Confirmation counts are monotonic
// per transaction: a smaller count than previously recorded is treated as a
// stale duplicate from a lagging source and ignored. The tracker only acts on
// explicit confirmation evidence — a transaction that vanishes from later
// polls before finality is simply never accepted.
type ConfirmationTracker struct {
	target domain.WatchTarget

	mu       sync.Mutex
	observed map[string]uint64
	accepted map[string]bool
}

// NewConfirmationTracker creates a tracker for one watch target.
func NewConfirmationTracker(target domain.WatchTarget) *ConfirmationTracker {
	return &ConfirmationTracker{
		target:   target,
		observed: make(map[string]uint64),
		accepted: make(map[string]bool),
	}
}

// Observe records a candidate and reports whether it just became final.
// At most one acceptance is returned per transaction ID, even under duplicate
// delivery from both push and fallback-pull paths.
func (t *ConfirmationTracker) Observe(tx domain.CandidateTransaction) (domain.PaymentInfo, bool) {
	if !tx.Amount.Equal(t.target.ExpectedAmount) {
		return domain.PaymentInfo{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accepted[tx.TxID] {
		return domain.PaymentInfo{}, false
	}

	prev, seen := t.observed[tx.TxID]
	count := tx.Confirmations
	if seen && count < prev {
		count = prev
	}
	t.observed[tx.TxID] = count

	// min_confirmations of 0 short-circuits to immediate finality for
	// push-confirmed chains.
	if t.target.MinConfirmations > 0 && count < t.target.MinConfirmations {
		return domain.PaymentInfo{}, false
	}

	t.accepted[tx.TxID] = true
	return domain.PaymentInfo{
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		TxID:          tx.TxID,
		BlockHeight:   tx.BlockHeight,
		Confirmations: count,
	}, true
}

// Confirmations returns the last recorded count for a transaction ID.
func (t *ConfirmationTracker) Confirmations(txID string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observed[txID]
}
