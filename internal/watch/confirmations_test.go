package watch

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
)

func watchTarget(minConf uint64) domain.WatchTarget {
	return domain.WatchTarget{
		Address:          "0xabc",
		ExpectedAmount:   decimal.RequireFromString("1.5"),
		Currency:         "ETH",
		MinConfirmations: minConf,
	}
}

func candidate(txID string, confirmations uint64) domain.CandidateTransaction {
	return domain.CandidateTransaction{
		TxID:          txID,
		Amount:        decimal.RequireFromString("1.5"),
		Currency:      "ETH",
		BlockHeight:   100,
		Confirmations: confirmations,
		Source:        domain.SourcePull,
	}
}

func TestTrackerAcceptsAtDepth(t *testing.T) {
	tracker := NewConfirmationTracker(watchTarget(3))

	sequence := []uint64{1, 2, 2, 3}
	var accepted int
	for _, c := range sequence {
		if _, ok := tracker.Observe(candidate("tx1", c)); ok {
			accepted++
		}
	}

	if accepted != 1 {
		t.Errorf("expected exactly one acceptance, got %d", accepted)
	}
}

func TestTrackerMonotonicCounts(t *testing.T) {
	tracker := NewConfirmationTracker(watchTarget(10))

	// Out-of-order delivery: count must never decrease.
	tracker.Observe(candidate("tx1", 5))
	tracker.Observe(candidate("tx1", 2))

	if got := tracker.Confirmations("tx1"); got != 5 {
		t.Errorf("expected recorded count 5 after stale duplicate, got %d", got)
	}
}

func TestTrackerDedupAcrossSources(t *testing.T) {
	tracker := NewConfirmationTracker(watchTarget(1))

	push := candidate("tx1", 1)
	push.Source = domain.SourcePush
	pull := candidate("tx1", 2)

	_, first := tracker.Observe(push)
	_, second := tracker.Observe(pull)

	if !first {
		t.Error("expected first observation to be accepted")
	}
	if second {
		t.Error("expected duplicate from pull path to be rejected")
	}
}

func TestTrackerRejectsAmountMismatch(t *testing.T) {
	tracker := NewConfirmationTracker(watchTarget(1))

	tx := candidate("tx1", 5)
	tx.Amount = decimal.RequireFromString("1.4999")

	if _, ok := tracker.Observe(tx); ok {
		t.Error("expected mismatched amount to be rejected")
	}
}

func TestTrackerZeroConfirmationsImmediate(t *testing.T) {
	tracker := NewConfirmationTracker(watchTarget(0))

	if _, ok := tracker.Observe(candidate("tx1", 0)); !ok {
		t.Error("expected immediate finality with min_confirmations = 0")
	}
}

func TestTrackerDistinctTransactions(t *testing.T) {
	tracker := NewConfirmationTracker(watchTarget(1))

	_, first := tracker.Observe(candidate("tx1", 1))
	_, second := tracker.Observe(candidate("tx2", 1))

	if !first || !second {
		t.Error("expected both distinct transactions to be accepted")
	}
}
