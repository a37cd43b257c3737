package domain

import "github.com/shopspring/decimal"

// TxSource records which transport variant produced a candidate.
type TxSource string

const (
	SourcePush TxSource = "push"
	SourcePull TxSource = "pull"
)

// CandidateTransaction is a normalized transaction observed by a transport
// adapter. Ephemeral: held only until the confirmation policy accepts or
// rejects it. Adapters may deliver the same transaction more than once;
// dedup is the tracker's job.
type CandidateTransaction struct {
	TxID          string
	Amount        decimal.Decimal
	Currency      string
	BlockHeight   uint64
	Confirmations uint64
	Source        TxSource
}

// PaymentInfo is the finalized view of a candidate that cleared the
// confirmation policy. Immutable, handed to callers via events.
type PaymentInfo struct {
	Amount        decimal.Decimal
	Currency      string
	TxID          string
	BlockHeight   uint64
	Confirmations uint64
}
