package domain

import "github.com/shopspring/decimal"

// WatchTarget describes the payment a monitor session is waiting for.
// Immutable after monitor construction.
type WatchTarget struct {
	Address          string
	ExpectedAmount   decimal.Decimal
	Currency         string
	MinConfirmations uint64
	AutoStop         bool
}
