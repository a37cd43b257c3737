package domain

import "time"

// ChainFamily groups networks by their transaction/query model.
type ChainFamily string

const (
	FamilyEVM    ChainFamily = "evm"
	FamilySVM    ChainFamily = "svm"
	FamilyCosmos ChainFamily = "cosmos"
	FamilyMove   ChainFamily = "move"
	FamilyUTXO   ChainFamily = "utxo"
	FamilyOther  ChainFamily = "other"
)

// Network describes a chain's capabilities and defaults. Pure data,
// immutable once registered.
type Network struct {
	Name                 string
	Symbol               string
	Family               ChainFamily
	SupportsPush         bool
	DefaultPollInterval  time.Duration
	DefaultConfirmations uint64
	Decimals             int32

	// Default endpoints, overridable per watch session.
	RPCURL string
	WSURL  string
}
