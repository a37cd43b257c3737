package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// Registry maps network names to descriptors. Reads are concurrent-safe;
// registration is synchronized with last-write-wins semantics.
type Registry struct {
	mu       sync.RWMutex
	networks map[string]domain.Network
}

// New returns a registry preloaded with the builtin networks.
func New() *Registry {
	r := &Registry{networks: make(map[string]domain.Network)}
	for _, n := range builtins {
		r.networks[n.Name] = n
	}
	return r
}

// Register adds or overwrites a descriptor by name.
func (r *Registry) Register(n domain.Network) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networks[n.Name] = n
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (domain.Network, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.networks[name]
	if !ok {
		return domain.Network{}, fmt.Errorf("unknown network: %s", name)
	}
	return n, nil
}

// Names returns all registered network names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.networks))
	for name := range r.networks {
		names = append(names, name)
	}
	return names
}

// NewNetwork is a pure builder for custom network descriptors. It performs no
// I/O and no registration.
func NewNetwork(
	name, symbol string,
	family domain.ChainFamily,
	supportsPush bool,
	pollInterval time.Duration,
	confirmations uint64,
	decimals int32,
) domain.Network {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return domain.Network{
		Name:                 name,
		Symbol:               symbol,
		Family:               family,
		SupportsPush:         supportsPush,
		DefaultPollInterval:  pollInterval,
		DefaultConfirmations: confirmations,
		Decimals:             decimals,
	}
}

var builtins = []domain.Network{
	{
		Name:                 "ethereum",
		Symbol:               "ETH",
		Family:               domain.FamilyEVM,
		SupportsPush:         true,
		DefaultPollInterval:  12 * time.Second,
		DefaultConfirmations: 12,
		Decimals:             18,
		RPCURL:               "https://eth.llamarpc.com",
		WSURL:                "wss://ethereum-rpc.publicnode.com",
	},
	{
		Name:                 "polygon",
		Symbol:               "POL",
		Family:               domain.FamilyEVM,
		SupportsPush:         true,
		DefaultPollInterval:  5 * time.Second,
		DefaultConfirmations: 64,
		Decimals:             18,
		RPCURL:               "https://polygon-rpc.com",
		WSURL:                "wss://polygon-bor-rpc.publicnode.com",
	},
	{
		Name:                 "solana",
		Symbol:               "SOL",
		Family:               domain.FamilySVM,
		SupportsPush:         false,
		DefaultPollInterval:  3 * time.Second,
		DefaultConfirmations: 1,
		Decimals:             9,
		RPCURL:               "https://api.mainnet-beta.solana.com",
	},
	{
		Name:                 "bitcoin",
		Symbol:               "BTC",
		Family:               domain.FamilyUTXO,
		SupportsPush:         false,
		DefaultPollInterval:  60 * time.Second,
		DefaultConfirmations: 2,
		Decimals:             8,
		RPCURL:               "https://blockstream.info/api",
	},
	{
		Name:                 "cosmoshub",
		Symbol:               "ATOM",
		Family:               domain.FamilyCosmos,
		SupportsPush:         false,
		DefaultPollInterval:  7 * time.Second,
		DefaultConfirmations: 1,
		Decimals:             6,
		RPCURL:               "https://cosmos-rest.publicnode.com",
	},
	{
		Name:                 "sui",
		Symbol:               "SUI",
		Family:               domain.FamilyMove,
		SupportsPush:         false,
		DefaultPollInterval:  3 * time.Second,
		DefaultConfirmations: 1,
		Decimals:             9,
		RPCURL:               "https://fullnode.mainnet.sui.io",
	},
}
