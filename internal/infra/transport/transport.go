// Package transport defines the chain-adapter boundary. Each supported chain
// family supplies an implementation translating its native RPC/WS protocol
// into normalized candidate transactions; the monitor core is agnostic to the
// wire format used here.
package transport

import (
	"context"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// Cursor is an opaque progress marker owned by a pull transport. An empty
// cursor means "start from the current chain tip".
type Cursor string

// PushTransport delivers candidate transactions through a persistent
// subscription. The returned channels are closed when the subscription ends;
// stream-level failures arrive on the error channel. Delivering the same
// transaction twice is tolerated by the caller.
type PushTransport interface {
	Subscribe(ctx context.Context, target domain.WatchTarget) (<-chan domain.CandidateTransaction, <-chan error, error)
}

// PullTransport fetches transactions on demand. Poll must be safe to call
// repeatedly with the same cursor: no side effects beyond a read, and replayed
// results are acceptable. The returned cursor is only advanced by the caller
// on success.
type PullTransport interface {
	Poll(ctx context.Context, target domain.WatchTarget, cursor Cursor) ([]domain.CandidateTransaction, Cursor, error)
}
