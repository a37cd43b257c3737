package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/transport"
	"github.com/vietddude/paywatch/internal/metrics"
)

// errFallback signals that the push path is exhausted and the session should
// switch to polling. The fallback is one-directional within a session.
var errFallback = errors.New("push transport exhausted, falling back to polling")

// CheckpointStore persists poll cursors across sessions, best-effort. A store
// failure never fails the monitor.
type CheckpointStore interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, cursor string) error
}

// Config assembles one watch session. All fields are read-only after
// NewMonitor; changing them requires constructing a new Monitor.
type Config struct {
	Network domain.Network
	Target  domain.WatchTarget

	// Push is optional; Pull is required since it is the fallback strategy.
	Push transport.PushTransport
	Pull transport.PullTransport

	Backoff    BackoffPolicy
	Dispatcher *Dispatcher

	// PollInterval overrides the network default when > 0.
	PollInterval time.Duration

	// ForcePoll skips the push path even when the network supports it. An
	// explicit override always wins over descriptor defaults.
	ForcePoll bool

	Checkpoint CheckpointStore
	Metrics    *metrics.Collector
	Logger     *slog.Logger
}

// Monitor owns one watch session: it selects the transport strategy, drives
// the state machine, applies backoff, consults the confirmation tracker and
// emits events. One logical goroutine drives the machine; multiple monitors
// run independently.
type Monitor struct {
	cfg          Config
	sessionID    string
	tracker      *ConfirmationTracker
	pollInterval time.Duration
	log          *slog.Logger

	mu      sync.Mutex
	state   domain.MonitorState
	cancel  context.CancelFunc
	started bool
	stopped bool

	done chan struct{}
}

// NewMonitor validates the configuration and builds a monitor. Invalid inputs
// fail construction with a ConfigError before any I/O.
func NewMonitor(cfg Config) (*Monitor, error) {
	if cfg.Target.Address == "" {
		return nil, &domain.ConfigError{Field: "target.address", Reason: "must not be empty"}
	}
	if !cfg.Target.ExpectedAmount.IsPositive() {
		return nil, &domain.ConfigError{Field: "target.expected_amount", Reason: "must be a positive decimal"}
	}
	if cfg.Pull == nil {
		return nil, &domain.ConfigError{Field: "pull", Reason: "a pull transport is required"}
	}
	if cfg.Backoff == (BackoffPolicy{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Backoff.FailAfter < cfg.Backoff.EscalateAfter {
		return nil, &domain.ConfigError{Field: "backoff", Reason: "fail threshold below escalation threshold"}
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = NewDispatcher(cfg.Logger)
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = cfg.Network.DefaultPollInterval
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	sessionID := uuid.NewString()
	log = log.With("network", cfg.Network.Name, "session", sessionID)

	return &Monitor{
		cfg:          cfg,
		sessionID:    sessionID,
		tracker:      NewConfirmationTracker(cfg.Target),
		pollInterval: interval,
		log:          log,
		state:        domain.StateInit,
		done:         make(chan struct{}),
	}, nil
}

// SessionID returns the unique identifier of this watch session.
func (m *Monitor) SessionID() string { return m.sessionID }

// State returns the current machine state.
func (m *Monitor) State() domain.MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Dispatcher exposes the event subscription surface for this session.
func (m *Monitor) Dispatcher() *Dispatcher { return m.cfg.Dispatcher }

// Target returns the watch target this monitor was built for.
func (m *Monitor) Target() domain.WatchTarget { return m.cfg.Target }

// Start runs the watch session and blocks until the machine reaches STOPPED
// (nil return) or FAILED (the fatal error). It can be called once.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("monitor already started")
	}
	m.started = true
	if m.stopped {
		m.state = domain.StateStopped
		m.mu.Unlock()
		close(m.done)
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	defer close(m.done)
	defer cancel()

	err := m.run(runCtx)

	// Terminal events must still reach handlers after cancellation.
	finalCtx := context.WithoutCancel(ctx)
	if err != nil {
		m.setState(finalCtx, domain.StateFailed)
		m.log.Error("Watch session failed", "error", err)
		return err
	}
	m.setState(finalCtx, domain.StateStopped)
	m.log.Info("Watch session stopped")
	return nil
}

// Stop requests graceful shutdown. Safe to call from any state and idempotent;
// it returns once the session goroutine has finished, guaranteeing that no
// further events are dispatched afterwards. In-flight transport operations are
// cancelled rather than awaited.
func (m *Monitor) Stop() {
	m.mu.Lock()
	alreadyStopped := m.stopped
	m.stopped = true
	cancel := m.cancel
	started := m.started
	m.mu.Unlock()

	if alreadyStopped {
		if started {
			<-m.done
		}
		return
	}
	if cancel != nil {
		cancel()
	}
	if started {
		<-m.done
	}
}

func (m *Monitor) run(ctx context.Context) error {
	usePush := m.cfg.Push != nil && m.cfg.Network.SupportsPush && !m.cfg.ForcePoll

	if usePush {
		err := m.runPush(ctx)
		switch {
		case err == nil:
			return nil // auto-stop after payment
		case errors.Is(err, errFallback):
			metrics.TransportFallbacks.WithLabelValues(m.cfg.Network.Name).Inc()
			m.log.Warn("Falling back to pull transport")
		case isCancel(err):
			return nil
		default:
			m.dispatchFatal(ctx, err)
			return err
		}
	}

	err := m.runPoll(ctx)
	switch {
	case err == nil:
		return nil
	case isCancel(err):
		return nil
	default:
		m.dispatchFatal(ctx, err)
		return err
	}
}

// runPush drives the subscription path. Returns nil on auto-stop after a
// payment, errFallback when the escalation threshold is exhausted, a context
// error on cancellation, or a fatal error.
func (m *Monitor) runPush(ctx context.Context) error {
	attempt := 0

	for {
		m.setState(ctx, domain.StateConnecting)
		txCh, errCh, err := m.cfg.Push.Subscribe(ctx, m.cfg.Target)
		if err != nil {
			if next, ferr := m.absorbTransient(ctx, err, &attempt); ferr != nil {
				return ferr
			} else if !next {
				return errFallback
			}
			continue
		}

		m.setState(ctx, domain.StateSubscribed)
		attempt = 0

		streamErr := m.consumeStream(ctx, txCh, errCh)
		if streamErr == nil {
			return nil // payment found with auto-stop
		}
		if next, ferr := m.absorbTransient(ctx, streamErr, &attempt); ferr != nil {
			return ferr
		} else if !next {
			return errFallback
		}
	}
}

// consumeStream reads the push stream until it breaks. A closed channel or a
// stream error is returned for classification; nil means auto-stop fired.
func (m *Monitor) consumeStream(
	ctx context.Context,
	txCh <-chan domain.CandidateTransaction,
	errCh <-chan error,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx, ok := <-txCh:
			if !ok {
				return domain.TransientError(errors.New("subscription stream closed"))
			}
			if stop := m.handleCandidate(ctx, tx); stop {
				return nil
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			return err
		}
	}
}

// absorbTransient applies backoff to a transport failure. It returns
// (true, nil) to retry the same strategy, (false, nil) to escalate, or a
// non-nil error for fatal failures and cancellation.
func (m *Monitor) absorbTransient(ctx context.Context, err error, attempt *int) (bool, error) {
	if isCancel(err) {
		return false, err
	}
	if !domain.IsTransient(err) {
		// Fatal transport errors propagate immediately, zero retries.
		return false, err
	}

	*attempt++
	m.log.Warn("Transient transport failure", "attempt", *attempt, "error", err)
	m.cfg.Dispatcher.Dispatch(ctx, domain.ErrorEvent(err, true))

	if m.cfg.Backoff.ShouldEscalate(*attempt) {
		return false, nil
	}

	m.setState(ctx, domain.StateDegradedRetry)
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(m.cfg.Backoff.NextDelay(*attempt)):
	}
	return true, nil
}

// runPoll drives the polling loop. The cursor only advances on success; a
// failed poll waits out the backoff delay instead of the fixed interval.
func (m *Monitor) runPoll(ctx context.Context) error {
	m.setState(ctx, domain.StatePolling)

	cursor := m.loadCheckpoint(ctx)
	attempt := 0

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		txs, next, err := m.cfg.Pull.Poll(ctx, m.cfg.Target, cursor)

		// A stop during the in-flight call discards its result entirely.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			if !domain.IsTransient(err) {
				return err
			}
			attempt++
			m.log.Warn("Poll failed", "attempt", attempt, "error", err)
			m.cfg.Dispatcher.Dispatch(ctx, domain.ErrorEvent(err, true))
			if m.cfg.Backoff.ShouldFail(attempt) {
				return fmt.Errorf("poll retry budget exhausted: %w", err)
			}
			m.setState(ctx, domain.StateDegradedRetry)
			timer.Reset(m.cfg.Backoff.NextDelay(attempt))
			continue
		}

		attempt = 0
		m.setState(ctx, domain.StatePolling)
		cursor = next
		m.saveCheckpoint(ctx, cursor)

		for _, tx := range txs {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if stop := m.handleCandidate(ctx, tx); stop {
				return nil
			}
		}

		timer.Reset(m.pollInterval)
	}
}

// handleCandidate routes a candidate through the confirmation tracker and
// dispatches a payment event when it becomes final. Returns true when the
// session should stop (auto-stop after first payment).
func (m *Monitor) handleCandidate(ctx context.Context, tx domain.CandidateTransaction) bool {
	payment, final := m.tracker.Observe(tx)
	if !final {
		return false
	}

	metrics.PaymentsDetected.WithLabelValues(m.cfg.Network.Name).Inc()
	m.log.Info("Payment confirmed",
		"tx", payment.TxID,
		"amount", payment.Amount.String(),
		"confirmations", payment.Confirmations,
		"source", tx.Source,
	)
	m.cfg.Dispatcher.Dispatch(ctx, domain.PaymentEvent(payment))
	return m.cfg.Target.AutoStop
}

func (m *Monitor) dispatchFatal(ctx context.Context, err error) {
	m.cfg.Dispatcher.Dispatch(context.WithoutCancel(ctx), domain.ErrorEvent(err, false))
}

func (m *Monitor) setState(ctx context.Context, s domain.MonitorState) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	m.log.Debug("State transition", "state", s)
	m.cfg.Dispatcher.Dispatch(ctx, domain.StatusEvent(s))
}

func (m *Monitor) checkpointKey() string {
	return fmt.Sprintf("cursor:%s:%s", m.cfg.Network.Name, m.cfg.Target.Address)
}

func (m *Monitor) loadCheckpoint(ctx context.Context) transport.Cursor {
	if m.cfg.Checkpoint == nil {
		return ""
	}
	v, err := m.cfg.Checkpoint.Load(ctx, m.checkpointKey())
	if err != nil {
		m.log.Warn("Failed to load cursor checkpoint", "error", err)
		return ""
	}
	return transport.Cursor(v)
}

func (m *Monitor) saveCheckpoint(ctx context.Context, cursor transport.Cursor) {
	if m.cfg.Checkpoint == nil || cursor == "" {
		return
	}
	if err := m.cfg.Checkpoint.Save(ctx, m.checkpointKey(), string(cursor)); err != nil {
		m.log.Warn("Failed to save cursor checkpoint", "error", err)
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
