// Package control assembles watch sessions from configuration and manages
// their lifecycle: registry lookup, transport construction per chain family,
// shared infrastructure (checkpoints, journal, health server) and graceful
// shutdown.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/config"
	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/core/registry"
	"github.com/vietddude/paywatch/internal/infra/chain/evm"
	"github.com/vietddude/paywatch/internal/infra/chain/solana"
	"github.com/vietddude/paywatch/internal/infra/chain/utxo"
	"github.com/vietddude/paywatch/internal/infra/checkpoint"
	"github.com/vietddude/paywatch/internal/infra/health"
	"github.com/vietddude/paywatch/internal/infra/journal"
	"github.com/vietddude/paywatch/internal/infra/rpc"
	"github.com/vietddude/paywatch/internal/infra/transport"
	"github.com/vietddude/paywatch/internal/metrics"
	"github.com/vietddude/paywatch/internal/watch"
)

// Config holds the application configuration.
type Config struct {
	Port     int
	Watches  []config.WatchConfig
	Redis    checkpoint.Config
	Database journal.Config
	Metrics  config.MetricsConfig
}

// Supervisor owns all watch sessions of one process.
type Supervisor struct {
	cfg          Config
	sessions     []*session
	journal      *journal.Journal
	checkpoints  *checkpoint.RedisStore
	healthServer *health.Server
	collector    *metrics.Collector
	log          *slog.Logger
}

type session struct {
	name    string
	network domain.Network
	address string
	monitor *watch.Monitor
}

// NewSupervisor resolves every configured watch against the registry and
// builds its monitor. Construction fails fast on unknown networks,
// unsupported chain families and invalid watch parameters.
func NewSupervisor(cfg Config, reg *registry.Registry, log *slog.Logger) (*Supervisor, error) {
	if log == nil {
		log = slog.Default()
	}

	s := &Supervisor{
		cfg:       cfg,
		collector: metrics.NewCollector(),
		log:       log,
	}
	if cfg.Metrics.Enabled {
		s.collector.Enable()
	}

	if cfg.Database.URL != "" {
		j, err := journal.Open(context.Background(), cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init journal: %w", err)
		}
		s.journal = j
		log.Info("Payment journal enabled")
	}

	if cfg.Redis.URL != "" {
		store, err := checkpoint.NewRedisStore(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, checkpoints disabled", "error", err)
		} else {
			s.checkpoints = store
		}
	}

	for i, wc := range cfg.Watches {
		sess, err := s.buildSession(reg, wc)
		if err != nil {
			return nil, fmt.Errorf("watches[%d]: %w", i, err)
		}
		s.sessions = append(s.sessions, sess)
	}

	// Port 0 means no health endpoint for this process.
	if cfg.Port > 0 {
		s.healthServer = health.NewServer(s, cfg.Port)
	}
	return s, nil
}

func (s *Supervisor) buildSession(reg *registry.Registry, wc config.WatchConfig) (*session, error) {
	network, err := reg.Lookup(wc.Network)
	if err != nil {
		return nil, err
	}

	rpcURL := network.RPCURL
	if wc.Endpoint.RPCURL != "" {
		rpcURL = wc.Endpoint.RPCURL
	}
	wsURL := network.WSURL
	if wc.Endpoint.WSURL != "" {
		wsURL = wc.Endpoint.WSURL
	}

	client, err := rpc.NewClient(network.Name, rpc.Config{
		URL:            rpcURL,
		Timeout:        wc.Endpoint.Timeout,
		ConnectorLimit: wc.Endpoint.ConnectorLimit,
		ProxyURL:       wc.Endpoint.ProxyURL,
	}, s.collector)
	if err != nil {
		return nil, err
	}

	pull, push, err := buildTransports(network, client, wsURL, s.log)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(wc.Amount)
	if err != nil {
		return nil, &domain.ConfigError{Field: "amount", Reason: fmt.Sprintf("not a decimal: %s", wc.Amount)}
	}

	minConf := network.DefaultConfirmations
	if wc.MinConfirmations != nil {
		minConf = *wc.MinConfirmations
	}

	dispatcher := watch.NewDispatcher(s.log)
	dispatcher.OnPayment(func(ctx context.Context, p domain.PaymentInfo) error {
		s.log.Info("Payment received",
			"network", network.Name,
			"tx", p.TxID,
			"amount", p.Amount.String(),
			"currency", p.Currency,
		)
		return nil
	})
	if s.journal != nil {
		dispatcher.OnPayment(s.journal.PaymentHandler(network.Name, wc.Address))
	}

	var ckpt watch.CheckpointStore
	if s.checkpoints != nil {
		ckpt = s.checkpoints
	}

	monitor, err := watch.NewMonitor(watch.Config{
		Network: network,
		Target: domain.WatchTarget{
			Address:          wc.Address,
			ExpectedAmount:   amount,
			Currency:         network.Symbol,
			MinConfirmations: minConf,
			AutoStop:         wc.AutoStop,
		},
		Push:         push,
		Pull:         pull,
		Dispatcher:   dispatcher,
		PollInterval: wc.PollInterval,
		ForcePoll:    wc.Realtime != nil && !*wc.Realtime,
		Checkpoint:   ckpt,
		Metrics:      s.collector,
		Logger:       s.log,
	})
	if err != nil {
		return nil, err
	}

	return &session{
		name:    fmt.Sprintf("%s:%s", network.Name, wc.Address),
		network: network,
		address: wc.Address,
		monitor: monitor,
	}, nil
}

// buildTransports selects adapters by chain family. Families without an
// adapter are rejected at construction time rather than failing mid-session.
func buildTransports(
	network domain.Network,
	client *rpc.Client,
	wsURL string,
	log *slog.Logger,
) (transport.PullTransport, transport.PushTransport, error) {
	switch network.Family {
	case domain.FamilyEVM:
		adapter := evm.NewAdapter(network, client, wsURL, log)
		if wsURL == "" {
			return adapter, nil, nil
		}
		return adapter, adapter, nil
	case domain.FamilySVM:
		return solana.NewAdapter(network, client, log), nil, nil
	case domain.FamilyUTXO:
		return utxo.NewAdapter(network, client, log), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported network family: %s", network.Family)
	}
}

// Run starts the health server and every monitor, then blocks until all
// sessions have reached a terminal state or the context is cancelled. The
// first session failure is returned after the rest have wound down.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.healthServer != nil {
		go func() {
			if err := s.healthServer.Start(); err != nil {
				s.log.Error("Health server failed", "error", err)
			}
		}()
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(s.sessions))

	for _, sess := range s.sessions {
		wg.Add(1)
		go func(sess *session) {
			defer wg.Done()
			s.log.Info("Starting watch", "watch", sess.name)
			if err := sess.monitor.Start(ctx); err != nil {
				s.log.Error("Watch failed", "watch", sess.name, "error", err)
				errs <- fmt.Errorf("%s: %w", sess.name, err)
			}
		}(sess)
	}

	wg.Wait()
	close(errs)

	s.shutdown()
	return <-errs
}

// Stop requests shutdown of all sessions. Safe to call concurrently with Run.
func (s *Supervisor) Stop() {
	for _, sess := range s.sessions {
		sess.monitor.Stop()
	}
}

func (s *Supervisor) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.healthServer != nil {
		if err := s.healthServer.Stop(ctx); err != nil {
			s.log.Warn("Failed to stop health server", "error", err)
		}
	}
	if s.checkpoints != nil {
		if err := s.checkpoints.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.log.Warn("Failed to close journal", "error", err)
		}
	}
}

// Report implements health.Reporter.
func (s *Supervisor) Report() []health.WatchHealth {
	report := make([]health.WatchHealth, 0, len(s.sessions))
	for _, sess := range s.sessions {
		state := sess.monitor.State()
		report = append(report, health.WatchHealth{
			Network: sess.network.Name,
			Address: sess.address,
			State:   state,
			Status:  health.StatusOf(state),
		})
	}
	return report
}

// Snapshot exposes the aggregated request statistics of this process.
func (s *Supervisor) Snapshot() metrics.Snapshot {
	return s.collector.Snapshot()
}
