// Package journal records detected payments in PostgreSQL. The journal is a
// write-only audit trail: the watch pipeline never reads it back, so an
// unavailable database degrades to log warnings instead of failing a watch.
package journal

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/vietddude/paywatch/internal/core/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Journal persists finalized payments.
type Journal struct {
	db  *sqlx.DB
	log *slog.Logger
}

// Open connects to PostgreSQL and applies pending migrations.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Journal, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &Journal{db: db, log: log.With("component", "journal")}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Health checks if the database is reachable.
func (j *Journal) Health(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Record inserts one finalized payment. Duplicate deliveries of the same
// transaction on the same network are ignored.
func (j *Journal) Record(ctx context.Context, network string, address string, p domain.PaymentInfo) error {
	query := `
		INSERT INTO payments (
			network, address, tx_id, amount, currency, block_height, confirmations, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (network, tx_id) DO NOTHING
	`
	_, err := j.db.ExecContext(ctx, query,
		network, address, p.TxID,
		p.Amount.String(), p.Currency, p.BlockHeight, p.Confirmations,
	)
	if err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}
	return nil
}

// Entry is one journaled payment row.
type Entry struct {
	Network       string    `db:"network"`
	Address       string    `db:"address"`
	TxID          string    `db:"tx_id"`
	Amount        string    `db:"amount"`
	Currency      string    `db:"currency"`
	BlockHeight   uint64    `db:"block_height"`
	Confirmations uint64    `db:"confirmations"`
	DetectedAt    time.Time `db:"detected_at"`
}

// Recent returns the latest journaled payments, newest first. Operator
// tooling only; the watch pipeline never reads the journal.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT network, address, tx_id, amount, currency, block_height, confirmations, detected_at
		FROM payments
		ORDER BY detected_at DESC
		LIMIT $1
	`
	var entries []Entry
	if err := j.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return entries, nil
}

// PaymentHandler adapts the journal into a dispatcher handler. Database
// errors are logged and swallowed so the audit trail cannot break the watch.
func (j *Journal) PaymentHandler(network, address string) func(context.Context, domain.PaymentInfo) error {
	return func(ctx context.Context, p domain.PaymentInfo) error {
		if err := j.Record(ctx, network, address, p); err != nil {
			j.log.Warn("Failed to journal payment", "network", network, "tx", p.TxID, "error", err)
		}
		return nil
	}
}
