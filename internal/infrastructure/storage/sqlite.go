package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/listing_alert_bot/internal/domain"
)

const (
	MemoryDSN        = ":memory:"
	DefaultMaxAlerts = 1000
)

// SQLiteStore is the alert journal. With the default in-memory DSN nothing
// survives a restart. Only the newest maxAlerts rows are kept.
type SQLiteStore struct {
	db        *sql.DB
	maxAlerts int
}

// NewSQLiteStore opens the journal. maxAlerts <= 0 means DefaultMaxAlerts.
func NewSQLiteStore(dsn string, maxAlerts int) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	if maxAlerts <= 0 {
		maxAlerts = DefaultMaxAlerts
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: opens its own empty database.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, maxAlerts: maxAlerts}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token_address TEXT NOT NULL,
			pair_address TEXT NOT NULL,
			symbol TEXT NOT NULL,
			name TEXT NOT NULL,
			score REAL NOT NULL,
			liquidity_usd REAL NOT NULL,
			age_minutes INTEGER NOT NULL,
			signals INTEGER NOT NULL DEFAULT 0,
			delivered BOOLEAN NOT NULL DEFAULT 0,
			message TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_token ON alerts(token_address);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// SaveAlert inserts the alert, sets its ID and prunes rows beyond maxAlerts.
func (s *SQLiteStore) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO alerts (token_address, pair_address, symbol, name, score, liquidity_usd, age_minutes, signals, delivered, message, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		alert.TokenAddress, alert.PairAddress, alert.Symbol, alert.Name, alert.Score,
		alert.LiquidityUSD, alert.AgeMinutes, alert.Signals, alert.Delivered, alert.Message, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save alert for %s: %w", alert.TokenAddress, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	alert.ID = id

	if err := s.prune(ctx); err != nil {
		return fmt.Errorf("failed to prune alerts: %w", err)
	}
	return nil
}

func (s *SQLiteStore) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM alerts WHERE id <= (SELECT id FROM alerts ORDER BY id DESC LIMIT 1 OFFSET ?)`,
		s.maxAlerts)
	return err
}

// ListAlerts returns the newest alerts first. limit <= 0 returns all.
func (s *SQLiteStore) ListAlerts(ctx context.Context, limit int) ([]*domain.Alert, error) {
	query := `SELECT id, token_address, pair_address, symbol, name, score, liquidity_usd, age_minutes, signals, delivered, message, created_at
			  FROM alerts ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []*domain.Alert{}
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(&a.ID, &a.TokenAddress, &a.PairAddress, &a.Symbol, &a.Name, &a.Score,
			&a.LiquidityUSD, &a.AgeMinutes, &a.Signals, &a.Delivered, &a.Message, &a.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
