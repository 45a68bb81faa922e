package store

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chadmayfield/stationd/internal/weather"
)

const (
	poolMinConns       = 1
	poolMaxConns       = 10
	defaultDialTimeout = 5 * time.Second
)

// PostgresConfig holds the primary database connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Table    string

	// ConnectTimeout bounds each dial. Zero uses 5s.
	ConnectTimeout time.Duration
}

// DSN renders the connection settings as a postgres URL.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	return u.String()
}

// PostgresStore implements Primary backed by a pgx connection pool. The pool
// is created on first use and torn down by Close.
type PostgresStore struct {
	dsn         string
	table       string
	dialTimeout time.Duration
	logger      *slog.Logger

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// NewPostgresStore prepares a store for cfg. No connection is made until the
// first call that needs one.
func NewPostgresStore(cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("postgres table name is required")
	}
	s := newPostgresStore(cfg.DSN(), cfg.Table, logger)
	if cfg.ConnectTimeout > 0 {
		s.dialTimeout = cfg.ConnectTimeout
	}
	return s, nil
}

func newPostgresStore(dsn, table string, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		dsn:         dsn,
		table:       table,
		dialTimeout: defaultDialTimeout,
		logger:      logger,
	}
}

// quoteTable sanitizes a possibly schema-qualified table name.
func quoteTable(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func (s *PostgresStore) getPool(ctx context.Context) (*pgxpool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		return s.pool, nil
	}

	cfg, err := pgxpool.ParseConfig(s.dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	cfg.MinConns = poolMinConns
	cfg.MaxConns = poolMaxConns
	cfg.ConnConfig.ConnectTimeout = s.dialTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	s.logger.Info("connection pool created",
		"host", cfg.ConnConfig.Host,
		"port", cfg.ConnConfig.Port,
		"database", cfg.ConnConfig.Database,
		"max_conns", cfg.MaxConns)
	s.pool = pool
	return pool, nil
}

func (s *PostgresStore) IsConnected(ctx context.Context) bool {
	pool, err := s.getPool(ctx)
	if err != nil {
		s.logger.Warn("database connection check failed", "error", err)
		return false
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		s.logger.Warn("database connection check failed", "error", err)
		return false
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT 1"); err != nil {
		s.logger.Warn("database connection check failed", "error", err)
		return false
	}

	s.logger.Debug("database connection verified")
	return true
}

func (s *PostgresStore) SaveData(ctx context.Context, rec *weather.Record) error {
	if !s.IsConnected(ctx) {
		return ErrNotConnected
	}

	ts, err := rec.Timestamp(time.Local)
	if err != nil {
		return err
	}

	pool, err := s.getPool(ctx)
	if err != nil {
		return err
	}

	query := `INSERT INTO ` + quoteTable(s.table) + ` (
			datetime,
			wind_speed, wind_direction, wind_min1_max, wind_min1_avg, wind_min1_dir, wind_forever_max,
			temperature1, temperature2, humidity, pressure, avg_pressure, rain,
			billenes, "end"
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	err = runInTx(ctx, pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			ts,
			rec.WindSpeed, rec.WindDirection, rec.WindMin1Max, rec.WindMin1Avg, rec.WindMin1Dir, rec.WindForeverMax,
			rec.Temperature1, rec.Temperature2, rec.Humidity, rec.Pressure, rec.AvgPressure, rec.Rain,
			rec.Billenes, rec.End,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", s.table, err)
	}

	s.logger.Debug("database insert successful", "datetime", rec.Date+" "+rec.Time)
	return nil
}

// EnsureTable creates the configured table if it does not exist.
func (s *PostgresStore) EnsureTable(ctx context.Context) error {
	pool, err := s.getPool(ctx)
	if err != nil {
		return err
	}

	ddl := `CREATE TABLE IF NOT EXISTS ` + quoteTable(s.table) + ` (
		id               BIGSERIAL PRIMARY KEY,
		datetime         TIMESTAMP NOT NULL,
		wind_speed       INTEGER,
		wind_direction   INTEGER,
		wind_min1_max    INTEGER,
		wind_min1_avg    INTEGER,
		wind_min1_dir    INTEGER,
		wind_forever_max INTEGER,
		temperature1     DOUBLE PRECISION,
		temperature2     DOUBLE PRECISION,
		humidity         DOUBLE PRECISION,
		pressure         DOUBLE PRECISION,
		avg_pressure     DOUBLE PRECISION,
		rain             DOUBLE PRECISION,
		billenes         INTEGER,
		"end"            INTEGER
	)`

	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

// Table returns the configured table name.
func (s *PostgresStore) Table() string {
	return s.table
}

func (s *PostgresStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
		s.logger.Info("database connection pool closed")
	}
}

func runInTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
