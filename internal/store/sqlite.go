package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/chadmayfield/stationd/internal/weather"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DefaultQueuePath is the queue file used when none is configured.
const DefaultQueuePath = "local_cache.db"

const nowExpr = `strftime('%Y-%m-%d %H:%M:%f', 'now')`

// SQLiteQueue implements Queue backed by a SQLite file. Every call runs in
// its own transaction on a connection that is closed on release.
type SQLiteQueue struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteQueue opens (creating if needed) the queue file, restricts its
// permissions, and runs migrations.
func NewSQLiteQueue(path string, logger *slog.Logger) (*SQLiteQueue, error) {
	if path == "" {
		path = DefaultQueuePath
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating queue directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", queueDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	db.SetMaxIdleConns(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if err := os.Chmod(path, 0600); err != nil && !os.IsNotExist(err) {
		_ = db.Close()
		return nil, fmt.Errorf("setting file permissions: %w", err)
	}

	logger.Debug("local queue ready", "path", path)
	return &SQLiteQueue{db: db, path: path, logger: logger}, nil
}

func queueDSN(path string) string {
	pragmas := []string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
	}
	return "file:" + path + "?" + strings.Join(pragmas, "&")
}

// DB returns the underlying handle for migration commands.
func (q *SQLiteQueue) DB() *sql.DB {
	return q.db
}

// Path returns the queue file path.
func (q *SQLiteQueue) Path() string {
	return q.path
}

func (q *SQLiteQueue) SaveData(ctx context.Context, rec *weather.Record) (string, error) {
	blob, err := weather.Marshal(rec)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()

	err = q.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO weather_data (id, data, synced, timestamp) VALUES (?, ?, 0, `+nowExpr+`)`,
			id, string(blob))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("saving to local queue: %w", err)
	}

	q.logger.Info("data saved to local storage", "id", id)
	return id, nil
}

type queueRow struct {
	id   string
	data sql.NullString
}

func (q *SQLiteQueue) GetPendingData(ctx context.Context, limit int) ([]weather.Record, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}

	var records []weather.Record
	err := q.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, data FROM weather_data
			WHERE synced = 0
			ORDER BY timestamp ASC, rowid ASC
			LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("querying pending: %w", err)
		}

		var pending []queueRow
		for rows.Next() {
			var r queueRow
			if err := rows.Scan(&r.id, &r.data); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scanning pending: %w", err)
			}
			pending = append(pending, r)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		for _, r := range pending {
			rec, err := weather.Unmarshal([]byte(r.data.String))
			if err != nil || !r.data.Valid {
				q.logger.Error("corrupted record in local queue, discarding", "id", r.id, "error", err)
				if _, err := tx.ExecContext(ctx, `UPDATE weather_data SET synced = 1 WHERE id = ?`, r.id); err != nil {
					return fmt.Errorf("marking corrupted record %s: %w", r.id, err)
				}
				continue
			}
			rec.ID = r.id
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching pending records: %w", err)
	}

	q.logger.Debug("retrieved pending records from local storage", "count", len(records))
	return records, nil
}

func (q *SQLiteQueue) MarkAsSynced(ctx context.Context, id string) error {
	err := q.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE weather_data SET synced = 1 WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("marking record %s as synced: %w", id, err)
	}
	q.logger.Debug("record marked as synced", "id", id)
	return nil
}

func (q *SQLiteQueue) CleanupOldRecords(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		days = DefaultRetentionDays
	}

	var deleted int64
	err := q.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM weather_data
			WHERE synced = 1 AND timestamp < strftime('%Y-%m-%d %H:%M:%f', 'now', ?)`,
			fmt.Sprintf("-%d days", days))
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cleaning up local queue: %w", err)
	}

	if deleted > 0 {
		q.logger.Info("removed old synced records from local storage", "count", deleted, "days", days)
	}
	return deleted, nil
}

func (q *SQLiteQueue) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := q.inTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM weather_data WHERE synced = 0`).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("counting pending records: %w", err)
	}
	return n, nil
}

func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

func (q *SQLiteQueue) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
