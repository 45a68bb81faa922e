package store

import (
	"context"
	"errors"

	"github.com/chadmayfield/stationd/internal/weather"
)

// DefaultPendingLimit is the batch size used when draining the local queue.
const DefaultPendingLimit = 100

// DefaultRetentionDays is how long synced queue entries are kept.
const DefaultRetentionDays = 30

// ErrNotConnected is returned by Primary.SaveData when the database is unreachable.
var ErrNotConnected = errors.New("primary database not connected")

// Primary is the preferred persistence target.
type Primary interface {
	// IsConnected probes the database with a pooled connection. It never
	// panics and logs a warning on failure.
	IsConnected(ctx context.Context) bool

	// SaveData inserts one record. It re-checks connectivity first and
	// returns ErrNotConnected without attempting the insert when down.
	SaveData(ctx context.Context, rec *weather.Record) error

	// Close tears down the connection pool.
	Close()
}

// Queue is the durable local fallback for records the primary could not take.
type Queue interface {
	// SaveData appends a pending entry and returns its generated id.
	SaveData(ctx context.Context, rec *weather.Record) (string, error)

	// GetPendingData returns up to limit unsynced records, oldest first, with
	// ID set. Entries that fail to deserialize are marked synced and skipped.
	GetPendingData(ctx context.Context, limit int) ([]weather.Record, error)

	// MarkAsSynced flags an entry as delivered. Unknown ids are not an error.
	MarkAsSynced(ctx context.Context, id string) error

	// CleanupOldRecords deletes synced entries older than days and returns
	// the number removed.
	CleanupOldRecords(ctx context.Context, days int) (int64, error)

	// PendingCount returns the number of unsynced entries.
	PendingCount(ctx context.Context) (int, error)

	// Close releases the database handle.
	Close() error
}
