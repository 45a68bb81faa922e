package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"
)

// MigrationState is the applied state of one queue migration.
type MigrationState struct {
	Version int64
	Name    string
	Applied bool
}

// QueueMigrations reports the migration state of the queue file at path
// without applying anything. A missing file reports every migration as
// pending and is not created.
func QueueMigrations(ctx context.Context, path string) ([]MigrationState, error) {
	if path == "" {
		path = DefaultQueuePath
	}

	dsn := queueDSN(path)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		dsn = "file::memory:"
	} else if err != nil {
		return nil, fmt.Errorf("checking queue file: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	defer db.Close() //nolint:errcheck

	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return nil, fmt.Errorf("creating migration provider: %w", err)
	}

	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading migration status: %w", err)
	}

	out := make([]MigrationState, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, MigrationState{
			Version: st.Source.Version,
			Name:    st.Source.Path,
			Applied: st.State == goose.StateApplied,
		})
	}
	return out, nil
}
