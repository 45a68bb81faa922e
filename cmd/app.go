package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/chadmayfield/stationd/internal/collector"
	"github.com/chadmayfield/stationd/internal/config"
	"github.com/chadmayfield/stationd/internal/logging"
	"github.com/chadmayfield/stationd/internal/metrics"
	"github.com/chadmayfield/stationd/internal/station"
	"github.com/chadmayfield/stationd/internal/store"
)

// app holds the components shared by the run, collect, sync and cleanup
// commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	logs   io.Closer

	client    *station.Client
	primary   *store.PostgresStore
	queue     *store.SQLiteQueue
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	collector *collector.Collector
}

// loadSettings reads the settings and builds the process logger, which also
// becomes the slog default.
func loadSettings() (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	logger, closer, err := logging.New(logging.Options{
		Type:        cfg.LogType,
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
		MaxSize:     cfg.LogMaxSize,
		BackupCount: cfg.LogBackupCount,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("setting up logging: %w", err)
	}
	slog.SetDefault(logger)
	return cfg, logger, closer, nil
}

func postgresConfig(cfg *config.Config) store.PostgresConfig {
	return store.PostgresConfig{
		Host:           cfg.DatabaseHost,
		Port:           cfg.DatabasePort,
		Name:           cfg.DatabaseName,
		User:           cfg.DatabaseUser,
		Password:       cfg.DatabasePassword,
		Table:          cfg.DatabaseTable,
		ConnectTimeout: cfg.RequestTimeout,
	}
}

// newApp loads settings and wires the station client, both stores, the
// metrics registry and the collector.
func newApp() (*app, error) {
	cfg, logger, logs, err := loadSettings()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, logs: logs}
	if err := a.wire(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	pgCfg := postgresConfig(a.cfg)
	a.logger.Info("configuration loaded",
		"station_ip", a.cfg.StationIP,
		"station_name", a.cfg.StationName,
		"station_location", a.cfg.StationLocation,
		"database", redactDSN(pgCfg.DSN()),
		"table", a.cfg.DatabaseTable,
		"local_db_path", a.cfg.LocalDBPath,
	)

	var err error
	a.queue, err = store.NewSQLiteQueue(a.cfg.LocalDBPath, a.logger)
	if err != nil {
		return fmt.Errorf("opening local queue: %w", err)
	}

	a.primary, err = store.NewPostgresStore(pgCfg, a.logger)
	if err != nil {
		return err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics, err = metrics.New(a.registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	a.client = station.NewClient(station.Options{
		Timeout:    a.cfg.RequestTimeout,
		RetryDelay: a.cfg.RetryDelay,
		Attempts:   a.cfg.FetchAttempts,
	}, a.logger)

	a.collector = collector.NewCollector(a.client, a.primary, a.queue, a.metrics, collector.Options{
		StationIP:     a.cfg.StationIP,
		SyncBatchSize: a.cfg.SyncBatchSize,
		RetentionDays: a.cfg.RetentionDays,
	}, a.logger)
	return nil
}

// close releases whatever the app still holds. Once the collector has shut
// down it owns the client and both stores, so only the log sinks remain.
func (a *app) close() {
	if a.collector == nil || !a.collector.Closed() {
		a.closeResources()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

func (a *app) closeResources() {
	if a.client != nil {
		a.client.Close()
	}
	if a.primary != nil {
		a.primary.Close()
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.logger.Error("failed to close local storage", "error", err)
		}
	}
}

// redactDSN masks the password in a PostgreSQL DSN for safe display.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
