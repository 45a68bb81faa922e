package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		StationIP:          "192.168.1.50",
		DatabaseHost:       "db.local",
		DatabasePort:       5432,
		DatabaseName:       "weather",
		DatabaseUser:       "station",
		DatabasePassword:   "secret",
		DatabaseTable:      "weather_data",
		LogType:            "console",
		LocalDBPath:        "local_cache.db",
		CollectionSchedule: "@every 1m",
		RequestTimeout:     10 * time.Second,
		RetryDelay:         2 * time.Second,
		FetchAttempts:      3,
		SyncBatchSize:      100,
		RetentionDays:      30,
		CleanupInterval:    time.Hour,
		MemoryThresholdMB:  256,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing station_ip", func(c *Config) { c.StationIP = "" }, `missing required setting "station_ip"`},
		{"missing database_host", func(c *Config) { c.DatabaseHost = "" }, `missing required setting "database_host"`},
		{"missing database_port", func(c *Config) { c.DatabasePort = 0 }, `missing required setting "database_port"`},
		{"missing database_name", func(c *Config) { c.DatabaseName = "" }, `missing required setting "database_name"`},
		{"missing database_user", func(c *Config) { c.DatabaseUser = "" }, `missing required setting "database_user"`},
		{"missing database_password", func(c *Config) { c.DatabasePassword = "" }, `missing required setting "database_password"`},
		{"missing database_table", func(c *Config) { c.DatabaseTable = "" }, `missing required setting "database_table"`},
		{"port out of range", func(c *Config) { c.DatabasePort = 70000 }, `invalid setting "database_port"`},
		{"bad log type", func(c *Config) { c.LogType = "eventlog" }, `invalid setting "log_type"`},
		{"zero attempts", func(c *Config) { c.FetchAttempts = 0 }, `invalid setting "fetch_attempts"`},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, `invalid setting "request_timeout"`},
		{"bad listen addr", func(c *Config) { c.ListenAddr = "localhost" }, "listen_addr"},
		{"listen addr ok", func(c *Config) { c.ListenAddr = "127.0.0.1:8080" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCreatesQueueDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "queue")
	cfg := validConfig()
	cfg.LocalDBPath = filepath.Join(dir, "cache.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("queue directory not created: %v", err)
	}
}

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

const fullSettings = `{
  "station_ip": "192.168.1.50",
  "station_name": "Rooftop",
  "database_host": "db.local",
  "database_port": 5432,
  "database_name": "weather",
  "database_user": "station",
  "database_password": "secret",
  "database_table": "weather_data",
  "log_type": "file",
  "log_level": "DEBUG",
  "log_file": "station.log",
  "log_max_size": 1048576,
  "log_backup_count": 5,
  "request_timeout": "3s",
  "retention_days": 7
}`

func TestLoad_ValidFile(t *testing.T) {
	cfg, err := Load(writeSettings(t, fullSettings))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.StationIP != "192.168.1.50" {
		t.Errorf("station_ip = %q", cfg.StationIP)
	}
	if cfg.StationName != "Rooftop" {
		t.Errorf("station_name = %q", cfg.StationName)
	}
	if cfg.DatabasePort != 5432 {
		t.Errorf("database_port = %d, want 5432", cfg.DatabasePort)
	}
	if cfg.LogType != "file" || cfg.LogLevel != "DEBUG" || cfg.LogMaxSize != 1048576 || cfg.LogBackupCount != 5 {
		t.Errorf("log settings = %s %s %d %d", cfg.LogType, cfg.LogLevel, cfg.LogMaxSize, cfg.LogBackupCount)
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Errorf("request_timeout = %v, want 3s", cfg.RequestTimeout)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("retention_days = %d, want 7", cfg.RetentionDays)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeSettings(t, `{
  "station_ip": "10.0.0.2",
  "database_host": "db",
  "database_port": 5432,
  "database_name": "w",
  "database_user": "u",
  "database_password": "p",
  "database_table": "t"
}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogType != "console" {
		t.Errorf("log_type = %q, want console", cfg.LogType)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("log_format = %q, want json", cfg.LogFormat)
	}
	if cfg.LocalDBPath != "local_cache.db" {
		t.Errorf("local_db_path = %q", cfg.LocalDBPath)
	}
	if cfg.CollectionSchedule != "@every 1m" {
		t.Errorf("collection_schedule = %q", cfg.CollectionSchedule)
	}
	if cfg.RequestTimeout != 10*time.Second || cfg.RetryDelay != 2*time.Second || cfg.FetchAttempts != 3 {
		t.Errorf("fetch settings = %v %v %d", cfg.RequestTimeout, cfg.RetryDelay, cfg.FetchAttempts)
	}
	if cfg.SyncBatchSize != 100 || cfg.RetentionDays != 30 {
		t.Errorf("queue settings = %d %d", cfg.SyncBatchSize, cfg.RetentionDays)
	}
	if cfg.CleanupInterval != time.Hour || cfg.MemoryThresholdMB != 256 {
		t.Errorf("resource settings = %v %d", cfg.CleanupInterval, cfg.MemoryThresholdMB)
	}
	if cfg.ListenAddr != "" {
		t.Errorf("listen_addr = %q, want empty", cfg.ListenAddr)
	}
}

func TestLoad_MissingRequiredKeyNamed(t *testing.T) {
	_, err := Load(writeSettings(t, `{
  "station_ip": "10.0.0.2",
  "database_host": "db",
  "database_port": 5432,
  "database_name": "w",
  "database_user": "u",
  "database_password": "p"
}`))
	if err == nil {
		t.Fatal("expected error for missing database_table")
	}
	if !strings.Contains(err.Error(), "database_table") {
		t.Errorf("error %q does not name the missing key", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeSettings(t, `{
  "station_ip": "10.0.0.2",
  "database_host": "db",
  "database_port": 5432,
  "database_name": "w",
  "database_user": "u",
  "database_table": "t"
}`)
	t.Setenv("STATIOND_DATABASE_PASSWORD", "from-env")
	t.Setenv("STATIOND_SYNC_BATCH_SIZE", "25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabasePassword != "from-env" {
		t.Errorf("database_password = %q, want from-env", cfg.DatabasePassword)
	}
	if cfg.SyncBatchSize != 25 {
		t.Errorf("sync_batch_size = %d, want 25", cfg.SyncBatchSize)
	}
}

func TestLoad_ConfigFromEnvPath(t *testing.T) {
	t.Setenv("STATIOND_CONFIG", writeSettings(t, fullSettings))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseTable != "weather_data" {
		t.Errorf("database_table = %q", cfg.DatabaseTable)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/settings.json"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	if _, err := Load(writeSettings(t, `{"station_ip": `)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
