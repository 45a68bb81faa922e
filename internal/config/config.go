package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. STATIOND_DATABASE_PASSWORD.
const EnvPrefix = "STATIOND"

// Config is the flat settings mapping for stationd.
type Config struct {
	StationIP       string `mapstructure:"station_ip" validate:"required"`
	StationName     string `mapstructure:"station_name"`
	StationLocation string `mapstructure:"station_location"`

	DatabaseHost     string `mapstructure:"database_host" validate:"required"`
	DatabasePort     int    `mapstructure:"database_port" validate:"required,min=1,max=65535"`
	DatabaseName     string `mapstructure:"database_name" validate:"required"`
	DatabaseUser     string `mapstructure:"database_user" validate:"required"`
	DatabasePassword string `mapstructure:"database_password" validate:"required"`
	DatabaseTable    string `mapstructure:"database_table" validate:"required"`

	LogType        string `mapstructure:"log_type" validate:"oneof=console file syslog both"`
	LogLevel       string `mapstructure:"log_level"`
	LogFile        string `mapstructure:"log_file"`
	LogMaxSize     int64  `mapstructure:"log_max_size" validate:"min=0"`
	LogBackupCount int    `mapstructure:"log_backup_count" validate:"min=0"`
	LogFormat      string `mapstructure:"log_format"`

	LocalDBPath        string        `mapstructure:"local_db_path" validate:"required"`
	CollectionSchedule string        `mapstructure:"collection_schedule" validate:"required"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	RetryDelay         time.Duration `mapstructure:"retry_delay" validate:"min=0"`
	FetchAttempts      int           `mapstructure:"fetch_attempts" validate:"min=1"`
	SyncBatchSize      int           `mapstructure:"sync_batch_size" validate:"min=1"`
	RetentionDays      int           `mapstructure:"retention_days" validate:"min=0"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
	MemoryThresholdMB  uint64        `mapstructure:"memory_threshold_mb" validate:"min=1"`

	// ListenAddr enables the status server when set.
	ListenAddr string `mapstructure:"listen_addr"`
}

var defaults = map[string]any{
	"log_type":            "console",
	"log_level":           "INFO",
	"log_file":            "stationd.log",
	"log_max_size":        5 * 1024 * 1024,
	"log_backup_count":    3,
	"log_format":          "json",
	"local_db_path":       "local_cache.db",
	"collection_schedule": "@every 1m",
	"request_timeout":     "10s",
	"retry_delay":         "2s",
	"fetch_attempts":      3,
	"sync_batch_size":     100,
	"retention_days":      30,
	"cleanup_interval":    "1h",
	"memory_threshold_mb": 256,
	"listen_addr":         "",
	"station_name":        "",
	"station_location":    "",
}

// Keys without defaults still need explicit env bindings for Unmarshal.
var requiredKeys = []string{
	"station_ip",
	"database_host",
	"database_port",
	"database_name",
	"database_user",
	"database_password",
	"database_table",
}

// Load reads settings from the flag path, $STATIOND_CONFIG, or the default
// locations, applies STATIOND_* environment overrides and validates the
// result. A .env file in the working directory is loaded first.
// Precedence: flag → $STATIOND_CONFIG → ./settings.json → ~/.config/stationd/settings.json → /etc/stationd/settings.json
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for _, k := range requiredKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", k, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if envPath := os.Getenv(EnvPrefix + "_CONFIG"); envPath != "" {
		v.SetConfigFile(envPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "stationd"))
		}
		v.AddConfigPath("/etc/stationd")
		v.SetConfigName("settings")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if cfgPath := v.ConfigFileUsed(); cfgPath != "" {
		// The file carries the database password.
		if info, err := os.Stat(cfgPath); err == nil {
			perm := info.Mode().Perm()
			if perm&0004 != 0 {
				slog.Warn("config file is world-readable", "path", cfgPath, "permissions", fmt.Sprintf("%04o", perm))
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks that every required setting is present and the optional
// ones are in range.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		fe := verrs[0]
		if fe.Tag() == "required" {
			return fmt.Errorf("missing required setting %q", fe.Field())
		}
		if fe.Param() != "" {
			return fmt.Errorf("invalid setting %q: must satisfy %s=%s, got %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("invalid setting %q: must satisfy %s, got %v", fe.Field(), fe.Tag(), fe.Value())
	}

	if c.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			return fmt.Errorf("listen_addr %q is not a valid address: %w", c.ListenAddr, err)
		}
	}

	dir := filepath.Dir(c.LocalDBPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating local storage directory %q: %w", dir, err)
		}
	}

	return nil
}
