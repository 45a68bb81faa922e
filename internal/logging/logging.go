// Package logging builds the process logger from the log_* settings.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelCritical sits above slog.LevelError.
const LevelCritical = slog.Level(12)

// Output targets.
const (
	TypeConsole = "console"
	TypeFile    = "file"
	TypeSyslog  = "syslog"
	TypeBoth    = "both"
)

// Record formats.
const (
	FormatJSON   = "json"
	FormatText   = "text"
	FormatPretty = "pretty"
)

const (
	DefaultFile        = "stationd.log"
	DefaultMaxSize     = 5 * 1024 * 1024
	DefaultBackupCount = 3

	syslogTag = "stationd"
)

// Options mirrors the log_* settings.
type Options struct {
	Type        string
	Level       string
	File        string
	MaxSize     int64 // bytes
	BackupCount int
	Format      string

	// Console receives console output. Nil means os.Stderr.
	Console io.Writer
}

// ParseLevel maps DEBUG, INFO, WARNING, ERROR and CRITICAL (any case) to a
// slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (allowed: DEBUG, INFO, WARNING, ERROR, CRITICAL)", s)
	}
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok {
		switch {
		case lvl >= LevelCritical:
			a.Value = slog.StringValue("CRITICAL")
		case lvl == slog.LevelWarn:
			a.Value = slog.StringValue("WARNING")
		}
	}
	return a
}

// New builds a logger. The console always receives output; file and syslog
// targets are added per opts.Type. The returned closer releases the file and
// syslog handles.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	level, levelErr := ParseLevel(opts.Level)

	var warnings []string
	if levelErr != nil {
		warnings = append(warnings, levelErr.Error())
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	switch format {
	case "":
		format = FormatJSON
	case FormatJSON, FormatText, FormatPretty:
	default:
		warnings = append(warnings, fmt.Sprintf("unknown log format %q, using text", opts.Format))
		format = FormatText
	}

	logType := strings.ToLower(strings.TrimSpace(opts.Type))
	if logType == "" {
		logType = TypeConsole
	}

	var (
		sinks   []io.Writer
		closers multiCloser
	)
	addFile := func() error {
		w, err := newFileWriter(opts)
		if err != nil {
			return err
		}
		sinks = append(sinks, w)
		closers = append(closers, w)
		return nil
	}

	switch logType {
	case TypeConsole:
	case TypeFile:
		if err := addFile(); err != nil {
			return nil, nil, err
		}
	case TypeSyslog, TypeBoth:
		if logType == TypeBoth {
			if err := addFile(); err != nil {
				return nil, nil, err
			}
		}
		sw, err := newSyslogWriter(syslogTag)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("could not connect to syslog: %v", err))
			if logType == TypeSyslog {
				if err := addFile(); err != nil {
					return nil, nil, err
				}
			}
		} else {
			sinks = append(sinks, sw)
			closers = append(closers, sw)
		}
	default:
		return nil, nil, fmt.Errorf("invalid log type %q (allowed: console, file, syslog, both)", opts.Type)
	}

	hopts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel}

	var handler slog.Handler
	if format == FormatPretty {
		handlers := []slog.Handler{tint.NewHandler(console, &tint.Options{
			Level:       level,
			TimeFormat:  time.DateTime,
			ReplaceAttr: replaceLevel,
		})}
		if len(sinks) > 0 {
			handlers = append(handlers, slog.NewTextHandler(io.MultiWriter(sinks...), hopts))
		}
		handler = slogmulti.Fanout(handlers...)
	} else {
		w := io.MultiWriter(append([]io.Writer{console}, sinks...)...)
		if format == FormatText {
			handler = slog.NewTextHandler(w, hopts)
		} else {
			handler = slog.NewJSONHandler(w, hopts)
		}
	}

	logger := slog.New(handler)
	for _, w := range warnings {
		logger.Warn(w)
	}
	return logger, closers, nil
}

func newFileWriter(opts Options) (*lumberjack.Logger, error) {
	path := opts.File
	if path == "" {
		path = DefaultFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}

	size := opts.MaxSize
	if size <= 0 {
		size = DefaultMaxSize
	}
	backups := opts.BackupCount
	if backups < 0 {
		backups = DefaultBackupCount
	}

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    megabytes(size),
		MaxBackups: backups,
	}, nil
}

// megabytes converts a byte budget to lumberjack's MB unit, rounding up.
func megabytes(b int64) int {
	const mb = 1024 * 1024
	n := int((b + mb - 1) / mb)
	if n < 1 {
		n = 1
	}
	return n
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
