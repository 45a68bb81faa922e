package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"Warning", slog.LevelWarn, false},
		{"ERROR", slog.LevelError, false},
		{"critical", LevelCritical, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMegabytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  int
	}{
		{1, 1},
		{1024 * 1024, 1},
		{5 * 1024 * 1024, 5},
		{5*1024*1024 + 1, 6},
	}
	for _, tt := range tests {
		if got := megabytes(tt.bytes); got != tt.want {
			t.Errorf("megabytes(%d) = %d, want %d", tt.bytes, got, tt.want)
		}
	}
}

func decodeLines(t *testing.T, b []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(b), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err != nil {
			t.Fatalf("decoding %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNew_ConsoleJSONLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Type: TypeConsole, Level: "WARNING", Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown")
	logger.Log(context.Background(), LevelCritical, "on fire")

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), buf.String())
	}
	if lines[0]["level"] != "WARNING" || lines[0]["msg"] != "shown" {
		t.Errorf("first line = %v", lines[0])
	}
	if lines[1]["level"] != "CRITICAL" {
		t.Errorf("second line level = %v, want CRITICAL", lines[1]["level"])
	}
}

func TestNew_UnknownFormatFallsBackToText(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Options{Format: "xml", Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hello")

	out := buf.String()
	if !strings.Contains(out, `unknown log format \"xml\"`) && !strings.Contains(out, `unknown log format "xml"`) {
		t.Errorf("expected fallback warning, got %q", out)
	}
	if !strings.Contains(out, "msg=hello") {
		t.Errorf("expected text output, got %q", out)
	}
}

func TestNew_InvalidLevelWarns(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Options{Level: "loud", Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("still info")

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["level"] != "WARNING" {
		t.Errorf("expected warning about level, got %v", lines[0])
	}
}

func TestNew_InvalidType(t *testing.T) {
	if _, _, err := New(Options{Type: "carrier-pigeon", Console: &bytes.Buffer{}}); err == nil {
		t.Error("expected error for invalid log type")
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "station.log")
	var buf bytes.Buffer
	logger, closer, err := New(Options{
		Type:        TypeFile,
		File:        path,
		MaxSize:     1024,
		BackupCount: 2,
		Console:     &buf,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("to file", "id", "abc")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"to file"`) {
		t.Errorf("log file = %q", data)
	}
	if !strings.Contains(buf.String(), `"msg":"to file"`) {
		t.Errorf("console = %q, stderr output must always be included", buf.String())
	}
}

func TestNew_PrettyConsoleWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.log")
	var buf bytes.Buffer
	logger, closer, err := New(Options{Type: TypeFile, File: path, Format: FormatPretty, Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.With("component", "test").Info("pretty hello")
	_ = closer.Close()

	if !strings.Contains(buf.String(), "pretty hello") {
		t.Errorf("console = %q", buf.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `msg="pretty hello"`) || !strings.Contains(string(data), "component=test") {
		t.Errorf("log file = %q", data)
	}
}

func TestNew_PrettyFanoutHonorsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.log")
	var buf bytes.Buffer
	logger, closer, err := New(Options{Type: TypeFile, File: path, Format: FormatPretty, Level: "WARNING", Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("quiet info")
	logger.Warn("loud warning")
	_ = closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	for name, out := range map[string]string{"console": buf.String(), "file": string(data)} {
		if strings.Contains(out, "quiet info") {
			t.Errorf("%s contains a record below the level: %q", name, out)
		}
		if !strings.Contains(out, "loud warning") {
			t.Errorf("%s is missing the warning: %q", name, out)
		}
	}
}
