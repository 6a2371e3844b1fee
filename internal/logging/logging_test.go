package logging

import (
	"bytes"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONLoggerNamesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", FormatJSON, &buf).Named(ComponentDaemon)
	logger.Debug("hidden")
	logger.Info("listening", zap.String("socket", "/tmp/x.sock"))
	_ = logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above debug level, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["component"] != ComponentDaemon || entry["msg"] != "listening" || entry["socket"] != "/tmp/x.sock" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("warn", FormatConsole, &buf).Warn("commit failed")
	if !strings.Contains(buf.String(), " | WARN | ") || !strings.Contains(buf.String(), "commit failed") {
		t.Fatalf("unexpected console output %q", buf.String())
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatalf("expected nop logger")
	}
	l := zap.NewExample()
	if OrNop(l) != l {
		t.Fatalf("expected logger to pass through")
	}
}
