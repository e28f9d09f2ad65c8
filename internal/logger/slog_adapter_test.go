package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, level Level, format Format) (*SlogLogger, *bytes.Buffer) {
	t.Helper()

	buf := &bytes.Buffer{}
	l, err := NewSlogLogger(Config{
		Level:   level,
		Format:  format,
		Outputs: []OutputConfig{{Type: OutputStdout, Writer: buf}},
	})
	if err != nil {
		t.Fatalf("NewSlogLogger() error = %v", err)
	}
	return l, buf
}

func TestSlogLogger_Levels(t *testing.T) {
	l, buf := newBufferLogger(t, LevelWarn, FormatText)

	l.Debug("debug-msg")
	l.Info("info-msg")
	l.Warn("warn-msg")
	l.Error("error-msg")

	out := buf.String()
	for _, hidden := range []string{"debug-msg", "info-msg"} {
		if strings.Contains(out, hidden) {
			t.Errorf("output should not contain %q: %s", hidden, out)
		}
	}
	for _, shown := range []string{"warn-msg", "error-msg"} {
		if !strings.Contains(out, shown) {
			t.Errorf("output missing %q: %s", shown, out)
		}
	}
}

func TestSlogLogger_JSONFormat(t *testing.T) {
	l, buf := newBufferLogger(t, LevelInfo, FormatJSON)

	l.Info("job finished", "job", "abc", "stage", "uploaded")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if record["msg"] != "job finished" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["stage"] != "uploaded" {
		t.Errorf("stage = %v", record["stage"])
	}
}

func TestSlogLogger_WithAddsContext(t *testing.T) {
	l, buf := newBufferLogger(t, LevelInfo, FormatText)

	child := l.With("component", "pipeline")
	child.Info("started")

	if !strings.Contains(buf.String(), "component=pipeline") {
		t.Errorf("output missing context: %s", buf.String())
	}

	// child loggers never own writers
	if err := child.Shutdown(); err != nil {
		t.Errorf("child Shutdown() error = %v", err)
	}
}

func TestSlogLogger_SanitizesMessagesAndArgs(t *testing.T) {
	l, buf := newBufferLogger(t, LevelInfo, FormatText)

	l.Info("exec rclone --drive-client-secret=abc123", "token", "supersecretvalue", "error", errors.New("password=hunter2"))

	out := buf.String()
	for _, leaked := range []string{"abc123", "supersecretvalue", "hunter2"} {
		if strings.Contains(out, leaked) {
			t.Errorf("secret %q leaked into output: %s", leaked, out)
		}
	}
}

func TestSlogLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cloudconvert.log")

	l, err := NewSlogLogger(Config{
		Level:   LevelInfo,
		Format:  FormatText,
		Outputs: []OutputConfig{{Type: OutputFile}},
		File:    FileConfig{Path: path, MaxSizeMB: 1},
	})
	if err != nil {
		t.Fatalf("NewSlogLogger() error = %v", err)
	}

	l.Info("to file")
	if err := l.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file content = %s", data)
	}
}

func TestSlogLogger_MultipleOutputs(t *testing.T) {
	a, b := &bytes.Buffer{}, &bytes.Buffer{}
	l, err := NewSlogLogger(Config{
		Level: LevelInfo,
		Outputs: []OutputConfig{
			{Type: OutputStdout, Writer: a},
			{Type: OutputStderr, Writer: b},
		},
	})
	if err != nil {
		t.Fatalf("NewSlogLogger() error = %v", err)
	}

	l.Info("both")

	if !strings.Contains(a.String(), "both") || !strings.Contains(b.String(), "both") {
		t.Errorf("expected message in both outputs: %q / %q", a.String(), b.String())
	}
}
