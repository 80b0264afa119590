// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewSessionLogger_Disabled(t *testing.T) {
	base := slog.New(slog.NewTextHandler(os.Stderr, nil))

	logger, closer, path, err := NewSessionLogger(base, "", "agent", "session-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closer.Close()

	if logger != base {
		t.Error("expected base logger when sessionLogDir is empty")
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestNewSessionLogger_CreatesFileAndLogs(t *testing.T) {
	dir := t.TempDir()
	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger, closer, logPath, err := NewSessionLogger(base, dir, "test-agent", "session-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The component directory should have been created
	agentDir := filepath.Join(dir, "test-agent")
	if _, err := os.Stat(agentDir); os.IsNotExist(err) {
		t.Fatalf("agent dir not created: %s", agentDir)
	}

	// The returned path should match
	expectedPath := filepath.Join(agentDir, "session-abc.log")
	if logPath != expectedPath {
		t.Errorf("expected path %q, got %q", expectedPath, logPath)
	}

	// Write a log record
	logger.Info("test message", "key", "value")

	// Close the session file to force a flush
	closer.Close()

	// The message should appear in the base handler's output
	if !strings.Contains(baseBuf.String(), "test message") {
		t.Errorf("log message not found in base handler output: %s", baseBuf.String())
	}

	// The message should appear in the session file
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading session log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "test message") {
		t.Errorf("log message not found in session file: %s", content)
	}
	if !strings.Contains(content, `"key":"value"`) {
		t.Errorf("structured key not found in session file: %s", content)
	}
}

func TestNewSessionLogger_DebugInFileInfoInBase(t *testing.T) {
	dir := t.TempDir()

	// Base logger at INFO level — does not accept DEBUG
	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger, closer, logPath, err := NewSessionLogger(base, dir, "agent", "sess-debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Write a DEBUG record
	logger.Debug("debug only message")
	logger.Info("info for both")

	closer.Close()

	// DEBUG must not appear in the base handler (filtered by INFO level)
	if strings.Contains(baseBuf.String(), "debug only message") {
		t.Error("DEBUG message should not appear in base handler with INFO level")
	}
	// INFO must appear in the base handler
	if !strings.Contains(baseBuf.String(), "info for both") {
		t.Error("INFO message missing from base handler")
	}

	// Both must appear in the session file (DEBUG level)
	data, _ := os.ReadFile(logPath)
	content := string(data)
	if !strings.Contains(content, "debug only message") {
		t.Errorf("DEBUG message missing from session file: %s", content)
	}
	if !strings.Contains(content, "info for both") {
		t.Errorf("INFO message missing from session file: %s", content)
	}
}

func TestRemoveSessionLog(t *testing.T) {
	dir := t.TempDir()
	agentDir := filepath.Join(dir, "agent")
	os.MkdirAll(agentDir, 0755)

	logPath := filepath.Join(agentDir, "session-to-remove.log")
	os.WriteFile(logPath, []byte("test"), 0644)

	// The file should exist
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Fatal("setup failed: log file not created")
	}

	RemoveSessionLog(dir, "agent", "session-to-remove")

	// Verifica que o arquivo foi removido
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("session log file should have been removed")
	}
}

func TestRemoveSessionLog_NoOpWhenEmpty(t *testing.T) {
	// Must not panic or error when sessionLogDir is empty
	RemoveSessionLog("", "agent", "session")
}

func TestRemoveSessionLog_NoOpWhenFileMissing(t *testing.T) {
	// Must not panic or error when the file doesn't exist
	RemoveSessionLog(t.TempDir(), "agent", "nonexistent-session")
}

func TestNewSessionLogger_WithAttrs(t *testing.T) {
	dir := t.TempDir()
	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger, closer, logPath, err := NewSessionLogger(base, dir, "agent", "sess-attrs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Attach attrs, the way dispatch binds logger.With("conn_id", connID)
	enriched := logger.With("session", "sess-attrs", "mode", "parallel")
	enriched.Info("enriched message")

	closer.Close()

	// The attrs should appear in both outputs
	if !strings.Contains(baseBuf.String(), "sess-attrs") {
		t.Error("session attr missing from base handler")
	}

	data, _ := os.ReadFile(logPath)
	content := string(data)
	if !strings.Contains(content, "sess-attrs") {
		t.Errorf("session attr missing from session file: %s", content)
	}
	if !strings.Contains(content, "parallel") {
		t.Errorf("mode attr missing from session file: %s", content)
	}
}
