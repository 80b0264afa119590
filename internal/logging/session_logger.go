// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// fanOutHandler is a slog.Handler that dispatches each record to two
// handlers. NewSessionLogger uses it to write simultaneously to the
// process-wide handler and a connection's dedicated log file.
type fanOutHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *fanOutHandler) Handle(ctx context.Context, r slog.Record) error {
	// Each handler's Enabled() is checked individually so a DEBUG record
	// reaches the session file even when the base handler only accepts
	// INFO or above.
	if h.primary.Enabled(ctx, r.Level) {
		if err := h.primary.Handle(ctx, r); err != nil {
			return err
		}
	}
	// A write failure against the session file must never block the
	// process-wide log.
	if h.secondary.Enabled(ctx, r.Level) {
		_ = h.secondary.Handle(ctx, r)
	}
	return nil
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithAttrs(attrs),
		secondary: h.secondary.WithAttrs(attrs),
	}
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithGroup(name),
		secondary: h.secondary.WithGroup(name),
	}
}

// NewSessionLogger builds a logger that writes to both the base (process-
// wide) logger and a file dedicated to one connection. The file is created
// at:
//
//	{sessionLogDir}/{component}/{connID}.log
//
// It returns the enriched logger, an io.Closer for the session file, and
// the file's absolute path. The Closer MUST be called (defer) when the
// connection ends.
//
// If sessionLogDir is empty, it returns the base logger unmodified (no-op)
// — distant-agent only opens per-connection log files when cfg.Logging
// names a directory.
func NewSessionLogger(baseLogger *slog.Logger, sessionLogDir, component, connID string) (*slog.Logger, io.Closer, string, error) {
	if sessionLogDir == "" {
		return baseLogger, io.NopCloser(nil), "", nil
	}

	dir := filepath.Join(sessionLogDir, component)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, "", fmt.Errorf("creating session log directory %s: %w", dir, err)
	}

	logPath := filepath.Join(dir, connID+".log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, "", fmt.Errorf("opening session log file %s: %w", logPath, err)
	}

	// The session file always runs JSON at DEBUG for maximum capture,
	// independent of whatever level the base logger is configured at.
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	combined := &fanOutHandler{
		primary:   baseLogger.Handler(),
		secondary: fileHandler,
	}

	return slog.New(combined), f, logPath, nil
}

// RemoveSessionLog deletes the log file of a connection that closed
// cleanly. No-op if sessionLogDir is empty or the file doesn't exist.
func RemoveSessionLog(sessionLogDir, component, connID string) {
	if sessionLogDir == "" {
		return
	}
	logPath := filepath.Join(sessionLogDir, component, connID+".log")
	os.Remove(logPath)
}
