// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package agent hosts cmd/distant-agent's background maintenance: a
// cron-driven reaper that sweeps stale pending-reconnect entries out of
// the C3 keychain and, optionally, shuts the listener down after a
// configured span of total inactivity. Adapted from the teacher's
// per-backup-entry cron scheduler (internal/agent/scheduler.go there ran
// one cron.Cron job per configured backup entry); here a single cron
// entry drives one recurring sweep instead of N entry-specific jobs,
// since this server has exactly one maintenance duty rather than one job
// per configured source.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/distantlabs/distant-agent/internal/keychain"
)

// Reaper periodically expires pending-reconnect keychain entries older
// than MaxAge and, if ShutdownAfter is nonzero, cancels its context once
// no connection has been active for that long.
type Reaper struct {
	keychain      *keychain.Keychain
	logger        *slog.Logger
	maxAge        time.Duration
	shutdownAfter time.Duration

	cron       *cron.Cron
	lastActive atomic.Int64 // unix nanos
	cancel     context.CancelFunc
}

// NewReaper builds a Reaper that sweeps kc on schedule (a cron
// expression, e.g. "@every 1m"), dropping any pending entry older than
// maxAge. shutdownAfter of 0 disables the idle-listener shutdown.
func NewReaper(kc *keychain.Keychain, logger *slog.Logger, schedule string, maxAge, shutdownAfter time.Duration) (*Reaper, error) {
	r := &Reaper{
		keychain:      kc,
		logger:        logger,
		maxAge:        maxAge,
		shutdownAfter: shutdownAfter,
	}
	r.Touch()

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(schedule, r.sweep); err != nil {
		return nil, fmt.Errorf("adding reaper cron entry %q: %w", schedule, err)
	}
	r.cron = c
	return r, nil
}

// Touch records connection activity, resetting the idle-shutdown clock.
func (r *Reaper) Touch() {
	r.lastActive.Store(time.Now().UnixNano())
}

// Start begins the cron schedule. cancel is invoked once ShutdownAfter
// has elapsed since the last Touch, if ShutdownAfter is nonzero.
func (r *Reaper) Start(cancel context.CancelFunc) {
	r.cancel = cancel
	r.cron.Start()
}

// Stop halts the cron schedule, waiting for any in-flight sweep.
func (r *Reaper) Stop(ctx context.Context) {
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		r.logger.Warn("reaper stop timed out")
	}
}

func (r *Reaper) sweep() {
	removed := r.keychain.Sweep(r.maxAge)
	if removed > 0 {
		r.logger.Info("keychain sweep removed stale entries", "removed", removed, "remaining", r.keychain.Len())
	}

	if r.shutdownAfter > 0 && r.cancel != nil {
		idle := time.Since(time.Unix(0, r.lastActive.Load()))
		if idle >= r.shutdownAfter {
			r.logger.Info("shutting down after idle period", "idle", idle, "shutdown_after", r.shutdownAfter)
			r.cancel()
		}
	}
}
