// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package client

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/distantlabs/distant-agent/internal/apierr"
)

// Strategy governs how the event loop retries a reconnect after silence
// or a read/write error (spec §4.5.1). attempt performs exactly one
// reconnect try and is called by the strategy as many times as its
// policy allows.
type Strategy interface {
	Reconnect(ctx context.Context, attempt func(ctx context.Context) error) error
}

// Fail never retries: a single attempt, surfaced verbatim on failure.
type Fail struct{}

func (Fail) Reconnect(ctx context.Context, attempt func(ctx context.Context) error) error {
	return attempt(ctx)
}

// FixedInterval waits Interval between attempts, stopping after
// MaxRetries (0 means unlimited) or once Timeout wall-clock time has
// elapsed (0 means no deadline).
type FixedInterval struct {
	Interval   time.Duration
	MaxRetries int
	Timeout    time.Duration
}

func (s FixedInterval) Reconnect(ctx context.Context, attempt func(ctx context.Context) error) error {
	deadline := time.Time{}
	if s.Timeout > 0 {
		deadline = time.Now().Add(s.Timeout)
	}

	var lastErr error
	for try := 0; s.MaxRetries == 0 || try < s.MaxRetries; try++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("%w: reconnect timeout exceeded after %d attempts: %v", apierr.ErrDisconnected, try, lastErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := attempt(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if try > 0 || s.Interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.Interval):
			}
		}
	}
	return fmt.Errorf("%w: max retries (%d) exceeded: %v", apierr.ErrDisconnected, s.MaxRetries, lastErr)
}

// ExponentialBackoff doubles the wait between attempts starting from
// Base, capped at Max, per spec.md's "further strategies ... are allowed
// but not required" — grounded on the teacher's baseBackoff/maxBackoff
// doubling loop in internal/agent/dispatcher.go's stream-reconnect path.
type ExponentialBackoff struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries int
	Timeout    time.Duration
}

func (s ExponentialBackoff) Reconnect(ctx context.Context, attempt func(ctx context.Context) error) error {
	deadline := time.Time{}
	if s.Timeout > 0 {
		deadline = time.Now().Add(s.Timeout)
	}

	var lastErr error
	for try := 0; s.MaxRetries == 0 || try < s.MaxRetries; try++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("%w: reconnect timeout exceeded after %d attempts: %v", apierr.ErrDisconnected, try, lastErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := attempt(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}

		backoff := time.Duration(math.Min(
			float64(s.Base)*math.Pow(2, float64(try)),
			float64(s.Max),
		))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%w: max retries (%d) exceeded: %v", apierr.ErrDisconnected, s.MaxRetries, lastErr)
}
