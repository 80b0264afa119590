// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package agent

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/distantlabs/distant-agent/internal/keychain"
)

func TestReaper_SweepRemovesStaleEntries(t *testing.T) {
	kc := keychain.New()
	kc.Insert("conn-1", []byte("otp"), keychain.NewBackupReceiver())

	r, err := NewReaper(kc, slog.Default(), "@every 10ms", 20*time.Millisecond, 0)
	if err != nil {
		t.Fatalf("NewReaper: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(cancel)
	defer r.Stop(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for kc.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if kc.Len() != 0 {
		t.Fatalf("Len() = %d after sweep window elapsed, want 0", kc.Len())
	}
}

func TestReaper_ShutsDownAfterIdlePeriod(t *testing.T) {
	kc := keychain.New()

	r, err := NewReaper(kc, slog.Default(), "@every 10ms", time.Hour, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewReaper: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(cancel)
	defer r.Stop(context.Background())

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled after the idle period elapsed")
	}
}

func TestReaper_TouchResetsIdleClock(t *testing.T) {
	kc := keychain.New()

	r, err := NewReaper(kc, slog.Default(), "@every 10ms", time.Hour, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewReaper: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(cancel)
	defer r.Stop(context.Background())

	stop := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(stop) {
		r.Touch()
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-ctx.Done():
		t.Fatal("context was cancelled despite continuous Touch calls")
	default:
	}
}
