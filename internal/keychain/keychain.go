// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package keychain implements the process-wide map from connection-id to
// (OTP, backup-receiver) that the server side of connection establishment
// (C4) consults on reconnect. It is the Go analogue of the teacher's
// control-channel session table (internal/agent/control_channel.go),
// generalized from "one active session per agent name" to "one pending
// reconnect slot per connection id" and narrowed to the constant-time,
// single-use semantics the protocol requires.
package keychain

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/distantlabs/distant-agent/internal/frame"
)

// Errors returned by RemoveIfHasKey.
var (
	// ErrInvalidID means no entry exists for the given connection id.
	ErrInvalidID = errors.New("keychain: invalid connection id")
	// ErrInvalidPassword means an entry exists but the OTP did not match.
	ErrInvalidPassword = errors.New("keychain: invalid password")
)

// BackupReceiver is the one-shot receiver of a server-variant Connection's
// Backup, handed to the Keychain at connect time and polled only on a
// subsequent reconnect (spec §3: "the server variant transmits the
// current backup via backup_tx"). It is implemented as a buffered
// channel of size 1 rather than a bespoke one-shot type, the idiomatic Go
// substitute the teacher's own code reaches for (e.g. the buffered
// completion channels in internal/agent/dispatcher.go).
type BackupReceiver chan *frame.Backup

// NewBackupReceiver creates an unfired one-shot receiver.
func NewBackupReceiver() BackupReceiver {
	return make(BackupReceiver, 1)
}

// Send delivers backup to the receiver. It must be called at most once;
// a second call blocks for as long as the first backup still occupies
// the single buffered slot, so callers
// use it exactly once from the Connection's closing path.
func (rx BackupReceiver) Send(backup *frame.Backup) {
	rx <- backup
}

type entry struct {
	otp        []byte
	rx         BackupReceiver
	insertedAt time.Time
}

// Keychain is the process-wide connection-id -> (OTP, BackupReceiver)
// table. The zero value is not usable; construct with New.
type Keychain struct {
	mu      sync.Mutex
	entries map[string]entry
}

// New creates an empty Keychain.
func New() *Keychain {
	return &Keychain{entries: make(map[string]entry)}
}

// Insert replaces any prior entry for id with a fresh (otp, rx) pair.
// Called at the end of both the Connect and Reconnect server branches,
// once a new OTP has been derived for the established connection.
func (k *Keychain) Insert(id string, otp []byte, rx BackupReceiver) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.entries[id] = entry{otp: append([]byte(nil), otp...), rx: rx, insertedAt: time.Now()}
}

// RemoveIfHasKey removes and returns the BackupReceiver for id if, and
// only if, otp matches the stored OTP under a constant-time comparison.
// A mismatched OTP or unknown id leaves the table unchanged.
func (k *Keychain) RemoveIfHasKey(id string, otp []byte) (BackupReceiver, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[id]
	if !ok {
		return nil, ErrInvalidID
	}
	if len(e.otp) != len(otp) || subtle.ConstantTimeCompare(e.otp, otp) != 1 {
		return nil, ErrInvalidPassword
	}
	delete(k.entries, id)
	return e.rx, nil
}

// HasKey reports whether otp matches the stored OTP for id, without
// removing the entry.
func (k *Keychain) HasKey(id string, otp []byte) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[id]
	if !ok {
		return false
	}
	return len(e.otp) == len(otp) && subtle.ConstantTimeCompare(e.otp, otp) == 1
}

// Len reports the number of pending reconnect slots, used by the
// reaper (internal/agent) to size its sweep and by tests.
func (k *Keychain) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// Remove unconditionally drops any entry for id, whatever its OTP. The
// agent does not call it: entries that never see a reconnect are dropped
// by Sweep instead.
func (k *Keychain) Remove(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.entries, id)
}

// Sweep drops every entry older than maxAge and returns how many were
// removed. A connection that never reconnects within the configured
// window leaves its OTP and frozen Backup pinned in memory forever
// without this; the cron-driven reaper (internal/agent) calls it on a
// schedule.
func (k *Keychain) Sweep(maxAge time.Duration) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, e := range k.entries {
		if e.insertedAt.Before(cutoff) {
			delete(k.entries, id)
			removed++
		}
	}
	return removed
}
