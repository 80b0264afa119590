// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package netconn implements connection establishment (C4): the client
// and server state machines that combine the frame transport (C1),
// handshake & keying (C2), and keychain (C3) with an auth step (C10) to
// produce an established Connection, handling both the Connect and
// Reconnect control frames and the post-reconnect frame replay.
package netconn

import (
	"sync"

	"github.com/distantlabs/distant-agent/internal/frame"
	"github.com/distantlabs/distant-agent/internal/keychain"
)

// Connection is the unit C5 (client) and C6 (server) build on. The same
// type serves both variants; IsServer and BackupRx are populated only on
// the server side, ReauthOTP only on the client side (spec §3).
type Connection struct {
	mu sync.Mutex

	ID        uint32
	Transport *frame.Transport

	// Client-side only: refreshed on every successful connect/reconnect.
	ReauthOTP []byte

	// Server-side only: the one-shot sender through which this
	// connection's Backup is handed to the Keychain on close.
	IsServer bool
	BackupRx keychain.BackupReceiver

	closed bool
}

// SetOTP atomically swaps in a new id and OTP after a successful
// reconnect (spec §4.4: "On success, swap in the new id and new OTP
// atomically").
func (c *Connection) SetOTP(id uint32, otp []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ID = id
	c.ReauthOTP = otp
}

// Close releases the underlying byte transport. On the server variant,
// if this is the first Close call, the current Backup is hand off to the
// Keychain via the one-shot receiver so a later Reconnect can recover it
// (spec §3: "On destruction, the server variant transmits the current
// backup via backup_tx").
func (c *Connection) Close() error {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.mu.Unlock()

	if !alreadyClosed && c.IsServer && c.BackupRx != nil {
		c.BackupRx.Send(c.Transport.Backup)
	}
	return c.Transport.Conn().Close()
}
