// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package client implements the client event loop (C5): a single
// cooperative task that shuttles outgoing requests and incoming
// responses over a netconn.Connection, detects silence, triggers
// reconnection through a pluggable ReconnectStrategy, and delivers
// responses to mailboxes keyed by request id. The state machine and its
// atomic.Value-published status mirror the teacher's control channel
// (internal/agent/control_channel.go: StateDisconnected/Connecting/
// Connected/Degraded published via atomic.Value), collapsed here to the
// three states spec.md names.
package client

import "sync/atomic"

// ConnectionState is published on every state transition (spec §4.5).
type ConnectionState int

const (
	StateConnected ConnectionState = iota
	StateReconnecting
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// stateBroadcaster holds the current ConnectionState (atomic.Value, the
// teacher's lock-free-read idiom) and fans out each transition onto a
// watch channel that State() exposes to external callers.
type stateBroadcaster struct {
	current atomic.Value // ConnectionState
	watch   chan ConnectionState
}

func newStateBroadcaster() *stateBroadcaster {
	b := &stateBroadcaster{watch: make(chan ConnectionState, 16)}
	b.current.Store(StateDisconnected)
	return b
}

func (b *stateBroadcaster) set(s ConnectionState) {
	b.current.Store(s)
	select {
	case b.watch <- s:
	default:
		// Slow or absent watcher: the atomic.Value still holds the
		// latest state for get(), only the broadcast is best-effort.
	}
}

func (b *stateBroadcaster) get() ConnectionState {
	return b.current.Load().(ConnectionState)
}
