// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package apierr defines the abstract error taxonomy shared by every
// component of the connection, dispatch, process, and filesystem layers
// (spec §7). Components wrap one of these sentinels with fmt.Errorf's %w
// so callers can classify a failure with errors.Is regardless of which
// layer produced it.
package apierr

import "errors"

var (
	// ErrInvalidData marks malformed frames, wrong-length handshakes, bad
	// header fields, invalid content lengths, or non-UTF-8 where UTF-8 was
	// required.
	ErrInvalidData = errors.New("invalid data")

	// ErrTruncatedVersion marks a version preamble shorter than 24 bytes.
	ErrTruncatedVersion = errors.New("truncated version preamble")

	// ErrUnexpectedEOF marks a byte stream closed mid-frame or mid-header.
	ErrUnexpectedEOF = errors.New("unexpected eof")

	// ErrIncompatible marks a version mismatch between peers.
	ErrIncompatible = errors.New("incompatible version")

	// ErrPermissionDenied marks a reconnect with an unknown id or wrong OTP.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnsupported marks an optional feature not implemented by the
	// running backend (filesystem watch, search, PTY resize on a
	// non-PTY process).
	ErrUnsupported = errors.New("unsupported")

	// ErrBrokenPipe marks a write to a closed process stdin channel.
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrNotFound marks a missing process id or filesystem path.
	ErrNotFound = errors.New("not found")

	// ErrConnectionClosed marks a transport whose peer closed the byte
	// stream.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrWouldBlock is returned by the try_* non-blocking transport
	// operations when the underlying transport is not yet ready.
	ErrWouldBlock = errors.New("would block")

	// ErrAborted marks an event loop that gave up (reconnect strategy
	// exhausted, shutdown requested).
	ErrAborted = errors.New("aborted")

	// ErrDisconnected marks the terminal client connection state.
	ErrDisconnected = errors.New("disconnected")
)
