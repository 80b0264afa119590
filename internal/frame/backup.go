// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package frame implements the length-prefixed, resumable frame transport
// (a FramedTransport wrapping a byte stream plus its Backup) that every
// Connection is built on. The bounded FIFO at its core is adapted from the
// teacher's byte-oriented RingBuffer (internal/agent/ringbuffer.go),
// generalized from a sliding window of raw bytes to a FIFO of whole frames
// so that a reconnect can replay exactly the frames the peer is missing.
package frame

import "sync"

// Backup holds, for one FramedTransport, the bounded FIFO of recently sent
// frames plus the sent/received counters used by the synchronize protocol
// after a reconnect. It is not shared between tasks: it lives inside the
// FramedTransport owned by exactly one event loop.
type Backup struct {
	mu sync.Mutex

	frames   [][]byte
	maxBytes int
	curBytes int

	frozen      bool
	sentCnt     uint64
	receivedCnt uint64
}

// DefaultMaxBytes bounds the Backup's FIFO when the caller does not
// specify a capacity explicitly.
const DefaultMaxBytes = 4 << 20 // 4 MiB

// NewBackup creates an empty Backup with the given byte capacity for its
// FIFO of sent frames. A capacity of zero uses DefaultMaxBytes.
func NewBackup(maxBytes int) *Backup {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Backup{maxBytes: maxBytes}
}

// RecordSent pushes a copy of a successfully written frame onto the FIFO
// (unless the Backup is frozen, in which case the frame is not retained)
// and advances sent_cnt, unless frozen.
func (b *Backup) RecordSent(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return
	}
	b.sentCnt++
	b.push(data)
}

// RecordReceived advances received_cnt, unless the Backup is frozen.
func (b *Backup) RecordReceived() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return
	}
	b.receivedCnt++
}

// push appends a copy of data to the FIFO, evicting the oldest frames
// until the total is back under maxBytes. Must be called with mu held.
func (b *Backup) push(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	b.frames = append(b.frames, cp)
	b.curBytes += len(cp)
	for b.curBytes > b.maxBytes && len(b.frames) > 0 {
		b.curBytes -= len(b.frames[0])
		b.frames = b.frames[1:]
	}
}

// Freeze suspends sent_cnt/received_cnt bookkeeping so that frames
// replayed during a synchronize phase are not double-counted. It
// straddles the reconnect section: Freeze before reconnecting the
// underlying byte transport, Unfreeze once synchronize has completed.
func (b *Backup) Freeze() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen = true
}

// Unfreeze resumes normal bookkeeping.
func (b *Backup) Unfreeze() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen = false
}

// SentCount returns the current sent_cnt.
func (b *Backup) SentCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sentCnt
}

// ReceivedCount returns the current received_cnt.
func (b *Backup) ReceivedCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.receivedCnt
}

// LastN returns, in original (oldest-first) order, copies of the last n
// frames pushed onto the FIFO. If fewer than n frames are held, all of
// them are returned. Used by the synchronize procedure to compute
// `to_replay = sent_cnt - peer_received_cnt` and replay exactly that many.
func (b *Backup) LastN(n int) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 {
		return nil
	}
	start := len(b.frames) - n
	if start < 0 {
		start = 0
	}
	out := make([][]byte, len(b.frames)-start)
	for i, f := range b.frames[start:] {
		cp := make([]byte, len(f))
		copy(cp, f)
		out[i] = cp
	}
	return out
}

// Reset replaces the Backup's counters and FIFO contents, used when a
// server-side Connection recovers a prior Backup on reconnect (or
// substitutes a fresh empty one when the one-shot sender was dropped
// without sending).
func (b *Backup) Reset(sentCnt, receivedCnt uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sentCnt = sentCnt
	b.receivedCnt = receivedCnt
	b.frames = nil
	b.curBytes = 0
	b.frozen = false
}
