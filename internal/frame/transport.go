// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/distantlabs/distant-agent/internal/apierr"
)

// HeaderSize is the length, in bytes, of the frame length prefix.
const HeaderSize = 4

// pollInterval is the deadline window used by the Try* non-blocking
// variants: short enough that a ready-driven client loop (the teacher's
// control-channel select loop, generalized here) can poll many
// connections without a dedicated goroutine per connection.
const pollInterval = 5 * time.Millisecond

// Transport is a FramedTransport: a length-prefixed frame reader/writer
// layered over a net.Conn, owning the Backup of recently sent frames and
// the sent/received counters used by the synchronize protocol. It is not
// safe for concurrent use by more than one reader and one writer.
type Transport struct {
	conn   net.Conn
	Backup *Backup

	readBuf [HeaderSize]byte
}

// New wraps conn in a Transport with a fresh Backup of the given FIFO
// capacity (0 selects DefaultMaxBytes).
func New(conn net.Conn, backupBytes int) *Transport {
	return &Transport{conn: conn, Backup: NewBackup(backupBytes)}
}

// Rebind swaps in a reconnected byte transport and a recovered Backup,
// used by client and server Reconnect (spec §4.4) once the prior session's
// Backup has been located.
func (t *Transport) Rebind(conn net.Conn, backup *Backup) {
	t.conn = conn
	t.Backup = backup
}

// Conn exposes the underlying connection, e.g. for TLS handshakes.
func (t *Transport) Conn() net.Conn { return t.conn }

// WriteFrame serializes length+bytes and writes it to the underlying
// transport. On success it pushes a copy onto the Backup (unless frozen)
// and advances sent_cnt. A nil or empty data slice writes a heartbeat.
func (t *Transport) WriteFrame(data []byte) error {
	if err := writeFrameRaw(t.conn, data); err != nil {
		return err
	}
	t.Backup.RecordSent(data)
	return nil
}

// WriteReplay writes a frame during the synchronize procedure without
// advancing sent_cnt: replayed frames are redelivery, not new emission.
func (t *Transport) WriteReplay(data []byte) error {
	return writeFrameRaw(t.conn, data)
}

// ReadFrame blocks for a full frame. heartbeat is true for a zero-length
// frame, which updates liveness only and carries no data to the caller.
func (t *Transport) ReadFrame() (data []byte, heartbeat bool, err error) {
	data, heartbeat, err = readFrameRaw(t.conn, t.readBuf[:])
	if err != nil {
		return nil, false, err
	}
	t.Backup.RecordReceived()
	return data, heartbeat, nil
}

// TryReadFrame is the non-blocking variant used by the ready-driven client
// loop (spec §5): it returns apierr.ErrWouldBlock when no full frame is
// available within a short poll window, rather than blocking the caller.
func (t *Transport) TryReadFrame() (data []byte, heartbeat bool, err error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
		return nil, false, fmt.Errorf("setting read deadline: %w", err)
	}
	defer t.conn.SetReadDeadline(time.Time{})

	data, heartbeat, err = readFrameRaw(t.conn, t.readBuf[:])
	if err != nil {
		if isTimeout(err) {
			return nil, false, apierr.ErrWouldBlock
		}
		return nil, false, err
	}
	t.Backup.RecordReceived()
	return data, heartbeat, nil
}

// TryWriteFrame is the non-blocking variant of WriteFrame.
func (t *Transport) TryWriteFrame(data []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(pollInterval)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	defer t.conn.SetWriteDeadline(time.Time{})

	if err := writeFrameRaw(t.conn, data); err != nil {
		if isTimeout(err) {
			return apierr.ErrWouldBlock
		}
		return err
	}
	t.Backup.RecordSent(data)
	return nil
}

// TryFlush flushes any partially written frame. Plain net.Conn writes are
// unbuffered, so there is nothing to flush; TLS-wrapped conns (internal/
// crypto) embed their own buffering and this is a no-op unless overridden.
func (t *Transport) TryFlush() error { return nil }

func writeFrameRaw(w io.Writer, data []byte) error {
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, err := w.Write(data)
	return err
}

func readFrameRaw(r io.Reader, hdr []byte) (data []byte, heartbeat bool, err error) {
	if _, err := io.ReadFull(r, hdr); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, false, fmt.Errorf("%w: reading frame header", apierr.ErrUnexpectedEOF)
		}
		return nil, false, err
	}
	n := binary.BigEndian.Uint32(hdr)
	if n == 0 {
		return nil, true, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, false, fmt.Errorf("%w: reading frame body", apierr.ErrUnexpectedEOF)
		}
		return nil, false, err
	}
	return buf, false, nil
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if te, ok := err.(timeouter); ok {
		return te.Timeout()
	}
	return false
}
