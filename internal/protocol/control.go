// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package protocol defines the wire envelope exchanged once a Connection
// (internal/netconn) is established: the plaintext version preamble, the
// Connect/Reconnect control frames, and the batched Request/Response
// payload carried inside encrypted frames (internal/frame).
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/distantlabs/distant-agent/internal/apierr"
)

// VersionSize is the exact byte length of the handshake version preamble:
// three big-endian uint64 fields (major, minor, patch).
const VersionSize = 24

// Version identifies the semver of the running binary.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
}

// WriteVersion writes the 24-byte version preamble (spec §4.2, §6).
func WriteVersion(w io.Writer, v Version) error {
	var buf [VersionSize]byte
	binary.BigEndian.PutUint64(buf[0:8], v.Major)
	binary.BigEndian.PutUint64(buf[8:16], v.Minor)
	binary.BigEndian.PutUint64(buf[16:24], v.Patch)
	_, err := w.Write(buf[:])
	return err
}

// ReadVersion reads the 24-byte version preamble. Fewer than 24 bytes
// arriving is reported as apierr.ErrTruncatedVersion, matching spec §4.2's
// "fail with InvalidData if fewer arrive".
func ReadVersion(r io.Reader) (Version, error) {
	var buf [VersionSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return Version{}, fmt.Errorf("%w: %v", apierr.ErrTruncatedVersion, err)
		}
		return Version{}, fmt.Errorf("reading version preamble: %w", err)
	}
	return Version{
		Major: binary.BigEndian.Uint64(buf[0:8]),
		Minor: binary.BigEndian.Uint64(buf[8:16]),
		Patch: binary.BigEndian.Uint64(buf[16:24]),
	}, nil
}

// Compatible implements the project-defined compatibility predicate of
// spec §4.2: equal major, remote minor at least the locally required
// minor.
func Compatible(local, remote Version) bool {
	return local.Major == remote.Major && remote.Minor >= local.Minor
}

// ConnectKind tags the control frame a client sends right after the
// handshake: a brand-new Connect, or a Reconnect carrying the prior
// connection id and OTP.
type ConnectKind byte

const (
	ConnectKindNew ConnectKind = iota
	ConnectKindReconnect
)

// ConnectFrame is the control enum exchanged after the codec handshake
// (spec §4.4, §6).
type ConnectFrame struct {
	Kind ConnectKind

	// Populated only when Kind == ConnectKindReconnect.
	ID  uint32
	OTP []byte
}

// WriteConnect writes the Connect control frame (new client).
func WriteConnect(w io.Writer) error {
	_, err := w.Write([]byte{byte(ConnectKindNew)})
	return err
}

// WriteReconnect writes the Reconnect control frame carrying the prior
// connection id and OTP.
func WriteReconnect(w io.Writer, id uint32, otp []byte) error {
	if len(otp) > 0xFFFF {
		return fmt.Errorf("otp too large: %d bytes", len(otp))
	}
	buf := make([]byte, 1+4+2+len(otp))
	buf[0] = byte(ConnectKindReconnect)
	binary.BigEndian.PutUint32(buf[1:5], id)
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(otp)))
	copy(buf[7:], otp)
	_, err := w.Write(buf)
	return err
}

// ReadConnectFrame reads either variant of the control enum.
func ReadConnectFrame(r io.Reader) (*ConnectFrame, error) {
	var kindBuf [1]byte
	if _, err := io.ReadFull(r, kindBuf[:]); err != nil {
		return nil, fmt.Errorf("reading connect kind: %w", err)
	}
	switch ConnectKind(kindBuf[0]) {
	case ConnectKindNew:
		return &ConnectFrame{Kind: ConnectKindNew}, nil
	case ConnectKindReconnect:
		var hdr [6]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("reading reconnect header: %w", err)
		}
		id := binary.BigEndian.Uint32(hdr[0:4])
		otpLen := binary.BigEndian.Uint16(hdr[4:6])
		otp := make([]byte, otpLen)
		if _, err := io.ReadFull(r, otp); err != nil {
			return nil, fmt.Errorf("reading reconnect otp: %w", err)
		}
		return &ConnectFrame{Kind: ConnectKindReconnect, ID: id, OTP: otp}, nil
	default:
		return nil, fmt.Errorf("%w: unknown connect kind %d", apierr.ErrInvalidData, kindBuf[0])
	}
}

// WriteConnID writes the connection-id assignment frame (server → client,
// new-client path only).
func WriteConnID(w io.Writer, id uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], id)
	_, err := w.Write(buf[:])
	return err
}

// ReadConnID reads the connection-id assignment frame.
func ReadConnID(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("reading connection id: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteOTP writes the freshly derived OTP (and the salt it was expanded
// from) over the already-encrypted transport, the key-exchange step of
// spec §4.2: the server derives the OTP and conveys it to the client
// under the cover of the TLS upgrade that precedes this call.
func WriteOTP(w io.Writer, otp, salt []byte) error {
	if len(otp) > 0xFFFF || len(salt) > 0xFFFF {
		return fmt.Errorf("otp or salt too large")
	}
	buf := make([]byte, 2+len(otp)+2+len(salt))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(otp)))
	copy(buf[2:2+len(otp)], otp)
	off := 2 + len(otp)
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(salt)))
	copy(buf[off+2:], salt)
	_, err := w.Write(buf)
	return err
}

// ReadOTP reads the OTP and salt written by WriteOTP.
func ReadOTP(r io.Reader) (otp, salt []byte, err error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, nil, fmt.Errorf("reading otp length: %w", err)
	}
	otp = make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(r, otp); err != nil {
		return nil, nil, fmt.Errorf("reading otp: %w", err)
	}
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, nil, fmt.Errorf("reading salt length: %w", err)
	}
	salt = make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, nil, fmt.Errorf("reading salt: %w", err)
	}
	return otp, salt, nil
}

// WriteSyncCount writes one side's received_cnt during synchronize
// (spec §4.4.1).
func WriteSyncCount(w io.Writer, receivedCnt uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], receivedCnt)
	_, err := w.Write(buf[:])
	return err
}

// ReadSyncCount reads the peer's received_cnt during synchronize.
func ReadSyncCount(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("reading sync count: %w", err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
