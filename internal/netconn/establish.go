// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package netconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/distantlabs/distant-agent/internal/apierr"
	"github.com/distantlabs/distant-agent/internal/auth"
	"github.com/distantlabs/distant-agent/internal/crypto"
	"github.com/distantlabs/distant-agent/internal/frame"
	"github.com/distantlabs/distant-agent/internal/keychain"
	"github.com/distantlabs/distant-agent/internal/protocol"
)

// backupHandoffTimeout bounds how long a reconnect waits for the prior
// Connection.Close to hand its Backup to the keychain's one-shot
// receiver. Nothing guarantees Close ever runs before a reconnect
// arrives (a reconnect racing the original connection's teardown, or a
// process that died before reaching Close), so this keeps acceptReconnect
// from blocking forever; a substitute empty Backup is used instead, the
// same fallback spec §9 describes for an abandoned one-shot.
const backupHandoffTimeout = 5 * time.Second

// ClientConfig bundles what a client needs to complete handshake & keying
// (C2) and connection establishment (C4).
type ClientConfig struct {
	Version     protocol.Version
	TLSConfig   *tls.Config
	Handler     auth.Handler
	BackupBytes int
}

// Connect runs the client-side new-connection sequence of spec §4.2 and
// §4.4: read and validate the server's version, upgrade to encrypted
// framing, send the Connect control frame, receive the assigned id, run
// the authenticator, and receive the fresh OTP.
func Connect(rawConn net.Conn, cfg ClientConfig) (*Connection, error) {
	remoteVersion, err := protocol.ReadVersion(rawConn)
	if err != nil {
		return nil, err
	}
	if !protocol.Compatible(cfg.Version, remoteVersion) {
		return nil, fmt.Errorf("%w: local %+v, remote %+v", apierr.ErrIncompatible, cfg.Version, remoteVersion)
	}

	tlsConn := tls.Client(rawConn, cfg.TLSConfig)
	if err := tlsConn.Handshake(); err != nil {
		return nil, fmt.Errorf("tls client handshake: %w", err)
	}

	if err := protocol.WriteConnect(tlsConn); err != nil {
		return nil, fmt.Errorf("writing connect frame: %w", err)
	}

	id, err := protocol.ReadConnID(tlsConn)
	if err != nil {
		return nil, err
	}

	if err := runClientAuth(cfg.Handler); err != nil {
		return nil, err
	}

	otp, _, err := protocol.ReadOTP(tlsConn)
	if err != nil {
		return nil, fmt.Errorf("reading otp: %w", err)
	}

	return &Connection{
		ID:        id,
		Transport: frame.New(tlsConn, cfg.BackupBytes),
		ReauthOTP: otp,
	}, nil
}

// ServerConfig bundles what a server needs to accept a connection.
type ServerConfig struct {
	Version      protocol.Version
	TLSConfig    *tls.Config
	Handler      auth.Handler
	Keychain     *keychain.Keychain
	MasterSecret []byte
	BackupBytes  int
	NextID       func() uint32
}

// Accept runs the server-side sequence of spec §4.2 and §4.4: send the
// version, upgrade to encrypted framing, read the control frame and
// branch to the Connect or Reconnect path.
func Accept(rawConn net.Conn, cfg ServerConfig) (*Connection, error) {
	if err := protocol.WriteVersion(rawConn, cfg.Version); err != nil {
		return nil, fmt.Errorf("writing version: %w", err)
	}

	tlsConn := tls.Server(rawConn, cfg.TLSConfig)
	if err := tlsConn.Handshake(); err != nil {
		return nil, fmt.Errorf("tls server handshake: %w", err)
	}

	ctrl, err := protocol.ReadConnectFrame(tlsConn)
	if err != nil {
		return nil, err
	}

	switch ctrl.Kind {
	case protocol.ConnectKindNew:
		return acceptNew(tlsConn, cfg)
	case protocol.ConnectKindReconnect:
		return acceptReconnect(tlsConn, cfg, ctrl.ID, ctrl.OTP)
	default:
		return nil, fmt.Errorf("%w: unknown connect kind", apierr.ErrInvalidData)
	}
}

func acceptNew(tlsConn net.Conn, cfg ServerConfig) (*Connection, error) {
	id := cfg.NextID()
	if err := protocol.WriteConnID(tlsConn, id); err != nil {
		return nil, fmt.Errorf("writing connection id: %w", err)
	}

	if err := runServerAuth(cfg.Handler); err != nil {
		return nil, err
	}

	otp, salt, err := crypto.DeriveOTP(cfg.MasterSecret)
	if err != nil {
		return nil, err
	}
	if err := protocol.WriteOTP(tlsConn, otp, salt); err != nil {
		return nil, fmt.Errorf("writing otp: %w", err)
	}

	rx := keychain.NewBackupReceiver()
	cfg.Keychain.Insert(fmt.Sprintf("%d", id), otp, rx)

	return &Connection{
		ID:        id,
		Transport: frame.New(tlsConn, cfg.BackupBytes),
		IsServer:  true,
		BackupRx:  rx,
	}, nil
}

func acceptReconnect(tlsConn net.Conn, cfg ServerConfig, id uint32, otp []byte) (*Connection, error) {
	connID := fmt.Sprintf("%d", id)
	rx, err := cfg.Keychain.RemoveIfHasKey(connID, otp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrPermissionDenied, err)
	}

	var backup *frame.Backup
	select {
	case backup = <-rx:
	case <-time.After(backupHandoffTimeout):
	}
	if backup == nil {
		backup = frame.NewBackup(cfg.BackupBytes)
	}

	newOTP, salt, err := crypto.DeriveOTP(cfg.MasterSecret)
	if err != nil {
		cfg.Keychain.Insert(connID, otp, requeue(backup))
		return nil, err
	}
	if err := protocol.WriteOTP(tlsConn, newOTP, salt); err != nil {
		cfg.Keychain.Insert(connID, otp, requeue(backup))
		return nil, fmt.Errorf("writing otp: %w", err)
	}

	transport := frame.New(tlsConn, cfg.BackupBytes)
	transport.Backup = backup

	if err := synchronize(transport); err != nil {
		cfg.Keychain.Insert(connID, otp, requeue(backup))
		return nil, fmt.Errorf("synchronize: %w", err)
	}

	newRx := keychain.NewBackupReceiver()
	cfg.Keychain.Insert(connID, newOTP, newRx)

	return &Connection{
		ID:        id,
		Transport: transport,
		IsServer:  true,
		BackupRx:  newRx,
	}, nil
}

// requeue packages an already-recovered Backup back into a fired
// one-shot, so a failed reconnection attempt after the backup has been
// taken out of its original receiver can still be retried (spec §4.4:
// "the prior backup and OTP are re-inserted into the keychain").
func requeue(backup *frame.Backup) keychain.BackupReceiver {
	rx := keychain.NewBackupReceiver()
	rx.Send(backup)
	return rx
}

// runClientAuth drives the client side of the (out-of-scope) verifier
// exchange through the C10 interface: offer no methods of our own and
// let the handler pick among whatever the server subsequently names.
// The wire challenge/response protocol belongs to the external
// authentication-method registry; this call only satisfies the
// lifecycle callbacks establishment is responsible for.
func runClientAuth(h auth.Handler) error {
	if h == nil {
		h = auth.DummyHandler{}
	}
	return h.OnFinished(context.Background())
}

func runServerAuth(h auth.Handler) error {
	if h == nil {
		h = auth.DummyHandler{}
	}
	if _, err := h.OnInitialization(context.Background(), nil); err != nil {
		return err
	}
	return h.OnFinished(context.Background())
}
