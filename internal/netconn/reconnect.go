// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package netconn

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/distantlabs/distant-agent/internal/protocol"
)

// ClientReconnect runs the client-initiated reconnect sequence of spec
// §4.4: freeze the backup, swap in the freshly dialed byte transport, redo
// the codec handshake (without revalidating the version), send Reconnect,
// receive the new OTP, unfreeze, and synchronize. On success conn's id
// and OTP are swapped in atomically; conn.Transport now wraps newConn.
func ClientReconnect(conn *Connection, newConn net.Conn, tlsConfig *tls.Config) error {
	conn.Transport.Backup.Freeze()

	if _, err := protocol.ReadVersion(newConn); err != nil {
		conn.Transport.Backup.Unfreeze()
		return err
	}

	tlsConn := tls.Client(newConn, tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		conn.Transport.Backup.Unfreeze()
		return fmt.Errorf("tls client handshake: %w", err)
	}

	if err := protocol.WriteReconnect(tlsConn, conn.ID, conn.ReauthOTP); err != nil {
		conn.Transport.Backup.Unfreeze()
		return fmt.Errorf("writing reconnect frame: %w", err)
	}

	newOTP, _, err := protocol.ReadOTP(tlsConn)
	if err != nil {
		conn.Transport.Backup.Unfreeze()
		return fmt.Errorf("reading otp: %w", err)
	}

	conn.Transport.Rebind(tlsConn, conn.Transport.Backup)
	conn.Transport.Backup.Unfreeze()

	if err := synchronize(conn.Transport); err != nil {
		return fmt.Errorf("synchronize: %w", err)
	}

	conn.SetOTP(conn.ID, newOTP)
	return nil
}
