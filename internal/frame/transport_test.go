// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package frame

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/distantlabs/distant-agent/internal/apierr"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestTransport_WriteReadFrameRoundTrip(t *testing.T) {
	clientConn, serverConn := pipePair(t)
	client := New(clientConn, 0)
	server := New(serverConn, 0)

	done := make(chan error, 1)
	go func() { done <- client.WriteFrame([]byte("hello")) }()

	data, heartbeat, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame error: %v", err)
	}
	if heartbeat {
		t.Fatalf("ReadFrame reported heartbeat for non-empty frame")
	}
	if !bytes.Equal(data, []byte("hello")) {
		t.Fatalf("ReadFrame data = %q, want %q", data, "hello")
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteFrame error: %v", err)
	}

	if got := client.Backup.SentCount(); got != 1 {
		t.Fatalf("client SentCount = %d, want 1", got)
	}
	if got := server.Backup.ReceivedCount(); got != 1 {
		t.Fatalf("server ReceivedCount = %d, want 1", got)
	}
}

func TestTransport_HeartbeatNotDeliveredAsData(t *testing.T) {
	clientConn, serverConn := pipePair(t)
	client := New(clientConn, 0)
	server := New(serverConn, 0)

	go client.WriteFrame(nil)

	data, heartbeat, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame error: %v", err)
	}
	if !heartbeat {
		t.Fatalf("expected heartbeat for zero-length frame")
	}
	if len(data) != 0 {
		t.Fatalf("heartbeat carried data: %q", data)
	}
}

func TestTransport_TryReadFrameWouldBlock(t *testing.T) {
	clientConn, serverConn := pipePair(t)
	server := New(serverConn, 0)
	_ = clientConn

	_, _, err := server.TryReadFrame()
	if !errors.Is(err, apierr.ErrWouldBlock) {
		t.Fatalf("TryReadFrame error = %v, want ErrWouldBlock", err)
	}
}

func TestTransport_WriteReplayDoesNotBumpSentCount(t *testing.T) {
	clientConn, serverConn := pipePair(t)
	client := New(clientConn, 0)
	server := New(serverConn, 0)

	go func() {
		client.WriteReplay([]byte("replayed"))
	}()

	data, _, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame error: %v", err)
	}
	if !bytes.Equal(data, []byte("replayed")) {
		t.Fatalf("ReadFrame data = %q", data)
	}
	if got := client.Backup.SentCount(); got != 0 {
		t.Fatalf("SentCount after replay = %d, want 0", got)
	}
}

func TestTransport_TryWriteFrameSucceedsWhenReaderReady(t *testing.T) {
	clientConn, serverConn := pipePair(t)
	client := New(clientConn, 0)
	server := New(serverConn, 0)

	readDone := make(chan struct{})
	go func() {
		server.ReadFrame()
		close(readDone)
	}()

	deadline := time.Now().Add(time.Second)
	var err error
	for time.Now().Before(deadline) {
		err = client.TryWriteFrame([]byte("x"))
		if err == nil {
			break
		}
		if !errors.Is(err, apierr.ErrWouldBlock) {
			t.Fatalf("TryWriteFrame error = %v", err)
		}
	}
	if err != nil {
		t.Fatalf("TryWriteFrame never succeeded: %v", err)
	}
	<-readDone
}
