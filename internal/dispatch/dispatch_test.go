// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package dispatch

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/distantlabs/distant-agent/internal/frame"
	"github.com/distantlabs/distant-agent/internal/process"
	"github.com/distantlabs/distant-agent/internal/protocol"
)

func pipeTransports(t *testing.T) (client, server *frame.Transport) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return frame.New(a, frame.DefaultMaxBytes), frame.New(b, frame.DefaultMaxBytes)
}

func TestRun_DispatchesBatchPreservingOrderAndOriginID(t *testing.T) {
	client, server := pipeTransports(t)

	srv := &Server{Version: protocol.Version{Major: 1}, Processes: process.NewState()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Run(ctx, Connection{ID: "conn-1", Transport: server}, srv.NewHandler, srv.Processes, 0, nil)

	req := &protocol.Request{
		Tenant: "t1",
		ID:     "req-1",
		Payload: []protocol.RequestData{
			protocol.VersionRequest{},
			protocol.Exists{Path: "/nonexistent-xyz"},
		},
	}
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if err := client.WriteFrame(data); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	respData, _, err := readFrameWithTimeout(t, client)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	resp, err := protocol.DecodeResponse(respData)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if resp.OriginID == nil || *resp.OriginID != "req-1" {
		t.Fatalf("OriginID = %v, want req-1", resp.OriginID)
	}
	if len(resp.Payload) != 2 {
		t.Fatalf("payload len = %d, want 2", len(resp.Payload))
	}
	if _, ok := resp.Payload[0].(protocol.VersionResult); !ok {
		t.Fatalf("payload[0] = %T, want VersionResult", resp.Payload[0])
	}
	exists, ok := resp.Payload[1].(protocol.ExistsResult)
	if !ok {
		t.Fatalf("payload[1] = %T, want ExistsResult", resp.Payload[1])
	}
	if exists.Value {
		t.Fatal("exists.Value = true for a path that should not exist")
	}
}

func TestRun_SpawnedProcessEmitsUnsolicitedFrames(t *testing.T) {
	client, server := pipeTransports(t)

	srv := &Server{Version: protocol.Version{Major: 1}, Processes: process.NewState()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Run(ctx, Connection{ID: "conn-1", Transport: server}, srv.NewHandler, srv.Processes, 0, nil)

	req := &protocol.Request{
		ID: "spawn-1",
		Payload: []protocol.RequestData{
			protocol.ProcSpawn{Cmd: "sh", Args: []string{"-c", "echo hi"}},
		},
	}
	data, _ := protocol.EncodeRequest(req)
	if err := client.WriteFrame(data); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	sawSpawned := false
	sawDone := false
	deadline := time.Now().Add(3 * time.Second)
	for !sawDone && time.Now().Before(deadline) {
		raw, _, err := readFrameWithTimeout(t, client)
		if err != nil {
			t.Fatalf("reading frame: %v", err)
		}
		resp, err := protocol.DecodeResponse(raw)
		if err != nil {
			t.Fatalf("DecodeResponse: %v", err)
		}
		for _, item := range resp.Payload {
			switch item.(type) {
			case protocol.ProcSpawned:
				sawSpawned = true
			case protocol.ProcDone:
				sawDone = true
			}
		}
	}
	if !sawSpawned {
		t.Fatal("never observed ProcSpawned")
	}
	if !sawDone {
		t.Fatal("never observed ProcDone")
	}
}

func readFrameWithTimeout(t *testing.T, tr *frame.Transport) ([]byte, bool, error) {
	t.Helper()
	tr.Conn().SetReadDeadline(time.Now().Add(3 * time.Second))
	defer tr.Conn().SetReadDeadline(time.Time{})
	return tr.ReadFrame()
}
