// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package dispatch implements the server-side request dispatcher (C6):
// per-connection request/response/cleanup task triad, fanning each
// batched request out into independent tasks whose results are
// reassembled in input order. The three-task-plus-cleanup shape mirrors
// the teacher's connection handler (internal/server/handler.go, which
// pairs a read loop and a write loop per accepted connection and tears
// both down together), generalized from a single backup stream per
// connection to an arbitrary batch of typed operations per request.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/distantlabs/distant-agent/internal/apierr"
	"github.com/distantlabs/distant-agent/internal/frame"
	"github.com/distantlabs/distant-agent/internal/process"
	"github.com/distantlabs/distant-agent/internal/protocol"
)

// DefaultRequestsPerSecond bounds how many request frames per second a
// single connection may dispatch, guarding the process/fsops handlers
// from a misbehaving or compromised client flooding the batch fan-out
// with oversized request rates. Generalized from the teacher's
// bytes-per-second ThrottledWriter (internal/agent/throttle.go) to a
// requests-per-second gate ahead of dispatchBatch.
const DefaultRequestsPerSecond = 200

// Handler computes a ResponseData for exactly one RequestData element. A
// returned error is converted to a ResponseData::Error in-place, so one
// failing element never aborts the rest of the batch (spec §4.6).
type Handler func(ctx context.Context, connID string, req protocol.RequestData) (protocol.ResponseData, error)

// HandlerFactory binds a Handler to the responses channel Run owns for
// one connection, so a handler that spawns a long-running process (C7)
// can hand its Replies channel the same sink the response loop drains —
// see Server.NewHandler.
type HandlerFactory func(responses chan<- *protocol.Response) Handler

// Connection is the per-connection handle the dispatcher drives: the
// underlying frame transport, plus the connection id used to scope
// process-supervisor cleanup.
type Connection struct {
	ID        string
	Transport *frame.Transport
}

// Run spawns the request loop, the response loop, and blocks until both
// finish, then runs the cleanup task (spec §4.6). It returns once the
// connection is fully torn down. requestsPerSecond <= 0 selects
// DefaultRequestsPerSecond for the per-connection rate limit.
func Run(ctx context.Context, conn Connection, newHandler HandlerFactory, procs *process.State, requestsPerSecond int, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("conn_id", conn.ID)

	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)

	// responses is never closed. A spawned process (C7) can outlive this
	// connection's request/response loops (spec §4.7.5) and its pumps
	// hold this exact channel as their Replies sink; closing it out from
	// under them would panic the first time a pump or emitDone tried to
	// send, since a ready send on a closed channel is chosen over a
	// select's default case. connDone is the close-safe substitute: it
	// signals the response loop to stop, and process.State.CleanupConnection
	// (called below) detaches every process this connection owned so
	// their pumps stop referencing responses without anyone closing it.
	responses := make(chan *protocol.Response, 64)
	handler := newHandler(responses)
	connDone := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		requestLoop(ctx, conn, handler, limiter, responses, logger)
		close(connDone)
	}()

	go func() {
		defer wg.Done()
		responseLoop(conn, responses, connDone, logger)
	}()

	wg.Wait()

	if procs != nil {
		procs.CleanupConnection(conn.ID)
	}
	logger.Info("connection cleaned up")
}

// requestLoop reads framed Requests and dispatches each until the
// connection closes or a frame fails to parse.
func requestLoop(ctx context.Context, conn Connection, handler Handler, limiter *rate.Limiter, responses chan<- *protocol.Response, logger *slog.Logger) {
	for {
		data, heartbeat, err := conn.Transport.ReadFrame()
		if err != nil {
			if !errors.Is(err, apierr.ErrUnexpectedEOF) {
				logger.Info("request loop terminating", "reason", err)
			}
			return
		}
		if heartbeat {
			continue
		}

		req, err := protocol.DecodeRequest(data)
		if err != nil {
			logger.Warn("request loop terminating on unparseable request frame", "error", err)
			return
		}

		if err := limiter.Wait(ctx); err != nil {
			logger.Info("request loop terminating", "reason", err)
			return
		}

		dispatchBatch(ctx, conn.ID, req, handler, responses, logger)
	}
}

// dispatchBatch spawns one goroutine per payload element, preserving
// input order in the assembled Response (spec §4.6).
func dispatchBatch(ctx context.Context, connID string, req *protocol.Request, handler Handler, responses chan<- *protocol.Response, logger *slog.Logger) {
	results := make([]protocol.ResponseData, len(req.Payload))

	var wg sync.WaitGroup
	wg.Add(len(req.Payload))
	for i, item := range req.Payload {
		go func(i int, item protocol.RequestData) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = protocol.Error{Kind: "panic", Description: fmt.Sprintf("%v", r)}
					logger.Error("request handler panicked", "panic", r)
				}
			}()
			resp, err := handler(ctx, connID, item)
			if err != nil {
				results[i] = protocol.Error{Kind: errorKind(err), Description: err.Error()}
				return
			}
			results[i] = resp
		}(i, item)
	}
	wg.Wait()

	id := req.ID
	out := &protocol.Response{Tenant: req.Tenant, OriginID: &id, Payload: results}
	// Every request batch owes the client exactly one reply of equal
	// length (testable property 1); block for room in responses rather
	// than dropping it, bounded only by ctx so a genuine shutdown still
	// unblocks this goroutine.
	select {
	case responses <- out:
	case <-ctx.Done():
		logger.Info("dropping batch result: context done", "req_id", req.ID)
	}
}

// responseLoop drains the response channel and writes each Response to
// the transport until done fires (the request loop has exited; see Run
// for why responses itself is never closed).
func responseLoop(conn Connection, responses <-chan *protocol.Response, done <-chan struct{}, logger *slog.Logger) {
	for {
		select {
		case resp := <-responses:
			data, err := protocol.EncodeResponse(resp)
			if err != nil {
				logger.Error("encoding response", "error", err)
				continue
			}
			if err := conn.Transport.WriteFrame(data); err != nil {
				logger.Info("response loop terminating", "reason", err)
				return
			}
		case <-done:
			return
		}
	}
}

// errorKind maps a handler error to one of the abstract categories of
// spec §7, falling back to "other" for anything unrecognized.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, apierr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apierr.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, apierr.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, apierr.ErrBrokenPipe):
		return "broken_pipe"
	case errors.Is(err, apierr.ErrInvalidData):
		return "invalid_data"
	default:
		return "other"
	}
}
