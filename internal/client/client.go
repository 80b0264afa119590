// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/distantlabs/distant-agent/internal/apierr"
	"github.com/distantlabs/distant-agent/internal/netconn"
	"github.com/distantlabs/distant-agent/internal/protocol"
)

// writeBlockPause is the sleep taken when both the read and write sides
// of an iteration are blocked (spec §4.5 step 8).
const writeBlockPause = 1 * time.Millisecond

// Dialer opens a fresh byte connection for a reconnect attempt (e.g.
// net.Dial wrapped with the target address).
type Dialer func(ctx context.Context) (net.Conn, error)

// Config bundles the event loop's tunables (spec §4.5, §6).
type Config struct {
	ReconnectStrategy Strategy
	SilenceDuration   time.Duration
	ShutdownOnDrop    bool
	Dialer            Dialer
	TLSConfig         *tls.Config
	Logger            *slog.Logger
}

// Client runs the event loop over one netconn.Connection, multiplexing
// Send callers over request-id-keyed mailboxes (spec §4.5).
type Client struct {
	cfg  Config
	conn *netconn.Connection

	mu        sync.Mutex
	mailboxes map[string]chan *protocol.Response
	pending   []*protocol.Request

	outgoing chan *protocol.Request
	shutdown chan struct{}
	done     chan struct{}
	doneOnce sync.Once
	doneErr  error

	state *stateBroadcaster
}

// New starts the event loop in a background goroutine over an already
// established connection.
func New(conn *netconn.Connection, cfg Config) *Client {
	if cfg.ReconnectStrategy == nil {
		cfg.ReconnectStrategy = Fail{}
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		cfg:       cfg,
		conn:      conn,
		mailboxes: make(map[string]chan *protocol.Response),
		outgoing:  make(chan *protocol.Request, 64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		state:     newStateBroadcaster(),
	}
	c.state.set(StateConnected)
	go c.run()
	return c
}

// State exposes the watch channel of spec §4.5's "all state transitions
// publish to a watch channel".
func (c *Client) State() <-chan ConnectionState { return c.state.watch }

// CurrentState returns the latest published state without blocking.
func (c *Client) CurrentState() ConnectionState { return c.state.get() }

// Shutdown signals the event loop to stop and waits for it to exit.
func (c *Client) Shutdown() {
	select {
	case <-c.shutdown:
	default:
		close(c.shutdown)
	}
	<-c.done
}

// Send enqueues req and blocks until its Response arrives, ctx is
// canceled, or the event loop exits (spec §4.5's "a client call awaiting
// a response observes either the response... or the connection-level
// error").
func (c *Client) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	mailbox := make(chan *protocol.Response, 1)

	c.mu.Lock()
	c.mailboxes[req.ID] = mailbox
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.mailboxes, req.ID)
		c.mu.Unlock()
	}()

	select {
	case c.outgoing <- req:
	case <-c.done:
		return nil, c.finalErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-mailbox:
		return resp, nil
	case <-c.done:
		return nil, c.finalErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) finalErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doneErr != nil {
		return c.doneErr
	}
	return apierr.ErrDisconnected
}

func (c *Client) finish(err error) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.doneErr = err
		c.mu.Unlock()
		close(c.done)
	})
}

// run is the single cooperative task of spec §4.5.
func (c *Client) run() {
	needsReconnect := false
	lastReadFrameTime := time.Now()

	for {
		if needsReconnect {
			c.state.set(StateReconnecting)
			err := c.cfg.ReconnectStrategy.Reconnect(context.Background(), c.reconnectOnce)
			if err != nil {
				c.state.set(StateDisconnected)
				c.finish(fmt.Errorf("%w: %v", apierr.ErrDisconnected, err))
				return
			}
			needsReconnect = false
			lastReadFrameTime = time.Now()
			c.state.set(StateConnected)
		}

		select {
		case <-c.shutdown:
			c.state.set(StateDisconnected)
			c.finish(nil)
			return
		default:
		}

		silenceRemaining := c.cfg.SilenceDuration - time.Since(lastReadFrameTime)
		if silenceRemaining <= 0 {
			needsReconnect = true
			continue
		}

		readBlocked := false
		writeBlocked := false

		data, heartbeat, err := c.conn.Transport.TryReadFrame()
		switch {
		case err == nil:
			lastReadFrameTime = time.Now()
			if !heartbeat {
				c.deliver(data)
			}
		case errors.Is(err, apierr.ErrWouldBlock):
			readBlocked = true
		default:
			c.cfg.Logger.Info("read failed, flagging reconnect", "error", err)
			needsReconnect = true
		}

		if c.writeOnce(&writeBlocked) {
			needsReconnect = true
		}

		if readBlocked && writeBlocked {
			time.Sleep(writeBlockPause)
		}
	}
}

// writeOnce drains at most one queued outgoing request per iteration
// (spec §4.5 step 7), retaining it in c.pending across iterations if the
// write would block so no request is silently dropped.
func (c *Client) writeOnce(writeBlocked *bool) (needsReconnect bool) {
	c.mu.Lock()
	if len(c.pending) == 0 {
		select {
		case req := <-c.outgoing:
			c.pending = append(c.pending, req)
		default:
		}
	}
	var req *protocol.Request
	if len(c.pending) > 0 {
		req = c.pending[0]
	}
	c.mu.Unlock()

	if req == nil {
		if err := c.conn.Transport.TryFlush(); err != nil {
			c.cfg.Logger.Info("flush failed, flagging reconnect", "error", err)
			return true
		}
		return false
	}

	data, err := protocol.EncodeRequest(req)
	if err != nil {
		c.cfg.Logger.Error("dropping unencodable request", "req_id", req.ID, "error", err)
		c.popPending()
		return false
	}

	if err := c.conn.Transport.TryWriteFrame(data); err != nil {
		if errors.Is(err, apierr.ErrWouldBlock) {
			*writeBlocked = true
			return false
		}
		c.cfg.Logger.Info("write failed, flagging reconnect", "error", err)
		return true
	}

	c.popPending()
	return false
}

func (c *Client) popPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 {
		c.pending = c.pending[1:]
	}
}

func (c *Client) deliver(data []byte) {
	resp, err := protocol.DecodeResponse(data)
	if err != nil {
		c.cfg.Logger.Warn("dropping unparseable response frame", "error", err)
		return
	}
	if resp.OriginID == nil {
		return
	}

	c.mu.Lock()
	mailbox, ok := c.mailboxes[*resp.OriginID]
	c.mu.Unlock()
	if !ok {
		c.cfg.Logger.Debug("no mailbox for response, dropping", "origin_id", *resp.OriginID)
		return
	}

	select {
	case mailbox <- resp:
	default:
		c.cfg.Logger.Warn("mailbox full, dropping response", "origin_id", *resp.OriginID)
	}
}

func (c *Client) reconnectOnce(ctx context.Context) error {
	if c.cfg.Dialer == nil {
		return fmt.Errorf("%w: no dialer configured for reconnect", apierr.ErrUnsupported)
	}
	newConn, err := c.cfg.Dialer(ctx)
	if err != nil {
		return fmt.Errorf("dialing: %w", err)
	}
	if err := netconn.ClientReconnect(c.conn, newConn, c.cfg.TLSConfig); err != nil {
		newConn.Close()
		return err
	}
	return nil
}
