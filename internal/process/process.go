// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package process implements the process supervisor (C7): spawning a
// child with stdin/stdout/stderr (or PTY) plumbing, the four cooperating
// pumps bound to it, and the per-connection State that tracks every live
// Process so a dropped connection can clean up after it. The pump
// structure (fixed-size read buffer, pacing sleep between reads, a
// bounded stdin channel, a select-cancellable wait) is the teacher's
// stdout/stderr-streaming idiom from internal/agent/streamer.go and
// internal/agent/throttle.go, generalized from one backup stream to one
// stream per spawned process.
package process

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/creack/pty"

	"github.com/distantlabs/distant-agent/internal/apierr"
	"github.com/distantlabs/distant-agent/internal/protocol"
)

// MaxPipeChunkSize bounds a single stdout/stderr pump read (spec §4.7.1).
const MaxPipeChunkSize = 32 * 1024

// ReadPause is the pacing sleep a pump takes between reads, batching
// small outputs instead of emitting one frame per syscall-sized chunk.
const ReadPause = 15 * time.Millisecond

// StdinQueueDepth bounds the stdin pump's channel. ProcStdin callers do
// not block when a slow child lets the queue fill: Stdin fails with
// apierr.ErrBrokenPipe instead.
const StdinQueueDepth = 64

// Process is one supervisor entry (spec §3): the live state the
// dispatcher (C6) drives via Kill/Stdin/Resize, plus the channel the four
// pumps publish Responses to.
type Process struct {
	ID   uint64
	Cmd  string
	Args []string

	connID string

	stdinMu sync.Mutex
	stdinTx chan []byte // nil once closed

	resizeTx chan protocol.PtySize // nil when spawned without a PTY

	killOnce sync.Once
	killCh   chan struct{}

	// replies is never closed: spawned processes can outlive the
	// connection that spawned them (spec §4.7.5), and a send on a closed
	// Go channel panics even inside a select with a default case. Instead
	// detachCh/detachOnce give the pumps a cancellable, panic-free way to
	// stop writing to it once the owning connection tears down.
	replies    chan<- *protocol.Response
	detachOnce sync.Once
	detachCh   chan struct{}

	logger *slog.Logger
}

// Detach stops this process from writing any further replies to its
// connection's reply channel. Called once by State.CleanupConnection
// when the owning connection terminates (spec §4.7.5): any pump
// currently backpressured against a full reply channel unblocks
// immediately instead of waiting on a reader that will never come back,
// and every subsequent send fails fast instead of blocking at all. Safe
// to call more than once.
func (p *Process) Detach() {
	p.detachOnce.Do(func() { close(p.detachCh) })
}

// send delivers resp to the connection's reply channel, blocking to
// apply real backpressure to the child while the connection is alive
// (spec §1, §4.7.1), and returning false without blocking once Detach
// has been called. It never touches a closed channel, so it never
// panics.
func (p *Process) send(resp *protocol.Response) bool {
	select {
	case <-p.detachCh:
		return false
	default:
	}
	select {
	case p.replies <- resp:
		return true
	case <-p.detachCh:
		return false
	}
}

// SpawnOptions mirrors spec §4.7.1's inputs.
type SpawnOptions struct {
	Cmd         string
	Args        []string
	Environment map[string]string
	CurrentDir  string
	PTY         *protocol.PtySize

	ConnID  string
	Replies chan<- *protocol.Response
	Logger  *slog.Logger
}

// Spawn creates the child and its four cooperating tasks: stdout pump,
// stderr pump, stdin pump, and the wait task that reconciles child exit
// against an external kill trigger.
func Spawn(opts SpawnOptions) (*Process, error) {
	id, err := randomID()
	if err != nil {
		return nil, fmt.Errorf("generating process id: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("proc_id", id, "cmd", opts.Cmd)

	cmd := exec.Command(opts.Cmd, opts.Args...)
	if opts.CurrentDir != "" {
		cmd.Dir = opts.CurrentDir
	}
	if len(opts.Environment) > 0 {
		env := os.Environ()
		for k, v := range opts.Environment {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	p := &Process{
		ID:       id,
		Cmd:      opts.Cmd,
		Args:     opts.Args,
		connID:   opts.ConnID,
		stdinTx:  make(chan []byte, StdinQueueDepth),
		killCh:   make(chan struct{}),
		replies:  opts.Replies,
		detachCh: make(chan struct{}),
		logger:   logger,
	}

	var stdout, stderr io.ReadCloser
	var stdin io.WriteCloser

	if opts.PTY != nil {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("starting pty process: %w", err)
		}
		pty.Setsize(ptmx, &pty.Winsize{Rows: opts.PTY.Rows, Cols: opts.PTY.Cols})
		stdout = ptmx
		stderr = io.NopCloser(emptyReader{})
		stdin = ptmx
		p.resizeTx = make(chan protocol.PtySize, 1)
		go p.resizePump(ptmx)
	} else {
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		stderr, err = cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("starting process: %w", err)
		}
	}

	var pumpsDone sync.WaitGroup
	pumpsDone.Add(3)
	go p.stdoutPump(stdout, &pumpsDone)
	go p.stderrPump(stderr, &pumpsDone)
	go p.stdinPump(stdin, &pumpsDone)

	go p.waitTask(cmd, &pumpsDone)

	return p, nil
}

func (p *Process) stdoutPump(r io.Reader, done *sync.WaitGroup) {
	p.pump(r, done, func(data string) protocol.ResponseData {
		return protocol.ProcStdout{ID: p.ID, Data: data}
	})
}

func (p *Process) stderrPump(r io.Reader, done *sync.WaitGroup) {
	p.pump(r, done, func(data string) protocol.ResponseData {
		return protocol.ProcStderr{ID: p.ID, Data: data}
	})
}

func (p *Process) pump(r io.Reader, done *sync.WaitGroup, wrap func(string) protocol.ResponseData) {
	defer done.Done()
	buf := make([]byte, MaxPipeChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if !utf8.Valid(buf[:n]) {
				p.logger.Error("process output was not valid utf-8")
				return
			}
			resp := &protocol.Response{Payload: []protocol.ResponseData{wrap(string(buf[:n]))}}
			if !p.send(resp) {
				// Connection detached: best-effort per spec §4.7.5, the
				// pump exits on its first failed send rather than
				// spinning on output nobody will ever read.
				return
			}
			time.Sleep(ReadPause)
		}
		if err != nil {
			return
		}
	}
}

func (p *Process) stdinPump(w io.WriteCloser, done *sync.WaitGroup) {
	defer done.Done()
	defer w.Close()
	for data := range p.stdinTx {
		if _, err := w.Write(data); err != nil {
			return
		}
	}
}

func (p *Process) resizePump(ptmx *os.File) {
	for size := range p.resizeTx {
		pty.Setsize(ptmx, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
	}
}

func (p *Process) waitTask(cmd *exec.Cmd, pumpsDone *sync.WaitGroup) {
	exitCh := make(chan error, 1)
	go func() { exitCh <- cmd.Wait() }()

	select {
	case err := <-exitCh:
		pumpsDone.Wait()
		success := err == nil
		var code *int32
		if exitErr, ok := err.(*exec.ExitError); ok {
			c := int32(exitErr.ExitCode())
			code = &c
		} else if err == nil {
			c := int32(0)
			code = &c
		}
		p.emitDone(success, code)
	case <-p.killCh:
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		<-exitCh
		pumpsDone.Wait()
		p.emitDone(false, nil)
	}

	p.closeStdin()
	if p.resizeTx != nil {
		close(p.resizeTx)
	}
}

func (p *Process) emitDone(success bool, code *int32) {
	resp := &protocol.Response{Payload: []protocol.ResponseData{protocol.ProcDone{ID: p.ID, Success: success, Code: code}}}
	p.send(resp)
}

// Kill atomically fires the process's kill trigger. Safe to call more
// than once; only the first call has effect.
func (p *Process) Kill() {
	p.killOnce.Do(func() { close(p.killCh) })
}

// Stdin sends bytes to the child's stdin. Returns apierr.ErrBrokenPipe if
// the stdin channel has already been closed or its queue is full.
func (p *Process) Stdin(data []byte) error {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if p.stdinTx == nil {
		return fmt.Errorf("%w: process %d stdin closed", apierr.ErrBrokenPipe, p.ID)
	}
	select {
	case p.stdinTx <- data:
		return nil
	default:
		return fmt.Errorf("%w: process %d stdin queue full", apierr.ErrBrokenPipe, p.ID)
	}
}

// Resize forwards new PTY dimensions. It returns apierr.ErrUnsupported if
// the process was not spawned with a PTY.
func (p *Process) Resize(size protocol.PtySize) error {
	if p.resizeTx == nil {
		return fmt.Errorf("%w: process %d has no pty", apierr.ErrUnsupported, p.ID)
	}
	select {
	case p.resizeTx <- size:
		return nil
	default:
		return nil
	}
}

// closeStdin closes the stdin channel, used both by explicit cleanup and
// by the wait task once the child has exited.
func (p *Process) closeStdin() {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if p.stdinTx != nil {
		close(p.stdinTx)
		p.stdinTx = nil
	}
}

func randomID() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// emptyReader stands in for a PTY's absent separate stderr stream: a PTY
// multiplexes stdout and stderr onto the same master, so the stderr pump
// for a PTY-backed process simply never sees data.
type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }
