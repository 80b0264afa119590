// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package process

import (
	"fmt"
	"sync"

	"github.com/distantlabs/distant-agent/internal/apierr"
	"github.com/distantlabs/distant-agent/internal/protocol"
)

// State is the per-server table of live processes (spec §3): a primary
// index by process id plus a secondary index by connection id so a
// dropped connection's processes can be found and cleaned up.
type State struct {
	mu        sync.Mutex
	processes map[uint64]*Process
	byConn    map[string][]uint64
}

// NewState creates an empty process table.
func NewState() *State {
	return &State{
		processes: make(map[uint64]*Process),
		byConn:    make(map[string][]uint64),
	}
}

// Add registers a newly spawned process under its owning connection.
func (s *State) Add(p *Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processes[p.ID] = p
	s.byConn[p.connID] = append(s.byConn[p.connID], p.ID)
}

// Kill implements proc_kill (spec §4.7.2): atomically removes the
// process and fires its kill trigger. Absent ids are idempotently
// treated as success, since callers observe subsequent failures
// naturally via the wait task's done frame.
func (s *State) Kill(id uint64) error {
	s.mu.Lock()
	p, ok := s.processes[id]
	if ok {
		delete(s.processes, id)
	}
	s.mu.Unlock()

	if ok {
		p.Kill()
	}
	return nil
}

// Stdin implements proc_stdin (spec §4.7.3).
func (s *State) Stdin(id uint64, data []byte) error {
	s.mu.Lock()
	p, ok := s.processes[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: process %d", apierr.ErrNotFound, id)
	}
	return p.Stdin(data)
}

// Resize implements proc_resize.
func (s *State) Resize(id uint64, size protocol.PtySize) error {
	s.mu.Lock()
	p, ok := s.processes[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: process %d", apierr.ErrNotFound, id)
	}
	return p.Resize(size)
}

// List implements proc_list (spec §4.7.4): a snapshot of (id, cmd, args)
// triples.
func (s *State) List() []protocol.ProcEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]protocol.ProcEntry, 0, len(s.processes))
	for _, p := range s.processes {
		entries = append(entries, protocol.ProcEntry{ID: p.ID, Cmd: p.Cmd, Args: p.Args})
	}
	return entries
}

// CleanupConnection closes the stdin channel and detaches the reply
// channel for every process owned by connID (spec §4.7.5): processes
// keep running, but their stdout/stderr streams become best-effort once
// the connection that spawned them is gone. Detach (rather than closing
// the shared reply channel out from under them) is what lets a pump
// currently blocked applying backpressure unblock without risking a
// send on a closed channel.
func (s *State) CleanupConnection(connID string) {
	s.mu.Lock()
	ids := s.byConn[connID]
	delete(s.byConn, connID)
	procs := make([]*Process, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.processes[id]; ok {
			procs = append(procs, p)
		}
	}
	s.mu.Unlock()

	for _, p := range procs {
		p.closeStdin()
		p.Detach()
	}
}

// Remove drops id from the primary index without killing it. Nothing in
// this package calls it: a process that exits on its own stays in the
// table, and in List, until Kill or Remove drops it.
func (s *State) Remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processes, id)
}
