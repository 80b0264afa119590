// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/distantlabs/distant-agent/internal/apierr"
)

// MapHandler dispatches per-method callbacks to the handler registered
// for the method OnStartMethod most recently named ("the active
// handler"). OnInitialization returns the intersection of the methods
// the client offered and the keys registered here.
type MapHandler struct {
	Handlers map[string]Handler

	mu     sync.Mutex
	active string
}

// NewMapHandler creates a MapHandler over the given method registry.
func NewMapHandler(handlers map[string]Handler) *MapHandler {
	return &MapHandler{Handlers: handlers}
}

func (h *MapHandler) OnInitialization(ctx context.Context, offered []string) ([]string, error) {
	var chosen []string
	for _, name := range offered {
		if _, ok := h.Handlers[name]; ok {
			chosen = append(chosen, name)
		}
	}
	return chosen, nil
}

func (h *MapHandler) OnStartMethod(ctx context.Context, name string) error {
	h.mu.Lock()
	h.active = name
	h.mu.Unlock()
	return nil
}

func (h *MapHandler) OnFinished(ctx context.Context) error {
	active, err := h.current()
	if err != nil {
		return err
	}
	return active.OnFinished(ctx)
}

func (h *MapHandler) OnChallenge(ctx context.Context, questions []string) ([]string, error) {
	active, err := h.current()
	if err != nil {
		return nil, err
	}
	return active.OnChallenge(ctx, questions)
}

func (h *MapHandler) OnVerification(ctx context.Context, kind, text string) (bool, error) {
	active, err := h.current()
	if err != nil {
		return false, err
	}
	return active.OnVerification(ctx, kind, text)
}

func (h *MapHandler) OnInfo(ctx context.Context, text string) error {
	active, err := h.current()
	if err != nil {
		return err
	}
	return active.OnInfo(ctx, text)
}

func (h *MapHandler) OnError(ctx context.Context, kind, text string) error {
	active, err := h.current()
	if err != nil {
		return err
	}
	return active.OnError(ctx, kind, text)
}

// current resolves the handler registered for the active method,
// returning the spec's "Other(No active handler for <id>)" outcome
// (here apierr.ErrUnsupported, the closest abstract category) if
// OnStartMethod was never called or named an unregistered method.
func (h *MapHandler) current() (Handler, error) {
	h.mu.Lock()
	name := h.active
	h.mu.Unlock()

	handler, ok := h.Handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: no active handler for %q", apierr.ErrUnsupported, name)
	}
	return handler, nil
}
