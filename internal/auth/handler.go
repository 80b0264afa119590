// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package auth defines the authentication-method handler interface
// invoked by C2/C4 during connection establishment, and the five variant
// implementations (Dummy, Single, Map, Proxy, Dyn) that route its
// callbacks to a selected per-method handler. The registry of concrete
// per-method handlers (password, public key, ...) is an external
// collaborator; this package only defines and dispatches the interface.
package auth

import (
	"context"
	"fmt"

	"github.com/distantlabs/distant-agent/internal/apierr"
)

// Handler is driven by the verifier during connection establishment.
// Every callback is given a context so a slow or hostile peer cannot
// stall the establishment task indefinitely.
type Handler interface {
	// OnInitialization receives the methods offered by the client and
	// returns the subset (or superset, for a forwarding handler) this
	// side is willing to attempt.
	OnInitialization(ctx context.Context, offered []string) ([]string, error)
	// OnStartMethod is called once the peer has committed to method
	// name; subsequent per-method callbacks apply to it.
	OnStartMethod(ctx context.Context, name string) error
	// OnFinished is called once authentication succeeds.
	OnFinished(ctx context.Context) error

	// OnChallenge presents questions and returns answers.
	OnChallenge(ctx context.Context, questions []string) ([]string, error)
	// OnVerification asks the handler to validate a piece of
	// out-of-band evidence (kind names its shape).
	OnVerification(ctx context.Context, kind, text string) (bool, error)
	// OnInfo delivers an informational message with no reply expected.
	OnInfo(ctx context.Context, text string) error
	// OnError reports a method-specific failure.
	OnError(ctx context.Context, kind, text string) error
}

// DummyHandler fails every per-method callback with Unsupported. It
// accepts OnInitialization (offering nothing) and is inert for
// OnStartMethod/OnFinished, matching the teacher's posture for optional
// subsystems absent at build time (spec: "the core returns an
// unsupported outcome when absent").
type DummyHandler struct{}

func (DummyHandler) OnInitialization(context.Context, []string) ([]string, error) { return nil, nil }
func (DummyHandler) OnStartMethod(context.Context, string) error                  { return nil }
func (DummyHandler) OnFinished(context.Context) error                             { return nil }

func (DummyHandler) OnChallenge(context.Context, []string) ([]string, error) {
	return nil, fmt.Errorf("%w: no auth handler configured", apierr.ErrUnsupported)
}

func (DummyHandler) OnVerification(context.Context, string, string) (bool, error) {
	return false, fmt.Errorf("%w: no auth handler configured", apierr.ErrUnsupported)
}

func (DummyHandler) OnInfo(context.Context, string) error {
	return fmt.Errorf("%w: no auth handler configured", apierr.ErrUnsupported)
}

func (DummyHandler) OnError(context.Context, string, string) error {
	return fmt.Errorf("%w: no auth handler configured", apierr.ErrUnsupported)
}

// SingleHandler forwards every per-method callback to one inner handler,
// for the common case of a server configured with exactly one
// authentication method.
type SingleHandler struct {
	Inner Handler
}

func (h SingleHandler) OnInitialization(ctx context.Context, offered []string) ([]string, error) {
	return h.Inner.OnInitialization(ctx, offered)
}
func (h SingleHandler) OnStartMethod(ctx context.Context, name string) error {
	return h.Inner.OnStartMethod(ctx, name)
}
func (h SingleHandler) OnFinished(ctx context.Context) error { return h.Inner.OnFinished(ctx) }
func (h SingleHandler) OnChallenge(ctx context.Context, questions []string) ([]string, error) {
	return h.Inner.OnChallenge(ctx, questions)
}
func (h SingleHandler) OnVerification(ctx context.Context, kind, text string) (bool, error) {
	return h.Inner.OnVerification(ctx, kind, text)
}
func (h SingleHandler) OnInfo(ctx context.Context, text string) error {
	return h.Inner.OnInfo(ctx, text)
}
func (h SingleHandler) OnError(ctx context.Context, kind, text string) error {
	return h.Inner.OnError(ctx, kind, text)
}

// DynHandler forwards every callback to another handler resolved at
// call time, e.g. a handler swapped atomically while the server is
// running. It is distinguished from SingleHandler only by convention:
// callers of Dyn may replace Inner between calls.
type DynHandler struct {
	Inner Handler
}

func (h DynHandler) OnInitialization(ctx context.Context, offered []string) ([]string, error) {
	return h.Inner.OnInitialization(ctx, offered)
}
func (h DynHandler) OnStartMethod(ctx context.Context, name string) error {
	return h.Inner.OnStartMethod(ctx, name)
}
func (h DynHandler) OnFinished(ctx context.Context) error { return h.Inner.OnFinished(ctx) }
func (h DynHandler) OnChallenge(ctx context.Context, questions []string) ([]string, error) {
	return h.Inner.OnChallenge(ctx, questions)
}
func (h DynHandler) OnVerification(ctx context.Context, kind, text string) (bool, error) {
	return h.Inner.OnVerification(ctx, kind, text)
}
func (h DynHandler) OnInfo(ctx context.Context, text string) error {
	return h.Inner.OnInfo(ctx, text)
}
func (h DynHandler) OnError(ctx context.Context, kind, text string) error {
	return h.Inner.OnError(ctx, kind, text)
}

// Authenticator is the external collaborator a ProxyHandler forwards
// every callback to (spec §4.10: "Proxy ... forwards every callback to
// an Authenticator trait object"). It is the same shape as Handler but
// kept as a separate type so a ProxyHandler's intent — delegate whole-sale
// to an external authenticator rather than a peer Handler — is visible
// at the call site.
type Authenticator interface {
	Handler
}

// ProxyHandler forwards every callback to an Authenticator.
type ProxyHandler struct {
	Auth Authenticator
}

func (h ProxyHandler) OnInitialization(ctx context.Context, offered []string) ([]string, error) {
	return h.Auth.OnInitialization(ctx, offered)
}
func (h ProxyHandler) OnStartMethod(ctx context.Context, name string) error {
	return h.Auth.OnStartMethod(ctx, name)
}
func (h ProxyHandler) OnFinished(ctx context.Context) error { return h.Auth.OnFinished(ctx) }
func (h ProxyHandler) OnChallenge(ctx context.Context, questions []string) ([]string, error) {
	return h.Auth.OnChallenge(ctx, questions)
}
func (h ProxyHandler) OnVerification(ctx context.Context, kind, text string) (bool, error) {
	return h.Auth.OnVerification(ctx, kind, text)
}
func (h ProxyHandler) OnInfo(ctx context.Context, text string) error {
	return h.Auth.OnInfo(ctx, text)
}
func (h ProxyHandler) OnError(ctx context.Context, kind, text string) error {
	return h.Auth.OnError(ctx, kind, text)
}
