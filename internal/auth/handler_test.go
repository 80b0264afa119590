// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/distantlabs/distant-agent/internal/apierr"
)

type stubHandler struct {
	challengeAnswers []string
	verifyResult     bool
}

func (s *stubHandler) OnInitialization(context.Context, []string) ([]string, error) { return nil, nil }
func (s *stubHandler) OnStartMethod(context.Context, string) error                  { return nil }
func (s *stubHandler) OnFinished(context.Context) error                            { return nil }
func (s *stubHandler) OnChallenge(context.Context, []string) ([]string, error) {
	return s.challengeAnswers, nil
}
func (s *stubHandler) OnVerification(context.Context, string, string) (bool, error) {
	return s.verifyResult, nil
}
func (s *stubHandler) OnInfo(context.Context, string) error          { return nil }
func (s *stubHandler) OnError(context.Context, string, string) error { return nil }

func TestDummyHandler_FailsPerMethodCallbacks(t *testing.T) {
	var d DummyHandler
	if _, err := d.OnChallenge(context.Background(), []string{"q"}); !errors.Is(err, apierr.ErrUnsupported) {
		t.Fatalf("OnChallenge err = %v, want ErrUnsupported", err)
	}
	if ok, err := d.OnVerification(context.Background(), "k", "t"); ok || !errors.Is(err, apierr.ErrUnsupported) {
		t.Fatalf("OnVerification = (%v, %v), want (false, ErrUnsupported)", ok, err)
	}
}

func TestSingleHandler_ForwardsToInner(t *testing.T) {
	inner := &stubHandler{challengeAnswers: []string{"42"}}
	h := SingleHandler{Inner: inner}

	answers, err := h.OnChallenge(context.Background(), []string{"what is it?"})
	if err != nil {
		t.Fatalf("OnChallenge: %v", err)
	}
	if len(answers) != 1 || answers[0] != "42" {
		t.Fatalf("answers = %v, want [42]", answers)
	}
}

func TestMapHandler_InitializationIsIntersection(t *testing.T) {
	h := NewMapHandler(map[string]Handler{
		"password": &stubHandler{},
		"pubkey":    &stubHandler{},
	})

	chosen, err := h.OnInitialization(context.Background(), []string{"password", "otp", "pubkey"})
	if err != nil {
		t.Fatalf("OnInitialization: %v", err)
	}
	if len(chosen) != 2 || chosen[0] != "password" || chosen[1] != "pubkey" {
		t.Fatalf("chosen = %v, want [password pubkey]", chosen)
	}
}

func TestMapHandler_DispatchesToActiveMethod(t *testing.T) {
	pw := &stubHandler{challengeAnswers: []string{"pw-answer"}}
	pk := &stubHandler{challengeAnswers: []string{"pk-answer"}}
	h := NewMapHandler(map[string]Handler{"password": pw, "pubkey": pk})

	if err := h.OnStartMethod(context.Background(), "pubkey"); err != nil {
		t.Fatalf("OnStartMethod: %v", err)
	}

	answers, err := h.OnChallenge(context.Background(), nil)
	if err != nil {
		t.Fatalf("OnChallenge: %v", err)
	}
	if len(answers) != 1 || answers[0] != "pk-answer" {
		t.Fatalf("answers = %v, want [pk-answer]", answers)
	}
}

func TestMapHandler_NoActiveHandlerIsUnsupported(t *testing.T) {
	h := NewMapHandler(map[string]Handler{"password": &stubHandler{}})

	_, err := h.OnChallenge(context.Background(), nil)
	if !errors.Is(err, apierr.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestProxyHandler_ForwardsToAuthenticator(t *testing.T) {
	auth := &stubHandler{verifyResult: true}
	h := ProxyHandler{Auth: auth}

	ok, err := h.OnVerification(context.Background(), "totp", "123456")
	if err != nil {
		t.Fatalf("OnVerification: %v", err)
	}
	if !ok {
		t.Fatal("OnVerification = false, want true")
	}
}
