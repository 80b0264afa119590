// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package lsp

import (
	"log/slog"
	"sync"
)

// DefaultScheme is the virtualized URI scheme used when none is
// configured (spec §4.9: "distant:-style scheme").
const DefaultScheme = "distant"

// Filter proxies one spawned LSP server's stdio, rewriting the URI
// scheme bidirectionally. Stdin() accumulates caller bytes in an
// internal, restartable buffer and returns the bytes ready to write to
// the child's stdin; Stdout()/Stderr() are the symmetric reverse
// direction.
type Filter struct {
	Scheme string
	Logger *slog.Logger

	mu        sync.Mutex
	stdinBuf  []byte
	stdoutBuf []byte
	stderrBuf []byte
}

// New creates a Filter for the given virtualized scheme (DefaultScheme
// if empty).
func New(scheme string, logger *slog.Logger) *Filter {
	if scheme == "" {
		scheme = DefaultScheme
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{Scheme: scheme, Logger: logger}
}

// Stdin implements the client→LSP-server path (spec §4.9): accumulate,
// extract full messages, rewrite the virtualized scheme to file:,
// refresh the length, and concatenate the rewritten messages into one
// buffer ready to write to the child's stdin.
func (f *Filter) Stdin(chunk []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.process(&f.stdinBuf, chunk, func(content []byte) ([]byte, error) {
		return ConvertSchemeToLocal(content, f.Scheme)
	})
}

// Stdout implements the LSP-server→client path for stdout.
func (f *Filter) Stdout(chunk []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.process(&f.stdoutBuf, chunk, func(content []byte) ([]byte, error) {
		return ConvertLocalSchemeTo(content, f.Scheme)
	})
}

// Stderr implements the LSP-server→client path for stderr, tracked with
// its own restart buffer independent of Stdout's.
func (f *Filter) Stderr(chunk []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.process(&f.stderrBuf, chunk, func(content []byte) ([]byte, error) {
		return ConvertLocalSchemeTo(content, f.Scheme)
	})
}

func (f *Filter) process(buf *[]byte, chunk []byte, rewrite func([]byte) ([]byte, error)) ([]byte, error) {
	*buf = append(*buf, chunk...)

	messages, remainder, err := ParseAll(*buf)
	if err != nil {
		f.Logger.Warn("dropping unparseable lsp message, resetting buffer", "error", err)
		*buf = nil
		return nil, err
	}
	*buf = remainder

	var out []byte
	for _, msg := range messages {
		rewritten, err := rewrite(msg.Content)
		if err != nil {
			f.Logger.Warn("dropping lsp message that failed scheme rewrite", "error", err)
			continue
		}
		out = append(out, Serialize(rewritten)...)
	}
	return out, nil
}
