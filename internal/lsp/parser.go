// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package lsp implements the LSP framing filter (C9): incremental
// parsing of Content-Length-delimited JSON messages, bidirectional
// URI-scheme rewriting across both object keys and string values, and
// content-length refresh before re-serialization. The restartable,
// field-at-a-time parsing style is grounded on the teacher's own framed
// reader (internal/protocol/reader.go reads a header, then a body, never
// more than one logical unit per call), generalized here from a fixed
// 4-byte binary length prefix to the HTTP-style "Content-Length: n\r\n\r\n"
// header spec.md mandates for this mode.
package lsp

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/distantlabs/distant-agent/internal/apierr"
)

const headerSeparator = "\r\n\r\n"

// Message is one parsed LSP envelope: the raw JSON content, already
// separated from its header.
type Message struct {
	Content []byte
}

// ParseAll repeatedly extracts complete messages from buf. It returns
// every full message found plus the unconsumed remainder (spec §4.9: "if
// a trailing partial message is present, the buffer position is rewound
// ... and the remainder is returned unchanged to be concatenated with
// future bytes").
func ParseAll(buf []byte) (messages []Message, remainder []byte, err error) {
	remainder = buf
	for {
		msg, rest, ok, perr := parseOne(remainder)
		if perr != nil {
			return messages, remainder, perr
		}
		if !ok {
			return messages, remainder, nil
		}
		messages = append(messages, msg)
		remainder = rest
	}
}

// parseOne extracts a single message from the front of buf, if a
// complete one is present; ok is false (with buf returned unchanged) on
// a partial header or body.
func parseOne(buf []byte) (msg Message, rest []byte, ok bool, err error) {
	headerEnd := bytes.Index(buf, []byte(headerSeparator))
	if headerEnd < 0 {
		return Message{}, buf, false, nil
	}

	header := buf[:headerEnd]
	bodyStart := headerEnd + len(headerSeparator)

	length, err := contentLength(header)
	if err != nil {
		return Message{}, buf, false, err
	}

	if len(buf)-bodyStart < length {
		return Message{}, buf, false, nil
	}

	content := buf[bodyStart : bodyStart+length]
	return Message{Content: append([]byte(nil), content...)}, buf[bodyStart+length:], true, nil
}

// contentLength scans the header lines for "Content-Length: <n>",
// ignoring any other header (e.g. the optional Content-Type) per spec
// §4.9's message format.
func contentLength(header []byte) (int, error) {
	for _, line := range bytes.Split(header, []byte("\r\n")) {
		const prefix = "Content-Length:"
		s := string(line)
		if len(s) < len(prefix) {
			continue
		}
		if !bytes.EqualFold([]byte(s[:len(prefix)]), []byte(prefix)) {
			continue
		}
		n, err := strconv.Atoi(trimSpace(s[len(prefix):]))
		if err != nil {
			return 0, fmt.Errorf("%w: invalid Content-Length: %v", apierr.ErrInvalidData, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: missing Content-Length header", apierr.ErrInvalidData)
}

func trimSpace(s string) string {
	start := 0
	for start < len(s) && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	end := len(s)
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

// Serialize wraps content in a Content-Length header, re-deriving the
// length from content's current byte length (spec §4.9's "length
// refresh").
func Serialize(content []byte) []byte {
	header := fmt.Sprintf("Content-Length: %d%s", len(content), headerSeparator)
	out := make([]byte, 0, len(header)+len(content))
	out = append(out, header...)
	out = append(out, content...)
	return out
}
