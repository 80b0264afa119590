// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package lsp

import (
	"bytes"
	"encoding/json"
	"strconv"
	"testing"
)

func TestParseAll_SingleCompleteMessage(t *testing.T) {
	content := []byte(`{"u":"file://a/b"}`)
	wire := Serialize(content)

	msgs, remainder, err := ParseAll(wire)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(remainder) != 0 {
		t.Fatalf("remainder = %q, want empty", remainder)
	}
	if len(msgs) != 1 || !bytes.Equal(msgs[0].Content, content) {
		t.Fatalf("msgs = %v, want one message with content %q", msgs, content)
	}
}

func TestParseAll_RestartableOnTrailingPartial(t *testing.T) {
	full := Serialize([]byte(`{"a":1}`))
	partial := Serialize([]byte(`{"b":2}`))
	partial = partial[:len(partial)-2] // truncate the body

	buf := append(append([]byte{}, full...), partial...)

	msgs, remainder, err := ParseAll(buf)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("msgs = %d, want 1", len(msgs))
	}
	if !bytes.Equal(remainder, partial) {
		t.Fatalf("remainder = %q, want %q", remainder, partial)
	}

	// Feeding the missing bytes completes the second message.
	completed := append(append([]byte{}, remainder...), []byte(`2}`)...)
	msgs2, remainder2, err := ParseAll(completed)
	if err != nil {
		t.Fatalf("ParseAll on completed buffer: %v", err)
	}
	if len(msgs2) != 1 || len(remainder2) != 0 {
		t.Fatalf("msgs2=%v remainder2=%q, want one complete message", msgs2, remainder2)
	}
}

func TestParseSerialize_RoundTrip(t *testing.T) {
	content := []byte(`{"method":"initialize","params":{"u":"file://x"}}`)
	wire := Serialize(content)
	msgs, remainder, err := ParseAll(wire)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(remainder) != 0 || len(msgs) != 1 {
		t.Fatalf("parse(serialize(m)) did not reproduce m: msgs=%v remainder=%q", msgs, remainder)
	}
	if !bytes.Equal(msgs[0].Content, content) {
		t.Fatalf("content = %q, want %q", msgs[0].Content, content)
	}
}

func TestRewriteScheme_StringValuesAndObjectKeys(t *testing.T) {
	content := []byte(`{"file:uri":"file://a/b","nested":{"x":["file://c"]}}`)
	rewritten, err := RewriteScheme(content, "file:", "distant:")
	if err != nil {
		t.Fatalf("RewriteScheme: %v", err)
	}

	var tree map[string]interface{}
	if err := json.Unmarshal(rewritten, &tree); err != nil {
		t.Fatalf("unmarshal rewritten: %v", err)
	}
	if _, ok := tree["distant:uri"]; !ok {
		t.Fatalf("key not rewritten: %v", tree)
	}
	if tree["distant:uri"] != "distant://a/b" {
		t.Fatalf("value = %v, want distant://a/b", tree["distant:uri"])
	}
	nested := tree["nested"].(map[string]interface{})
	arr := nested["x"].([]interface{})
	if arr[0] != "distant://c" {
		t.Fatalf("nested array value = %v, want distant://c", arr[0])
	}
}

func TestRewriteScheme_BijectiveRoundTrip(t *testing.T) {
	content := []byte(`{"u":"file://a/b","k":["file://c","plain"]}`)

	toVirtual, err := ConvertLocalSchemeTo(content, "distant")
	if err != nil {
		t.Fatalf("ConvertLocalSchemeTo: %v", err)
	}
	back, err := ConvertSchemeToLocal(toVirtual, "distant")
	if err != nil {
		t.Fatalf("ConvertSchemeToLocal: %v", err)
	}

	var want, got map[string]interface{}
	json.Unmarshal(content, &want)
	json.Unmarshal(back, &got)

	wantJSON, _ := json.Marshal(want)
	gotJSON, _ := json.Marshal(got)
	if string(wantJSON) != string(gotJSON) {
		t.Fatalf("round trip mismatch: got %s, want %s", gotJSON, wantJSON)
	}
}

func TestFilter_StdinRewritesSchemeAndRefreshesLength(t *testing.T) {
	f := New("distant", nil)
	content := []byte(`{"u":"distant://a/b"}`)
	wire := Serialize(content)

	out, err := f.Stdin(wire)
	if err != nil {
		t.Fatalf("Stdin: %v", err)
	}

	msgs, remainder, err := ParseAll(out)
	if err != nil {
		t.Fatalf("ParseAll(out): %v", err)
	}
	if len(remainder) != 0 || len(msgs) != 1 {
		t.Fatalf("unexpected framing in filtered output: msgs=%v remainder=%q", msgs, remainder)
	}

	var tree map[string]interface{}
	json.Unmarshal(msgs[0].Content, &tree)
	if tree["u"] != "file://a/b" {
		t.Fatalf("u = %v, want file://a/b", tree["u"])
	}

	wantHeader := []byte("Content-Length: " + strconv.Itoa(len(msgs[0].Content)))
	if !bytes.Contains(out, wantHeader) {
		t.Fatalf("output %q does not contain refreshed length header %q", out, wantHeader)
	}
}

func TestFilter_StdinAccumulatesPartialAcrossCalls(t *testing.T) {
	f := New("distant", nil)
	content := []byte(`{"u":"distant://a"}`)
	wire := Serialize(content)

	first := wire[:len(wire)-3]
	second := wire[len(wire)-3:]

	out1, err := f.Stdin(first)
	if err != nil {
		t.Fatalf("Stdin first chunk: %v", err)
	}
	if len(out1) != 0 {
		t.Fatalf("partial chunk produced output: %q", out1)
	}

	out2, err := f.Stdin(second)
	if err != nil {
		t.Fatalf("Stdin second chunk: %v", err)
	}
	msgs, _, err := ParseAll(out2)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("completed message not emitted: msgs=%v err=%v", msgs, err)
	}
}
