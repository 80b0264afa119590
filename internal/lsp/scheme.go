// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package lsp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/distantlabs/distant-agent/internal/apierr"
)

// RewriteScheme walks content's JSON tree and replaces every string
// value and object key whose text begins with fromPrefix with a copy
// prefixed by toPrefix instead (spec §4.9). Arrays and nested objects
// are traversed; non-string leaves are left untouched. The JSON tree
// uses encoding/json's generic map[string]interface{}/[]interface{}
// shapes, the same ad hoc decoding idiom the teacher's observability
// HTTP layer uses for its dashboard payloads (internal/server/
// observability/dto.go).
func RewriteScheme(content []byte, fromPrefix, toPrefix string) ([]byte, error) {
	var tree interface{}
	if err := json.Unmarshal(content, &tree); err != nil {
		return nil, fmt.Errorf("%w: parsing lsp message: %v", apierr.ErrInvalidData, err)
	}

	rewritten := rewriteValue(tree, fromPrefix, toPrefix)

	out, err := json.Marshal(rewritten)
	if err != nil {
		return nil, fmt.Errorf("%w: re-serializing lsp message: %v", apierr.ErrInvalidData, err)
	}
	return out, nil
}

func rewriteValue(v interface{}, from, to string) interface{} {
	switch val := v.(type) {
	case string:
		return rewriteString(val, from, to)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = rewriteValue(elem, from, to)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, elem := range val {
			out[rewriteString(k, from, to)] = rewriteValue(elem, from, to)
		}
		return out
	default:
		return v
	}
}

func rewriteString(s, from, to string) string {
	if strings.HasPrefix(s, from) {
		return to + s[len(from):]
	}
	return s
}

// ConvertLocalSchemeTo rewrites file: URIs to the virtualized scheme X
// (client-facing direction, used on the stdout/stderr path).
func ConvertLocalSchemeTo(content []byte, scheme string) ([]byte, error) {
	return RewriteScheme(content, "file:", scheme+":")
}

// ConvertSchemeToLocal rewrites the virtualized scheme X back to file:
// (server-facing direction, used on the stdin path).
func ConvertSchemeToLocal(content []byte, scheme string) ([]byte, error) {
	return RewriteScheme(content, scheme+":", "file:")
}
