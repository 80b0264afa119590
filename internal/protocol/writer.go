// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/json"
	"fmt"
)

// wireItem is the tagged-union envelope used for both RequestData and
// ResponseData elements on the wire: a "type" discriminator plus the
// concrete payload.
type wireItem struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeRequest serializes a Request to the bytes handed to a frame
// transport's write_frame (spec §6: "plaintext structure is defined by
// ... the request/response payload schema").
func EncodeRequest(req *Request) ([]byte, error) {
	items := make([]wireItem, len(req.Payload))
	for i, p := range req.Payload {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encoding request payload %d: %w", i, err)
		}
		items[i] = wireItem{Type: p.RequestKind(), Data: raw}
	}
	return json.Marshal(struct {
		Tenant  string     `json:"tenant"`
		ID      string     `json:"id"`
		Payload []wireItem `json:"payload"`
	}{Tenant: req.Tenant, ID: req.ID, Payload: items})
}

// EncodeResponse serializes a Response to wire bytes.
func EncodeResponse(resp *Response) ([]byte, error) {
	items := make([]wireItem, len(resp.Payload))
	for i, p := range resp.Payload {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encoding response payload %d: %w", i, err)
		}
		items[i] = wireItem{Type: p.ResponseKind(), Data: raw}
	}
	return json.Marshal(struct {
		Tenant   string     `json:"tenant"`
		OriginID *string    `json:"origin_id,omitempty"`
		Payload  []wireItem `json:"payload"`
	}{Tenant: resp.Tenant, OriginID: resp.OriginID, Payload: items})
}
