// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/distantlabs/distant-agent/internal/apierr"
)

// requestKinds maps a wire "type" tag to a zero-value RequestData,
// mirroring the teacher's magic-byte dispatch in ReadHandshake/ReadTrailer
// generalized from fixed binary tags to a JSON discriminator.
var requestKinds = map[string]func() RequestData{
	"proc_spawn":       func() RequestData { return &ProcSpawn{} },
	"proc_kill":        func() RequestData { return &ProcKill{} },
	"proc_stdin":       func() RequestData { return &ProcStdin{} },
	"proc_resize":      func() RequestData { return &ProcResize{} },
	"proc_list":        func() RequestData { return &ProcList{} },
	"file_read":        func() RequestData { return &FileRead{} },
	"file_read_text":   func() RequestData { return &FileReadText{} },
	"file_write":       func() RequestData { return &FileWrite{} },
	"file_write_text":  func() RequestData { return &FileWriteText{} },
	"file_append":      func() RequestData { return &FileAppend{} },
	"file_append_text": func() RequestData { return &FileAppendText{} },
	"dir_read":         func() RequestData { return &DirRead{} },
	"dir_create":       func() RequestData { return &DirCreate{} },
	"remove":           func() RequestData { return &Remove{} },
	"copy":             func() RequestData { return &Copy{} },
	"rename":           func() RequestData { return &Rename{} },
	"exists":           func() RequestData { return &Exists{} },
	"metadata":         func() RequestData { return &Metadata{} },
	"set_permissions":  func() RequestData { return &SetPermissions{} },
	"version":          func() RequestData { return &VersionRequest{} },
	"system_info":      func() RequestData { return &SystemInfoRequest{} },
}

var responseKinds = map[string]func() ResponseData{
	"ok":                 func() ResponseData { return &Ok{} },
	"error":              func() ResponseData { return &Error{} },
	"proc_spawned":       func() ResponseData { return &ProcSpawned{} },
	"proc_stdout":        func() ResponseData { return &ProcStdout{} },
	"proc_stderr":        func() ResponseData { return &ProcStderr{} },
	"proc_done":          func() ResponseData { return &ProcDone{} },
	"proc_entries":       func() ResponseData { return &ProcEntries{} },
	"blob":               func() ResponseData { return &Blob{} },
	"text":               func() ResponseData { return &Text{} },
	"dir_entries":        func() ResponseData { return &DirEntries{} },
	"exists_result":      func() ResponseData { return &ExistsResult{} },
	"metadata_result":    func() ResponseData { return &MetadataResult{} },
	"version_result":     func() ResponseData { return &VersionResult{} },
	"system_info_result": func() ResponseData { return &SystemInfoResult{} },
}

// DecodeRequest parses the bytes delivered by a frame transport's
// read_frame into a Request.
func DecodeRequest(b []byte) (*Request, error) {
	var wire struct {
		Tenant  string     `json:"tenant"`
		ID      string     `json:"id"`
		Payload []wireItem `json:"payload"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return nil, fmt.Errorf("%w: decoding request: %v", apierr.ErrInvalidData, err)
	}
	req := &Request{Tenant: wire.Tenant, ID: wire.ID, Payload: make([]RequestData, len(wire.Payload))}
	for i, item := range wire.Payload {
		ctor, ok := requestKinds[item.Type]
		if !ok {
			return nil, fmt.Errorf("%w: unknown request kind %q", apierr.ErrInvalidData, item.Type)
		}
		v := ctor()
		if err := json.Unmarshal(item.Data, v); err != nil {
			return nil, fmt.Errorf("%w: decoding %s payload: %v", apierr.ErrInvalidData, item.Type, err)
		}
		req.Payload[i] = derefRequestData(v)
	}
	return req, nil
}

// DecodeResponse parses wire bytes into a Response.
func DecodeResponse(b []byte) (*Response, error) {
	var wire struct {
		Tenant   string     `json:"tenant"`
		OriginID *string    `json:"origin_id,omitempty"`
		Payload  []wireItem `json:"payload"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", apierr.ErrInvalidData, err)
	}
	resp := &Response{Tenant: wire.Tenant, OriginID: wire.OriginID, Payload: make([]ResponseData, len(wire.Payload))}
	for i, item := range wire.Payload {
		ctor, ok := responseKinds[item.Type]
		if !ok {
			return nil, fmt.Errorf("%w: unknown response kind %q", apierr.ErrInvalidData, item.Type)
		}
		v := ctor()
		if err := json.Unmarshal(item.Data, v); err != nil {
			return nil, fmt.Errorf("%w: decoding %s payload: %v", apierr.ErrInvalidData, item.Type, err)
		}
		resp.Payload[i] = derefResponseData(v)
	}
	return resp, nil
}

// derefRequestData and derefResponseData unwrap the pointer used as a
// json.Unmarshal target back into the value type stored by RequestKind()
// callers, so encoding round-trips produce identical values regardless of
// whether the caller built the payload by value or by pointer.
func derefRequestData(v RequestData) RequestData {
	switch p := v.(type) {
	case *ProcSpawn:
		return *p
	case *ProcKill:
		return *p
	case *ProcStdin:
		return *p
	case *ProcResize:
		return *p
	case *ProcList:
		return *p
	case *FileRead:
		return *p
	case *FileReadText:
		return *p
	case *FileWrite:
		return *p
	case *FileWriteText:
		return *p
	case *FileAppend:
		return *p
	case *FileAppendText:
		return *p
	case *DirRead:
		return *p
	case *DirCreate:
		return *p
	case *Remove:
		return *p
	case *Copy:
		return *p
	case *Rename:
		return *p
	case *Exists:
		return *p
	case *Metadata:
		return *p
	case *SetPermissions:
		return *p
	case *VersionRequest:
		return *p
	case *SystemInfoRequest:
		return *p
	default:
		return v
	}
}

func derefResponseData(v ResponseData) ResponseData {
	switch p := v.(type) {
	case *Ok:
		return *p
	case *Error:
		return *p
	case *ProcSpawned:
		return *p
	case *ProcStdout:
		return *p
	case *ProcStderr:
		return *p
	case *ProcDone:
		return *p
	case *ProcEntries:
		return *p
	case *Blob:
		return *p
	case *Text:
		return *p
	case *DirEntries:
		return *p
	case *ExistsResult:
		return *p
	case *MetadataResult:
		return *p
	case *VersionResult:
		return *p
	case *SystemInfoResult:
		return *p
	default:
		return v
	}
}
