// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/distantlabs/distant-agent/internal/apierr"
	"github.com/distantlabs/distant-agent/internal/fsops"
	"github.com/distantlabs/distant-agent/internal/process"
	"github.com/distantlabs/distant-agent/internal/protocol"
)

// Server binds the shared, per-agent state a Handler dispatches against:
// the reported version and the process supervisor table. The replies
// channel each spawned process's pumps publish onto is per connection and
// is passed to NewHandler rather than stored on the Server.
type Server struct {
	Version   protocol.Version
	Processes *process.State
	Logger    *slog.Logger
}

// NewHandler builds a Handler bound to this Server and to the Responses
// channel a given connection's dispatch loop publishes to, so spawned
// processes can emit ProcStdout/ProcStderr/ProcDone frames outside the
// request/response cycle that spawned them (spec §4.7.1).
func (s *Server) NewHandler(responses chan<- *protocol.Response) Handler {
	return func(ctx context.Context, connID string, req protocol.RequestData) (protocol.ResponseData, error) {
		return s.dispatch(ctx, connID, req, responses)
	}
}

func (s *Server) dispatch(ctx context.Context, connID string, req protocol.RequestData, responses chan<- *protocol.Response) (protocol.ResponseData, error) {
	switch r := req.(type) {
	case protocol.VersionRequest:
		return protocol.VersionResult{Major: s.Version.Major, Minor: s.Version.Minor, Patch: s.Version.Patch}, nil
	case protocol.SystemInfoRequest:
		return systemInfo(), nil

	case protocol.ProcSpawn:
		p, err := process.Spawn(process.SpawnOptions{
			Cmd:         r.Cmd,
			Args:        r.Args,
			Environment: r.Environment,
			CurrentDir:  r.CurrentDir,
			PTY:         r.PTY,
			ConnID:      connID,
			Replies:     responses,
			Logger:      s.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("spawning process: %w", err)
		}
		s.Processes.Add(p)
		return protocol.ProcSpawned{ID: p.ID}, nil
	case protocol.ProcKill:
		if err := s.Processes.Kill(r.ID); err != nil {
			return nil, err
		}
		return protocol.Ok{}, nil
	case protocol.ProcStdin:
		if err := s.Processes.Stdin(r.ID, r.Data); err != nil {
			return nil, err
		}
		return protocol.Ok{}, nil
	case protocol.ProcResize:
		if err := s.Processes.Resize(r.ID, r.Size); err != nil {
			return nil, err
		}
		return protocol.Ok{}, nil
	case protocol.ProcList:
		return protocol.ProcEntries{Entries: s.Processes.List()}, nil

	case protocol.FileRead:
		data, err := fsops.ReadFile(r.Path)
		if err != nil {
			return nil, err
		}
		return protocol.Blob{Data: data}, nil
	case protocol.FileReadText:
		text, err := fsops.ReadFileText(r.Path)
		if err != nil {
			return nil, err
		}
		return protocol.Text{Data: text}, nil
	case protocol.FileWrite:
		if err := fsops.WriteFile(r.Path, r.Data); err != nil {
			return nil, err
		}
		return protocol.Ok{}, nil
	case protocol.FileWriteText:
		if err := fsops.WriteFile(r.Path, []byte(r.Text)); err != nil {
			return nil, err
		}
		return protocol.Ok{}, nil
	case protocol.FileAppend:
		if err := fsops.AppendFile(r.Path, r.Data); err != nil {
			return nil, err
		}
		return protocol.Ok{}, nil
	case protocol.FileAppendText:
		if err := fsops.AppendFile(r.Path, []byte(r.Text)); err != nil {
			return nil, err
		}
		return protocol.Ok{}, nil

	case protocol.DirRead:
		entries, errs, err := fsops.DirRead(fsops.DirReadOptions{
			Path:         r.Path,
			Depth:        r.Depth,
			Absolute:     r.Absolute,
			Canonicalize: r.Canonicalize,
			IncludeRoot:  r.IncludeRoot,
		})
		if err != nil {
			return nil, err
		}
		return protocol.DirEntries{Entries: entries, Errors: errs}, nil
	case protocol.DirCreate:
		if err := fsops.DirCreate(r.Path, r.All); err != nil {
			return nil, err
		}
		return protocol.Ok{}, nil
	case protocol.Remove:
		if err := fsops.Remove(r.Path, r.Force); err != nil {
			return nil, err
		}
		return protocol.Ok{}, nil
	case protocol.Copy:
		if err := fsops.Copy(r.Src, r.Dst); err != nil {
			return nil, err
		}
		return protocol.Ok{}, nil
	case protocol.Rename:
		if err := fsops.Rename(r.Src, r.Dst); err != nil {
			return nil, err
		}
		return protocol.Ok{}, nil
	case protocol.Exists:
		ok, err := fsops.Exists(r.Path)
		if err != nil {
			return nil, err
		}
		return protocol.ExistsResult{Value: ok}, nil
	case protocol.Metadata:
		md, err := fsops.Metadata(r.Path, r.Canonicalize)
		if err != nil {
			return nil, err
		}
		return md, nil
	case protocol.SetPermissions:
		if err := fsops.SetPermissions(r.Path, r.Readonly, r.UnixMode); err != nil {
			return nil, err
		}
		return protocol.Ok{}, nil

	default:
		return nil, fmt.Errorf("%w: unrecognized request kind %q", apierr.ErrUnsupported, req.RequestKind())
	}
}
