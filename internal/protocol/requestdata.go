// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

// PtySize carries the terminal dimensions for a spawn or a resize
// (spec §3, §4.7.1).
type PtySize struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// ProcSpawn asks the server to spawn a child process (spec §4.7.1).
type ProcSpawn struct {
	Cmd         string            `json:"cmd"`
	Args        []string          `json:"args"`
	Environment map[string]string `json:"environment,omitempty"`
	CurrentDir  string            `json:"current_dir,omitempty"`
	PTY         *PtySize          `json:"pty,omitempty"`
}

func (ProcSpawn) RequestKind() string { return "proc_spawn" }

// ProcKill asks the server to kill a running process (spec §4.7.2).
type ProcKill struct {
	ID uint64 `json:"id"`
}

func (ProcKill) RequestKind() string { return "proc_kill" }

// ProcStdin sends bytes to a running process's stdin (spec §4.7.3).
type ProcStdin struct {
	ID   uint64 `json:"id"`
	Data []byte `json:"data"`
}

func (ProcStdin) RequestKind() string { return "proc_stdin" }

// ProcResize resizes the PTY of a running process, if it has one.
type ProcResize struct {
	ID   uint64 `json:"id"`
	Size PtySize `json:"size"`
}

func (ProcResize) RequestKind() string { return "proc_resize" }

// ProcList asks for a snapshot of live processes (spec §4.7.4).
type ProcList struct{}

func (ProcList) RequestKind() string { return "proc_list" }

// FileRead reads a whole file as binary.
type FileRead struct {
	Path string `json:"path"`
}

func (FileRead) RequestKind() string { return "file_read" }

// FileReadText reads a whole file as UTF-8 text.
type FileReadText struct {
	Path string `json:"path"`
}

func (FileReadText) RequestKind() string { return "file_read_text" }

// FileWrite overwrites a file with binary data.
type FileWrite struct {
	Path string `json:"path"`
	Data []byte `json:"data"`
}

func (FileWrite) RequestKind() string { return "file_write" }

// FileWriteText overwrites a file with UTF-8 text.
type FileWriteText struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

func (FileWriteText) RequestKind() string { return "file_write_text" }

// FileAppend appends binary data to a file.
type FileAppend struct {
	Path string `json:"path"`
	Data []byte `json:"data"`
}

func (FileAppend) RequestKind() string { return "file_append" }

// FileAppendText appends UTF-8 text to a file.
type FileAppendText struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

func (FileAppendText) RequestKind() string { return "file_append_text" }

// DirRead lists a directory (spec §4.8).
type DirRead struct {
	Path         string `json:"path"`
	Depth        uint32 `json:"depth"`
	Absolute     bool   `json:"absolute"`
	Canonicalize bool   `json:"canonicalize"`
	IncludeRoot  bool   `json:"include_root"`
}

func (DirRead) RequestKind() string { return "dir_read" }

// DirCreate creates a directory, optionally with its parents.
type DirCreate struct {
	Path string `json:"path"`
	All  bool   `json:"all"`
}

func (DirCreate) RequestKind() string { return "dir_create" }

// Remove deletes a file or directory.
type Remove struct {
	Path  string `json:"path"`
	Force bool   `json:"force"`
}

func (Remove) RequestKind() string { return "remove" }

// Copy copies a file or directory tree.
type Copy struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

func (Copy) RequestKind() string { return "copy" }

// Rename renames (moves) a path.
type Rename struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

func (Rename) RequestKind() string { return "rename" }

// Exists reports whether a path exists.
type Exists struct {
	Path string `json:"path"`
}

func (Exists) RequestKind() string { return "exists" }

// Metadata reports file metadata (spec §4.8).
type Metadata struct {
	Path         string `json:"path"`
	Canonicalize bool   `json:"canonicalize"`
}

func (Metadata) RequestKind() string { return "metadata" }

// SetPermissions updates a path's permission bits.
type SetPermissions struct {
	Path     string  `json:"path"`
	Readonly bool    `json:"readonly"`
	UnixMode *uint32 `json:"unix_mode,omitempty"`
}

func (SetPermissions) RequestKind() string { return "set_permissions" }

// VersionRequest asks the server to report its protocol/binary version.
type VersionRequest struct{}

func (VersionRequest) RequestKind() string { return "version" }

// SystemInfoRequest asks the server to report host metadata (supplemental
// feature carried from original_source's SystemInfo response — see
// SPEC_FULL.md §8).
type SystemInfoRequest struct{}

func (SystemInfoRequest) RequestKind() string { return "system_info" }
