// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package fsops

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/distantlabs/distant-agent/internal/apierr"
	"github.com/distantlabs/distant-agent/internal/protocol"
)

// DirReadOptions mirrors the RequestData fields of spec §4.8.
type DirReadOptions struct {
	Path         string
	Depth        uint32
	Absolute     bool
	Canonicalize bool
	IncludeRoot  bool
}

// DirRead lists a directory per spec §4.8: the root is canonicalized
// first (NotFound if missing); the walk is sorted by filename; entries
// are relative to the root unless Absolute; depth=0 means unlimited.
// Per-entry errors are collected rather than aborting the listing.
func DirRead(opts DirReadOptions) ([]protocol.DirEntry, []string, error) {
	root, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apierr.ErrNotFound, err)
	}
	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", apierr.ErrNotFound, opts.Path)
	}

	var entries []protocol.DirEntry
	var errs []string

	if opts.IncludeRoot {
		entries = append(entries, protocol.DirEntry{
			Path:     reportPath(root, root, opts),
			FileType: protocol.FileTypeDir,
			Depth:    0,
		})
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if path == root {
			return nil
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, relErr))
			return nil
		}
		depth := uint32(len(splitClean(rel)))

		if opts.Depth != 0 && depth > opts.Depth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		entryPath := reportPath(root, path, opts)
		entries = append(entries, protocol.DirEntry{
			Path:     entryPath,
			FileType: fileType(d),
			Depth:    depth,
		})
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr.Error())
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, errs, nil
}

func reportPath(root, path string, opts DirReadOptions) string {
	target := path
	if opts.Canonicalize {
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			target = resolved
		}
	}
	if opts.Absolute {
		return target
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		// Canonicalize resolved outside root (e.g. a symlink escape):
		// spec §4.8 says report it as-is.
		return target
	}
	return rel
}

func fileType(d fs.DirEntry) protocol.FileType {
	switch {
	case d.Type()&os.ModeSymlink != 0:
		return protocol.FileTypeSymlink
	case d.IsDir():
		return protocol.FileTypeDir
	default:
		return protocol.FileTypeFile
	}
}

func splitClean(rel string) []string {
	if rel == "." || rel == "" {
		return nil
	}
	return strings.Split(filepath.ToSlash(rel), "/")
}
