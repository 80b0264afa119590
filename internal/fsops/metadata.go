// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package fsops

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/distantlabs/distant-agent/internal/protocol"
)

// Metadata reports file metadata per spec §4.8: file type, size, the
// readonly flag, timestamps in milliseconds since the epoch, and
// platform-specific permission bits (Unix mode triads here; Windows
// attribute bits are out of scope on this build target, per spec's own
// "platform metadata flag encodings" exclusion beyond Unix).
func Metadata(path string, canonicalize bool) (protocol.MetadataResult, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return protocol.MetadataResult{}, wrapReadErr(path, err)
	}

	result := protocol.MetadataResult{
		FileType: fileTypeFromInfo(info),
		Len:      uint64(info.Size()),
		Readonly: info.Mode().Perm()&0200 == 0,
	}
	if modMs := info.ModTime().UnixMilli(); modMs >= 0 {
		m := uint64(modMs)
		result.ModifiedMs = &m
	}

	if runtime.GOOS != "windows" {
		mode := uint32(info.Mode().Perm())
		result.Unix = &protocol.UnixMetadata{
			Owner: classFromBits(mode >> 6),
			Group: classFromBits(mode >> 3),
			Other: classFromBits(mode),
		}
	}

	if canonicalize {
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			result.CanonicalizedPath = resolved
		}
	}

	return result, nil
}

func classFromBits(bits uint32) protocol.ClassPermissions {
	return protocol.ClassPermissions{
		Read:    bits&0x4 != 0,
		Write:   bits&0x2 != 0,
		Execute: bits&0x1 != 0,
	}
}

func fileTypeFromInfo(info os.FileInfo) protocol.FileType {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return protocol.FileTypeSymlink
	case info.IsDir():
		return protocol.FileTypeDir
	default:
		return protocol.FileTypeFile
	}
}

// SetPermissions updates a path's permission bits: the readonly flag
// (cross-platform, via the write bit) and, when provided, the full Unix
// mode.
func SetPermissions(path string, readonly bool, unixMode *uint32) error {
	if unixMode != nil {
		if err := os.Chmod(path, os.FileMode(*unixMode)); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return wrapReadErr(path, err)
	}
	mode := info.Mode().Perm()
	if readonly {
		mode &^= 0222
	} else {
		mode |= 0200
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}
