// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package fsops implements the stateless filesystem handlers (C8): read,
// write, append (binary and text), directory listing, create, remove,
// copy, rename, exists, metadata, and set-permissions. Writes go through
// the teacher's atomic-write idiom (internal/server/storage.go's
// AtomicWriter: temp file in the target directory, then os.Rename), and
// directory listing reuses the teacher's filepath.WalkDir scanner
// (internal/agent/scanner.go), generalized from "backup source scan with
// exclude globs" to "bounded-depth listing with absolute/canonicalize/
// include-root options".
package fsops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/distantlabs/distant-agent/internal/apierr"
)

// ReadFile reads a whole file as binary.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapReadErr(path, err)
	}
	return data, nil
}

// ReadFileText reads a whole file and validates it as UTF-8.
func ReadFileText(path string) (string, error) {
	data, err := ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid utf-8", apierr.ErrInvalidData, path)
	}
	return string(data), nil
}

// WriteFile atomically overwrites path with data: it writes to a temp
// file in the same directory, then renames over the destination so a
// reader never observes a partial write.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".distant-write-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}
	return nil
}

// AppendFile appends data to path, creating it if absent.
func AppendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening %s for append: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	return nil
}

// DirCreate creates a directory, optionally with its parents.
func DirCreate(path string, all bool) error {
	if all {
		return os.MkdirAll(path, 0755)
	}
	return os.Mkdir(path, 0755)
}

// Remove deletes a file or directory. With force=true, directories are
// removed recursively; with force=false, a non-empty directory fails.
func Remove(path string, force bool) error {
	if force {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}

// Rename moves src to dst.
func Rename(src, dst string) error {
	return os.Rename(src, dst)
}

// Exists distinguishes a missing path (false, nil error) from any other
// stat failure (false, error).
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

// Copy copies src to dst. A directory is copied recursively (files and
// symlinks), creating intermediate destination directories; a file
// delegates to copyFile.
func Copy(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return wrapReadErr(src, err)
	}
	if info.IsDir() {
		return copyDir(src, dst)
	}
	return copyFile(src, dst)
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("creating destination directory %s: %w", dst, err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", src, err)
	}
	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		info, err := os.Lstat(srcPath)
		if err != nil {
			return wrapReadErr(srcPath, err)
		}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			if err := copySymlink(srcPath, dstPath); err != nil {
				return err
			}
		case info.IsDir():
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := copyFile(srcPath, dstPath); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return wrapReadErr(src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return nil
}

func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("reading symlink %s: %w", src, err)
	}
	return os.Symlink(target, dst)
}

func wrapReadErr(path string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", apierr.ErrNotFound, path)
	}
	if os.IsPermission(err) {
		return fmt.Errorf("%w: %s", apierr.ErrPermissionDenied, path)
	}
	return err
}
