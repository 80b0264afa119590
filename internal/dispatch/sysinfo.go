// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package dispatch

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/distantlabs/distant-agent/internal/protocol"
)

// systemInfo answers SystemInfoRequest (spec supplemental feature,
// SPEC_FULL.md §8), reusing the teacher's gopsutil disk-usage collector
// (internal/agent/monitor.go) for the free-space figure.
func systemInfo() protocol.ResponseData {
	result := protocol.SystemInfoResult{
		FamilyOS:      familyOS(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		MainSeparator: string(filepath.Separator),
		NumCPUs:       uint32(runtime.NumCPU()),
	}

	if dir, err := os.Getwd(); err == nil {
		result.CurrentDir = dir
	}
	if u, err := user.Current(); err == nil {
		result.Username = u.Username
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		result.Shell = shell
	} else if runtime.GOOS == "windows" {
		result.Shell = os.Getenv("COMSPEC")
	}
	if usage, err := disk.Usage(defaultVolume()); err == nil {
		result.FreeDiskMB = usage.Free / (1024 * 1024)
	}

	return result
}

func familyOS() string {
	switch runtime.GOOS {
	case "windows":
		return "windows"
	case "darwin", "ios":
		return "unix"
	default:
		return "unix"
	}
}

func defaultVolume() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}
