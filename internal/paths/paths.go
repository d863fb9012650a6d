// SPDX-License-Identifier: AGPL-3.0-or-later

// Package paths resolves where ptylogin keeps its run journal.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
)

const (
	appDirName      = "ptylogin"
	envDataDir      = "PTYLOGIN_DATA_DIR"
	envXDGDataHome  = "XDG_DATA_HOME"
	envLocalAppData = "LOCALAPPDATA"
)

var override atomic.Pointer[string]

// SetDataDirOverride pins the data directory, e.g. from --data-dir. An empty
// string clears the override.
func SetDataDirOverride(dir string) {
	if dir == "" {
		override.Store(nil)
		return
	}
	clean := filepath.Clean(dir)
	override.Store(&clean)
}

// DataDir returns the directory ptylogin persists into.
// Order of precedence:
//  1. SetDataDirOverride
//  2. PTYLOGIN_DATA_DIR, used as is
//  3. %LOCALAPPDATA%\ptylogin on Windows, $XDG_DATA_HOME/ptylogin or
//     ~/.local/share/ptylogin elsewhere
//  4. ./ptylogin, then $TMPDIR/ptylogin
func DataDir() string {
	if ptr := override.Load(); ptr != nil && *ptr != "" {
		return *ptr
	}
	if dir := os.Getenv(envDataDir); dir != "" {
		return filepath.Clean(dir)
	}
	if runtime.GOOS == "windows" {
		if base := os.Getenv(envLocalAppData); base != "" {
			return filepath.Join(base, appDirName)
		}
	}
	if xdg := os.Getenv(envXDGDataHome); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "share", appDirName)
	}
	if cwd, err := os.Getwd(); err == nil && cwd != "" {
		return filepath.Join(cwd, appDirName)
	}
	return filepath.Join(os.TempDir(), appDirName)
}

// DataPath joins the data directory with elem.
func DataPath(elem ...string) string {
	return filepath.Join(append([]string{DataDir()}, elem...)...)
}
