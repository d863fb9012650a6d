package paths

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestDataDirPrecedence(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix layout")
	}
	t.Cleanup(func() { SetDataDirOverride("") })

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(envDataDir, "")
	t.Setenv(envXDGDataHome, "")
	if got, want := DataDir(), filepath.Join(home, ".local", "share", "ptylogin"); got != want {
		t.Fatalf("home default: got %s want %s", got, want)
	}

	xdg := t.TempDir()
	t.Setenv(envXDGDataHome, xdg)
	if got, want := DataDir(), filepath.Join(xdg, "ptylogin"); got != want {
		t.Fatalf("xdg: got %s want %s", got, want)
	}

	explicit := t.TempDir()
	t.Setenv(envDataDir, explicit+"/")
	if got := DataDir(); got != explicit {
		t.Fatalf("env: got %s want %s", got, explicit)
	}

	pinned := t.TempDir()
	SetDataDirOverride(pinned)
	if got := DataPath("ptylogin.db"); got != filepath.Join(pinned, "ptylogin.db") {
		t.Fatalf("override: got %s", got)
	}
}
