package version

import (
	"os"
	"path/filepath"
	"testing"
)

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestInstalledMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "VERSION")
	if err := os.WriteFile(path, []byte("latest\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := InstalledMarker(path); got != "latest" {
		t.Errorf("InstalledMarker = %q, want %q", got, "latest")
	}
	if got := InstalledMarker(filepath.Join(t.TempDir(), "missing")); got != "" {
		t.Errorf("missing marker should yield empty string, got %q", got)
	}
	if got := InstalledMarker(""); got != "" {
		t.Errorf("empty path should yield empty string, got %q", got)
	}
}
