package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTempScopeCreateAndRelease(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	scope, err := NewTempScope(dir)
	if err != nil {
		t.Fatalf("NewTempScope failed: %v", err)
	}

	first, err := scope.CreateFile("upload", []byte("abc"))
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	second, err := scope.CreateFile("upload", []byte("def"))
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if first == second {
		t.Fatalf("two files share the path %s", first)
	}

	if err := scope.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	for _, path := range []string{first, second} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("%s survived Release", path)
		}
	}
}

func TestTempScopeReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	scope, err := NewTempScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewTempScope failed: %v", err)
	}
	if _, err := scope.CreateFile("upload", []byte("abc")); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}

	if err := scope.Release(); err != nil {
		t.Fatalf("first Release failed: %v", err)
	}
	if err := scope.Release(); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}
}

func TestTempScopeToleratesAlreadyRemovedFiles(t *testing.T) {
	t.Parallel()

	scope, err := NewTempScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewTempScope failed: %v", err)
	}
	path, err := scope.CreateFile("upload", []byte("abc"))
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}

	// Something else cleaned the file up first.
	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to pre-remove file: %v", err)
	}

	if err := scope.Release(); err != nil {
		t.Fatalf("Release failed on missing file: %v", err)
	}
}

func TestTempScopeRejectsUseAfterRelease(t *testing.T) {
	t.Parallel()

	scope, err := NewTempScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewTempScope failed: %v", err)
	}
	if err := scope.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if _, err := scope.CreateFile("upload", []byte("abc")); err == nil {
		t.Fatal("CreateFile succeeded on a released scope")
	}
}

func TestTempScopeTracksExternalFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	scope, err := NewTempScope(dir)
	if err != nil {
		t.Fatalf("NewTempScope failed: %v", err)
	}

	external := filepath.Join(dir, "converted.wav")
	if err := os.WriteFile(external, []byte("abc"), 0644); err != nil {
		t.Fatalf("failed to write external file: %v", err)
	}
	scope.Track(external)

	if err := scope.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(external); !os.IsNotExist(err) {
		t.Fatal("tracked external file survived Release")
	}
}
