package security

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func newValidator(t *testing.T) (*PathValidator, string) {
	t.Helper()
	dir := t.TempDir()
	pv, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	t.Cleanup(func() { pv.Close() })
	return pv, dir
}

func TestValidateAndNormalize(t *testing.T) {
	pv, _ := newValidator(t)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"simple file", "export.json", "export.json", nil},
		{"nested file", "backup/2026/export.json", "backup/2026/export.json", nil},
		{"hidden file", ".ksv-export", ".ksv-export", nil},
		{"dot slash", "./export.json", "export.json", nil},
		{"redundant slashes", "a//b///export.json", "a/b/export.json", nil},
		{"dot segments", "a/./b/../export.json", "a/export.json", nil},

		{"parent directory", "../export.json", "", ErrPathEscapes},
		{"nested parent", "a/../../export.json", "", ErrPathEscapes},
		{"absolute path", "/etc/passwd", "", ErrAbsolutePath},
		{"empty path", "", "", ErrEmptyPath},
	}
	if runtime.GOOS == "windows" {
		tests = append(tests, struct {
			name    string
			input   string
			want    string
			wantErr error
		}{"absolute path windows", `C:\Windows\System32`, "", ErrAbsolutePath})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pv.ValidateAndNormalize(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateAndNormalize(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error for %q: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ValidateAndNormalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRelativize(t *testing.T) {
	pv, dir := newValidator(t)

	got, err := pv.Relativize(filepath.Join(dir, "sub", "export.json"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "sub/export.json" {
		t.Errorf("Relativize = %q, want sub/export.json", got)
	}

	if got, err := pv.Relativize("export.json"); err != nil || got != "export.json" {
		t.Errorf("Relativize(relative) = %q, %v", got, err)
	}

	outside := filepath.Join(filepath.Dir(dir), "elsewhere.json")
	if _, err := pv.Relativize(outside); !errors.Is(err, ErrPathEscapes) {
		t.Errorf("Expected ErrPathEscapes for %q, got %v", outside, err)
	}
}

func TestWriteAndReadInRoot(t *testing.T) {
	pv, dir := newValidator(t)

	if err := pv.MkdirAllInRoot("a/b", 0700); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := pv.WriteFileInRoot("a/b/export.json", []byte(`{}`), 0600); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "a", "b", "export.json"))
	if err != nil {
		t.Fatalf("File not written inside root: %v", err)
	}
	if string(content) != `{}` {
		t.Errorf("Content mismatch: got %q", content)
	}

	read, err := pv.ReadFileInRoot("a/b/export.json")
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if string(read) != `{}` {
		t.Errorf("Read mismatch: got %q", read)
	}

	info, err := pv.StatInRoot("a/b/export.json")
	if err != nil {
		t.Fatalf("Failed to stat: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("Permissions = %v, want 0600", info.Mode().Perm())
	}

	if _, err := pv.StatInRoot("missing.json"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestOperationsRejectEscapes(t *testing.T) {
	pv, dir := newValidator(t)

	for _, path := range []string{"../outside.json", "/etc/passwd", ""} {
		if err := pv.WriteFileInRoot(path, []byte("x"), 0600); err == nil {
			t.Errorf("WriteFileInRoot(%q) should fail", path)
		}
		if _, err := pv.ReadFileInRoot(path); err == nil {
			t.Errorf("ReadFileInRoot(%q) should fail", path)
		}
		if err := pv.MkdirAllInRoot(path, 0700); err == nil {
			t.Errorf("MkdirAllInRoot(%q) should fail", path)
		}
		if _, err := pv.StatInRoot(path); err == nil {
			t.Errorf("StatInRoot(%q) should fail", path)
		}
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "outside.json")); err == nil {
		t.Error("File was created outside the root")
		os.Remove(filepath.Join(filepath.Dir(dir), "outside.json"))
	}
}

func TestSymlinkEscapeBlocked(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	pv, dir := newValidator(t)
	outside := t.TempDir()

	if err := os.Symlink(outside, filepath.Join(dir, "link")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	err := pv.WriteFileInRoot("link/pwned.json", []byte("x"), 0600)
	if err == nil {
		t.Error("Expected write through escaping symlink to fail")
	}
	if _, statErr := os.Stat(filepath.Join(outside, "pwned.json")); statErr == nil {
		t.Error("File was written outside the root through a symlink")
	}
	if err != nil && strings.Contains(err.Error(), "invalid path") {
		t.Errorf("Symlink should pass lexical validation and be stopped by os.Root, got %v", err)
	}
}
