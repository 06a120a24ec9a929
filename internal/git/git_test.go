package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "test"},
	} {
		if out, err := run(dir, args...); err != nil {
			t.Fatalf("git %v failed: %v %s", args, err, out)
		}
	}
	return dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

func TestCheckGitIntegration_NotARepo(t *testing.T) {
	dir := t.TempDir()
	status, err := CheckGitIntegration(dir, ".ksv", []string{"export.json"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if status.IsRepo {
		t.Skip("temp dir is inside a git work tree")
	}
	if FormatGitStatus(status) != "" {
		t.Error("No report expected outside a repository")
	}
}

func TestCheckGitIntegration(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, ".ksv", "sealed")
	writeFile(t, dir, ".gitignore", "ignored.json\n")
	writeFile(t, dir, "ignored.json", "{}")
	writeFile(t, dir, "open.json", "{}")
	writeFile(t, dir, "committed.json", "{}")

	if out, err := run(dir, "add", ".ksv", "committed.json"); err != nil {
		t.Fatalf("git add failed: %v %s", err, out)
	}

	status, err := CheckGitIntegration(dir, ".ksv", []string{"ignored.json", "open.json", "committed.json"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !status.IsRepo || !status.VaultTracked {
		t.Fatalf("Expected repo with tracked vault, got %+v", status)
	}
	if len(status.TrackedExports) != 1 || status.TrackedExports[0] != "committed.json" {
		t.Errorf("TrackedExports = %v", status.TrackedExports)
	}
	if len(status.IgnoredExports) != 1 || status.IgnoredExports[0] != "ignored.json" {
		t.Errorf("IgnoredExports = %v", status.IgnoredExports)
	}
	if status.Safe() {
		t.Error("Status with tracked plaintext must not be safe")
	}

	report := FormatGitStatus(status)
	for _, want := range []string{
		"ok: .ksv is tracked",
		"error: plaintext export committed.json is tracked",
		"warning: plaintext export open.json not in .gitignore",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("Report missing %q:\n%s", want, report)
		}
	}
	if strings.Contains(report, "committed.json not in .gitignore") {
		t.Errorf("Tracked export reported twice:\n%s", report)
	}
}
