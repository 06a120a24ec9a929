package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// GitStatus describes the vault file and plaintext exports relative to git
type GitStatus struct {
	IsRepo           bool
	VaultFile        string
	VaultTracked     bool
	TrackedExports   []string // committed plaintext, must be removed
	UnignoredExports []string // not covered by .gitignore
	IgnoredExports   []string
}

func run(workDir string, args ...string) ([]byte, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = workDir
	return cmd.Output()
}

// IsGitRepo checks if the working directory is inside a git repository
func IsGitRepo(workDir string) bool {
	_, err := run(workDir, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(workDir, path string) bool {
	output, err := run(workDir, "ls-files", "--", path)
	return err == nil && len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a path is ignored by any .gitignore
func IsIgnored(workDir, path string) bool {
	// check-ignore exits 0 when the path is ignored
	_, err := run(workDir, "check-ignore", "-q", "--", path)
	return err == nil
}

// CheckGitIntegration inspects vaultFile and the given plaintext export paths,
// all relative to workDir.
func CheckGitIntegration(workDir, vaultFile string, exports []string) (*GitStatus, error) {
	status := &GitStatus{VaultFile: vaultFile}
	if !IsGitRepo(workDir) {
		return status, nil
	}
	status.IsRepo = true
	status.VaultTracked = IsTracked(workDir, vaultFile)

	for _, file := range exports {
		if IsTracked(workDir, file) {
			status.TrackedExports = append(status.TrackedExports, file)
		}
		if IsIgnored(workDir, file) {
			status.IgnoredExports = append(status.IgnoredExports, file)
		} else {
			status.UnignoredExports = append(status.UnignoredExports, file)
		}
	}
	return status, nil
}

// Safe reports whether no plaintext export is tracked or unignored
func (s *GitStatus) Safe() bool {
	return len(s.TrackedExports) == 0 && len(s.UnignoredExports) == 0
}

// FormatGitStatus renders the status as indented report lines
func FormatGitStatus(status *GitStatus) string {
	if status == nil || !status.IsRepo {
		return ""
	}

	var b strings.Builder
	b.WriteString("\nGit Integration:\n")

	if status.VaultTracked {
		fmt.Fprintf(&b, "   ok: %s is tracked by git\n", status.VaultFile)
	} else {
		fmt.Fprintf(&b, "   warning: %s not tracked (run: git add %s)\n", status.VaultFile, status.VaultFile)
	}

	tracked := make(map[string]bool, len(status.TrackedExports))
	for _, file := range status.TrackedExports {
		tracked[file] = true
		fmt.Fprintf(&b, "   error: plaintext export %s is tracked (run: git rm --cached %s)\n", file, file)
	}
	for _, file := range status.UnignoredExports {
		if !tracked[file] {
			fmt.Fprintf(&b, "   warning: plaintext export %s not in .gitignore\n", file)
		}
	}
	if n := len(status.IgnoredExports); n > 0 && len(status.TrackedExports) == 0 {
		fmt.Fprintf(&b, "   ok: %d plaintext export(s) in .gitignore\n", n)
	}

	return b.String()
}
