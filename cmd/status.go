package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/illarion/ksv/internal/core"
	"github.com/illarion/ksv/internal/git"
	"github.com/illarion/ksv/internal/keyring"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"info"},
	Short:   "Show vault metadata, plaintext exports and git safety",
	Long: `Shows the vault file, its envelope parameters, any plaintext exports
lying next to it and whether git would pick those up.

Does not require a password.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return Status(cmd)
	},
}

// Status shows the current state of the vault
func Status(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	status, err := k.Status(cmd.Context())
	if errors.Is(err, core.ErrNotInitialized) {
		fmt.Fprintf(out, "No vault found at %s\n", cfg.Vault)
		fmt.Fprintln(out, "Run 'ksv init' to create one")
		return nil
	}
	if err != nil {
		return err
	}

	label := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(out, "%s %s (%s)\n", label("Vault:"), status.Path, formatSize(status.FileSize))
	fmt.Fprintf(out, "  %-14s %s\n", "ID:", color.YellowString(status.VaultID))
	fmt.Fprintf(out, "  %-14s %s\n", "Format:", status.FormatVersion)
	fmt.Fprintf(out, "  %-14s %s\n", "Created:", status.Created.Format(time.RFC3339))
	fmt.Fprintf(out, "  %-14s %s\n", "Last sealed:", status.Modified.Format(time.RFC3339))

	fmt.Fprintf(out, "\n%s\n", label("Encryption:"))
	fmt.Fprintf(out, "  %-14s %d\n", "Envelope:", status.EnvelopeVersion)
	fmt.Fprintf(out, "  %-14s %s\n", "Algorithm:", status.Algorithm)
	fmt.Fprintf(out, "  %-14s %d\n", "Iterations:", status.KDFIterations)
	fmt.Fprintf(out, "  %-14s %s\n", "Sealed size:", formatSize(int64(status.EnvelopeSize)))

	keyringState := color.YellowString("not stored")
	if keyring.HasPassword(status.VaultID) {
		keyringState = color.GreenString("stored")
	}
	fmt.Fprintf(out, "  %-14s %s\n", "Keyring:", keyringState)

	fmt.Fprintf(out, "\n%s\n", label("Plaintext exports:"))
	if len(status.Exports) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	for _, p := range status.Exports {
		fmt.Fprintf(out, "  %s %s\n", color.RedString("!"), p)
	}

	if status.GitStatus != nil {
		report := git.FormatGitStatus(status.GitStatus)
		if status.GitStatus.Safe() {
			fmt.Fprint(out, report)
		} else {
			fmt.Fprint(out, color.New(color.FgYellow).Sprint(report))
		}
	}
	return nil
}
