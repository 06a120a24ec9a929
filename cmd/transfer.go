package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/illarion/ksv/internal/core"
	"github.com/illarion/ksv/internal/crypto"
	"github.com/illarion/ksv/internal/git"
)

var (
	exportForce bool

	importKeepLocal   bool
	importUseImported bool
	importKeepBoth    bool
	importAbort       bool
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the decrypted vault as JSON",
	Long: `Writes the decrypted vault as canonical JSON (default vault.ksv.json).
The file must lie in the vault's directory. Keep it out of version control
and delete it once you are done.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return Export(cmd, exportTarget(args))
	},
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Merge a plaintext vault file into the vault",
	Long: `Merges items and templates from a plaintext vault file (default
vault.ksv.json). Items new to the vault are added. For items whose name
matches a stored one you are asked, unless a flag picks for all:

  [l] Keep the stored item
  [i] Use the imported item
  [e] Edit merged (opens both in $EDITOR)
  [b] Keep both (imported item is renamed)
  [x] Skip this item`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return Import(cmd, exportTarget(args))
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff [file]",
	Short: "Compare the vault with a plaintext vault file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return Diff(cmd, exportTarget(args))
	},
}

func init() {
	exportCmd.Flags().BoolVarP(&exportForce, "force", "f", false, "overwrite an existing file")

	importCmd.Flags().BoolVar(&importKeepLocal, "keep-local", false, "keep stored items on conflict")
	importCmd.Flags().BoolVar(&importUseImported, "use-imported", false, "replace stored items on conflict")
	importCmd.Flags().BoolVar(&importKeepBoth, "keep-both", false, "keep both items on conflict, renaming the imported one")
	importCmd.Flags().BoolVar(&importAbort, "abort", false, "fail without changes on any conflict")
	importCmd.MarkFlagsMutuallyExclusive("keep-local", "use-imported", "keep-both", "abort")
}

func exportTarget(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return core.DefaultExportFile
}

// Export writes the decrypted vault to path
func Export(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	password, source, err := GetPasswordWithRetry(ctx, k, "Enter password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(password)

	var result *core.ExportResult
	if err := withSpinner("Opening vault", func() error {
		var err error
		result, err = k.Export(ctx, password, path, exportForce)
		return err
	}); err != nil {
		return err
	}

	fmt.Fprintf(out, "✓ Exported %d item(s) to %s\n", result.Items, result.Path)
	fmt.Fprintln(out, color.YellowString("warning: the file holds every secret in cleartext"))
	if result.GitStatus != nil && !result.GitStatus.Safe() {
		fmt.Fprint(out, color.New(color.FgYellow).Sprint(git.FormatGitStatus(result.GitStatus)))
	}
	OfferToSavePassword(k, password, source)
	return nil
}

func importStrategy() core.MergeStrategy {
	switch {
	case importKeepLocal:
		return core.StrategyKeepLocal
	case importUseImported:
		return core.StrategyUseImported
	case importKeepBoth:
		return core.StrategyKeepBoth
	case importAbort:
		return core.StrategyAbort
	default:
		return core.StrategyAsk
	}
}

// Import merges the plaintext vault at path into the vault
func Import(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	password, source, err := GetPasswordWithRetry(ctx, k, "Enter password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(password)

	strategy := importStrategy()
	run := func() error {
		result, err := k.Import(ctx, password, path, strategy)
		if err != nil {
			return err
		}
		printImportResult(cmd, result)
		return nil
	}

	// Conflict prompts need the terminal to themselves
	if strategy == core.StrategyAsk {
		err = run()
	} else {
		err = withSpinner("Merging vault", run)
	}
	if err != nil {
		return err
	}
	OfferToSavePassword(k, password, source)
	return nil
}

func printImportResult(cmd *cobra.Command, r *core.ImportResult) {
	out := cmd.OutOrStdout()
	line := func(mark, verb string, names []string) {
		if len(names) > 0 {
			fmt.Fprintf(out, "%s %s %d item(s): %s\n", mark, verb, len(names), strings.Join(names, ", "))
		}
	}
	line(color.GreenString("+"), "Added", r.Added)
	line(color.YellowString("~"), "Replaced", r.Replaced)
	line(color.CyanString("+"), "Kept both, imported as", r.Renamed)
	line(" ", "Unchanged", r.Unchanged)
	line("-", "Skipped", r.Skipped)
	if r.Templates > 0 {
		fmt.Fprintf(out, "%s Added %d template(s)\n", color.GreenString("+"), r.Templates)
	}
}

// Diff shows how a plaintext vault file differs from the vault
func Diff(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	password, source, err := GetPasswordWithRetry(ctx, k, "Enter password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(password)

	var diff string
	if err := withSpinner("Opening vault", func() error {
		var err error
		diff, err = k.Diff(ctx, password, path)
		return err
	}); err != nil {
		return err
	}

	if diff == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s matches the vault\n", path)
	} else {
		printDiff(cmd, diff)
	}
	OfferToSavePassword(k, password, source)
	return nil
}

func printDiff(cmd *cobra.Command, diff string) {
	out := cmd.OutOrStdout()
	colored := out == os.Stdout && !color.NoColor
	bold, green, red, cyan := color.New(color.Bold), color.New(color.FgGreen), color.New(color.FgRed), color.New(color.FgCyan)
	for _, line := range strings.SplitAfter(diff, "\n") {
		switch {
		case !colored || line == "":
			fmt.Fprint(out, line)
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprint(out, bold.Sprint(line))
		case strings.HasPrefix(line, "+"):
			fmt.Fprint(out, green.Sprint(line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprint(out, red.Sprint(line))
		case strings.HasPrefix(line, "@@"):
			fmt.Fprint(out, cyan.Sprint(line))
		default:
			fmt.Fprint(out, line)
		}
	}
}
