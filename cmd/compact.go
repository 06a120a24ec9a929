package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Compact the vault file to reclaim unused space",
	Long: `Compacts the vault database to reclaim space left behind by earlier
envelopes. Done automatically after 'passwd'.

Does not require a password.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return Compact(cmd)
	},
}

// Compact compacts the vault database to reclaim unused space
func Compact(cmd *cobra.Command) error {
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	info, err := os.Stat(k.Path())
	if err != nil {
		return err
	}
	sizeBefore := info.Size()

	if err := k.Compact(); err != nil {
		return err
	}

	info, err = os.Stat(k.Path())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(info.Size()))
	return nil
}

// formatSize formats a file size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
