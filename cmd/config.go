package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/illarion/ksv/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and write the ksv settings file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [FILE]",
	Short: "Write the current settings to a config file",
	Long: `Writes the resolved settings (defaults, environment and flags) as TOML
to FILE, or to $KSV_CONFIG or ~/.config/ksv/config.toml. The password is
never written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath()
		if len(args) > 0 {
			path = args[0]
		}
		return ConfigInit(cmd, path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return ConfigShow(cmd)
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing config file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
}

// ConfigInit saves the resolved settings to path
func ConfigInit(cmd *cobra.Command, path string) error {
	if path == "" {
		return fmt.Errorf("%w: no user config directory, name a FILE", config.ErrInvalidConfig)
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%w: %s", config.ErrExists, path)
	}

	if err := cfg.Save(path); err != nil {
		return err
	}
	log.Debug().Str("path", path).Msg("saved config")
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
	return nil
}

// ConfigShow prints the resolved settings as TOML
func ConfigShow(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	if cfg.Path != "" {
		fmt.Fprintf(out, "# read from %s\n", cfg.Path)
	}
	return cfg.Encode(out)
}
