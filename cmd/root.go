// Package cmd implements the ksv command line.
package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/illarion/ksv/internal/config"
	"github.com/illarion/ksv/internal/core"
	"github.com/illarion/ksv/internal/logger"
)

var (
	vaultPath  string
	configPath string
	logLevel   string
	debug      bool
	noKeyring  bool

	cfg = config.Default()
	log = logger.Nop()

	// extra Keeper options, set by tests
	keeperOptions []core.Option

	rootCmd = &cobra.Command{
		Use:   "ksv",
		Short: "Generate keys that satisfy site rules and keep them in a sealed vault",
		Long: `ksv generates passwords, PINs and other keys from character class rules
and stores them in a password-sealed vault file next to your project.

The vault is a single file (default .ksv) holding an AES-256-GCM envelope.
The password is read from KSV_PASSWORD, the OS keyring, or a prompt.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&vaultPath, "vault", "", "vault file (default .ksv)")
	flags.StringVar(&configPath, "config", "", "config file (default $KSV_CONFIG or ~/.config/ksv/config.toml)")
	flags.StringVar(&logLevel, "log-level", "", "diagnostic log level (debug, info, warn, error)")
	flags.BoolVarP(&debug, "debug", "d", false, "enable debug output")
	flags.BoolVar(&noKeyring, "no-keyring", false, "never read or offer to store the password in the OS keyring")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(genCmd)
	rootCmd.AddCommand(itemCmd)
	rootCmd.AddCommand(entryCmd)
	rootCmd.AddCommand(fieldCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(passwdCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(keyringCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the command tree under ctx
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// setup resolves configuration and the diagnostic logger before any command runs
func setup(_ *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}

	overrides := config.Config{Vault: vaultPath, LogLevel: logLevel}
	if debug {
		overrides.LogLevel = "debug"
	}
	if err := c.Override(overrides); err != nil {
		return err
	}
	if noKeyring {
		c.Keyring = false
	}

	l, err := logger.New(c.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	cfg, log = c, l
	log.Debug().Str("config", c.Path).Str("vault", c.Vault).Bool("keyring", c.Keyring).Msg("configuration resolved")
	return nil
}

// openKeeper builds a Keeper for the configured vault file
func openKeeper() (*core.Keeper, error) {
	opts := append([]core.Option{core.WithLogger(log)}, keeperOptions...)
	return core.New(cfg.Vault, opts...)
}
