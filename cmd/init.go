package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/ksv/internal/crypto"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a vault with the default template catalog",
	Long: `Creates the vault file (default .ksv) sealed with a new password.
The vault starts empty apart from the standard character class, generator
and field templates. The password is not stored anywhere unless you save it
to the OS keyring.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return Init(cmd)
	},
}

// Init creates a new vault file
func Init(cmd *cobra.Command) error {
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	password, source, err := GetPasswordForInit()
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(password)

	if err := withSpinner("Sealing vault", func() error {
		return k.Init(cmd.Context(), password)
	}); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Initialized %s\n", cfg.Vault)
	OfferToSavePassword(k, password, source)
	return nil
}
