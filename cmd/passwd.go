package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/illarion/ksv/internal/core"
	"github.com/illarion/ksv/internal/crypto"
	"github.com/illarion/ksv/internal/keyring"
)

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the vault password",
	Long: `Re-seals the vault under a new password with a fresh salt and nonce.
A keyring entry for the vault is updated to the new password.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return Passwd(cmd)
	},
}

// Passwd changes the vault password
func Passwd(cmd *cobra.Command) error {
	ctx := cmd.Context()
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	currentPassword, _, err := GetPasswordWithRetry(ctx, k, "Enter current password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(currentPassword)

	newPassword, err := core.ReadPasswordConfirm("Enter new password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(newPassword)

	if err := withSpinner("Re-sealing vault", func() error {
		return k.ChangePassword(ctx, currentPassword, newPassword)
	}); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if vaultID, err := k.GetVaultID(); err == nil && cfg.Keyring && keyring.HasPassword(vaultID) {
		if err := keyring.SavePassword(vaultID, newPassword); err == nil {
			fmt.Fprintln(out, "Keyring updated with new password")
		}
	}

	if err := k.Compact(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: compaction failed: %s\n", err)
	}

	fmt.Fprintln(out, "Password changed successfully")
	return nil
}
