package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/ksv/internal/core"
	"github.com/illarion/ksv/internal/crypto"
	"github.com/illarion/ksv/internal/keyring"
)

var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Manage the vault password cached in the OS keyring",
}

func init() {
	keyringCmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Verify the password and store it in the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return KeyringSave(cmd)
		},
	})
	keyringCmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the vault password from the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return KeyringDelete(cmd)
		},
	})
	keyringCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the vault password is stored in the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return KeyringStatus(cmd)
		},
	})
}

// KeyringSave saves the password to the OS keyring
func KeyringSave(cmd *cobra.Command) error {
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	password, err := core.ReadPassword("Enter password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(password)

	if err := withSpinner("Verifying password", func() error {
		return k.VerifyPassword(cmd.Context(), password)
	}); err != nil {
		return err
	}

	vaultID, err := k.GetOrCreateVaultID()
	if err != nil {
		return err
	}
	if err := keyring.SavePassword(vaultID, password); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Password saved to keyring")
	return nil
}

// KeyringDelete removes the password from the OS keyring
func KeyringDelete(cmd *cobra.Command) error {
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	out := cmd.OutOrStdout()
	vaultID, err := k.GetVaultID()
	if err != nil || !keyring.HasPassword(vaultID) {
		fmt.Fprintln(out, "No password stored in keyring")
		return nil
	}
	if err := keyring.DeletePassword(vaultID); err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	fmt.Fprintln(out, "Password removed from keyring")
	return nil
}

// KeyringStatus checks if a password is stored in the keyring
func KeyringStatus(cmd *cobra.Command) error {
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	out := cmd.OutOrStdout()
	vaultID, err := k.GetVaultID()
	if err == nil && keyring.HasPassword(vaultID) {
		fmt.Fprintln(out, "Password: stored in keyring")
	} else {
		fmt.Fprintln(out, "Password: not stored")
	}
	return nil
}
