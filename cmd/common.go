package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/illarion/ksv/internal/config"
	"github.com/illarion/ksv/internal/core"
	"github.com/illarion/ksv/internal/crypto"
	"github.com/illarion/ksv/internal/keygen"
	"github.com/illarion/ksv/internal/keyring"
	"github.com/illarion/ksv/internal/security"
	"github.com/illarion/ksv/internal/vault"
)

// PasswordSource tells where a password came from
type PasswordSource int

const (
	SourceEnv PasswordSource = iota
	SourceKeyring
	SourcePrompt
)

func (s PasswordSource) String() string {
	switch s {
	case SourceEnv:
		return "environment"
	case SourceKeyring:
		return "keyring"
	default:
		return "prompt"
	}
}

// GetPassword retrieves the vault password from KSV_PASSWORD, the OS
// keyring or a prompt, in that order.
// The caller is responsible for calling crypto.ClearBytes on the returned password
func GetPassword(k *core.Keeper, prompt string) ([]byte, PasswordSource, error) {
	if cfg.Password != "" {
		return []byte(cfg.Password), SourceEnv, nil
	}

	if cfg.Keyring {
		if vaultID, err := k.GetVaultID(); err == nil && vaultID != "" {
			if password, err := keyring.GetPassword(vaultID); err == nil {
				log.Debug().Str("vault_id", vaultID).Msg("password read from keyring")
				return password, SourceKeyring, nil
			}
		}
	}

	password, err := core.ReadPassword(prompt)
	if err != nil {
		return nil, SourcePrompt, err
	}
	return password, SourcePrompt, nil
}

// GetPasswordWithRetry is GetPassword, except that a keyring password
// the vault rejects is dropped in favour of a prompt.
func GetPasswordWithRetry(ctx context.Context, k *core.Keeper, prompt string) ([]byte, PasswordSource, error) {
	password, source, err := GetPassword(k, prompt)
	if err != nil || source != SourceKeyring {
		return password, source, err
	}

	err = withSpinner("Verifying password", func() error {
		return k.VerifyPassword(ctx, password)
	})
	if err == nil {
		return password, source, nil
	}
	crypto.ClearBytes(password)
	if !errors.Is(err, crypto.ErrAuthFailed) {
		return nil, source, err
	}

	fmt.Fprintln(os.Stderr, color.YellowString("Password stored in keyring does not open this vault"))
	password, err = core.ReadPassword(prompt)
	if err != nil {
		return nil, SourcePrompt, err
	}
	return password, SourcePrompt, nil
}

// GetPasswordForInit reads the password for a new vault from KSV_PASSWORD,
// or prompts twice
func GetPasswordForInit() ([]byte, PasswordSource, error) {
	if cfg.Password != "" {
		return []byte(cfg.Password), SourceEnv, nil
	}
	password, err := core.ReadPasswordConfirm("Enter new password: ")
	return password, SourcePrompt, err
}

// OfferToSavePassword asks whether a typed password should go to the keyring
func OfferToSavePassword(k *core.Keeper, password []byte, source PasswordSource) {
	if source != SourcePrompt || !cfg.Keyring || !core.IsTerminal() {
		return
	}
	vaultID, err := k.GetOrCreateVaultID()
	if err != nil || keyring.HasPassword(vaultID) {
		return
	}
	if !confirm("Save password to OS keyring?") {
		return
	}
	if err := keyring.SavePassword(vaultID, password); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save to keyring: %s\n", err)
		return
	}
	fmt.Println("Password saved to keyring")
}

// confirm asks a yes/no question on stderr, defaulting to no
func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// withSpinner runs fn on a separate goroutine while a spinner is shown on
// stderr. The spinner is skipped off a terminal and in debug mode so it
// does not interleave with log lines.
func withSpinner(message string, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	if !core.IsTerminal() || log.GetLevel() <= zerolog.DebugLevel {
		return <-done
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message
	if err := s.Color("cyan"); err != nil {
		log.Debug().Err(err).Msg("failed to set spinner color")
	}
	s.Start()
	err := <-done
	s.Stop()
	return err
}

// update loads the vault, applies fn and seals the result
func update(ctx context.Context, k *core.Keeper, fn func(*vault.Vault) error) error {
	password, source, err := GetPasswordWithRetry(ctx, k, "Enter password: ")
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(password)

	if err := withSpinner("Sealing vault", func() error {
		return k.Update(ctx, password, fn)
	}); err != nil {
		return err
	}
	OfferToSavePassword(k, password, source)
	return nil
}

// load opens the vault read-only
func load(ctx context.Context, k *core.Keeper) (*vault.Vault, error) {
	password, source, err := GetPasswordWithRetry(ctx, k, "Enter password: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(password)

	var v *vault.Vault
	if err := withSpinner("Opening vault", func() error {
		var err error
		v, err = k.Load(ctx, password)
		return err
	}); err != nil {
		return nil, err
	}
	OfferToSavePassword(k, password, source)
	return v, nil
}

// HandleError prints err in user terms and exits non-zero
func HandleError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	vaultFile := cfg.Vault

	switch {
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "%s no vault at %s\n", red("Error:"), vaultFile)
		fmt.Fprintln(os.Stderr, "Run 'ksv init' first")
	case errors.Is(err, core.ErrAlreadyExists):
		fmt.Fprintf(os.Stderr, "%s %s already exists\n", red("Error:"), vaultFile)
		fmt.Fprintln(os.Stderr, "Use 'ksv status' to see current state")
	case errors.Is(err, crypto.ErrAuthFailed):
		fmt.Fprintf(os.Stderr, "%s wrong password or corrupted vault\n", red("Error:"))
	case errors.Is(err, crypto.ErrMalformedEnvelope):
		fmt.Fprintf(os.Stderr, "%s %s is not a ksv vault envelope: %s\n", red("Error:"), vaultFile, err)
	case errors.Is(err, core.ErrPasswordRequired):
		fmt.Fprintf(os.Stderr, "%s password required\n", red("Error:"))
		fmt.Fprintln(os.Stderr, "Set KSV_PASSWORD or run from a terminal")
	case errors.Is(err, core.ErrExportExists), errors.Is(err, config.ErrExists):
		fmt.Fprintf(os.Stderr, "%s %s\n", red("Error:"), err)
		fmt.Fprintln(os.Stderr, "Use --force to overwrite")
	case errors.Is(err, security.ErrPathEscapes), errors.Is(err, security.ErrAbsolutePath):
		fmt.Fprintf(os.Stderr, "%s %s\n", red("Error:"), err)
		fmt.Fprintln(os.Stderr, "Plaintext exports must stay in the vault's directory")
	case errors.Is(err, keygen.ErrLengthConstraint), errors.Is(err, keygen.ErrInsufficientCapacity):
		fmt.Fprintf(os.Stderr, "%s cannot generate key: %s\n", red("Error:"), err)
	case errors.Is(err, config.ErrInvalidConfig):
		fmt.Fprintf(os.Stderr, "%s %s\n", red("Error:"), err)
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "Interrupted")
	default:
		fmt.Fprintf(os.Stderr, "%s %s\n", red("Error:"), err)
	}
	os.Exit(1)
}
