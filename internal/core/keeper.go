package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/illarion/ksv/internal/crypto"
	"github.com/illarion/ksv/internal/git"
	"github.com/illarion/ksv/internal/keygen"
	"github.com/illarion/ksv/internal/logger"
	"github.com/illarion/ksv/internal/security"
	"github.com/illarion/ksv/internal/storage"
	"github.com/illarion/ksv/internal/vault"
)

const (
	DefaultVaultFile  = ".ksv"
	DefaultExportFile = "vault.ksv.json"
	ExportGlob        = "*.ksv.json" // plaintext exports reported by Status
	DirPermSecure     = 0700
	FilePermSecure    = 0600
)

var (
	ErrNotInitialized   = errors.New("ksv vault not initialized")
	ErrAlreadyExists    = errors.New("ksv vault already exists")
	ErrPasswordRequired = errors.New("password required")
	ErrExportExists     = errors.New("export file already exists")
)

// Keeper manages one sealed vault file. Mutating operations are
// serialized; the database is opened per operation and bbolt's file lock
// guards against other processes.
type Keeper struct {
	path      string
	mu        sync.Mutex
	sealer    *crypto.Sealer
	gen       *keygen.Generator
	log       *logger.Logger
	validator *security.PathValidator
}

type Option func(*Keeper)

func WithLogger(l *logger.Logger) Option {
	return func(k *Keeper) { k.log = l }
}

// WithSealer replaces the default envelope sealer (tests use fewer iterations)
func WithSealer(s *crypto.Sealer) Option {
	return func(k *Keeper) { k.sealer = s }
}

// WithGenerator replaces the crypto/rand backed key generator
func WithGenerator(g *keygen.Generator) Option {
	return func(k *Keeper) { k.gen = g }
}

// New creates a Keeper for the vault file at vaultPath. Plaintext exports
// are confined to the directory containing the vault file.
func New(vaultPath string, opts ...Option) (*Keeper, error) {
	if vaultPath == "" {
		vaultPath = DefaultVaultFile
	}
	abs, err := filepath.Abs(vaultPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault path: %w", err)
	}

	validator, err := security.New(filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize path validator: %w", err)
	}

	k := &Keeper{
		path:      abs,
		sealer:    crypto.NewSealer(),
		gen:       keygen.New(nil),
		log:       logger.Nop(),
		validator: validator,
	}
	for _, opt := range opts {
		opt(k)
	}
	k.log = k.log.With("keeper")
	return k, nil
}

// Close releases resources held by the Keeper
func (k *Keeper) Close() error {
	if k.validator != nil {
		return k.validator.Close()
	}
	return nil
}

// Path returns the absolute vault file path
func (k *Keeper) Path() string { return k.path }

// WorkDir returns the directory plaintext exports are confined to
func (k *Keeper) WorkDir() string { return k.validator.Dir() }

// Generator returns the key generator used for new field values
func (k *Keeper) Generator() *keygen.Generator { return k.gen }

func (k *Keeper) open() (*storage.Storage, error) {
	if _, err := os.Stat(k.path); err != nil {
		return nil, ErrNotInitialized
	}
	db, err := storage.Open(k.path)
	if err != nil {
		return nil, err
	}
	ok, err := db.IsInitialized()
	if err == nil && ok {
		ok, err = db.HasEnvelope()
	}
	if err != nil || !ok {
		db.Close()
		return nil, ErrNotInitialized
	}
	return db, nil
}

func (k *Keeper) seal(v *vault.Vault, password []byte) ([]byte, error) {
	data, err := v.Dump()
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(data)

	start := time.Now()
	envelope, err := k.sealer.Seal(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to seal vault: %w", err)
	}
	k.log.Debug().Int("bytes", len(envelope)).Dur("took", time.Since(start)).Msg("sealed vault")
	return envelope, nil
}

func (k *Keeper) unseal(db *storage.Storage, password []byte) (*vault.Vault, error) {
	if password == nil {
		return nil, ErrPasswordRequired
	}
	envelope, err := db.GetEnvelope()
	if err != nil {
		return nil, fmt.Errorf("failed to read vault: %w", err)
	}

	start := time.Now()
	data, err := k.sealer.Open(envelope, password)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(data)
	k.log.Debug().Int("bytes", len(envelope)).Dur("took", time.Since(start)).Msg("opened vault")

	return vault.Load(data)
}

// Init creates the vault file holding an empty vault with the default
// template catalog. A leftover file from an interrupted init, which has no
// sealed vault in it, is initialized again.
func (k *Keeper) Init(ctx context.Context, password []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(password) == 0 {
		return ErrPasswordRequired
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	_, statErr := os.Stat(k.path)
	existed := statErr == nil
	if existed {
		if !k.incomplete() {
			return ErrAlreadyExists
		}
		k.log.Warn().Str("path", k.path).Msg("vault file has no sealed vault, initializing again")
	}

	envelope, err := k.seal(vault.Default(), password)
	if err != nil {
		return err
	}

	db, err := storage.Open(k.path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	if err := db.Create(envelope); err != nil {
		db.Close()
		if !existed {
			os.Remove(k.path)
		}
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.Close(); err != nil {
		return err
	}
	k.log.Info().Str("path", k.path).Msg("initialized vault")
	return nil
}

// incomplete reports whether the vault file is a database without a
// sealed vault
func (k *Keeper) incomplete() bool {
	db, err := storage.Open(k.path)
	if err != nil {
		return false
	}
	defer db.Close()
	found, err := db.HasEnvelope()
	return err == nil && !found
}

// Load opens and decodes the stored vault
func (k *Keeper) Load(ctx context.Context, password []byte) (*vault.Vault, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := k.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return k.unseal(db, password)
}

// Save seals v under password, replacing the stored vault
func (k *Keeper) Save(ctx context.Context, v *vault.Vault, password []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.save(ctx, v, password)
}

func (k *Keeper) save(ctx context.Context, v *vault.Vault, password []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(password) == 0 {
		return ErrPasswordRequired
	}
	if err := v.Validate(); err != nil {
		return err
	}
	db, err := k.open()
	if err != nil {
		return err
	}
	defer db.Close()

	envelope, err := k.seal(v, password)
	if err != nil {
		return err
	}
	return db.StoreEnvelope(envelope)
}

// Update runs fn on the decoded vault and saves the result when fn
// succeeds. Nothing is written when fn returns an error.
func (k *Keeper) Update(ctx context.Context, password []byte, fn func(*vault.Vault) error) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	v, err := k.Load(ctx, password)
	if err != nil {
		return err
	}
	if err := fn(v); err != nil {
		return err
	}
	return k.save(ctx, v, password)
}

// VerifyPassword checks if the password opens this vault
func (k *Keeper) VerifyPassword(ctx context.Context, password []byte) error {
	_, err := k.Load(ctx, password)
	return err
}

// ChangePassword re-seals the vault under newPassword with a fresh salt
func (k *Keeper) ChangePassword(ctx context.Context, currentPassword, newPassword []byte) error {
	if len(newPassword) == 0 {
		return ErrPasswordRequired
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	v, err := k.Load(ctx, currentPassword)
	if err != nil {
		return err
	}
	if err := k.save(ctx, v, newPassword); err != nil {
		return err
	}
	k.log.Info().Msg("vault password changed")
	return nil
}

// StatusInfo is the unencrypted view of a vault file
type StatusInfo struct {
	Path            string
	VaultID         string
	FormatVersion   string
	Created         time.Time
	Modified        time.Time
	FileSize        int64
	EnvelopeSize    int
	EnvelopeVersion uint8
	Algorithm       string
	KDFIterations   uint32
	Exports         []string
	GitStatus       *git.GitStatus
}

// Status reports vault metadata without a password
func (k *Keeper) Status(ctx context.Context) (*StatusInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := k.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	info, err := db.Info()
	if err != nil {
		return nil, err
	}
	status := &StatusInfo{
		Path:          k.path,
		VaultID:       info.VaultID,
		FormatVersion: info.Version,
		Created:       info.Created,
		Modified:      info.Modified,
		FileSize:      info.FileSize,
		EnvelopeSize:  info.EnvelopeSize,
	}

	envelope, err := db.GetEnvelope()
	if err != nil {
		return nil, err
	}
	header, err := crypto.Inspect(envelope)
	if err != nil {
		return nil, err
	}
	status.EnvelopeVersion = header.Version
	status.Algorithm = header.Algorithm()
	status.KDFIterations = header.Iterations

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	status.Exports = k.findExports()

	vaultFile := filepath.ToSlash(filepath.Base(k.path))
	gitStatus, err := git.CheckGitIntegration(k.WorkDir(), vaultFile, status.Exports)
	if err == nil && gitStatus.IsRepo {
		status.GitStatus = gitStatus
	}
	return status, nil
}

// findExports lists plaintext exports lying in the work dir
func (k *Keeper) findExports() []string {
	matches, err := fs.Glob(os.DirFS(k.WorkDir()), ExportGlob)
	if err != nil {
		return nil
	}
	exports := make([]string, 0, len(matches))
	for _, m := range matches {
		if p, err := k.validator.ValidateAndNormalize(m); err == nil {
			exports = append(exports, p)
		}
	}
	sort.Strings(exports)
	return exports
}

// ExportResult describes a written plaintext export
type ExportResult struct {
	Path      string
	Items     int
	GitStatus *git.GitStatus
}

// Export writes the decrypted vault as canonical JSON to exportPath,
// which must lie under the work dir. An existing file is only replaced
// when force is set.
func (k *Keeper) Export(ctx context.Context, password []byte, exportPath string, force bool) (*ExportResult, error) {
	rel, err := k.validator.Relativize(exportPath)
	if err != nil {
		return nil, err
	}

	v, err := k.Load(ctx, password)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := k.validator.StatInRoot(rel); err == nil && !force {
		return nil, fmt.Errorf("%w: %s", ErrExportExists, rel)
	}

	data, err := v.Dump()
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(data)

	if dir := path.Dir(rel); dir != "." {
		if err := k.validator.MkdirAllInRoot(dir, DirPermSecure); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := k.validator.WriteFileInRoot(rel, data, FilePermSecure); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", rel, err)
	}
	k.log.Debug().Str("path", rel).Int("items", len(v.Items)).Msg("exported vault")

	result := &ExportResult{Path: rel, Items: len(v.Items)}
	vaultFile := filepath.ToSlash(filepath.Base(k.path))
	if gs, err := git.CheckGitIntegration(k.WorkDir(), vaultFile, []string{rel}); err == nil && gs.IsRepo {
		result.GitStatus = gs
	}
	return result, nil
}

// readExport loads a plaintext vault file from under the work dir
func (k *Keeper) readExport(exportPath string) (string, []byte, error) {
	rel, err := k.validator.Relativize(exportPath)
	if err != nil {
		return "", nil, err
	}
	data, err := k.validator.ReadFileInRoot(rel)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return rel, data, nil
}

// Diff returns a unified diff from the stored vault to the plaintext file
// at exportPath, or an empty string when both hold the same vault.
func (k *Keeper) Diff(ctx context.Context, password []byte, exportPath string) (string, error) {
	rel, fileData, err := k.readExport(exportPath)
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(fileData)

	v, err := k.Load(ctx, password)
	if err != nil {
		return "", err
	}
	stored, err := v.Dump()
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(stored)

	// Canonicalize so formatting differences do not show up
	if other, err := vault.Load(fileData); err == nil {
		if canonical, err := other.Dump(); err == nil {
			defer crypto.ClearBytes(canonical)
			return GenerateUnifiedDiff(rel, stored, canonical)
		}
	}
	return GenerateUnifiedDiff(rel, stored, fileData)
}

// Compact compacts the database to reclaim space left by replaced envelopes
func (k *Keeper) Compact() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	db, err := k.open()
	if err != nil {
		return err
	}
	defer db.Close()

	before, _ := os.Stat(k.path)
	if err := db.Compact(); err != nil {
		return err
	}
	if after, err := os.Stat(k.path); err == nil && before != nil {
		k.log.Debug().Int64("before", before.Size()).Int64("after", after.Size()).Msg("compacted vault file")
	}
	return nil
}

// GetVaultID retrieves the vault ID from storage
func (k *Keeper) GetVaultID() (string, error) {
	db, err := k.open()
	if err != nil {
		return "", err
	}
	defer db.Close()
	return db.GetVaultID()
}

// GetOrCreateVaultID retrieves the vault ID, assigning one if missing
func (k *Keeper) GetOrCreateVaultID() (string, error) {
	db, err := k.open()
	if err != nil {
		return "", err
	}
	defer db.Close()
	return db.GetOrCreateVaultID()
}
