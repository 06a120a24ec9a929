package core

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/ksv/internal/crypto"
	"github.com/illarion/ksv/internal/keygen"
	"github.com/illarion/ksv/internal/security"
	"github.com/illarion/ksv/internal/storage"
	"github.com/illarion/ksv/internal/vault"
)

const testIterations = 1000

var password = []byte("correct horse battery staple")

func newKeeper(t *testing.T) (*Keeper, string) {
	t.Helper()
	dir := t.TempDir()
	k, err := New(filepath.Join(dir, DefaultVaultFile), WithSealer(crypto.NewSealer(crypto.WithIterations(testIterations))))
	require.NoError(t, err)
	t.Cleanup(func() { k.Close() })
	return k, dir
}

func newInitializedKeeper(t *testing.T) (*Keeper, string) {
	t.Helper()
	k, dir := newKeeper(t)
	require.NoError(t, k.Init(context.Background(), password))
	return k, dir
}

func addSite(t *testing.T, k *Keeper, name string) {
	t.Helper()
	err := k.Update(context.Background(), password, func(v *vault.Vault) error {
		entry, err := v.NewEntry(k.Generator(), "alice", "", "standard-password")
		if err != nil {
			return err
		}
		return v.AddItem(vault.Item{Name: name, Entries: []vault.Entry{entry}})
	})
	require.NoError(t, err)
}

func TestInitCreatesDefaultVault(t *testing.T) {
	k, _ := newInitializedKeeper(t)

	v, err := k.Load(context.Background(), password)
	require.NoError(t, err)
	assert.Empty(t, v.Items)
	_, err = v.GeneratorTemplate("owasp-password")
	assert.NoError(t, err)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(k.Path())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(FilePermSecure), info.Mode().Perm())
	}
}

func TestInitTwiceFails(t *testing.T) {
	k, _ := newInitializedKeeper(t)
	assert.ErrorIs(t, k.Init(context.Background(), password), ErrAlreadyExists)
}

func TestInitRequiresPassword(t *testing.T) {
	k, _ := newKeeper(t)
	assert.ErrorIs(t, k.Init(context.Background(), nil), ErrPasswordRequired)
	_, err := os.Stat(k.Path())
	assert.True(t, os.IsNotExist(err), "no file should be left behind")
}

func TestInitRecoversIncompleteFile(t *testing.T) {
	k, _ := newKeeper(t)
	ctx := context.Background()

	// a database with buckets but no sealed vault, as left by an interrupted init
	db, err := storage.Open(k.Path())
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	require.NoError(t, db.Close())

	_, err = k.Load(ctx, password)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = k.Status(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, k.Init(ctx, password))
	v, err := k.Load(ctx, password)
	require.NoError(t, err)
	assert.Empty(t, v.Items)
	assert.ErrorIs(t, k.Init(ctx, password), ErrAlreadyExists)
}

func TestInitRefusesForeignFile(t *testing.T) {
	k, _ := newKeeper(t)
	require.NoError(t, os.WriteFile(k.Path(), []byte("not a vault"), FilePermSecure))

	assert.ErrorIs(t, k.Init(context.Background(), password), ErrAlreadyExists)
	data, err := os.ReadFile(k.Path())
	require.NoError(t, err)
	assert.Equal(t, "not a vault", string(data))
}

func TestOperationsBeforeInit(t *testing.T) {
	k, _ := newKeeper(t)
	ctx := context.Background()

	_, err := k.Load(ctx, password)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = k.Status(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, k.Compact(), ErrNotInitialized)
	_, err = k.GetVaultID()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	k, _ := newInitializedKeeper(t)
	addSite(t, k, "example.com")

	v, err := k.Load(context.Background(), password)
	require.NoError(t, err)
	item, err := v.Item("example.com")
	require.NoError(t, err)
	entry, err := item.Entry("alice")
	require.NoError(t, err)
	f, err := entry.Field("password")
	require.NoError(t, err)
	assert.Len(t, f.Value, 16)
}

func TestWrongPassword(t *testing.T) {
	k, _ := newInitializedKeeper(t)

	_, err := k.Load(context.Background(), []byte("wrong"))
	assert.ErrorIs(t, err, crypto.ErrAuthFailed)

	_, err = k.Load(context.Background(), nil)
	assert.ErrorIs(t, err, ErrPasswordRequired)
}

func TestUpdateErrorLeavesVaultUntouched(t *testing.T) {
	k, _ := newInitializedKeeper(t)
	addSite(t, k, "example.com")

	err := k.Update(context.Background(), password, func(v *vault.Vault) error {
		if err := v.RemoveItem("example.com"); err != nil {
			return err
		}
		return v.RemoveItem("example.com")
	})
	assert.ErrorIs(t, err, vault.ErrNotFound)

	v, err := k.Load(context.Background(), password)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, v.ItemNames())
}

func TestConcurrentUpdates(t *testing.T) {
	k, _ := newInitializedKeeper(t)

	var wg sync.WaitGroup
	names := []string{"a.example", "b.example", "c.example", "d.example"}
	errs := make(chan error, len(names))
	for _, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- k.Update(context.Background(), password, func(v *vault.Vault) error {
				return v.AddItem(vault.Item{Name: name})
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	v, err := k.Load(context.Background(), password)
	require.NoError(t, err)
	assert.ElementsMatch(t, names, v.ItemNames(), "no update may be lost")
}

func TestChangePassword(t *testing.T) {
	k, _ := newInitializedKeeper(t)
	addSite(t, k, "example.com")
	newPassword := []byte("new password")

	before, err := k.Status(context.Background())
	require.NoError(t, err)

	require.NoError(t, k.ChangePassword(context.Background(), password, newPassword))

	assert.ErrorIs(t, k.VerifyPassword(context.Background(), password), crypto.ErrAuthFailed)
	require.NoError(t, k.VerifyPassword(context.Background(), newPassword))

	v, err := k.Load(context.Background(), newPassword)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, v.ItemNames())

	after, err := k.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before.VaultID, after.VaultID)

	assert.ErrorIs(t, k.ChangePassword(context.Background(), []byte("wrong"), newPassword), crypto.ErrAuthFailed)
	assert.ErrorIs(t, k.ChangePassword(context.Background(), newPassword, nil), ErrPasswordRequired)
}

func TestStatusWithoutPassword(t *testing.T) {
	k, dir := newInitializedKeeper(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.ksv.json"), []byte("{}"), 0600))

	status, err := k.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, k.Path(), status.Path)
	assert.Len(t, status.VaultID, 36)
	assert.Equal(t, uint32(testIterations), status.KDFIterations)
	assert.Equal(t, uint8(crypto.EnvelopeVersion), status.EnvelopeVersion)
	assert.Contains(t, status.Algorithm, "AES-256-GCM")
	assert.GreaterOrEqual(t, status.EnvelopeSize, crypto.MinEnvelopeSize)
	assert.Positive(t, status.FileSize)
	assert.False(t, status.Created.IsZero())
	assert.Equal(t, []string{"old.ksv.json"}, status.Exports)
}

func TestStatusCancelled(t *testing.T) {
	k, _ := newInitializedKeeper(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := k.Status(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExportAndDiff(t *testing.T) {
	k, dir := newInitializedKeeper(t)
	addSite(t, k, "example.com")
	ctx := context.Background()

	res, err := k.Export(ctx, password, "backup/"+DefaultExportFile, false)
	require.NoError(t, err)
	assert.Equal(t, "backup/"+DefaultExportFile, res.Path)
	assert.Equal(t, 1, res.Items)

	exported := filepath.Join(dir, "backup", DefaultExportFile)
	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	v, err := vault.Load(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, v.ItemNames())

	_, err = k.Export(ctx, password, exported, false)
	assert.ErrorIs(t, err, ErrExportExists, "absolute path inside the work dir is accepted")
	_, err = k.Export(ctx, password, exported, true)
	require.NoError(t, err)

	diff, err := k.Diff(ctx, password, exported)
	require.NoError(t, err)
	assert.Empty(t, diff)

	addSite(t, k, "second.example")
	diff, err = k.Diff(ctx, password, exported)
	require.NoError(t, err)
	assert.Contains(t, diff, "--- a/backup/"+DefaultExportFile)
	assert.Contains(t, diff, "second.example")
}

func TestExportRejectsEscape(t *testing.T) {
	k, _ := newInitializedKeeper(t)

	_, err := k.Export(context.Background(), password, "../outside.json", false)
	assert.ErrorIs(t, err, security.ErrPathEscapes)

	_, err = k.Export(context.Background(), password, filepath.Join(os.TempDir(), "elsewhere.json"), false)
	assert.Error(t, err)
}

func TestImportStrategies(t *testing.T) {
	ctx := context.Background()

	source, srcDir := newInitializedKeeper(t)
	addSite(t, source, "shared.example")
	addSite(t, source, "new.example")
	require.NoError(t, source.Update(ctx, password, func(v *vault.Vault) error {
		return v.AddGeneratorTemplate(vault.GeneratorTemplate{Name: "pin-copy", Schema: mustTemplate(t, v, "pin")})
	}))
	_, err := source.Export(ctx, password, DefaultExportFile, false)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(srcDir, DefaultExportFile))
	require.NoError(t, err)

	tests := []struct {
		name     string
		strategy MergeStrategy
		check    func(t *testing.T, res *ImportResult, v *vault.Vault)
	}{
		{"keep local", StrategyKeepLocal, func(t *testing.T, res *ImportResult, v *vault.Vault) {
			assert.Equal(t, []string{"new.example"}, res.Added)
			assert.Equal(t, []string{"shared.example"}, res.Skipped)
			assert.ElementsMatch(t, []string{"shared.example", "new.example"}, v.ItemNames())
		}},
		{"use imported", StrategyUseImported, func(t *testing.T, res *ImportResult, v *vault.Vault) {
			assert.Equal(t, []string{"shared.example"}, res.Replaced)
			assert.Len(t, v.Items, 2)
		}},
		{"keep both", StrategyKeepBoth, func(t *testing.T, res *ImportResult, v *vault.Vault) {
			assert.Equal(t, []string{"shared.example (imported)"}, res.Renamed)
			assert.ElementsMatch(t, []string{"shared.example", "shared.example (imported)", "new.example"}, v.ItemNames())
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, dir := newInitializedKeeper(t)
			addSite(t, k, "shared.example")
			require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultExportFile), data, 0600))

			res, err := k.Import(ctx, password, DefaultExportFile, tt.strategy)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Templates, "only the missing template is added")

			v, err := k.Load(ctx, password)
			require.NoError(t, err)
			tt.check(t, res, v)
			_, err = v.GeneratorTemplate("pin-copy")
			assert.NoError(t, err)
		})
	}
}

func TestImportAbortWritesNothing(t *testing.T) {
	ctx := context.Background()
	k, dir := newInitializedKeeper(t)
	addSite(t, k, "shared.example")

	_, err := k.Export(ctx, password, DefaultExportFile, false)
	require.NoError(t, err)

	// Same name, different secret
	require.NoError(t, k.Update(ctx, password, func(v *vault.Vault) error {
		item, err := v.Item("shared.example")
		if err != nil {
			return err
		}
		entry, err := item.Entry("alice")
		if err != nil {
			return err
		}
		entry.Notes = "changed"
		return v.AddItem(vault.Item{Name: "local-only"})
	}))

	_, err = k.Import(ctx, password, filepath.Join(dir, DefaultExportFile), StrategyAbort)
	require.Error(t, err)

	v, err := k.Load(ctx, password)
	require.NoError(t, err)
	item, err := v.Item("shared.example")
	require.NoError(t, err)
	assert.Equal(t, "changed", item.Entries[0].Notes)
}

func TestImportIdenticalIsUnchanged(t *testing.T) {
	ctx := context.Background()
	k, _ := newInitializedKeeper(t)
	addSite(t, k, "example.com")
	_, err := k.Export(ctx, password, DefaultExportFile, false)
	require.NoError(t, err)

	res, err := k.Import(ctx, password, DefaultExportFile, StrategyAbort)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, res.Unchanged)
	assert.Zero(t, res.Templates)
}

func TestImportRejectsInvalidFile(t *testing.T) {
	k, dir := newInitializedKeeper(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"itemEntries":[{"itemName":""}]}`), 0600))

	_, err := k.Import(context.Background(), password, "bad.json", StrategyKeepLocal)
	assert.ErrorIs(t, err, vault.ErrInvalid)
}

func TestCompactKeepsVault(t *testing.T) {
	k, _ := newInitializedKeeper(t)
	for _, name := range []string{"a", "b", "c"} {
		addSite(t, k, name)
	}
	id, err := k.GetVaultID()
	require.NoError(t, err)

	require.NoError(t, k.Compact())

	v, err := k.Load(context.Background(), password)
	require.NoError(t, err)
	assert.Len(t, v.Items, 3)
	again, err := k.GetOrCreateVaultID()
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func mustTemplate(t *testing.T, v *vault.Vault, name string) *keygen.Spec {
	t.Helper()
	tmpl, err := v.GeneratorTemplate(name)
	require.NoError(t, err)
	return tmpl.Instance()
}
