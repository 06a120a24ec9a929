package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/illarion/ksv/internal/config"
	"github.com/illarion/ksv/internal/core"
	"github.com/illarion/ksv/internal/crypto"
	"github.com/illarion/ksv/internal/keygen"
	"github.com/illarion/ksv/internal/vault"
)

const testPassword = "correct horse battery staple"

func TestMain(m *testing.M) {
	gokeyring.MockInit()
	keeperOptions = []core.Option{core.WithSealer(crypto.NewSealer(crypto.WithIterations(1000)))}
	os.Exit(m.Run())
}

// resetFlags puts every flag of the tree back to its default, since cobra
// keeps parsed values between executions in one process
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			def := strings.Trim(f.DefValue, "[]")
			var vals []string
			if def != "" {
				vals = strings.Split(def, ",")
			}
			_ = sv.Replace(vals)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// ksv runs the command line against the vault in dir
func ksv(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("KSV_CONFIG", filepath.Join(dir, "missing.toml"))
	t.Setenv("KSV_PASSWORD", testPassword)

	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--vault=" + filepath.Join(dir, core.DefaultVaultFile)}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustKsv(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := ksv(t, dir, args...)
	require.NoError(t, err, "ksv %s", strings.Join(args, " "))
	return out
}

func loadVault(t *testing.T, dir string) *vault.Vault {
	t.Helper()
	k, err := core.New(filepath.Join(dir, core.DefaultVaultFile), keeperOptions...)
	require.NoError(t, err)
	defer k.Close()
	v, err := k.Load(context.Background(), []byte(testPassword))
	require.NoError(t, err)
	return v
}

func TestItemLifecycle(t *testing.T) {
	dir := t.TempDir()

	out := mustKsv(t, dir, "init")
	assert.Contains(t, out, "Initialized")

	out = mustKsv(t, dir, "entry", "add", "github", "--username", "octocat")
	assert.Contains(t, out, "Added item github")
	assert.Contains(t, out, "generated password")

	out = mustKsv(t, dir, "item", "ls")
	assert.Contains(t, out, "github")
	assert.Contains(t, out, "1 entry")

	before := loadVault(t, dir)
	item, err := before.Item("github")
	require.NoError(t, err)
	entry, err := item.Entry("octocat")
	require.NoError(t, err)
	password, err := entry.Field("password")
	require.NoError(t, err)
	assert.Len(t, []rune(password.Value), 16)

	out = mustKsv(t, dir, "item", "show", "github")
	assert.Contains(t, out, "octocat")
	assert.NotContains(t, out, password.Value)

	out = mustKsv(t, dir, "item", "show", "github", "--reveal")
	assert.Contains(t, out, password.Value)

	mustKsv(t, dir, "field", "regen", "github", "octocat", "password", "--template", "long-pin")
	after := loadVault(t, dir)
	item, err = after.Item("github")
	require.NoError(t, err)
	entry, err = item.Entry("octocat")
	require.NoError(t, err)
	regenerated, err := entry.Field("password")
	require.NoError(t, err)
	assert.Len(t, regenerated.Value, 8)
	assert.True(t, isDigits(regenerated.Value), "value %q", regenerated.Value)

	mustKsv(t, dir, "entry", "rm", "github", "octocat")
	mustKsv(t, dir, "item", "rm", "github")
	out = mustKsv(t, dir, "item", "ls")
	assert.Contains(t, out, "No items")
}

func TestEntryWithIdentityProviderOnly(t *testing.T) {
	dir := t.TempDir()
	mustKsv(t, dir, "init")
	mustKsv(t, dir, "item", "add", "jira", "--alt", "atlassian")
	mustKsv(t, dir, "entry", "add", "atlassian", "--email", "me@example.com", "--idp", "google", "--template", "")

	v := loadVault(t, dir)
	item, err := v.Item("jira")
	require.NoError(t, err)
	require.Len(t, item.Entries, 1)
	assert.Equal(t, "google", item.Entries[0].IdentityProvider)
	assert.Empty(t, item.Entries[0].Fields)
}

func TestEntryAddUnknownItemWithoutCreate(t *testing.T) {
	dir := t.TempDir()
	mustKsv(t, dir, "init")
	_, err := ksv(t, dir, "entry", "add", "nowhere", "--username", "bob", "--create=false")
	assert.ErrorIs(t, err, vault.ErrNotFound)
}

func TestCommandsBeforeInit(t *testing.T) {
	dir := t.TempDir()
	_, err := ksv(t, dir, "item", "ls")
	assert.ErrorIs(t, err, core.ErrNotInitialized)

	out := mustKsv(t, dir, "status")
	assert.Contains(t, out, "No vault found")
}

func TestInitTwice(t *testing.T) {
	dir := t.TempDir()
	mustKsv(t, dir, "init")
	_, err := ksv(t, dir, "init")
	assert.ErrorIs(t, err, core.ErrAlreadyExists)
}

func TestWrongPassword(t *testing.T) {
	dir := t.TempDir()
	mustKsv(t, dir, "init")

	t.Setenv("KSV_PASSWORD", "wrong")
	resetFlags(rootCmd)
	rootCmd.SetArgs([]string{"--vault=" + filepath.Join(dir, core.DefaultVaultFile), "item", "ls"})
	rootCmd.SetOut(&bytes.Buffer{})
	err := rootCmd.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, crypto.ErrAuthFailed)
}

func TestGenFromFlags(t *testing.T) {
	dir := t.TempDir()
	out := mustKsv(t, dir, "gen", "-l", "12", "--digits", "12", "-n", "3")
	lines := strings.Fields(out)
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Len(t, line, 12)
		assert.True(t, isDigits(line), "key %q", line)
	}
}

func TestGenBuiltinTemplate(t *testing.T) {
	dir := t.TempDir()
	out := strings.TrimSpace(mustKsv(t, dir, "gen", "--template", "pin"))
	assert.Len(t, out, 4)
	assert.True(t, isDigits(out))
}

func TestGenRejectsImpossibleRules(t *testing.T) {
	dir := t.TempDir()
	_, err := ksv(t, dir, "gen", "-l", "4", "--digits", "3", "--lower", "2")
	assert.ErrorIs(t, err, keygen.ErrLengthConstraint)

	_, err = ksv(t, dir, "gen", "-l", "8", "--digits", "1:2", "--lower", "1:2")
	assert.ErrorIs(t, err, keygen.ErrInsufficientCapacity)
}

func TestExportDiffImport(t *testing.T) {
	dir := t.TempDir()
	mustKsv(t, dir, "init")
	mustKsv(t, dir, "entry", "add", "github", "--username", "octocat")

	exportPath := filepath.Join(dir, core.DefaultExportFile)
	out := mustKsv(t, dir, "export", exportPath)
	assert.Contains(t, out, "Exported 1 item(s)")

	_, err := ksv(t, dir, "export", exportPath)
	assert.ErrorIs(t, err, core.ErrExportExists)
	mustKsv(t, dir, "export", exportPath, "--force")

	out = mustKsv(t, dir, "diff", exportPath)
	assert.Contains(t, out, "matches the vault")

	out = mustKsv(t, dir, "status")
	assert.Contains(t, out, core.DefaultExportFile)

	mustKsv(t, dir, "item", "rm", "github")
	out = mustKsv(t, dir, "diff", exportPath)
	assert.Contains(t, out, "+")
	assert.Contains(t, out, "github")

	out = mustKsv(t, dir, "import", exportPath, "--keep-local")
	assert.Contains(t, out, "Added 1 item(s): github")

	out = mustKsv(t, dir, "import", exportPath, "--keep-both")
	assert.Contains(t, out, "Unchanged 1 item(s)")
}

func TestTemplateList(t *testing.T) {
	dir := t.TempDir()
	out := mustKsv(t, dir, "template", "ls", "--builtin")
	assert.Contains(t, out, "owasp-password")
	assert.Contains(t, out, "standard-pin")
	assert.Contains(t, out, "length 4: digits 1+")
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.toml")

	out := mustKsv(t, dir, "config", "init", "--log-level", "info")
	assert.Contains(t, out, path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `log_level = "info"`)
	assert.NotContains(t, string(raw), testPassword)

	_, err = ksv(t, dir, "config", "init")
	assert.ErrorIs(t, err, config.ErrExists)
	mustKsv(t, dir, "config", "init", "--force")

	out = mustKsv(t, dir, "config", "show")
	assert.Contains(t, out, "# read from "+path)
	assert.Contains(t, out, `default_template = "owasp-password"`)

	other := filepath.Join(dir, "nested", "other.toml")
	mustKsv(t, dir, "config", "init", other)
	_, err = os.Stat(other)
	assert.NoError(t, err)
}

func TestGenRejectsOversizedLength(t *testing.T) {
	dir := t.TempDir()
	_, err := ksv(t, dir, "gen", "-l", "4611686018427387904", "--lower", "0")
	assert.ErrorIs(t, err, keygen.ErrValidation)

	out := strings.TrimSpace(mustKsv(t, dir, "gen", "-l", strconv.Itoa(keygen.MaxLength), "--lower", "0"))
	assert.Len(t, out, keygen.MaxLength)
}

func TestParseQuota(t *testing.T) {
	tests := []struct {
		in       string
		min, max int
		wantErr  bool
	}{
		{"2", 2, 0, false},
		{"2:5", 2, 5, false},
		{"0:", 0, 0, false},
		{" 3 ", 3, 0, false},
		{"", 0, 0, true},
		{"x", 0, 0, true},
		{"1:y", 0, 0, true},
		{"1:0", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lo, hi, err := parseQuota(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, keygen.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.min, lo)
			assert.Equal(t, tt.max, hi)
		})
	}
}

func TestPickField(t *testing.T) {
	item := &vault.Item{Name: "bank", Entries: []vault.Entry{
		{Username: "alice", Fields: []vault.Field{{Name: "password", Value: "a"}, {Name: "pin", Value: "1"}}},
	}}

	f, err := pickField(item, "", "")
	require.NoError(t, err)
	assert.Equal(t, "a", f.Value)

	f, err = pickField(item, "alice", "pin")
	require.NoError(t, err)
	assert.Equal(t, "1", f.Value)

	item.Entries = append(item.Entries, vault.Entry{Username: "bob", Fields: []vault.Field{{Name: "password", Value: "b"}}})
	_, err = pickField(item, "", "")
	assert.ErrorIs(t, err, vault.ErrInvalid)

	f, err = pickField(item, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, "b", f.Value)

	_, err = pickField(item, "carol", "")
	assert.ErrorIs(t, err, vault.ErrNotFound)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 bytes", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "2.0 MB", formatSize(2*1024*1024))
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
