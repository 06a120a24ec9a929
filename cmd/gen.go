package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/illarion/ksv/internal/keygen"
	"github.com/illarion/ksv/internal/vault"
)

var (
	genLength   int
	genCount    int
	genLower    string
	genUpper    string
	genDigits   string
	genSpecials string
	genCharset  string
	genCharMin  string
	genTemplate string
	genCopy     bool

	genVaultTemplate bool
)

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a key from character class rules",
	Long: `Generates a key that satisfies per-class minimum and maximum counts.

Each class flag takes MIN or MIN:MAX. Classes without a flag are left out.
Without any class flag the default generator template is used.

  ksv gen                                  # default template
  ksv gen --template pin                   # a built-in template
  ksv gen --vault-template -t my-site      # a template stored in the vault
  ksv gen -l 20 --lower 1 --upper 1 --digits 2:4
  ksv gen -l 6 --charset ABCDEF0123456789 --charset-min 6`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return Gen(cmd)
	},
}

func init() {
	f := genCmd.Flags()
	f.IntVarP(&genLength, "length", "l", 16, "key length")
	f.IntVarP(&genCount, "count", "n", 1, "number of keys to generate")
	f.StringVar(&genLower, "lower", "", "lowercase letters, MIN or MIN:MAX")
	f.StringVar(&genUpper, "upper", "", "uppercase letters, MIN or MIN:MAX")
	f.StringVar(&genDigits, "digits", "", "digits, MIN or MIN:MAX")
	f.StringVar(&genSpecials, "specials", "", "OWASP special characters, MIN or MIN:MAX")
	f.StringVar(&genCharset, "charset", "", "explicit alphabet for an extra class")
	f.StringVar(&genCharMin, "charset-min", "0", "counts for --charset, MIN or MIN:MAX")
	f.StringVarP(&genTemplate, "template", "t", "", "generator template name (default from config)")
	f.BoolVar(&genVaultTemplate, "vault-template", false, "look the template up in the vault instead of the built-in catalog")
	f.BoolVarP(&genCopy, "copy", "c", false, "copy the key to the clipboard instead of printing it")
	genCmd.MarkFlagsMutuallyExclusive("template", "lower")
	genCmd.MarkFlagsMutuallyExclusive("template", "upper")
	genCmd.MarkFlagsMutuallyExclusive("template", "digits")
	genCmd.MarkFlagsMutuallyExclusive("template", "specials")
	genCmd.MarkFlagsMutuallyExclusive("template", "charset")
}

// Gen generates keys from flags or a template
func Gen(cmd *cobra.Command) error {
	spec, err := genSpec(cmd)
	if err != nil {
		return err
	}
	if genCount < 1 {
		return fmt.Errorf("%w: count must be positive", keygen.ErrValidation)
	}
	if genCopy && genCount != 1 {
		return fmt.Errorf("%w: --copy takes a single key", keygen.ErrValidation)
	}

	out := cmd.OutOrStdout()
	for range genCount {
		key, err := keygen.Generate(spec)
		if err != nil {
			return err
		}
		if genCopy {
			if err := clipboard.WriteAll(key); err != nil {
				return fmt.Errorf("failed to copy to clipboard: %w", err)
			}
			fmt.Fprintln(out, "✓ Key copied to clipboard")
			return nil
		}
		fmt.Fprintln(out, key)
	}
	return nil
}

// genSpec builds the spec described by the command line
func genSpec(cmd *cobra.Command) (*keygen.Spec, error) {
	classes, err := flagClasses()
	if err != nil {
		return nil, err
	}
	if len(classes) > 0 {
		return keygen.NewSpec(genLength, classes...)
	}

	name := genTemplate
	if name == "" {
		name = cfg.DefaultTemplate
	}
	catalog := vault.Default()
	if genVaultTemplate {
		k, err := openKeeper()
		if err != nil {
			return nil, err
		}
		defer k.Close()
		if catalog, err = load(cmd.Context(), k); err != nil {
			return nil, err
		}
	}

	tmpl, err := catalog.GeneratorTemplate(name)
	if err != nil {
		return nil, err
	}
	spec := tmpl.Instance()
	if cmd.Flags().Changed("length") {
		return keygen.NewSpec(genLength, spec.Classes()...)
	}
	return spec, nil
}

// flagClasses turns the class flags into character classes, in flag order
func flagClasses() ([]keygen.CharacterClass, error) {
	var classes []keygen.CharacterClass
	standard := []struct {
		quota string
		class keygen.StandardClass
	}{
		{genLower, keygen.Lowercase},
		{genUpper, keygen.Uppercase},
		{genDigits, keygen.Digits},
		{genSpecials, keygen.OWASPSpecials},
	}
	for _, s := range standard {
		if s.quota == "" {
			continue
		}
		c, err := quotaClass(s.class.Alphabet(), s.quota)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.ToLower(s.class.String()), err)
		}
		classes = append(classes, c)
	}

	if genCharset != "" {
		alphabet, err := keygen.ExplicitAlphabet(genCharset)
		if err != nil {
			return nil, err
		}
		c, err := quotaClass(alphabet, genCharMin)
		if err != nil {
			return nil, fmt.Errorf("charset: %w", err)
		}
		classes = append(classes, c)
	}
	return classes, nil
}

func quotaClass(alphabet keygen.Alphabet, quota string) (keygen.CharacterClass, error) {
	minCount, maxCount, err := parseQuota(quota)
	if err != nil {
		return keygen.CharacterClass{}, err
	}
	return keygen.NewCharacterClass(alphabet, minCount, maxCount)
}

// parseQuota parses MIN or MIN:MAX. A missing or empty MAX is unbounded.
func parseQuota(s string) (minCount, maxCount int, err error) {
	lo, hi, bounded := strings.Cut(strings.TrimSpace(s), ":")
	if minCount, err = strconv.Atoi(lo); err != nil {
		return 0, 0, fmt.Errorf("%w: bad minimum count %q", keygen.ErrValidation, lo)
	}
	if bounded && hi != "" {
		if maxCount, err = strconv.Atoi(hi); err != nil {
			return 0, 0, fmt.Errorf("%w: bad maximum count %q", keygen.ErrValidation, hi)
		}
		if maxCount == 0 {
			return 0, 0, fmt.Errorf("%w: maximum count must be positive", keygen.ErrValidation)
		}
	}
	return minCount, maxCount, nil
}
