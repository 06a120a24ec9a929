package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/illarion/ksv/internal/keygen"
	"github.com/illarion/ksv/internal/vault"
)

var templateBuiltin bool

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Inspect character class, generator and field templates",
}

var templateLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List the templates stored in the vault",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return TemplateList(cmd)
	},
}

func init() {
	templateLsCmd.Flags().BoolVar(&templateBuiltin, "builtin", false, "list the built-in catalog without opening the vault")
	templateCmd.AddCommand(templateLsCmd)
}

// TemplateList prints every template with a summary of its rules
func TemplateList(cmd *cobra.Command) error {
	v := vault.Default()
	if !templateBuiltin {
		k, err := openKeeper()
		if err != nil {
			return err
		}
		defer k.Close()
		if v, err = load(cmd.Context(), k); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	heading := color.New(color.FgCyan).SprintFunc()

	fmt.Fprintln(out, heading("Character classes:"))
	for _, t := range v.ClassTemplates {
		printTemplate(out, t.Name, t.Description, describeClass(t.Schema))
	}
	fmt.Fprintln(out, heading("\nGenerators:"))
	for _, t := range v.GeneratorTemplates {
		printTemplate(out, t.Name, t.Description, describeSpec(t.Schema))
	}
	fmt.Fprintln(out, heading("\nFields:"))
	for _, t := range v.FieldTemplates {
		rule := "no generator"
		if t.Schema.Generator != nil {
			rule = describeSpec(t.Schema.Generator)
		}
		printTemplate(out, t.Name, t.Description, t.Schema.Name+": "+rule)
	}
	return nil
}

func printTemplate(out io.Writer, name, description, rule string) {
	pad := strings.Repeat(" ", max(1, 21-len(name)))
	fmt.Fprintf(out, "  %s%s%s\n", color.GreenString(name), pad, description)
	fmt.Fprintf(out, "  %21s%s\n", "", color.New(color.Faint).Sprint(rule))
}

// describeClass renders a class as e.g. "digits 2..4"
func describeClass(c keygen.CharacterClass) string {
	name := fmt.Sprintf("%q", c.Alphabet().String())
	if std, ok := c.Alphabet().Standard(); ok {
		name = strings.ToLower(std.String())
	}
	switch {
	case c.MaxCount() > 0:
		return fmt.Sprintf("%s %d..%d", name, c.MinCount(), c.MaxCount())
	default:
		return fmt.Sprintf("%s %d+", name, c.MinCount())
	}
}

func describeSpec(s *keygen.Spec) string {
	if s == nil {
		return "empty"
	}
	parts := make([]string, len(s.Classes()))
	for i, c := range s.Classes() {
		parts[i] = describeClass(c)
	}
	return fmt.Sprintf("length %d: %s", s.Length(), strings.Join(parts, ", "))
}
