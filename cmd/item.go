package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/illarion/ksv/internal/vault"
)

var (
	itemAltNames []string

	showReveal bool
	showCopy   bool
	showEntry  string
	showField  string
)

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage vault items (one per site or service)",
}

var itemAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add an empty item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ItemAdd(cmd, args[0])
	},
}

var itemRmCmd = &cobra.Command{
	Use:     "rm NAME",
	Aliases: []string{"remove"},
	Short:   "Remove an item and all its entries",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ItemRemove(cmd, args[0])
	},
}

var itemLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List items",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return ItemList(cmd)
	},
}

var itemShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show an item's entries",
	Long: `Shows an item's entries with field values masked.
Use --reveal to print values, or --copy to put one value on the clipboard.
--copy picks the only entry and its first field unless --entry and --field say otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ItemShow(cmd, args[0])
	},
}

func init() {
	itemAddCmd.Flags().StringSliceVarP(&itemAltNames, "alt", "a", nil, "alternative names (repeatable)")

	itemShowCmd.Flags().BoolVarP(&showReveal, "reveal", "r", false, "print field values")
	itemShowCmd.Flags().BoolVarP(&showCopy, "copy", "c", false, "copy one field value to the clipboard")
	itemShowCmd.Flags().StringVarP(&showEntry, "entry", "e", "", "entry login for --copy")
	itemShowCmd.Flags().StringVarP(&showField, "field", "f", "", "field name for --copy")
	itemShowCmd.MarkFlagsMutuallyExclusive("reveal", "copy")

	itemCmd.AddCommand(itemAddCmd, itemRmCmd, itemLsCmd, itemShowCmd)
}

// ItemAdd adds an item without entries
func ItemAdd(cmd *cobra.Command, name string) error {
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	item := vault.Item{Name: name, AlternativeNames: itemAltNames}
	if err := update(cmd.Context(), k, func(v *vault.Vault) error {
		return v.AddItem(item)
	}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Added item %s\n", name)
	return nil
}

// ItemRemove deletes an item
func ItemRemove(cmd *cobra.Command, name string) error {
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	var removed string
	if err := update(cmd.Context(), k, func(v *vault.Vault) error {
		item, err := v.Item(name)
		if err != nil {
			return err
		}
		removed = item.Name
		return v.RemoveItem(name)
	}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed item %s\n", removed)
	return nil
}

// ItemList prints item names with their alternative names and entry count
func ItemList(cmd *cobra.Command) error {
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	v, err := load(cmd.Context(), k)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	names := v.ItemNames()
	if len(names) == 0 {
		fmt.Fprintln(out, "No items in vault")
		return nil
	}
	for _, name := range names {
		item, err := v.Item(name)
		if err != nil {
			return err
		}
		line := color.GreenString(item.Name)
		if len(item.AlternativeNames) > 0 {
			line += " (" + strings.Join(item.AlternativeNames, ", ") + ")"
		}
		fmt.Fprintf(out, "  %s  %d entr%s\n", line, len(item.Entries), plural(len(item.Entries), "y", "ies"))
	}
	return nil
}

// ItemShow prints an item, or copies one of its values
func ItemShow(cmd *cobra.Command, name string) error {
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	v, err := load(cmd.Context(), k)
	if err != nil {
		return err
	}
	item, err := v.Item(name)
	if err != nil {
		return err
	}

	if showCopy {
		field, err := pickField(item, showEntry, showField)
		if err != nil {
			return err
		}
		if err := clipboard.WriteAll(field.Value); err != nil {
			return fmt.Errorf("failed to copy to clipboard: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Copied %s to clipboard\n", field.Name)
		return nil
	}

	printItem(cmd.OutOrStdout(), item, showReveal)
	return nil
}

// pickField selects the field --copy refers to
func pickField(item *vault.Item, login, name string) (*vault.Field, error) {
	var entry *vault.Entry
	switch {
	case login != "":
		e, err := item.Entry(login)
		if err != nil {
			return nil, err
		}
		entry = e
	case len(item.Entries) == 1:
		entry = &item.Entries[0]
	case len(item.Entries) == 0:
		return nil, fmt.Errorf("%w: item %q has no entries", vault.ErrNotFound, item.Name)
	default:
		return nil, fmt.Errorf("%w: item %q has %d entries, pick one with --entry", vault.ErrInvalid, item.Name, len(item.Entries))
	}

	if name != "" {
		return entry.Field(name)
	}
	if len(entry.Fields) == 0 {
		return nil, fmt.Errorf("%w: entry %q has no fields", vault.ErrNotFound, entry.Login())
	}
	return &entry.Fields[0], nil
}

func printItem(out io.Writer, item *vault.Item, reveal bool) {
	label := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintln(out, color.GreenString(item.Name))
	if len(item.AlternativeNames) > 0 {
		fmt.Fprintf(out, "  %-10s %s\n", label("aka:"), strings.Join(item.AlternativeNames, ", "))
	}
	if len(item.Entries) == 0 {
		fmt.Fprintln(out, "  (no entries)")
	}
	for _, e := range item.Entries {
		fmt.Fprintf(out, "\n  %s\n", color.New(color.Bold).Sprint(e.Login()))
		if e.Username != "" && e.Email != "" {
			fmt.Fprintf(out, "    %-10s %s\n", "email:", e.Email)
		}
		if e.IdentityProvider != "" {
			fmt.Fprintf(out, "    %-10s %s\n", "sign in:", e.IdentityProvider)
		}
		for _, f := range e.Fields {
			value := strings.Repeat("*", 8)
			if reveal {
				value = f.Value
			}
			fmt.Fprintf(out, "    %-10s %s\n", f.Name+":", value)
		}
		if e.Notes != "" {
			fmt.Fprintf(out, "    %-10s %s\n", "notes:", e.Notes)
		}
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
