package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/illarion/ksv/internal/vault"
)

var (
	entryUsername  string
	entryEmail     string
	entryTemplates []string
	entryIDP       string
	entryNotes     string
	entryCreate    bool

	regenTemplate string
)

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Manage the credentials stored under an item",
}

var entryAddCmd = &cobra.Command{
	Use:   "add ITEM",
	Short: "Add an entry with freshly generated fields",
	Long: `Adds an entry to ITEM. Each --template names a field template whose
generator fills the new field. An entry needs a username or an email, and
either fields or an identity provider.

  ksv entry add github --username octocat
  ksv entry add bank --email me@example.com -t standard-password -t standard-pin
  ksv entry add jira --email me@example.com --idp google --template ""`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return EntryAdd(cmd, args[0])
	},
}

var entryRmCmd = &cobra.Command{
	Use:     "rm ITEM LOGIN",
	Aliases: []string{"remove"},
	Short:   "Remove an entry, identified by username or email",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return EntryRemove(cmd, args[0], args[1])
	},
}

var fieldCmd = &cobra.Command{
	Use:   "field",
	Short: "Work with the fields of an entry",
}

var fieldRegenCmd = &cobra.Command{
	Use:   "regen ITEM LOGIN FIELD",
	Short: "Replace a field value with a freshly generated key",
	Long: `Regenerates FIELD from its generator. With --template the field's
generator is first replaced by the named generator template.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return FieldRegen(cmd, args[0], args[1], args[2])
	},
}

func init() {
	f := entryAddCmd.Flags()
	f.StringVarP(&entryUsername, "username", "u", "", "username")
	f.StringVarP(&entryEmail, "email", "m", "", "email address")
	f.StringSliceVarP(&entryTemplates, "template", "t", []string{"standard-password"}, "field templates (repeatable)")
	f.StringVar(&entryIDP, "idp", "", "identity provider used to sign in")
	f.StringVar(&entryNotes, "notes", "", "free-form notes")
	f.BoolVar(&entryCreate, "create", true, "create ITEM when it does not exist")
	entryAddCmd.MarkFlagsOneRequired("username", "email")
	entryCmd.AddCommand(entryAddCmd, entryRmCmd)

	fieldRegenCmd.Flags().StringVarP(&regenTemplate, "template", "t", "", "generator template to switch the field to")
	fieldCmd.AddCommand(fieldRegenCmd)
}

// EntryAdd generates and stores a new entry
func EntryAdd(cmd *cobra.Command, itemName string) error {
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	var templates []string
	for _, t := range entryTemplates {
		if t = strings.TrimSpace(t); t != "" {
			templates = append(templates, t)
		}
	}

	var created bool
	var entry vault.Entry
	err = update(cmd.Context(), k, func(v *vault.Vault) error {
		item, err := v.Item(itemName)
		if errors.Is(err, vault.ErrNotFound) && entryCreate {
			if err := v.AddItem(vault.Item{Name: itemName}); err != nil {
				return err
			}
			created = true
			item, err = v.Item(itemName)
		}
		if err != nil {
			return err
		}

		entry = vault.Entry{Username: entryUsername, Email: entryEmail, Fields: []vault.Field{}}
		if len(templates) > 0 {
			if entry, err = v.NewEntry(k.Generator(), entryUsername, entryEmail, templates...); err != nil {
				return err
			}
		}
		entry.IdentityProvider = entryIDP
		entry.Notes = entryNotes
		return item.AddEntry(entry)
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if created {
		fmt.Fprintf(out, "✓ Added item %s\n", itemName)
	}
	fields := make([]string, len(entry.Fields))
	for i, f := range entry.Fields {
		fields[i] = f.Name
	}
	if len(fields) > 0 {
		fmt.Fprintf(out, "✓ Added entry %s with generated %s\n", entry.Login(), strings.Join(fields, ", "))
	} else {
		fmt.Fprintf(out, "✓ Added entry %s\n", entry.Login())
	}
	return nil
}

// EntryRemove deletes an entry from an item
func EntryRemove(cmd *cobra.Command, itemName, login string) error {
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	if err := update(cmd.Context(), k, func(v *vault.Vault) error {
		item, err := v.Item(itemName)
		if err != nil {
			return err
		}
		return item.RemoveEntry(login)
	}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed entry %s from %s\n", login, itemName)
	return nil
}

// FieldRegen regenerates one field value
func FieldRegen(cmd *cobra.Command, itemName, login, fieldName string) error {
	k, err := openKeeper()
	if err != nil {
		return err
	}
	defer k.Close()

	if err := update(cmd.Context(), k, func(v *vault.Vault) error {
		item, err := v.Item(itemName)
		if err != nil {
			return err
		}
		entry, err := item.Entry(login)
		if err != nil {
			return err
		}
		field, err := entry.Field(fieldName)
		if err != nil {
			return err
		}
		if regenTemplate != "" {
			tmpl, err := v.GeneratorTemplate(regenTemplate)
			if err != nil {
				return err
			}
			field.Generator = tmpl.Instance()
		}
		return field.Regenerate(k.Generator())
	}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Regenerated %s for %s in %s\n", fieldName, login, itemName)
	return nil
}
