package vault

import (
	"fmt"
	"slices"
	"strings"

	"github.com/illarion/ksv/internal/keygen"
)

// Item groups the credentials of one service or site
type Item struct {
	Name             string   `json:"itemName"`
	AlternativeNames []string `json:"alternativeNames"`
	Entries          []Entry  `json:"keyEntries"`
}

// Names returns the primary name followed by the alternative names
func (it *Item) Names() []string {
	return append([]string{it.Name}, it.AlternativeNames...)
}

// Matches reports whether name is the item's name or an alternative name.
// Comparison ignores case.
func (it *Item) Matches(name string) bool {
	return slices.ContainsFunc(it.Names(), func(n string) bool {
		return strings.EqualFold(n, name)
	})
}

// Validate checks the item name and every entry
func (it *Item) Validate() error {
	if strings.TrimSpace(it.Name) == "" {
		return fmt.Errorf("%w: item name is empty", ErrInvalid)
	}
	for _, alt := range it.AlternativeNames {
		if strings.TrimSpace(alt) == "" {
			return fmt.Errorf("%w: item %q has an empty alternative name", ErrInvalid, it.Name)
		}
	}
	logins := make(map[string]bool)
	for i := range it.Entries {
		e := &it.Entries[i]
		if err := e.Validate(); err != nil {
			return fmt.Errorf("item %q: %w", it.Name, err)
		}
		if logins[e.Login()] {
			return fmt.Errorf("%w: item %q has two entries for %q", ErrInvalid, it.Name, e.Login())
		}
		logins[e.Login()] = true
	}
	return nil
}

func (it *Item) normalize() {
	if it.AlternativeNames == nil {
		it.AlternativeNames = []string{}
	}
	if it.Entries == nil {
		it.Entries = []Entry{}
	}
	for i := range it.Entries {
		if it.Entries[i].Fields == nil {
			it.Entries[i].Fields = []Field{}
		}
	}
}

// Entry returns the entry whose login (username or email) equals login
func (it *Item) Entry(login string) (*Entry, error) {
	for i := range it.Entries {
		if it.Entries[i].Login() == login {
			return &it.Entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: entry %q in item %q", ErrNotFound, login, it.Name)
}

// AddEntry appends e unless its login is already taken
func (it *Item) AddEntry(e Entry) error {
	if e.Fields == nil {
		e.Fields = []Field{}
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if _, err := it.Entry(e.Login()); err == nil {
		return fmt.Errorf("%w: an entry with name %q is already present", ErrAlreadyPresent, e.Login())
	}
	it.Entries = append(it.Entries, e)
	return nil
}

// RemoveEntry deletes the entry identified by login
func (it *Item) RemoveEntry(login string) error {
	for i := range it.Entries {
		if it.Entries[i].Login() == login {
			it.Entries = slices.Delete(it.Entries, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("%w: entry %q in item %q", ErrNotFound, login, it.Name)
}

// Entry is one set of credentials within an item
type Entry struct {
	Username         string  `json:"username"`
	Email            string  `json:"email"`
	Fields           []Field `json:"fields"`
	IdentityProvider string  `json:"identityProvider"`
	Notes            string  `json:"notes"`
}

// Login identifies the entry: the username, or the email when no username is set
func (e *Entry) Login() string {
	if e.Username != "" {
		return e.Username
	}
	return e.Email
}

// Validate requires a username or email, and either fields or an identity provider.
func (e *Entry) Validate() error {
	if e.Username == "" && e.Email == "" {
		return fmt.Errorf("%w: entry needs a username or an email", ErrInvalid)
	}
	if len(e.Fields) == 0 && e.IdentityProvider == "" {
		return fmt.Errorf("%w: entry %q needs fields or an identity provider", ErrInvalid, e.Login())
	}
	names := make(map[string]bool)
	for i := range e.Fields {
		if err := e.Fields[i].Validate(); err != nil {
			return fmt.Errorf("entry %q: %w", e.Login(), err)
		}
		if names[e.Fields[i].Name] {
			return fmt.Errorf("%w: entry %q has two fields named %q", ErrInvalid, e.Login(), e.Fields[i].Name)
		}
		names[e.Fields[i].Name] = true
	}
	return nil
}

// Field returns the named field
func (e *Entry) Field(name string) (*Field, error) {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i], nil
		}
	}
	return nil, fmt.Errorf("%w: field %q in entry %q", ErrNotFound, name, e.Login())
}

// AddField appends f unless the name is already used
func (e *Entry) AddField(f Field) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if _, err := e.Field(f.Name); err == nil {
		return fmt.Errorf("%w: a field with name %q is already present", ErrAlreadyPresent, f.Name)
	}
	e.Fields = append(e.Fields, f)
	return nil
}

// RemoveField deletes the named field
func (e *Entry) RemoveField(name string) error {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			e.Fields = slices.Delete(e.Fields, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("%w: field %q in entry %q", ErrNotFound, name, e.Login())
}

// Field is a named secret. When Generator is set the value can be regenerated.
type Field struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Generator   *keygen.Spec `json:"generator"`
	Value       string       `json:"value"`
}

// Validate requires a field name
func (f *Field) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: field name is empty", ErrInvalid)
	}
	return nil
}

// Regenerate replaces the value with a fresh key drawn from the field's generator
func (f *Field) Regenerate(gen *keygen.Generator) error {
	if f.Generator == nil {
		return fmt.Errorf("%w: field %q has no generator", ErrInvalid, f.Name)
	}
	if gen == nil {
		gen = keygen.New(nil)
	}
	value, err := gen.Generate(f.Generator)
	if err != nil {
		return err
	}
	f.Value = value
	return nil
}
