package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/illarion/ksv/internal/keygen"
)

var (
	ErrAlreadyPresent = errors.New("already present")
	ErrNotFound       = errors.New("not found")
	ErrInvalid        = errors.New("invalid vault data")
)

// Vault is the root of the stored data
type Vault struct {
	Items              []Item              `json:"itemEntries"`
	ClassTemplates     []ClassTemplate     `json:"keyCharacterClassTemplates"`
	GeneratorTemplates []GeneratorTemplate `json:"keyGeneratorTemplates"`
	FieldTemplates     []FieldTemplate     `json:"keyEntryFieldTemplates"`
}

// New returns an empty vault without templates
func New() *Vault {
	return &Vault{
		Items:              []Item{},
		ClassTemplates:     []ClassTemplate{},
		GeneratorTemplates: []GeneratorTemplate{},
		FieldTemplates:     []FieldTemplate{},
	}
}

// Load parses and validates a vault dump
func Load(data []byte) (*Vault, error) {
	v := New()
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	v.normalize()
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// Dump serializes the vault to canonical indented JSON
func (v *Vault) Dump() ([]byte, error) {
	v.normalize()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vault: %w", err)
	}
	return append(data, '\n'), nil
}

func (v *Vault) normalize() {
	if v.Items == nil {
		v.Items = []Item{}
	}
	if v.ClassTemplates == nil {
		v.ClassTemplates = []ClassTemplate{}
	}
	if v.GeneratorTemplates == nil {
		v.GeneratorTemplates = []GeneratorTemplate{}
	}
	if v.FieldTemplates == nil {
		v.FieldTemplates = []FieldTemplate{}
	}
	for i := range v.Items {
		v.Items[i].normalize()
	}
}

// Validate checks every item and template
func (v *Vault) Validate() error {
	seen := make(map[string]string)
	for i := range v.Items {
		item := &v.Items[i]
		if err := item.Validate(); err != nil {
			return err
		}
		for _, name := range item.Names() {
			key := strings.ToLower(name)
			if owner, dup := seen[key]; dup {
				return fmt.Errorf("%w: name %q used by items %q and %q", ErrInvalid, name, owner, item.Name)
			}
			seen[key] = item.Name
		}
	}
	if err := validateTemplates("character class template", v.ClassTemplates); err != nil {
		return err
	}
	if err := validateTemplates("generator template", v.GeneratorTemplates); err != nil {
		return err
	}
	if err := validateTemplates("field template", v.FieldTemplates); err != nil {
		return err
	}
	for _, t := range v.ClassTemplates {
		if t.Schema.Alphabet().IsZero() {
			return fmt.Errorf("%w: character class template %q has no schema", ErrInvalid, t.Name)
		}
	}
	for _, t := range v.GeneratorTemplates {
		if t.Schema == nil {
			return fmt.Errorf("%w: generator template %q has no schema", ErrInvalid, t.Name)
		}
	}
	for _, t := range v.FieldTemplates {
		if err := t.Schema.Validate(); err != nil {
			return fmt.Errorf("field template %q: %w", t.Name, err)
		}
	}
	return nil
}

// Item finds an item by its name or one of its alternative names
func (v *Vault) Item(name string) (*Item, error) {
	for i := range v.Items {
		if v.Items[i].Matches(name) {
			return &v.Items[i], nil
		}
	}
	return nil, fmt.Errorf("%w: item %q", ErrNotFound, name)
}

// AddItem appends an item. None of its names may collide with an existing item.
func (v *Vault) AddItem(item Item) error {
	item.normalize()
	if err := item.Validate(); err != nil {
		return err
	}
	for _, name := range item.Names() {
		if existing, err := v.Item(name); err == nil {
			return fmt.Errorf("%w: an item with name %q is already present (%s)", ErrAlreadyPresent, name, existing.Name)
		}
	}
	v.Items = append(v.Items, item)
	return nil
}

// RemoveItem deletes the item matching name
func (v *Vault) RemoveItem(name string) error {
	for i := range v.Items {
		if v.Items[i].Matches(name) {
			v.Items = slices.Delete(v.Items, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("%w: item %q", ErrNotFound, name)
}

// ItemNames returns the primary names of all items, sorted
func (v *Vault) ItemNames() []string {
	names := make([]string, len(v.Items))
	for i, item := range v.Items {
		names[i] = item.Name
	}
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return names
}

// NewEntry builds an entry whose fields are instantiated from the named
// field templates and filled with freshly generated values.
func (v *Vault) NewEntry(gen *keygen.Generator, username, email string, fieldTemplates ...string) (Entry, error) {
	entry := Entry{Username: username, Email: email, Fields: []Field{}}
	for _, name := range fieldTemplates {
		tmpl, err := v.FieldTemplate(name)
		if err != nil {
			return Entry{}, err
		}
		field := tmpl.Instance()
		if err := field.Regenerate(gen); err != nil {
			return Entry{}, fmt.Errorf("failed to generate field %q: %w", field.Name, err)
		}
		if err := entry.AddField(field); err != nil {
			return Entry{}, err
		}
	}
	if err := entry.Validate(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}
