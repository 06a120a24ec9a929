package vault

import (
	"fmt"
	"slices"
	"strings"

	"github.com/illarion/ksv/internal/keygen"
)

// ClassTemplate is a named, reusable character class
type ClassTemplate struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Schema      keygen.CharacterClass `json:"schema"`
}

// Instance returns a copy of the template's class
func (t ClassTemplate) Instance() keygen.CharacterClass {
	return t.Schema
}

// GeneratorTemplate is a named, reusable generator spec
type GeneratorTemplate struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Schema      *keygen.Spec `json:"schema"`
}

// Instance returns an independent copy of the template's spec
func (t GeneratorTemplate) Instance() *keygen.Spec {
	if t.Schema == nil {
		return nil
	}
	return keygen.MustSpec(t.Schema.Length(), t.Schema.Classes()...)
}

// FieldTemplate is a named, reusable field shape
type FieldTemplate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      Field  `json:"schema"`
}

// Instance returns a copy of the template's field with an empty value
func (t FieldTemplate) Instance() Field {
	f := t.Schema
	f.Value = ""
	if f.Generator != nil {
		f.Generator = keygen.MustSpec(f.Generator.Length(), f.Generator.Classes()...)
	}
	return f
}

type template interface {
	ClassTemplate | GeneratorTemplate | FieldTemplate
}

func templateName[T template](t T) string {
	switch v := any(t).(type) {
	case ClassTemplate:
		return v.Name
	case GeneratorTemplate:
		return v.Name
	case FieldTemplate:
		return v.Name
	}
	return ""
}

func indexTemplate[T template](list []T, name string) int {
	return slices.IndexFunc(list, func(t T) bool {
		return strings.EqualFold(templateName(t), name)
	})
}

func validateTemplates[T template](kind string, list []T) error {
	seen := make(map[string]bool)
	for _, t := range list {
		name := templateName(t)
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: %s with empty name", ErrInvalid, kind)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return fmt.Errorf("%w: duplicate %s %q", ErrInvalid, kind, name)
		}
		seen[key] = true
	}
	return nil
}

func addTemplate[T template](list []T, kind string, t T) ([]T, error) {
	name := templateName(t)
	if strings.TrimSpace(name) == "" {
		return list, fmt.Errorf("%w: %s with empty name", ErrInvalid, kind)
	}
	if indexTemplate(list, name) >= 0 {
		return list, fmt.Errorf("%w: a %s with name %q is already present", ErrAlreadyPresent, kind, name)
	}
	return append(list, t), nil
}

func removeTemplate[T template](list []T, kind, name string) ([]T, error) {
	i := indexTemplate(list, name)
	if i < 0 {
		return list, fmt.Errorf("%w: %s %q", ErrNotFound, kind, name)
	}
	return slices.Delete(list, i, i+1), nil
}

// ClassTemplate looks up a character class template by name
func (v *Vault) ClassTemplate(name string) (ClassTemplate, error) {
	if i := indexTemplate(v.ClassTemplates, name); i >= 0 {
		return v.ClassTemplates[i], nil
	}
	return ClassTemplate{}, fmt.Errorf("%w: character class template %q", ErrNotFound, name)
}

// GeneratorTemplate looks up a generator template by name
func (v *Vault) GeneratorTemplate(name string) (GeneratorTemplate, error) {
	if i := indexTemplate(v.GeneratorTemplates, name); i >= 0 {
		return v.GeneratorTemplates[i], nil
	}
	return GeneratorTemplate{}, fmt.Errorf("%w: generator template %q", ErrNotFound, name)
}

// FieldTemplate looks up a field template by name
func (v *Vault) FieldTemplate(name string) (FieldTemplate, error) {
	if i := indexTemplate(v.FieldTemplates, name); i >= 0 {
		return v.FieldTemplates[i], nil
	}
	return FieldTemplate{}, fmt.Errorf("%w: field template %q", ErrNotFound, name)
}

// AddClassTemplate stores a new character class template
func (v *Vault) AddClassTemplate(t ClassTemplate) (err error) {
	if t.Schema.Alphabet().IsZero() {
		return fmt.Errorf("%w: character class template %q has no schema", ErrInvalid, t.Name)
	}
	v.ClassTemplates, err = addTemplate(v.ClassTemplates, "character class template", t)
	return err
}

// AddGeneratorTemplate stores a new generator template
func (v *Vault) AddGeneratorTemplate(t GeneratorTemplate) (err error) {
	if t.Schema == nil {
		return fmt.Errorf("%w: generator template %q has no schema", ErrInvalid, t.Name)
	}
	v.GeneratorTemplates, err = addTemplate(v.GeneratorTemplates, "generator template", t)
	return err
}

// AddFieldTemplate stores a new field template
func (v *Vault) AddFieldTemplate(t FieldTemplate) (err error) {
	if err := t.Schema.Validate(); err != nil {
		return err
	}
	v.FieldTemplates, err = addTemplate(v.FieldTemplates, "field template", t)
	return err
}

// RemoveClassTemplate deletes a character class template
func (v *Vault) RemoveClassTemplate(name string) (err error) {
	v.ClassTemplates, err = removeTemplate(v.ClassTemplates, "character class template", name)
	return err
}

// RemoveGeneratorTemplate deletes a generator template
func (v *Vault) RemoveGeneratorTemplate(name string) (err error) {
	v.GeneratorTemplates, err = removeTemplate(v.GeneratorTemplates, "generator template", name)
	return err
}

// RemoveFieldTemplate deletes a field template
func (v *Vault) RemoveFieldTemplate(name string) (err error) {
	v.FieldTemplates, err = removeTemplate(v.FieldTemplates, "field template", name)
	return err
}
