package keygen

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// MaxLength is the longest key a Spec may request
const MaxLength = 4096

// Spec describes one generation request: an exact key length and the
// ordered character classes the key is built from. A Spec is immutable
// and may be shared between goroutines.
type Spec struct {
	length  int
	classes []CharacterClass
}

// NewSpec validates and builds a spec. The sum of class minimums must not
// exceed length.
func NewSpec(length int, classes ...CharacterClass) (*Spec, error) {
	s := &Spec{length: length, classes: slices.Clone(classes)}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustSpec is like NewSpec but panics on invalid input
func MustSpec(length int, classes ...CharacterClass) *Spec {
	s, err := NewSpec(length, classes...)
	if err != nil {
		panic(err)
	}
	return s
}

// Length returns the exact key length in symbols
func (s *Spec) Length() int {
	return s.length
}

// Classes returns a copy of the character classes
func (s *Spec) Classes() []CharacterClass {
	return slices.Clone(s.classes)
}

// MinTotal returns the number of symbols the mandatory phase places.
// The sum saturates at math.MaxInt.
func (s *Spec) MinTotal() int {
	total := 0
	for _, c := range s.classes {
		if c.minCount > math.MaxInt-total {
			return math.MaxInt
		}
		total += c.minCount
	}
	return total
}

func (s *Spec) validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil spec", ErrValidation)
	}
	if s.length <= 0 {
		return fmt.Errorf("%w: key length must be positive, got %d", ErrValidation, s.length)
	}
	if s.length > MaxLength {
		return fmt.Errorf("%w: key length %d exceeds the limit of %d", ErrValidation, s.length, MaxLength)
	}
	if len(s.classes) == 0 {
		return fmt.Errorf("%w: at least one character class is required", ErrValidation)
	}
	for i, c := range s.classes {
		if c.alphabet.IsZero() {
			return fmt.Errorf("%w: character class %d has no alphabet", ErrValidation, i)
		}
	}
	total := 0
	for i, c := range s.classes {
		if c.minCount > s.length-total {
			return fmt.Errorf("%w: minimums through class %d exceed key length %d", ErrLengthConstraint, i, s.length)
		}
		total += c.minCount
	}
	return nil
}

type specJSON struct {
	Length           int              `json:"length"`
	CharacterClasses []CharacterClass `json:"characterClasses"`
}

// MarshalJSON encodes the spec in the vault file format
func (s *Spec) MarshalJSON() ([]byte, error) {
	return json.Marshal(specJSON{Length: s.length, CharacterClasses: s.classes})
}

// UnmarshalJSON decodes and validates a spec
func (s *Spec) UnmarshalJSON(data []byte) error {
	var in specJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	built, err := NewSpec(in.Length, in.CharacterClasses...)
	if err != nil {
		return err
	}
	*s = *built
	return nil
}
