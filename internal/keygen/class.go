package keygen

import (
	"encoding/json"
	"fmt"
)

// CharacterClass is an alphabet plus occurrence constraints.
// MaxCount of zero means the class is only bounded by the key length.
type CharacterClass struct {
	alphabet Alphabet
	minCount int
	maxCount int
}

// NewCharacterClass validates and builds a character class
func NewCharacterClass(alphabet Alphabet, minCount, maxCount int) (CharacterClass, error) {
	if alphabet.IsZero() {
		return CharacterClass{}, fmt.Errorf("%w: character class needs a non-empty alphabet", ErrValidation)
	}
	if minCount < 0 {
		return CharacterClass{}, fmt.Errorf("%w: negative minimum count %d", ErrValidation, minCount)
	}
	if maxCount < 0 {
		return CharacterClass{}, fmt.Errorf("%w: negative maximum count %d", ErrValidation, maxCount)
	}
	if maxCount > 0 && minCount > maxCount {
		return CharacterClass{}, fmt.Errorf("%w: minimum count %d exceeds maximum count %d", ErrValidation, minCount, maxCount)
	}
	return CharacterClass{alphabet: alphabet, minCount: minCount, maxCount: maxCount}, nil
}

// MustCharacterClass is like NewCharacterClass but panics on invalid input.
// Intended for package-level defaults.
func MustCharacterClass(alphabet Alphabet, minCount, maxCount int) CharacterClass {
	c, err := NewCharacterClass(alphabet, minCount, maxCount)
	if err != nil {
		panic(err)
	}
	return c
}

// Alphabet returns the symbols the class draws from
func (c CharacterClass) Alphabet() Alphabet { return c.alphabet }

// MinCount returns the number of symbols the class must contribute
func (c CharacterClass) MinCount() int { return c.minCount }

// MaxCount returns the occurrence cap, or 0 when the class is unbounded
func (c CharacterClass) MaxCount() int { return c.maxCount }

// limit returns the occurrence cap for a key of the given length
func (c CharacterClass) limit(length int) int {
	if c.maxCount > 0 {
		return c.maxCount
	}
	return length
}

// Count returns how many runes of key belong to the class alphabet
func (c CharacterClass) Count(key string) int {
	n := 0
	for _, r := range key {
		if c.alphabet.Contains(r) {
			n++
		}
	}
	return n
}

type classJSON struct {
	CharacterList          *string `json:"characterList"`
	StandardCharacterClass *string `json:"standardCharacterClass"`
	MinCount               *int    `json:"minCount"`
	MaxCount               *int    `json:"maxCount"`
}

// MarshalJSON encodes the class in the vault file format
func (c CharacterClass) MarshalJSON() ([]byte, error) {
	var out classJSON
	if std, ok := c.alphabet.Standard(); ok {
		name := std.String()
		out.StandardCharacterClass = &name
	} else {
		list := c.alphabet.String()
		out.CharacterList = &list
	}
	if c.minCount > 0 {
		out.MinCount = &c.minCount
	}
	if c.maxCount > 0 {
		out.MaxCount = &c.maxCount
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and validates a class
func (c *CharacterClass) UnmarshalJSON(data []byte) error {
	var in classJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	hasList := in.CharacterList != nil && *in.CharacterList != ""
	hasStd := in.StandardCharacterClass != nil && *in.StandardCharacterClass != ""

	var alphabet Alphabet
	switch {
	case hasList && hasStd:
		return fmt.Errorf("%w: character class has both characterList and standardCharacterClass", ErrValidation)
	case hasList:
		a, err := ExplicitAlphabet(*in.CharacterList)
		if err != nil {
			return err
		}
		alphabet = a
	case hasStd:
		std, err := ParseStandardClass(*in.StandardCharacterClass)
		if err != nil {
			return err
		}
		alphabet = std.Alphabet()
	default:
		return fmt.Errorf("%w: character class needs a characterList or standardCharacterClass", ErrValidation)
	}

	var minCount, maxCount int
	if in.MinCount != nil {
		minCount = *in.MinCount
	}
	if in.MaxCount != nil {
		maxCount = *in.MaxCount
	}

	built, err := NewCharacterClass(alphabet, minCount, maxCount)
	if err != nil {
		return err
	}
	*c = built
	return nil
}
