package keygen

import (
	"fmt"
	"slices"
)

// StandardClass identifies one of the built-in alphabets
type StandardClass int

const (
	Lowercase StandardClass = iota + 1
	Uppercase
	Digits
	OWASPSpecials
)

const (
	lowercaseSymbols    = "abcdefghijklmnopqrstuvwxyz"
	uppercaseSymbols    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitSymbols        = "0123456789"
	owaspSpecialSymbols = " !\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// StandardClasses lists every built-in alphabet in declaration order
var StandardClasses = []StandardClass{Lowercase, Uppercase, Digits, OWASPSpecials}

// Symbols returns the alphabet of the standard class, or "" if c is unknown
func (c StandardClass) Symbols() string {
	switch c {
	case Lowercase:
		return lowercaseSymbols
	case Uppercase:
		return uppercaseSymbols
	case Digits:
		return digitSymbols
	case OWASPSpecials:
		return owaspSpecialSymbols
	}
	return ""
}

// String returns the serialized name of the class
func (c StandardClass) String() string {
	switch c {
	case Lowercase:
		return "ALPHABET_LOWERCASE"
	case Uppercase:
		return "ALPHABET_UPPERCASE"
	case Digits:
		return "DIGITS"
	case OWASPSpecials:
		return "OWASP_SPECIAL_CHARACTERS"
	}
	return fmt.Sprintf("StandardClass(%d)", int(c))
}

// Valid reports whether c is one of the built-in classes
func (c StandardClass) Valid() bool {
	return c.Symbols() != ""
}

// Alphabet returns the alphabet backed by this standard class.
// An unknown class yields an empty alphabet, which NewCharacterClass rejects.
func (c StandardClass) Alphabet() Alphabet {
	if !c.Valid() {
		return Alphabet{}
	}
	return Alphabet{standard: c, symbols: []rune(c.Symbols())}
}

// ParseStandardClass resolves a serialized class name
func ParseStandardClass(name string) (StandardClass, error) {
	for _, c := range StandardClasses {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown standard character class %q", ErrValidation, name)
}

// Alphabet is an ordered set of unique symbols. It is either one of the
// standard classes or an explicit symbol list, never both.
type Alphabet struct {
	standard StandardClass
	symbols  []rune
}

// ExplicitAlphabet builds an alphabet from a list of unique symbols
func ExplicitAlphabet(symbols string) (Alphabet, error) {
	runes := []rune(symbols)
	if len(runes) == 0 {
		return Alphabet{}, fmt.Errorf("%w: empty alphabet", ErrValidation)
	}
	seen := make(map[rune]struct{}, len(runes))
	for _, r := range runes {
		if _, dup := seen[r]; dup {
			return Alphabet{}, fmt.Errorf("%w: duplicate symbol %q in alphabet", ErrValidation, r)
		}
		seen[r] = struct{}{}
	}
	return Alphabet{symbols: runes}, nil
}

// Len returns the number of symbols
func (a Alphabet) Len() int {
	return len(a.symbols)
}

// IsZero reports whether the alphabet is empty
func (a Alphabet) IsZero() bool {
	return len(a.symbols) == 0
}

// Standard returns the standard class backing the alphabet, if any
func (a Alphabet) Standard() (StandardClass, bool) {
	return a.standard, a.standard != 0
}

// Contains reports whether r belongs to the alphabet
func (a Alphabet) Contains(r rune) bool {
	return slices.Contains(a.symbols, r)
}

// String returns the symbols in order
func (a Alphabet) String() string {
	return string(a.symbols)
}

func (a Alphabet) at(i int) rune {
	return a.symbols[i]
}
