package keygen

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("invalid generator spec")
	ErrLengthConstraint     = errors.New("character class minimums exceed key length")
	ErrInsufficientCapacity = errors.New("character classes cannot fill the key length")
)

// Generator produces keys from specs using a single randomness source
type Generator struct {
	src Source
}

// New creates a generator drawing from src. A nil src selects crypto/rand.
func New(src Source) *Generator {
	if src == nil {
		src = NewCryptoSource(nil)
	}
	return &Generator{src: src}
}

var defaultGenerator = New(nil)

// Generate creates a key with the default crypto/rand backed generator
func Generate(spec *Spec) (string, error) {
	return defaultGenerator.Generate(spec)
}

// Generate creates a key satisfying spec. The result has exactly
// spec.Length() symbols and every class count lies within its bounds.
func (g *Generator) Generate(spec *Spec) (string, error) {
	if err := spec.validate(); err != nil {
		return "", err
	}

	key := make([]rune, 0, spec.length)
	counts := make([]int, len(spec.classes))

	// Mandatory phase
	for i, c := range spec.classes {
		for range c.minCount {
			r, err := g.pick(c.alphabet)
			if err != nil {
				return "", err
			}
			key = append(key, r)
			counts[i]++
		}
	}

	if len(key) > spec.length {
		return "", fmt.Errorf("%w: expected %d symbols, placed %d", ErrLengthConstraint, spec.length, len(key))
	}

	// Fill phase
	for len(key) < spec.length {
		i, err := g.pickClass(spec, counts, len(key))
		if err != nil {
			return "", err
		}
		r, err := g.pick(spec.classes[i].alphabet)
		if err != nil {
			return "", err
		}
		key = append(key, r)
		counts[i]++
	}

	if err := g.shuffle(key); err != nil {
		return "", err
	}

	return string(key), nil
}

// pick draws one symbol uniformly from the alphabet
func (g *Generator) pick(a Alphabet) (rune, error) {
	i, err := g.src.Intn(a.Len())
	if err != nil {
		return 0, err
	}
	return a.at(i), nil
}

// pickClass selects a class below its cap, weighted by alphabet size.
// The weight ignores how much headroom a class has left.
func (g *Generator) pickClass(spec *Spec, counts []int, placed int) (int, error) {
	total := 0
	for i, c := range spec.classes {
		if counts[i] < c.limit(spec.length) {
			total += c.alphabet.Len()
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("%w: all classes capped after %d of %d symbols", ErrInsufficientCapacity, placed, spec.length)
	}

	n, err := g.src.Intn(total)
	if err != nil {
		return 0, err
	}
	for i, c := range spec.classes {
		if counts[i] >= c.limit(spec.length) {
			continue
		}
		if n < c.alphabet.Len() {
			return i, nil
		}
		n -= c.alphabet.Len()
	}
	return 0, fmt.Errorf("random value out of range [0, %d)", total)
}

// shuffle applies a Fisher-Yates permutation in place
func (g *Generator) shuffle(key []rune) error {
	for i := len(key) - 1; i > 0; i-- {
		j, err := g.src.Intn(i + 1)
		if err != nil {
			return err
		}
		key[i], key[j] = key[j], key[i]
	}
	return nil
}
