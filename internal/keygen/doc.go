// Package keygen generates secrets from a set of character classes.
//
// A Spec combines an exact key length with an ordered list of
// CharacterClass values. Each class draws from either a standard alphabet
// (lowercase, uppercase, digits, OWASP special characters) or an explicit
// set of unique symbols, and may require a minimum and cap a maximum
// number of occurrences.
//
// Generation runs in three phases:
//   - Mandatory: every class contributes its minimum count
//   - Fill: remaining slots go to classes below their cap, chosen with
//     weight equal to the class alphabet size
//   - Unbias: Fisher-Yates shuffle of the whole key
//
// All randomness comes from a single Source. The default Source reads
// crypto/rand; tests may substitute a deterministic one.
package keygen
