package keygen

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// Source supplies uniformly distributed integers in [0, n).
// Implementations must be safe for concurrent use.
type Source interface {
	Intn(n int) (int, error)
}

// CryptoSource draws integers from a cryptographically secure reader
type CryptoSource struct {
	r io.Reader
}

// NewCryptoSource wraps r; a nil reader selects crypto/rand.Reader
func NewCryptoSource(r io.Reader) *CryptoSource {
	if r == nil {
		r = rand.Reader
	}
	return &CryptoSource{r: r}
}

// Intn returns a uniform integer in [0, n) without modulo bias
func (s *CryptoSource) Intn(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("invalid random range %d", n)
	}
	v, err := rand.Int(s.r, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to read random value: %w", err)
	}
	return int(v.Int64()), nil
}
