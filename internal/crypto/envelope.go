package crypto

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Envelope layout:
//
//	magic(4) | version(1) | kdf(1) | iterations(4, big-endian) | salt(32) | nonce(12) | ciphertext+tag
//
// Everything before the nonce is the header. It is stored in cleartext and
// authenticated as GCM additional data.
const (
	EnvelopeVersion = 1
	KDFPBKDF2SHA256 = 1
	MaxIterations   = 10_000_000

	headerSize      = 4 + 1 + 1 + 4 + SaltSize
	MinEnvelopeSize = headerSize + NonceSize + TagSize
)

var envelopeMagic = []byte("KSVE")

// Header is the cleartext part of an envelope
type Header struct {
	Version    uint8
	KDF        uint8
	Iterations uint32
	Salt       []byte
}

// Algorithm names the cipher and KDF profile described by the header
func (h Header) Algorithm() string {
	return "AES-256-GCM / PBKDF2-HMAC-SHA256"
}

func (h Header) marshal() []byte {
	buf := make([]byte, 0, headerSize)
	buf = append(buf, envelopeMagic...)
	buf = append(buf, h.Version, h.KDF)
	buf = binary.BigEndian.AppendUint32(buf, h.Iterations)
	return append(buf, h.Salt...)
}

// Inspect parses the cleartext header of an envelope without a password
func Inspect(envelope []byte) (*Header, error) {
	if len(envelope) < MinEnvelopeSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the minimum %d", ErrMalformedEnvelope, len(envelope), MinEnvelopeSize)
	}
	if !bytes.Equal(envelope[:4], envelopeMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformedEnvelope)
	}

	h := &Header{
		Version:    envelope[4],
		KDF:        envelope[5],
		Iterations: binary.BigEndian.Uint32(envelope[6:10]),
		Salt:       append([]byte(nil), envelope[10:headerSize]...),
	}
	if h.Version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedEnvelope, h.Version)
	}
	if h.KDF != KDFPBKDF2SHA256 {
		return nil, fmt.Errorf("%w: unsupported key derivation %d", ErrMalformedEnvelope, h.KDF)
	}
	if h.Iterations == 0 || h.Iterations > MaxIterations {
		return nil, fmt.Errorf("%w: iteration count %d out of range", ErrMalformedEnvelope, h.Iterations)
	}
	return h, nil
}

// Sealer seals and opens envelopes. The zero value is not usable; use NewSealer.
type Sealer struct {
	iterations int
}

// Option configures a Sealer
type Option func(*Sealer)

// WithIterations overrides the PBKDF2 iteration count used when sealing.
// Opening always uses the count recorded in the envelope.
func WithIterations(n int) Option {
	return func(s *Sealer) {
		s.iterations = n
	}
}

// NewSealer creates a sealer with the default key derivation profile
func NewSealer(opts ...Option) *Sealer {
	s := &Sealer{iterations: DefaultIters}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Iterations returns the iteration count used for new envelopes
func (s *Sealer) Iterations() int {
	return s.iterations
}

var defaultSealer = NewSealer()

// Seal encrypts plaintext under password with the default sealer
func Seal(plaintext, password []byte) ([]byte, error) {
	return defaultSealer.Seal(plaintext, password)
}

// Open decrypts an envelope produced by Seal
func Open(envelope, password []byte) ([]byte, error) {
	return defaultSealer.Open(envelope, password)
}

// Seal encrypts plaintext under a key derived from password.
// A fresh salt and nonce are drawn for every call.
func (s *Sealer) Seal(plaintext, password []byte) ([]byte, error) {
	if s.iterations <= 0 || s.iterations > MaxIterations {
		return nil, fmt.Errorf("iteration count %d out of range", s.iterations)
	}

	kdf, err := NewKDF(s.iterations)
	if err != nil {
		return nil, fmt.Errorf("failed to create KDF: %w", err)
	}

	header := Header{
		Version:    EnvelopeVersion,
		KDF:        KDFPBKDF2SHA256,
		Iterations: uint32(kdf.Iterations),
		Salt:       kdf.Salt,
	}.marshal()

	enc := NewEncryptor(kdf.DeriveKey(password))
	defer enc.Destroy()

	sealed, err := enc.Encrypt(plaintext, header)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt vault: %w", err)
	}

	envelope := make([]byte, 0, len(header)+len(sealed))
	envelope = append(envelope, header...)
	return append(envelope, sealed...), nil
}

// Open verifies and decrypts an envelope
func (s *Sealer) Open(envelope, password []byte) ([]byte, error) {
	h, err := Inspect(envelope)
	if err != nil {
		return nil, err
	}

	kdf := &KDF{Salt: h.Salt, Iterations: int(h.Iterations)}
	enc := NewEncryptor(kdf.DeriveKey(password))
	defer enc.Destroy()

	return enc.Decrypt(envelope[headerSize:], envelope[:headerSize])
}
