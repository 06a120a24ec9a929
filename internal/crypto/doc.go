// Package crypto seals the serialized vault behind a password.
//
// Encryption uses AES-256-GCM with:
//   - 32-byte key derived from password via PBKDF2
//   - 12-byte random nonce per seal
//   - the cleartext envelope header bound as additional authenticated data
//
// Key derivation uses PBKDF2-HMAC-SHA256 with:
//   - 32-byte random salt per seal (stored unencrypted in the header)
//   - 210,000 iterations (OWASP minimum recommendation)
//
// A wrong password and a tampered envelope both fail with ErrAuthFailed.
// Input that is not an envelope at all fails with ErrMalformedEnvelope.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Encryptor.Destroy() when done with encryption operations
package crypto
