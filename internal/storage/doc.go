// Package storage provides the BBolt database behind a ksv vault file.
//
// The database has two buckets:
//   - config: format version, timestamps and vault ID (unencrypted)
//   - envelope: the sealed vault dump under a single key
//
// The envelope carries its own KDF parameters in a cleartext header, so
// status can be reported without a password.
package storage
