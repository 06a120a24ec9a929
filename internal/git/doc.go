// Package git checks how a ksv vault sits in a git working tree.
//
// The sealed vault file is safe to commit. Plaintext exports are not: they
// should be ignored and never tracked.
package git
