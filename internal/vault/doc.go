// Package vault holds the in-memory vault: items, their credential
// entries and the generated fields of each entry, plus the template
// catalog used to create new fields.
//
// The vault serializes to canonical JSON with Dump and is restored with
// Load. It is not safe for concurrent mutation; callers serialize writes.
package vault
