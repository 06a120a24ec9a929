// Package core provides the vault file operations behind the ksv CLI.
//
// A Keeper owns one vault file and runs every operation as a
// load-mutate-seal cycle:
//   - Init: create the file with an empty vault and the default templates
//   - Load/Save/Update: open, change and re-seal the vault
//   - ChangePassword: re-seal under a new password with a fresh salt
//   - Status: report cleartext metadata without a password
//   - Export/Import/Diff: exchange plaintext JSON confined to the work dir
//
// Import resolves items whose names collide with stored ones by strategy:
//   - Keep the stored item
//   - Use the imported item
//   - Edit merged (opens $EDITOR with git-style conflict markers)
//   - Keep both (the imported item is renamed)
package core
