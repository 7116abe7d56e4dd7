// Package keyring implements the key-custody boundary: an HTTP service
// that holds signing keys, gates every signing request through the
// policy engine, and exposes a policy administration surface. Keys
// never leave the boundary; callers only ever receive signatures.
package keyring
