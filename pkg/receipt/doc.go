// Package receipt issues and validates stateless verification receipts.
//
// A receipt is the portable proof that a SIWA identity check succeeded:
// base64url(payload JSON) + "." + base64url(HMAC-SHA256 tag). Validity
// is fully determined by the tag and the clock - the server stores
// nothing. Validate returns nil rather than an error on any failure so
// callers treat bad, malformed and expired receipts uniformly.
package receipt
