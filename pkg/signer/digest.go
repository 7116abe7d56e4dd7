package signer

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

// ComputeContentDigest renders an RFC 9530 sha-256 digest header value
// for the given body.
func ComputeContentDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return "sha-256=:" + base64.StdEncoding.EncodeToString(sum[:]) + ":"
}

// VerifyContentDigest checks a received Content-Digest header against
// the actual body.
func VerifyContentDigest(header string, body []byte) error {
	encoded, ok := strings.CutPrefix(header, "sha-256=:")
	if !ok || !strings.HasSuffix(encoded, ":") {
		return fmt.Errorf("unsupported content digest format")
	}

	want, err := base64.StdEncoding.DecodeString(strings.TrimSuffix(encoded, ":"))
	if err != nil {
		return fmt.Errorf("invalid content digest encoding: %w", err)
	}

	sum := sha256.Sum256(body)
	if subtle.ConstantTimeCompare(want, sum[:]) != 1 {
		return fmt.Errorf("content digest mismatch")
	}
	return nil
}
