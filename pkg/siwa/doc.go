// Package siwa defines the core types of the Sign-In-With-Agents protocol:
// the identity challenge message and its canonical text codec, the
// verification result and error codes, and the structured response format
// that relying platforms forward to agents.
//
// # The SIWA message
//
// An agent proves control of an onchain identity by signing a structured
// plaintext message. The message binds the relying party's domain, the
// agent's account address, its identity-token id and registry, a one-time
// nonce and a time window:
//
//	example.com wants you to sign in with your Agent account:
//	0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B
//
//	I accept the Terms of Service.
//
//	URI: https://example.com/login
//	Version: 1
//	Agent ID: 42
//	Agent Registry: eip155:84532:0x8004AA63c570c570eBF15376c0dB199918BFe9Fb
//	Chain ID: 84532
//	Nonce: mK9dP2qR7sT4vW1x
//	Issued At: 2025-01-15T10:30:00Z
//
// Build the message with BuildMessage and recover the fields on the
// server side with ParseMessage. The two are exact inverses for any
// well-formed field set.
//
// # Verification results
//
// Server-side verification (pkg/verifier) produces a VerificationResult
// carrying either the resolved identity or an ErrorCode. BuildResponse
// turns a result into the platform-facing Response, including actionable
// registration steps when the agent is not yet on the registry.
package siwa
