// Package verifier implements server-side SIWA verification.
//
// DefaultVerifier runs the verification state machine over a signed
// sign-in message: parse, signature recovery, domain binding, nonce
// consumption, time window, registry resolution, onchain ownership
// (with ERC-1271 smart-contract-wallet fallback) and optional agent
// criteria. Every terminal outcome is a typed error code inside the
// VerificationResult - the verifier never surfaces verification
// failures as Go errors.
//
//	v, _ := verifier.NewDefaultVerifier(verifier.Config{
//	    Domain:   "example.com",
//	    Registry: registryClient,
//	    Nonces:   verifier.NewNonceManager(verifier.DefaultNonceTTL),
//	})
//
//	result := v.Verify(ctx, message, signature)
//	if result.Valid {
//	    // mint a receipt for result
//	}
//
// Nonce validity is an abstract predicate (NonceValidator) so a stored
// nonce backend and a stateless signed-nonce-token backend are
// interchangeable. The bundled NonceManager is a bounded in-memory
// store with atomic consume semantics.
package verifier
