// Copyright (C) 2025 SIWA Project
//
// This file is part of siwa-go.
//
// siwa-go is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// siwa-go is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with siwa-go.  If not, see <https://www.gnu.org/licenses/>.

package siwa

import "errors"

// ErrorCode identifies why a SIWA verification was rejected. Codes are
// stable protocol-level identifiers, not HTTP status codes; verification
// layers return them inside a VerificationResult rather than as errors.
type ErrorCode string

const (
	// CodeMalformedMessage means the message text did not parse.
	CodeMalformedMessage ErrorCode = "MALFORMED_MESSAGE"

	// CodeInvalidSignature means signature recovery failed or the
	// recovered signer does not match the claimed address.
	CodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"

	// CodeDomainMismatch means the message domain does not equal the
	// relying party's configured domain.
	CodeDomainMismatch ErrorCode = "DOMAIN_MISMATCH"

	// CodeInvalidNonce means the nonce was unknown or already consumed.
	CodeInvalidNonce ErrorCode = "INVALID_NONCE"

	// CodeMessageExpired means now is past the message expiration time.
	CodeMessageExpired ErrorCode = "MESSAGE_EXPIRED"

	// CodeMessageNotYetValid means now is before the not-before time.
	CodeMessageNotYetValid ErrorCode = "MESSAGE_NOT_YET_VALID"

	// CodeInvalidRegistryFormat means the agent registry reference is
	// not a well-formed eip155:{chainId}:{address} triple.
	CodeInvalidRegistryFormat ErrorCode = "INVALID_REGISTRY_FORMAT"

	// CodeNotRegistered means the registry has no token with the given
	// agent id (or the ownership lookup failed).
	CodeNotRegistered ErrorCode = "NOT_REGISTERED"

	// CodeNotOwner means the signer does not own the agent token and the
	// ERC-1271 fallback also failed.
	CodeNotOwner ErrorCode = "NOT_OWNER"

	// CodeAgentNotActive means the agent profile is marked inactive.
	CodeAgentNotActive ErrorCode = "AGENT_NOT_ACTIVE"

	// CodeMissingService means a required service is not advertised.
	CodeMissingService ErrorCode = "MISSING_SERVICE"

	// CodeMissingTrustModel means a required trust model is not supported.
	CodeMissingTrustModel ErrorCode = "MISSING_TRUST_MODEL"

	// CodeLowReputation means the reputation criteria were not met.
	CodeLowReputation ErrorCode = "LOW_REPUTATION"

	// CodeCustomCheckFailed means a caller-provided predicate rejected
	// the agent.
	CodeCustomCheckFailed ErrorCode = "CUSTOM_CHECK_FAILED"

	// CodeVerificationFailed is the catch-all for unexpected failures.
	CodeVerificationFailed ErrorCode = "VERIFICATION_FAILED"

	// CodeUnauthorized is the deliberately opaque rejection of the
	// request-signature layer.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodePolicyDenied means a signing request was rejected by policy.
	CodePolicyDenied ErrorCode = "POLICY_DENIED"

	// CodeCaptchaRequired means the caller must solve a bot-defense
	// challenge before the request will be accepted.
	CodeCaptchaRequired ErrorCode = "CAPTCHA_REQUIRED"
)

// ErrMalformedMessage is returned by ParseMessage when the text does not
// conform to the SIWA message grammar.
var ErrMalformedMessage = errors.New("malformed SIWA message")
