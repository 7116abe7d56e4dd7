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

package verifier

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/siwa-id/siwa-go/pkg/siwa"
)

// Config configures a DefaultVerifier. Domain and Registry are
// required, plus either NonceValidator or Nonces.
type Config struct {
	// Domain is the relying party's domain; messages bound to any other
	// domain are rejected.
	Domain string

	// Registry resolves ownership onchain.
	Registry RegistryClient

	// NonceValidator consumes nonces. When nil, Nonces is used.
	NonceValidator NonceValidator

	// Nonces optionally provides both issuance and consumption.
	Nonces *NonceManager

	// RegistryOverride, when set, replaces the registry address from
	// the message's agent registry reference.
	RegistryOverride string

	// Profiles resolves agent metadata for criteria evaluation. May be
	// nil when VerifyWithCriteria is never used.
	Profiles ProfileResolver

	// Now is the clock, defaulting to time.Now. Tests override it.
	Now func() time.Time
}

// DefaultVerifier is the standard Verifier implementation.
type DefaultVerifier struct {
	domain           string
	registry         RegistryClient
	validateNonce    NonceValidator
	nonces           *NonceManager
	registryOverride string
	profiles         ProfileResolver
	now              func() time.Time
}

// NewDefaultVerifier validates the config and builds a verifier.
func NewDefaultVerifier(cfg Config) (*DefaultVerifier, error) {
	if cfg.Domain == "" {
		return nil, fmt.Errorf("domain cannot be empty")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry client cannot be nil")
	}

	validate := cfg.NonceValidator
	if validate == nil && cfg.Nonces != nil {
		validate = cfg.Nonces.Consume
	}
	if validate == nil {
		return nil, fmt.Errorf("either NonceValidator or Nonces must be provided")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &DefaultVerifier{
		domain:           cfg.Domain,
		registry:         cfg.Registry,
		validateNonce:    validate,
		nonces:           cfg.Nonces,
		registryOverride: cfg.RegistryOverride,
		profiles:         cfg.Profiles,
		now:              now,
	}, nil
}

// Verify runs the verification state machine without agent criteria.
func (v *DefaultVerifier) Verify(ctx context.Context, message, signature string) siwa.VerificationResult {
	return v.VerifyWithCriteria(ctx, message, signature, nil)
}

// VerifyWithCriteria runs the full verification state machine. The
// returned result carries an error code for the first failing check;
// checks run in a fixed order so callers can rely on which failure wins.
func (v *DefaultVerifier) VerifyWithCriteria(ctx context.Context, message, signature string, criteria *Criteria) siwa.VerificationResult {
	if err := ctx.Err(); err != nil {
		return siwa.VerificationResult{
			Verified: siwa.VerifiedOffline,
			Code:     siwa.CodeVerificationFailed,
			Error:    err.Error(),
		}
	}

	// 1. Parse.
	fields, err := siwa.ParseMessage(message)
	if err != nil {
		return siwa.VerificationResult{
			Verified: siwa.VerifiedOffline,
			Code:     siwa.CodeMalformedMessage,
			Error:    err.Error(),
		}
	}

	fail := func(code siwa.ErrorCode, errMsg string) siwa.VerificationResult {
		return siwa.VerificationResult{
			Address:       fields.Address,
			AgentID:       fields.AgentID,
			AgentRegistry: fields.AgentRegistry,
			ChainID:       fields.ChainID,
			Verified:      siwa.VerifiedOnchain,
			Code:          code,
			Error:         errMsg,
		}
	}

	// 2. Recover the signer and authenticate against the claimed address.
	recovered, err := RecoverAddress(message, signature)
	if err != nil {
		return fail(siwa.CodeInvalidSignature, "invalid signature")
	}
	claimed := common.HexToAddress(fields.Address)
	if recovered != claimed {
		return fail(siwa.CodeInvalidSignature,
			fmt.Sprintf("signature recovered %s, expected %s", recovered.Hex(), fields.Address))
	}

	// 3. Domain binding.
	if fields.Domain != v.domain {
		return fail(siwa.CodeDomainMismatch,
			fmt.Sprintf("domain mismatch: expected %s, got %s", v.domain, fields.Domain))
	}

	// 4. Nonce consumption.
	nonceOK, err := v.validateNonce(ctx, fields.Nonce)
	if err != nil {
		return fail(siwa.CodeVerificationFailed, fmt.Sprintf("nonce validation failed: %v", err))
	}
	if !nonceOK {
		return fail(siwa.CodeInvalidNonce, "invalid or consumed nonce")
	}

	// 5. Time window.
	now := v.now().UTC()
	if fields.ExpirationTime != "" {
		exp, err := time.Parse(time.RFC3339, fields.ExpirationTime)
		if err != nil {
			return fail(siwa.CodeMalformedMessage, "invalid expiration time")
		}
		if now.After(exp) {
			return fail(siwa.CodeMessageExpired, "message expired")
		}
	}
	if fields.NotBefore != "" {
		nbf, err := time.Parse(time.RFC3339, fields.NotBefore)
		if err != nil {
			return fail(siwa.CodeMalformedMessage, "invalid not-before time")
		}
		if now.Before(nbf) {
			return fail(siwa.CodeMessageNotYetValid, "message not yet valid")
		}
	}

	// 6. Registry reference.
	ref, err := siwa.ParseRegistryRef(fields.AgentRegistry)
	if err != nil {
		return fail(siwa.CodeInvalidRegistryFormat, "invalid agent registry format")
	}
	registryAddr := ref.Address
	if v.registryOverride != "" {
		registryAddr = v.registryOverride
	}

	// 7. Onchain ownership, with ERC-1271 fallback for contract owners.
	owner, err := v.registry.OwnerOf(ctx, common.HexToAddress(registryAddr), new(big.Int).SetUint64(fields.AgentID))
	if err != nil {
		return fail(siwa.CodeNotRegistered, "agent is not registered on the identity registry")
	}

	signerType := siwa.SignerTypeEOA
	if owner != recovered {
		sig, decodeErr := hexutil.Decode(signature)
		if decodeErr != nil {
			return fail(siwa.CodeNotOwner, "signer is not the owner of this agent token")
		}
		var hash [32]byte
		copy(hash[:], accounts.TextHash([]byte(message)))

		valid, sigErr := v.registry.IsValidSignature(ctx, owner, hash, sig)
		if sigErr != nil || !valid {
			return fail(siwa.CodeNotOwner, "signer is not the owner of this agent token")
		}
		signerType = siwa.SignerTypeSCA
	} else {
		isContract, codeErr := v.registry.IsContract(ctx, claimed)
		if codeErr != nil {
			return fail(siwa.CodeVerificationFailed, fmt.Sprintf("signer type detection failed: %v", codeErr))
		}
		if isContract {
			signerType = siwa.SignerTypeSCA
		}
	}

	result := siwa.VerificationResult{
		Valid:         true,
		Address:       recovered.Hex(),
		AgentID:       fields.AgentID,
		AgentRegistry: fields.AgentRegistry,
		ChainID:       fields.ChainID,
		Verified:      siwa.VerifiedOnchain,
		SignerType:    signerType,
	}

	// 8. Optional agent criteria in fixed order.
	if criteria != nil {
		if v.profiles == nil {
			return fail(siwa.CodeVerificationFailed, "criteria supplied but no profile resolver configured")
		}
		profile, err := v.profiles.ResolveProfile(ctx, ref, fields.AgentID)
		if err != nil {
			return fail(siwa.CodeVerificationFailed, fmt.Sprintf("profile resolution failed: %v", err))
		}
		if code, errMsg := criteria.evaluate(profile); code != "" {
			return fail(code, errMsg)
		}
		result.AgentProfile = profile
	}

	return result
}

// NonceRequest identifies the agent asking for a sign-in nonce.
type NonceRequest struct {
	Address       string `json:"address"`
	AgentID       uint64 `json:"agent_id"`
	AgentRegistry string `json:"agent_registry"`
}

// IssueNonce performs the registration check before handing out a
// nonce, so an unregistered caller fails fast with remediation instead
// of completing a pointless sign/verify round-trip. A protocol
// rejection is returned as a structured Response; the error return is
// reserved for configuration and nonce-generation failures.
func (v *DefaultVerifier) IssueNonce(ctx context.Context, req NonceRequest) (string, *siwa.Response, error) {
	if v.nonces == nil {
		return "", nil, fmt.Errorf("verifier has no nonce manager configured")
	}

	reject := func(code siwa.ErrorCode, errMsg string) *siwa.Response {
		resp := siwa.BuildResponse(siwa.VerificationResult{
			Address:       req.Address,
			AgentID:       req.AgentID,
			AgentRegistry: req.AgentRegistry,
			Code:          code,
			Error:         errMsg,
		})
		return &resp
	}

	if !common.IsHexAddress(req.Address) {
		return "", reject(siwa.CodeVerificationFailed, "invalid account address"), nil
	}

	ref, err := siwa.ParseRegistryRef(req.AgentRegistry)
	if err != nil {
		return "", reject(siwa.CodeInvalidRegistryFormat, "invalid agent registry format"), nil
	}
	registryAddr := ref.Address
	if v.registryOverride != "" {
		registryAddr = v.registryOverride
	}

	owner, err := v.registry.OwnerOf(ctx, common.HexToAddress(registryAddr), new(big.Int).SetUint64(req.AgentID))
	if err != nil {
		return "", reject(siwa.CodeNotRegistered, "agent is not registered on the identity registry"), nil
	}
	if owner != common.HexToAddress(req.Address) {
		// A contract owner may accept the caller's signature via
		// ERC-1271, which can only be checked once a signed message
		// exists. Issuance lets the contract-owner case through and
		// leaves that check to verification.
		isContract, codeErr := v.registry.IsContract(ctx, owner)
		if codeErr != nil || !isContract {
			return "", reject(siwa.CodeNotOwner, "address does not own this agent token"), nil
		}
	}

	nonce, err := v.nonces.Issue()
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue nonce: %w", err)
	}
	return nonce, nil, nil
}

// RecoverAddress recovers the EIP-191 personal-sign signer of a message
// from a 65-byte hex signature (v in {0, 1} or {27, 28}).
func RecoverAddress(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}

	rsv := make([]byte, 65)
	copy(rsv, sig)
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
