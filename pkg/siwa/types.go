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

// MessageVersion is the SIWA message format version this library emits.
const MessageVersion = "1"

// SignerType distinguishes externally-owned accounts from smart contract
// accounts (ERC-1271 / EIP-7702 delegated wallets).
type SignerType string

const (
	// SignerTypeEOA is a plain key-holding externally-owned account.
	SignerTypeEOA SignerType = "eoa"

	// SignerTypeSCA is a smart contract account validated via ERC-1271.
	SignerTypeSCA SignerType = "sca"
)

// VerifiedMode records how ownership was established.
type VerifiedMode string

const (
	// VerifiedOnchain means ownership was resolved against the registry.
	VerifiedOnchain VerifiedMode = "onchain"

	// VerifiedOffline means verification stopped before any onchain call.
	VerifiedOffline VerifiedMode = "offline"
)

// MessageFields holds the structured fields of a SIWA message.
//
// Domain, Address, URI, AgentID, AgentRegistry, ChainID, Nonce and
// IssuedAt are required; the rest are optional and omitted from the
// rendered message when empty. Timestamps are RFC 3339 strings.
type MessageFields struct {
	// Domain is the relying party's domain requesting the sign-in.
	Domain string `json:"domain"`

	// Address is the agent's account address (0x-prefixed, 20 bytes).
	Address string `json:"address"`

	// Statement is an optional human-readable assertion.
	Statement string `json:"statement,omitempty"`

	// URI is the resource the sign-in is scoped to.
	URI string `json:"uri"`

	// Version of the message format, currently "1".
	Version string `json:"version"`

	// AgentID is the identity-token id on the registry.
	AgentID uint64 `json:"agent_id"`

	// AgentRegistry is a CAIP-10-style triple, e.g.
	// "eip155:84532:0x8004AA63c570c570eBF15376c0dB199918BFe9Fb".
	AgentRegistry string `json:"agent_registry"`

	// ChainID the sign-in is bound to.
	ChainID uint64 `json:"chain_id"`

	// Nonce is a one-time random value, at least 8 alphanumeric characters.
	Nonce string `json:"nonce"`

	// IssuedAt is the RFC 3339 creation time of the message.
	IssuedAt string `json:"issued_at"`

	// ExpirationTime, when set, is the RFC 3339 instant after which the
	// message must be rejected.
	ExpirationTime string `json:"expiration_time,omitempty"`

	// NotBefore, when set, is the RFC 3339 instant before which the
	// message must be rejected.
	NotBefore string `json:"not_before,omitempty"`

	// RequestID is an optional opaque correlation id chosen by the agent.
	RequestID string `json:"request_id,omitempty"`
}

// AgentProfile is the registry metadata of an agent, used by optional
// verification criteria. All fields are best-effort: registries are not
// required to publish metadata.
type AgentProfile struct {
	Name            string   `json:"name,omitempty"`
	Description     string   `json:"description,omitempty"`
	Services        []string `json:"services,omitempty"`
	TrustModels     []string `json:"trust_models,omitempty"`
	Active          bool     `json:"active"`
	ReputationScore float64  `json:"reputation_score,omitempty"`
	FeedbackCount   int      `json:"feedback_count,omitempty"`
}

// VerificationResult is the outcome of verifying a SIWA message.
// On success Valid is true and the identity fields are populated from
// the message and the onchain lookup. On failure Code and Error describe
// the first check that failed.
type VerificationResult struct {
	Valid         bool          `json:"valid"`
	Address       string        `json:"address"`
	AgentID       uint64        `json:"agent_id"`
	AgentRegistry string        `json:"agent_registry"`
	ChainID       uint64        `json:"chain_id"`
	Verified      VerifiedMode  `json:"verified,omitempty"`
	SignerType    SignerType    `json:"signer_type,omitempty"`
	Code          ErrorCode     `json:"code,omitempty"`
	Error         string        `json:"error,omitempty"`
	AgentProfile  *AgentProfile `json:"agent_profile,omitempty"`
}

// Agent is the verified caller identity handed to downstream HTTP
// handlers after request-signature verification. It is the only way
// handler code learns who is calling.
type Agent struct {
	Address       string     `json:"address"`
	AgentID       uint64     `json:"agent_id"`
	AgentRegistry string     `json:"agent_registry"`
	ChainID       uint64     `json:"chain_id"`
	SignerType    SignerType `json:"signer_type,omitempty"`
}
