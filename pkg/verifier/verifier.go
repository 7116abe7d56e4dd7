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
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/siwa-id/siwa-go/pkg/siwa"
)

// Verifier verifies signed SIWA messages against onchain identity.
type Verifier interface {
	// Verify runs the full verification state machine and returns a
	// typed result; it never returns an error for protocol failures.
	Verify(ctx context.Context, message, signature string) siwa.VerificationResult

	// VerifyWithCriteria additionally evaluates agent criteria against
	// the registry profile after ownership has been established.
	VerifyWithCriteria(ctx context.Context, message, signature string, criteria *Criteria) siwa.VerificationResult
}

// RegistryClient is the onchain surface the verifier consumes.
// *registry.Client satisfies it.
type RegistryClient interface {
	OwnerOf(ctx context.Context, registry common.Address, agentID *big.Int) (common.Address, error)
	IsValidSignature(ctx context.Context, account common.Address, hash [32]byte, signature []byte) (bool, error)
	IsContract(ctx context.Context, account common.Address) (bool, error)
}

// NonceValidator reports whether a nonce is acceptable, consuming it.
// Implementations must return true exactly once per nonce: two
// concurrent calls with the same nonce must yield exactly one true.
type NonceValidator func(ctx context.Context, nonce string) (bool, error)

// ProfileResolver fetches registry metadata for criteria evaluation.
// Resolution mechanics (HTTP, IPFS, caching) are the implementation's
// concern.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, ref siwa.RegistryRef, agentID uint64) (*siwa.AgentProfile, error)
}
