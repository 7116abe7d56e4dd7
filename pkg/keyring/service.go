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

package keyring

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/rs/zerolog"

	"github.com/siwa-id/siwa-go/pkg/policy"
)

// PolicyDeniedError reports a signing request rejected by policy.
type PolicyDeniedError struct {
	Decision policy.Decision
}

func (e *PolicyDeniedError) Error() string {
	if e.Decision.RuleName != "" {
		return fmt.Sprintf("denied by rule %q of policy %s", e.Decision.RuleName, e.Decision.PolicyID)
	}
	return "denied: no policy rule allows this operation"
}

// ErrApprovalRejected and ErrApprovalTimeout report human-approval
// outcomes that block signing.
var (
	ErrApprovalRejected = errors.New("operation rejected by approver")
	ErrApprovalTimeout  = errors.New("approval request timed out")
)

// Service is the signing core of the key-custody boundary. Every sign
// operation runs the policy engine over the wallet's attached policies
// before any key is touched, and optionally waits for human approval.
type Service struct {
	keys     KeyStore
	policies *Store
	approver Approver
	logger   zerolog.Logger
}

// NewService assembles the signing service. The approver is optional.
func NewService(keys KeyStore, policies *Store, approver Approver, logger zerolog.Logger) (*Service, error) {
	if keys == nil {
		return nil, fmt.Errorf("key store is required")
	}
	if policies == nil {
		return nil, fmt.Errorf("policy store is required")
	}
	return &Service{keys: keys, policies: policies, approver: approver, logger: logger}, nil
}

// CreateWallet creates a new signing key.
func (s *Service) CreateWallet(ctx context.Context) (string, common.Address, error) {
	return s.keys.CreateWallet(ctx)
}

// Address resolves a wallet id.
func (s *Service) Address(ctx context.Context, walletID string) (common.Address, error) {
	return s.keys.Address(ctx, walletID)
}

// SignMessage signs a personal-sign message after policy evaluation.
// The returned signature is r||s||v with v in {27,28}.
func (s *Service) SignMessage(ctx context.Context, walletID, message string) (string, error) {
	facts := policy.FactsForMessage(message)
	summary := fmt.Sprintf("sign message (%d bytes)", len(message))
	if err := s.authorize(ctx, walletID, policy.MethodSignMessage, facts, summary); err != nil {
		return "", err
	}

	sig, err := s.keys.Sign(ctx, walletID, accounts.TextHash([]byte(message)))
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// SignTransaction signs a transaction after policy evaluation and
// returns the RLP-encoded signed transaction.
func (s *Service) SignTransaction(ctx context.Context, walletID string, candidate policy.Transaction) (string, error) {
	if !common.IsHexAddress(candidate.To) {
		return "", fmt.Errorf("invalid recipient address %q", candidate.To)
	}
	if candidate.ChainID == 0 {
		return "", fmt.Errorf("chain id is required")
	}

	facts := policy.FactsForTransaction(candidate)
	summary := fmt.Sprintf("sign transaction to %s on chain %d", candidate.To, candidate.ChainID)
	if err := s.authorize(ctx, walletID, policy.MethodSignTransaction, facts, summary); err != nil {
		return "", err
	}

	value := new(big.Int)
	if candidate.Value != nil {
		value = candidate.Value.ToInt()
	}
	to := common.HexToAddress(candidate.To)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    candidate.Nonce,
		To:       &to,
		Value:    value,
		Gas:      candidate.Gas,
		GasPrice: new(big.Int),
		Data:     candidate.Data,
	})

	chainID := new(big.Int).SetUint64(candidate.ChainID)
	txSigner := types.LatestSignerForChainID(chainID)
	sig, err := s.keys.Sign(ctx, walletID, txSigner.Hash(tx).Bytes())
	if err != nil {
		return "", err
	}

	signed, err := tx.WithSignature(txSigner, sig)
	if err != nil {
		return "", fmt.Errorf("failed to attach signature: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode signed transaction: %w", err)
	}
	return hexutil.Encode(raw), nil
}

// SignAuthorization signs an EIP-7702 delegation after policy
// evaluation. The digest is keccak256(0x05 || rlp([chainId, contract,
// nonce])) per the set-code transaction type.
func (s *Service) SignAuthorization(ctx context.Context, walletID string, auth policy.Authorization) (string, error) {
	if !common.IsHexAddress(auth.Contract) {
		return "", fmt.Errorf("invalid delegation contract address %q", auth.Contract)
	}

	facts := policy.FactsForAuthorization(auth)
	summary := fmt.Sprintf("delegate to %s on chain %d", auth.Contract, auth.ChainID)
	if err := s.authorize(ctx, walletID, policy.MethodSignAuthorization, facts, summary); err != nil {
		return "", err
	}

	encoded, err := rlp.EncodeToBytes([]any{
		new(big.Int).SetUint64(auth.ChainID),
		common.HexToAddress(auth.Contract),
		auth.Nonce,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode authorization: %w", err)
	}
	digest := crypto.Keccak256(append([]byte{0x05}, encoded...))

	sig, err := s.keys.Sign(ctx, walletID, digest)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// authorize runs policy evaluation and, when configured, the human
// approval round trip.
func (s *Service) authorize(ctx context.Context, walletID, method string, facts policy.Facts, summary string) error {
	policies, err := s.policies.WalletPolicies(ctx, walletID)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	decision := policy.Evaluate(method, facts, policies)
	s.logger.Debug().
		Str("wallet_id", walletID).
		Str("method", method).
		Bool("allowed", decision.Allowed).
		Str("rule", decision.RuleName).
		Msg("policy evaluated")
	if !decision.Allowed {
		return &PolicyDeniedError{Decision: decision}
	}

	if s.approver == nil {
		return nil
	}
	status, err := s.approver.RequestApproval(ctx, Operation{WalletID: walletID, Method: method, Summary: summary})
	if err != nil {
		return fmt.Errorf("approval request failed: %w", err)
	}
	switch status {
	case ApprovalApproved:
		return nil
	case ApprovalTimeout:
		return ErrApprovalTimeout
	default:
		return ErrApprovalRejected
	}
}
