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

package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LocalSigner signs with a secp256k1 private key held in process memory.
// Suitable for development, tests and low-stakes agents; production
// deployments should use a keyring proxy so keys stay behind a policy
// boundary.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner wraps an existing private key.
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewLocalSignerFromHex parses a hex-encoded private key (with or
// without 0x prefix) and wraps it.
func NewLocalSignerFromHex(hexKey string) (*LocalSigner, error) {
	if len(hexKey) >= 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewLocalSigner(key), nil
}

// GenerateLocalSigner creates a signer with a fresh random key.
func GenerateLocalSigner() (*LocalSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewLocalSigner(key), nil
}

// Address returns the account address derived from the key.
func (s *LocalSigner) Address(ctx context.Context) (common.Address, error) {
	return s.address, nil
}

// SignMessage signs the message with EIP-191 personal-sign semantics and
// returns a 65-byte r||s||v signature with v in {27, 28}.
func (s *LocalSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(accounts.TextHash(message), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	// go-ethereum produces v in {0, 1}; wallets transmit {27, 28}.
	sig[64] += 27
	return sig, nil
}
