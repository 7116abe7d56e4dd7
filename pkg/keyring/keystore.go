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
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// KeyStore is the encrypted key-storage backend. Implementations must
// never return private key material; signatures are produced inside
// the store.
type KeyStore interface {
	// CreateWallet generates a new signing key and returns its wallet
	// id and address.
	CreateWallet(ctx context.Context) (string, common.Address, error)

	// Address resolves a wallet id to its account address.
	Address(ctx context.Context, walletID string) (common.Address, error)

	// Sign signs a 32-byte digest with the wallet's key and returns a
	// 65-byte r||s||v signature with v in {0,1}.
	Sign(ctx context.Context, walletID string, digest []byte) ([]byte, error)
}

// MemoryKeyStore keeps keys in process memory. Suitable for tests and
// single-node deployments; production setups back this interface with
// an enclave or HSM.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*ecdsa.PrivateKey
}

// NewMemoryKeyStore creates an empty in-memory key store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]*ecdsa.PrivateKey)}
}

// CreateWallet generates a fresh secp256k1 key.
func (s *MemoryKeyStore) CreateWallet(ctx context.Context) (string, common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", common.Address{}, fmt.Errorf("failed to generate key: %w", err)
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.keys[id] = key
	s.mu.Unlock()

	return id, crypto.PubkeyToAddress(key.PublicKey), nil
}

// Address resolves a wallet id.
func (s *MemoryKeyStore) Address(ctx context.Context, walletID string) (common.Address, error) {
	s.mu.RLock()
	key, ok := s.keys[walletID]
	s.mu.RUnlock()
	if !ok {
		return common.Address{}, fmt.Errorf("unknown wallet %q", walletID)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// Sign signs a digest with the wallet's key.
func (s *MemoryKeyStore) Sign(ctx context.Context, walletID string, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}

	s.mu.RLock()
	key, ok := s.keys[walletID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown wallet %q", walletID)
	}

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}
