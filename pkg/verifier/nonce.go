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
	"sync"
	"time"

	"github.com/siwa-id/siwa-go/pkg/siwa"
)

// DefaultNonceTTL is how long an issued nonce stays consumable.
const DefaultNonceTTL = 10 * time.Minute

// maxPendingNonces bounds the store against unauthenticated callers
// requesting nonces and never signing in.
const maxPendingNonces = 100000

// NonceManager is a bounded in-memory nonce store. Issue records a
// fresh nonce; Consume atomically checks and removes it, so a nonce is
// accepted at most once even under concurrent verification attempts.
type NonceManager struct {
	mu     sync.Mutex
	nonces map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

// NewNonceManager creates a nonce manager. A ttl of 0 uses
// DefaultNonceTTL.
func NewNonceManager(ttl time.Duration) *NonceManager {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &NonceManager{
		nonces: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue generates, records and returns a fresh nonce.
func (m *NonceManager) Issue() (string, error) {
	nonce, err := siwa.GenerateNonce(siwa.DefaultNonceLength)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.gcLocked()
	if len(m.nonces) >= maxPendingNonces {
		m.evictOldestLocked()
	}
	m.nonces[nonce] = m.now().Add(m.ttl)
	return nonce, nil
}

// Consume atomically checks and invalidates the nonce. It returns true
// exactly once per issued, unexpired nonce.
func (m *NonceManager) Consume(ctx context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.nonces[nonce]
	if !ok {
		return false, nil
	}
	delete(m.nonces, nonce)

	if m.now().After(expiry) {
		return false, nil
	}
	return true, nil
}

// Validator adapts the manager to the NonceValidator predicate.
func (m *NonceManager) Validator() NonceValidator {
	return m.Consume
}

// Len reports the number of pending nonces.
func (m *NonceManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nonces)
}

func (m *NonceManager) gcLocked() {
	now := m.now()
	for nonce, expiry := range m.nonces {
		if now.After(expiry) {
			delete(m.nonces, nonce)
		}
	}
}

func (m *NonceManager) evictOldestLocked() {
	var oldest string
	var oldestExpiry time.Time
	for nonce, expiry := range m.nonces {
		if oldest == "" || expiry.Before(oldestExpiry) {
			oldest = nonce
			oldestExpiry = expiry
		}
	}
	if oldest != "" {
		delete(m.nonces, oldest)
	}
}
