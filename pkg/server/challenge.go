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

package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/bits"
	"strings"
	"sync"
	"time"

	"github.com/siwa-id/siwa-go/pkg/siwa"
)

// Challenge headers exchanged with callers that must prove they are not
// a bot before a protected resource accepts them.
const (
	HeaderChallenge         = "X-SIWA-Challenge"
	HeaderChallengeSolution = "X-SIWA-Challenge-Solution"
)

// DefaultChallengeTTL is how long an issued challenge stays solvable.
const DefaultChallengeTTL = 2 * time.Minute

// DefaultChallengeDifficulty is the number of leading zero bits a
// proof-of-work solution hash must have.
const DefaultChallengeDifficulty = 16

// Challenge is a bot-defense puzzle handed to a rejected caller. Token
// carries the server-side binding; the caller returns it untouched
// together with a solution.
type Challenge struct {
	Nonce      string `json:"nonce"`
	Difficulty int    `json:"difficulty"`
	ExpiresAt  int64  `json:"expires_at"`
	Token      string `json:"token"`
}

// Challenger issues and verifies bot-defense challenges.
type Challenger interface {
	// IssueChallenge mints a fresh challenge at the given difficulty.
	// A difficulty of 0 uses the challenger's default.
	IssueChallenge(difficulty int) (*Challenge, error)

	// Verify checks a solution against a previously issued token.
	Verify(token, solution string) bool
}

type challengeClaims struct {
	Nonce      string `json:"nonce"`
	Difficulty int    `json:"difficulty"`
	ExpiresAt  int64  `json:"exp"`
}

// HMACChallenger is a stateless proof-of-work Challenger. The token is
// HMAC-bound so the server does not need to remember issued challenges;
// a solution counts when sha256(nonce || solution) has the required
// number of leading zero bits.
type HMACChallenger struct {
	secret     []byte
	ttl        time.Duration
	difficulty int
	now        func() time.Time
}

// NewHMACChallenger creates a challenger. A ttl of 0 uses
// DefaultChallengeTTL; a difficulty of 0 uses DefaultChallengeDifficulty.
func NewHMACChallenger(secret []byte, ttl time.Duration, difficulty int) (*HMACChallenger, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("challenge secret cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	if difficulty <= 0 {
		difficulty = DefaultChallengeDifficulty
	}
	return &HMACChallenger{secret: secret, ttl: ttl, difficulty: difficulty, now: time.Now}, nil
}

// IssueChallenge mints a fresh HMAC-bound challenge.
func (c *HMACChallenger) IssueChallenge(difficulty int) (*Challenge, error) {
	if difficulty <= 0 {
		difficulty = c.difficulty
	}

	nonce, err := siwa.GenerateNonce(siwa.DefaultNonceLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate challenge nonce: %w", err)
	}

	claims := challengeClaims{
		Nonce:      nonce,
		Difficulty: difficulty,
		ExpiresAt:  c.now().Add(c.ttl).Unix(),
	}
	encoded, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to encode challenge: %w", err)
	}

	body := base64.RawURLEncoding.EncodeToString(encoded)
	token := body + "." + base64.RawURLEncoding.EncodeToString(c.tag(body))

	return &Challenge{
		Nonce:      nonce,
		Difficulty: difficulty,
		ExpiresAt:  claims.ExpiresAt,
		Token:      token,
	}, nil
}

// Verify checks the token's HMAC and expiry, then the proof of work.
func (c *HMACChallenger) Verify(token, solution string) bool {
	body, tag, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}
	gotTag, err := base64.RawURLEncoding.DecodeString(tag)
	if err != nil || !hmac.Equal(gotTag, c.tag(body)) {
		return false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return false
	}
	var claims challengeClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return false
	}
	if c.now().Unix() >= claims.ExpiresAt {
		return false
	}

	sum := sha256.Sum256([]byte(claims.Nonce + solution))
	return leadingZeroBits(sum[:]) >= claims.Difficulty
}

func (c *HMACChallenger) tag(body string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(body))
	return mac.Sum(nil)
}

func leadingZeroBits(sum []byte) int {
	n := 0
	for _, b := range sum {
		if b == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(b)
		break
	}
	return n
}

// SolveChallenge brute-forces a solution for a challenge. Intended for
// clients and tests; difficulty governs how long this takes.
func SolveChallenge(ch *Challenge) string {
	for i := 0; ; i++ {
		solution := fmt.Sprintf("%d", i)
		sum := sha256.Sum256([]byte(ch.Nonce + solution))
		if leadingZeroBits(sum[:]) >= ch.Difficulty {
			return solution
		}
	}
}

// solvedCache remembers which identities have recently solved a
// challenge so they are not re-challenged on every request.
type solvedCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func newSolvedCache(ttl time.Duration) *solvedCache {
	return &solvedCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *solvedCache) mark(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[identity] = c.now().Add(c.ttl)
}

func (c *solvedCache) solved(identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, ok := c.entries[identity]
	if !ok {
		return false
	}
	if c.now().After(expiry) {
		delete(c.entries, identity)
		return false
	}
	return true
}
