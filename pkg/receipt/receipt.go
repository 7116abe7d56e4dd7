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

package receipt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/siwa-id/siwa-go/pkg/siwa"
)

// DefaultTTL is the receipt lifetime when the service is constructed
// without an explicit one.
const DefaultTTL = 30 * time.Minute

// Payload is the verified identity a receipt encodes.
type Payload struct {
	Address       string            `json:"address"`
	AgentID       uint64            `json:"agent_id"`
	AgentRegistry string            `json:"agent_registry"`
	ChainID       uint64            `json:"chain_id"`
	Verified      siwa.VerifiedMode `json:"verified"`
	SignerType    siwa.SignerType   `json:"signer_type,omitempty"`
	IssuedAt      int64             `json:"iat"`
	ExpiresAt     int64             `json:"exp"`
}

// PayloadFromResult builds a receipt payload from a successful
// verification result. Timestamps are filled in by Issue.
func PayloadFromResult(result siwa.VerificationResult) Payload {
	return Payload{
		Address:       result.Address,
		AgentID:       result.AgentID,
		AgentRegistry: result.AgentRegistry,
		ChainID:       result.ChainID,
		Verified:      result.Verified,
		SignerType:    result.SignerType,
	}
}

// Agent converts the payload into the downstream caller identity.
func (p Payload) Agent() siwa.Agent {
	return siwa.Agent{
		Address:       p.Address,
		AgentID:       p.AgentID,
		AgentRegistry: p.AgentRegistry,
		ChainID:       p.ChainID,
		SignerType:    p.SignerType,
	}
}

// Service issues and validates receipts with an operator-provisioned
// shared secret. The zero value is unusable; construct with NewService.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService creates a receipt service. A ttl of 0 uses DefaultTTL.
func NewService(secret []byte, ttl time.Duration) (*Service, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("receipt secret cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue encodes the payload, stamps it with issue and expiry times, and
// appends an HMAC-SHA256 tag. The returned token is opaque to callers.
func (s *Service) Issue(payload Payload) (string, error) {
	now := s.now().UTC()
	if payload.IssuedAt == 0 {
		payload.IssuedAt = now.Unix()
	}
	if payload.ExpiresAt == 0 {
		payload.ExpiresAt = now.Add(s.ttl).Unix()
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode receipt payload: %w", err)
	}

	body := base64.RawURLEncoding.EncodeToString(encoded)
	return body + "." + base64.RawURLEncoding.EncodeToString(s.tag(body)), nil
}

// Validate recomputes the tag in constant time and checks expiry.
// It returns nil on tag mismatch, malformed structure or expiry - the
// caller cannot distinguish which, and must not need to.
func (s *Service) Validate(token string) *Payload {
	body, tag, ok := strings.Cut(token, ".")
	if !ok {
		return nil
	}

	gotTag, err := base64.RawURLEncoding.DecodeString(tag)
	if err != nil {
		return nil
	}
	if !hmac.Equal(gotTag, s.tag(body)) {
		return nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil
	}

	var payload Payload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return nil
	}

	if s.now().UTC().Unix() >= payload.ExpiresAt {
		return nil
	}
	return &payload
}

func (s *Service) tag(body string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(body))
	return mac.Sum(nil)
}
