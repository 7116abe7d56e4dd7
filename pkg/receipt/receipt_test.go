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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siwa-id/siwa-go/pkg/siwa"
)

func testPayload() Payload {
	return Payload{
		Address:       "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B",
		AgentID:       42,
		AgentRegistry: "eip155:84532:0x8004AA63c570c570eBF15376c0dB199918BFe9Fb",
		ChainID:       84532,
		Verified:      siwa.VerifiedOnchain,
		SignerType:    siwa.SignerTypeEOA,
	}
}

func TestService_IssueValidate_RoundTrip(t *testing.T) {
	svc, err := NewService([]byte("test-secret"), 0)
	require.NoError(t, err)

	token, err := svc.Issue(testPayload())
	require.NoError(t, err)
	assert.Contains(t, token, ".")

	payload := svc.Validate(token)
	require.NotNil(t, payload)
	assert.Equal(t, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", payload.Address)
	assert.Equal(t, uint64(42), payload.AgentID)
	assert.Equal(t, siwa.SignerTypeEOA, payload.SignerType)
	assert.Greater(t, payload.ExpiresAt, payload.IssuedAt)

	// Default TTL is 30 minutes.
	assert.InDelta(t, 30*time.Minute.Seconds(), float64(payload.ExpiresAt-payload.IssuedAt), 1)
}

func TestService_Validate_WrongSecret(t *testing.T) {
	svc, err := NewService([]byte("secret-a"), 0)
	require.NoError(t, err)
	other, err := NewService([]byte("secret-b"), 0)
	require.NoError(t, err)

	token, err := svc.Issue(testPayload())
	require.NoError(t, err)

	assert.Nil(t, other.Validate(token))
}

func TestService_Validate_Tampered(t *testing.T) {
	svc, err := NewService([]byte("test-secret"), 0)
	require.NoError(t, err)

	token, err := svc.Issue(testPayload())
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "no separator", token: strings.ReplaceAll(token, ".", "")},
		{name: "flipped payload byte", token: flipByte(token, 0)},
		{name: "flipped tag byte", token: flipByte(token, len(token)-1)},
		{name: "truncated tag", token: token[:strings.Index(token, ".")+5]},
		{name: "not base64", token: "!!!." + strings.SplitN(token, ".", 2)[1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, svc.Validate(tt.token))
		})
	}
}

func TestService_Validate_Expired(t *testing.T) {
	svc, err := NewService([]byte("test-secret"), time.Minute)
	require.NoError(t, err)

	token, err := svc.Issue(testPayload())
	require.NoError(t, err)
	require.NotNil(t, svc.Validate(token))

	// Shift the clock past expiry.
	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Nil(t, svc.Validate(token))
}

func TestNewService_EmptySecret(t *testing.T) {
	_, err := NewService(nil, 0)
	assert.Error(t, err)
}

func TestPayloadFromResult(t *testing.T) {
	payload := PayloadFromResult(siwa.VerificationResult{
		Valid:         true,
		Address:       "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B",
		AgentID:       42,
		AgentRegistry: "eip155:84532:0x8004AA63c570c570eBF15376c0dB199918BFe9Fb",
		ChainID:       84532,
		Verified:      siwa.VerifiedOnchain,
		SignerType:    siwa.SignerTypeSCA,
	})

	assert.Equal(t, uint64(42), payload.AgentID)
	assert.Equal(t, siwa.SignerTypeSCA, payload.SignerType)

	agent := payload.Agent()
	assert.Equal(t, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", agent.Address)
	assert.Equal(t, uint64(84532), agent.ChainID)
}

func flipByte(s string, i int) string {
	b := []byte(s)
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}
