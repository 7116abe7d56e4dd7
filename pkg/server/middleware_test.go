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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siwa-id/siwa-go/pkg/receipt"
	"github.com/siwa-id/siwa-go/pkg/signer"
	"github.com/siwa-id/siwa-go/pkg/siwa"
	"github.com/siwa-id/siwa-go/pkg/wallet"
)

const testChainID = uint64(84532)

type serverEnv struct {
	receipts  *receipt.Service
	verifier  *RequestVerifier
	signer    wallet.Signer
	address   string
	token     string
	handler   http.Handler
	lastAgent *siwa.Agent
}

func newServerEnv(t *testing.T, cfg Config) *serverEnv {
	t.Helper()

	receipts, err := receipt.NewService([]byte("receipt-secret"), 0)
	require.NoError(t, err)
	cfg.Receipts = receipts

	v, err := NewRequestVerifier(cfg)
	require.NoError(t, err)

	walletSigner, err := wallet.GenerateLocalSigner()
	require.NoError(t, err)
	address, err := walletSigner.Address(context.Background())
	require.NoError(t, err)

	token, err := receipts.Issue(receipt.Payload{
		Address:       address.Hex(),
		AgentID:       42,
		AgentRegistry: "eip155:84532:0x8004AA63c570c570eBF15376c0dB199918BFe9Fb",
		ChainID:       testChainID,
		Verified:      siwa.VerifiedOnchain,
		SignerType:    siwa.SignerTypeEOA,
	})
	require.NoError(t, err)

	env := &serverEnv{
		receipts: receipts,
		verifier: v,
		signer:   walletSigner,
		address:  address.Hex(),
		token:    token,
	}
	env.handler = v.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if agent, ok := AgentFromContext(r.Context()); ok {
			env.lastAgent = &agent
		}
		w.WriteHeader(http.StatusOK)
	}))
	return env
}

func (e *serverEnv) signedRequest(t *testing.T, method, target string, body []byte) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)

	s := signer.NewDefaultRequestSigner()
	require.NoError(t, s.SignRequest(context.Background(), req, e.token, e.signer, testChainID))
	if body != nil {
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	return req
}

func (e *serverEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestRequestVerifier_ValidRequest(t *testing.T) {
	env := newServerEnv(t, Config{})

	rec := env.serve(env.signedRequest(t, "GET", "http://api.example.com/protected", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, env.lastAgent)
	assert.Equal(t, env.address, env.lastAgent.Address)
	assert.Equal(t, uint64(42), env.lastAgent.AgentID)
	assert.Equal(t, testChainID, env.lastAgent.ChainID)
	assert.Equal(t, siwa.SignerTypeEOA, env.lastAgent.SignerType)
}

func TestRequestVerifier_ValidRequestWithBody(t *testing.T) {
	env := newServerEnv(t, Config{})

	body := []byte(`{"tool":"search","q":"weather"}`)
	rec := env.serve(env.signedRequest(t, "POST", "http://api.example.com/tools", body))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestVerifier_Replay(t *testing.T) {
	env := newServerEnv(t, Config{})

	req := env.signedRequest(t, "GET", "http://api.example.com/protected", nil)
	require.Equal(t, http.StatusOK, env.serve(req).Code)

	// A byte-identical resubmission must be rejected.
	replay := httptest.NewRequest("GET", "http://api.example.com/protected", nil)
	replay.Header = req.Header.Clone()
	rec := env.serve(replay)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(siwa.CodeUnauthorized), resp["code"])
}

func TestRequestVerifier_MissingHeaders(t *testing.T) {
	env := newServerEnv(t, Config{})

	req := httptest.NewRequest("GET", "http://api.example.com/protected", nil)
	assert.Equal(t, http.StatusUnauthorized, env.serve(req).Code)
}

func TestRequestVerifier_ForgedReceipt(t *testing.T) {
	env := newServerEnv(t, Config{})

	other, err := receipt.NewService([]byte("other-secret"), 0)
	require.NoError(t, err)
	forged, err := other.Issue(receipt.Payload{Address: env.address, ChainID: testChainID})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "http://api.example.com/protected", nil)
	s := signer.NewDefaultRequestSigner()
	require.NoError(t, s.SignRequest(context.Background(), req, forged, env.signer, testChainID))
	assert.Equal(t, http.StatusUnauthorized, env.serve(req).Code)
}

func TestRequestVerifier_SwappedReceipt(t *testing.T) {
	// A valid receipt for a different identity must not be usable with
	// this signer's signature.
	env := newServerEnv(t, Config{})

	otherToken, err := env.receipts.Issue(receipt.Payload{
		Address:    "0x00000000000000000000000000000000000000AA",
		AgentID:    7,
		ChainID:    testChainID,
		Verified:   siwa.VerifiedOnchain,
		SignerType: siwa.SignerTypeEOA,
	})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "http://api.example.com/protected", nil)
	s := signer.NewDefaultRequestSigner()
	require.NoError(t, s.SignRequest(context.Background(), req, otherToken, env.signer, testChainID))
	assert.Equal(t, http.StatusUnauthorized, env.serve(req).Code)
}

func TestRequestVerifier_TamperedPath(t *testing.T) {
	env := newServerEnv(t, Config{})

	req := env.signedRequest(t, "GET", "http://api.example.com/protected", nil)
	moved := httptest.NewRequest("GET", "http://api.example.com/admin", nil)
	moved.Header = req.Header.Clone()
	assert.Equal(t, http.StatusUnauthorized, env.serve(moved).Code)
}

func TestRequestVerifier_TamperedBody(t *testing.T) {
	env := newServerEnv(t, Config{})

	body := []byte(`{"amount":1}`)
	req := env.signedRequest(t, "POST", "http://api.example.com/tools", body)
	req.Body = io.NopCloser(bytes.NewReader([]byte(`{"amount":9}`)))
	assert.Equal(t, http.StatusUnauthorized, env.serve(req).Code)
}

func TestRequestVerifier_StaleSignature(t *testing.T) {
	env := newServerEnv(t, Config{})

	req := httptest.NewRequest("GET", "http://api.example.com/protected", nil)
	s := signer.NewDefaultRequestSigner()
	err := s.SignRequestWithOptions(context.Background(), req, env.token, env.signer, testChainID, &signer.SigningOptions{
		Created: time.Now().Add(-time.Hour).Unix(),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, env.serve(req).Code)
}

func TestRequestVerifier_SignerTypeAllowList(t *testing.T) {
	env := newServerEnv(t, Config{
		AllowedSignerTypes: []siwa.SignerType{siwa.SignerTypeSCA},
	})

	// The receipt records an EOA signer, so the request must be refused.
	rec := env.serve(env.signedRequest(t, "GET", "http://api.example.com/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestVerifier_ChallengeGate(t *testing.T) {
	challenger, err := NewHMACChallenger([]byte("challenge-secret"), time.Minute, 8)
	require.NoError(t, err)
	env := newServerEnv(t, Config{Challenger: challenger})

	// First request: signature is fine but the caller has not solved a
	// challenge, so it gets a structured challenge-required response.
	rec := env.serve(env.signedRequest(t, "GET", "http://api.example.com/protected", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp struct {
		Code      string     `json:"code"`
		Challenge *Challenge `json:"challenge"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(siwa.CodeCaptchaRequired), resp.Code)
	require.NotNil(t, resp.Challenge)
	assert.Equal(t, resp.Challenge.Token, rec.Header().Get(HeaderChallenge))

	// Retry with the solved challenge attached.
	solution := SolveChallenge(resp.Challenge)
	req := env.signedRequest(t, "GET", "http://api.example.com/protected", nil)
	req.Header.Set(HeaderChallenge, resp.Challenge.Token)
	req.Header.Set(HeaderChallengeSolution, solution)
	assert.Equal(t, http.StatusOK, env.serve(req).Code)

	// The identity is now remembered as solved.
	assert.Equal(t, http.StatusOK, env.serve(env.signedRequest(t, "GET", "http://api.example.com/protected", nil)).Code)
}

func TestReplayStore_CheckAndMark(t *testing.T) {
	store := NewReplayStore(time.Minute)

	assert.True(t, store.CheckAndMark("nonce-1"))
	assert.False(t, store.CheckAndMark("nonce-1"))
	assert.True(t, store.CheckAndMark("nonce-2"))
	assert.Equal(t, 2, store.Len())
}

func TestReplayStore_WindowExpiry(t *testing.T) {
	store := NewReplayStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	require.True(t, store.CheckAndMark("nonce-1"))
	now = now.Add(2 * time.Minute)
	assert.True(t, store.CheckAndMark("nonce-1"))
}

func TestReplayStore_Concurrent(t *testing.T) {
	store := NewReplayStore(time.Minute)

	const workers = 32
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		go func() {
			results <- store.CheckAndMark("contended")
		}()
	}

	accepted := 0
	for i := 0; i < workers; i++ {
		if <-results {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestHMACChallenger(t *testing.T) {
	challenger, err := NewHMACChallenger([]byte("secret"), time.Minute, 8)
	require.NoError(t, err)

	ch, err := challenger.IssueChallenge(0)
	require.NoError(t, err)
	assert.Equal(t, 8, ch.Difficulty)

	solution := SolveChallenge(ch)
	assert.True(t, challenger.Verify(ch.Token, solution))
	assert.False(t, challenger.Verify(ch.Token, solution+"x"))

	// A token minted under a different secret is rejected outright.
	other, err := NewHMACChallenger([]byte("other"), time.Minute, 8)
	require.NoError(t, err)
	assert.False(t, other.Verify(ch.Token, solution))
}

func TestHMACChallenger_Expired(t *testing.T) {
	challenger, err := NewHMACChallenger([]byte("secret"), time.Minute, 8)
	require.NoError(t, err)

	ch, err := challenger.IssueChallenge(0)
	require.NoError(t, err)
	solution := SolveChallenge(ch)

	challenger.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.False(t, challenger.Verify(ch.Token, solution))
}
