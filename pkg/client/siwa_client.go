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

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/siwa-id/siwa-go/pkg/server"
	"github.com/siwa-id/siwa-go/pkg/signer"
	"github.com/siwa-id/siwa-go/pkg/siwa"
	"github.com/siwa-id/siwa-go/pkg/wallet"
)

// SignInParams describes the sign-in the agent wants to perform.
type SignInParams struct {
	// Domain of the relying party, as it will appear in the message.
	Domain string

	// URI the sign-in is scoped to.
	URI string

	// Statement is an optional human-readable assertion.
	Statement string

	// AgentID and AgentRegistry identify the agent onchain.
	AgentID       uint64
	AgentRegistry string

	// ChainID the sign-in is bound to.
	ChainID uint64

	// ExpiresIn, when positive, sets an expiration time on the message.
	ExpiresIn time.Duration
}

// SIWAClient signs in against a relying party and then signs every
// outgoing request with the obtained receipt. Safe for concurrent use.
type SIWAClient struct {
	baseURL       string
	walletSigner  wallet.Signer
	requestSigner signer.RequestSigner
	httpClient    *http.Client
	chainID       uint64

	mu      sync.RWMutex
	receipt string
}

// NewSIWAClient creates a client for one relying party. If httpClient
// is nil, http.DefaultClient is used.
func NewSIWAClient(baseURL string, walletSigner wallet.Signer, chainID uint64, httpClient *http.Client) (*SIWAClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if walletSigner == nil {
		return nil, fmt.Errorf("wallet signer is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SIWAClient{
		baseURL:       baseURL,
		walletSigner:  walletSigner,
		requestSigner: signer.NewDefaultRequestSigner(),
		httpClient:    httpClient,
		chainID:       chainID,
	}, nil
}

// Receipt returns the receipt obtained at sign-in, or "" before.
func (c *SIWAClient) Receipt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.receipt
}

// RequestNonce asks the relying party for a sign-in nonce. A protocol
// rejection (e.g. not registered, with remediation steps) is returned
// as a structured Response with a nil error.
func (c *SIWAClient) RequestNonce(ctx context.Context, params SignInParams) (string, *siwa.Response, error) {
	address, err := c.walletSigner.Address(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve signer address: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"address":        address.Hex(),
		"agent_id":       params.AgentID,
		"agent_registry": params.AgentRegistry,
	})
	if err != nil {
		return "", nil, err
	}

	resp, err := c.postJSON(ctx, "/siwa/nonce", body)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var rejection siwa.Response
		if err := json.NewDecoder(resp.Body).Decode(&rejection); err != nil || rejection.Status == "" {
			return "", nil, fmt.Errorf("nonce request failed with status %d", resp.StatusCode)
		}
		return "", &rejection, nil
	}

	var ok struct {
		Nonce string `json:"nonce"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil {
		return "", nil, fmt.Errorf("invalid nonce response: %w", err)
	}
	return ok.Nonce, nil, nil
}

// SignIn runs the full flow: request a nonce, build and sign the SIWA
// message, submit it, and store the receipt on success. The relying
// party's structured response is returned either way.
func (c *SIWAClient) SignIn(ctx context.Context, params SignInParams) (*siwa.Response, error) {
	nonce, rejection, err := c.RequestNonce(ctx, params)
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		return rejection, nil
	}

	address, err := c.walletSigner.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve signer address: %w", err)
	}

	now := time.Now().UTC()
	fields := siwa.MessageFields{
		Domain:        params.Domain,
		Address:       address.Hex(),
		Statement:     params.Statement,
		URI:           params.URI,
		Version:       siwa.MessageVersion,
		AgentID:       params.AgentID,
		AgentRegistry: params.AgentRegistry,
		ChainID:       params.ChainID,
		Nonce:         nonce,
		IssuedAt:      now.Format(time.RFC3339),
	}
	if params.ExpiresIn > 0 {
		fields.ExpirationTime = now.Add(params.ExpiresIn).Format(time.RFC3339)
	}

	signed, err := wallet.SignSIWAMessage(ctx, fields, c.walletSigner)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"message":   signed.Message,
		"signature": signed.Signature,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.postJSON(ctx, "/siwa/verify", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var verified struct {
		Receipt  string        `json:"receipt"`
		Response siwa.Response `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verified); err != nil {
		return nil, fmt.Errorf("invalid verify response: %w", err)
	}

	if verified.Response.Status == siwa.StatusAuthenticated {
		c.mu.Lock()
		c.receipt = verified.Receipt
		c.mu.Unlock()
	}
	return &verified.Response, nil
}

// Get sends a signed GET request.
func (c *SIWAClient) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.doSigned(ctx, http.MethodGet, url, nil, "")
}

// Post sends a signed POST request with a JSON body.
func (c *SIWAClient) Post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	return c.doSigned(ctx, http.MethodPost, url, body, "application/json")
}

// doSigned signs and sends a request. A challenge-required rejection
// is solved and retried once with a fresh signature.
func (c *SIWAClient) doSigned(ctx context.Context, method, url string, body []byte, contentType string) (*http.Response, error) {
	receiptToken := c.Receipt()
	if receiptToken == "" {
		return nil, fmt.Errorf("not signed in: no receipt available")
	}

	resp, err := c.send(ctx, method, url, body, contentType, receiptToken, "", "")
	if err != nil {
		return nil, err
	}

	challenge, err := extractChallenge(resp)
	if err != nil {
		return nil, err
	}
	if challenge == nil {
		return resp, nil
	}
	resp.Body.Close()

	solution := server.SolveChallenge(challenge)
	return c.send(ctx, method, url, body, contentType, receiptToken, challenge.Token, solution)
}

func (c *SIWAClient) send(ctx context.Context, method, url string, body []byte, contentType, receiptToken, challengeToken, solution string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if challengeToken != "" {
		req.Header.Set(server.HeaderChallenge, challengeToken)
		req.Header.Set(server.HeaderChallengeSolution, solution)
	}

	if err := c.requestSigner.SignRequest(ctx, req, receiptToken, c.walletSigner, c.chainID); err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	if body != nil {
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// extractChallenge returns the challenge carried by a 401 response, or
// nil if the response is anything else. The body is replaced so callers
// can still read non-challenge responses.
func extractChallenge(resp *http.Response) (*server.Challenge, error) {
	if resp.StatusCode != http.StatusUnauthorized || resp.Header.Get(server.HeaderChallenge) == "" {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read challenge response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		Code      string            `json:"code"`
		Challenge *server.Challenge `json:"challenge"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil
	}
	if payload.Code != string(siwa.CodeCaptchaRequired) || payload.Challenge == nil {
		return nil, nil
	}
	return payload.Challenge, nil
}

func (c *SIWAClient) postJSON(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}
