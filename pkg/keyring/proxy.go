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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ProxySigner implements the wallet signing capability against a
// remote keyring service. The agent process holds no key material at
// all: every signature is produced behind the custody boundary, where
// policy evaluation applies.
type ProxySigner struct {
	baseURL  string
	walletID string
	secret   []byte
	client   *http.Client
}

// NewProxySigner creates a signer for one remote wallet.
func NewProxySigner(baseURL, walletID string, agentSecret []byte, client *http.Client) (*ProxySigner, error) {
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("invalid keyring url %q", baseURL)
	}
	if walletID == "" {
		return nil, fmt.Errorf("wallet id is required")
	}
	if len(agentSecret) == 0 {
		return nil, fmt.Errorf("agent secret is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ProxySigner{baseURL: baseURL, walletID: walletID, secret: agentSecret, client: client}, nil
}

// Address fetches the wallet's account address.
func (p *ProxySigner) Address(ctx context.Context) (common.Address, error) {
	var resp struct {
		Address string `json:"address"`
	}
	err := p.call(ctx, http.MethodGet, "/wallets/"+p.walletID, nil, &resp)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(resp.Address) {
		return common.Address{}, fmt.Errorf("keyring returned invalid address %q", resp.Address)
	}
	return common.HexToAddress(resp.Address), nil
}

// SignMessage signs a personal-sign message through the keyring. The
// keyring's policy engine may refuse; that surfaces as an error here.
func (p *ProxySigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	body, err := json.Marshal(signMessageRequest{WalletID: p.walletID, Message: string(message)})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Signature string `json:"signature"`
	}
	if err := p.call(ctx, http.MethodPost, "/sign-message", body, &resp); err != nil {
		return nil, err
	}
	sig, err := hexutil.Decode(resp.Signature)
	if err != nil {
		return nil, fmt.Errorf("keyring returned invalid signature: %w", err)
	}
	return sig, nil
}

func (p *ProxySigner) call(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := SignRequest(req, p.secret, body); err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("keyring request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("keyring refused (%d %s): %s", resp.StatusCode, apiErr.Code, apiErr.Error)
		}
		return fmt.Errorf("keyring refused with status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
