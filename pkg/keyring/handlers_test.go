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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siwa-id/siwa-go/pkg/policy"
	"github.com/siwa-id/siwa-go/pkg/siwa"
)

var (
	adminSecret = []byte("admin-secret")
	agentSecret = []byte("agent-secret")
)

type httpEnv struct {
	ts       *httptest.Server
	store    *Store
	walletID string
	address  string
}

func newHTTPEnv(t *testing.T) *httpEnv {
	t.Helper()

	store := newTestStore(t)
	service, err := NewService(NewMemoryKeyStore(), store, nil, zerolog.Nop())
	require.NoError(t, err)
	auth, err := NewAuthenticator(adminSecret, agentSecret, time.Minute)
	require.NoError(t, err)

	ts := httptest.NewServer(NewServer(service, store, auth, zerolog.Nop()).Handler())
	t.Cleanup(ts.Close)

	walletID, address, err := service.CreateWallet(context.Background())
	require.NoError(t, err)

	return &httpEnv{ts: ts, store: store, walletID: walletID, address: address.Hex()}
}

func (e *httpEnv) do(t *testing.T, secret []byte, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	require.NoError(t, SignRequest(req, secret, body))

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, respBody
}

func TestServer_AdminSecretRequired(t *testing.T) {
	env := newHTTPEnv(t)

	// Mutating a policy with the agent secret must fail.
	resp, _ := env.do(t, agentSecret, "POST", "/policies", allowAllPolicy("p"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, adminSecret, "POST", "/policies", allowAllPolicy("p"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestServer_AgentSecretRequired(t *testing.T) {
	env := newHTTPEnv(t)

	resp, _ := env.do(t, []byte("wrong"), "GET", "/policies", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The admin secret does not work on agent routes either; the two
	// capabilities are disjoint.
	resp, _ = env.do(t, adminSecret, "GET", "/policies", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, agentSecret, "GET", "/policies", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_PolicyLifecycle(t *testing.T) {
	env := newHTTPEnv(t)

	resp, body := env.do(t, adminSecret, "POST", "/policies", allowAllPolicy("lifecycle"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created policy.Policy
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ID)

	resp, body = env.do(t, agentSecret, "GET", "/policies/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	created.Name = "renamed"
	resp, _ = env.do(t, adminSecret, "PUT", "/policies/"+created.ID, created)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, adminSecret, "POST", "/wallets/"+env.walletID+"/policies/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, agentSecret, "GET", "/wallets/"+env.walletID+"/policies", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var attached []policy.Policy
	require.NoError(t, json.Unmarshal(body, &attached))
	require.Len(t, attached, 1)
	assert.Equal(t, "renamed", attached[0].Name)

	resp, _ = env.do(t, adminSecret, "DELETE", "/wallets/"+env.walletID+"/policies/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, adminSecret, "DELETE", "/policies/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, agentSecret, "GET", "/policies/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_SignMessage(t *testing.T) {
	env := newHTTPEnv(t)

	// No policies attached yet: the boundary is fail-closed.
	resp, body := env.do(t, agentSecret, "POST", "/sign-message", signMessageRequest{
		WalletID: env.walletID,
		Message:  "hello",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	var denied map[string]string
	require.NoError(t, json.Unmarshal(body, &denied))
	assert.Equal(t, string(siwa.CodePolicyDenied), denied["code"])

	p := allowAllPolicy("allow messages")
	resp, body = env.do(t, adminSecret, "POST", "/policies", p)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &p))
	resp, _ = env.do(t, adminSecret, "POST", "/wallets/"+env.walletID+"/policies/"+p.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, agentSecret, "POST", "/sign-message", signMessageRequest{
		WalletID: env.walletID,
		Message:  "hello",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var signed map[string]string
	require.NoError(t, json.Unmarshal(body, &signed))
	assert.NotEmpty(t, signed["signature"])
}

func TestServer_AuthReplayRejected(t *testing.T) {
	env := newHTTPEnv(t)

	req, err := http.NewRequest("GET", env.ts.URL+"/policies", nil)
	require.NoError(t, err)
	require.NoError(t, SignRequest(req, agentSecret, nil))

	resp, err := env.ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Same headers again: the tag is single-use.
	replay, err := http.NewRequest("GET", env.ts.URL+"/policies", nil)
	require.NoError(t, err)
	replay.Header = req.Header.Clone()
	resp, err = env.ts.Client().Do(replay)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProxySigner(t *testing.T) {
	env := newHTTPEnv(t)

	p := allowAllPolicy("allow messages")
	resp, body := env.do(t, adminSecret, "POST", "/policies", p)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &p))
	resp, _ = env.do(t, adminSecret, "POST", "/wallets/"+env.walletID+"/policies/"+p.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	proxy, err := NewProxySigner(env.ts.URL, env.walletID, agentSecret, env.ts.Client())
	require.NoError(t, err)

	ctx := context.Background()
	address, err := proxy.Address(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.address, address.Hex())

	message := []byte("signed through the custody boundary")
	sig, err := proxy.SignMessage(ctx, message)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	rsv := make([]byte, 65)
	copy(rsv, sig)
	rsv[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(message), rsv)
	require.NoError(t, err)
	assert.Equal(t, address, crypto.PubkeyToAddress(*pub))
}

func TestProxySigner_PolicyDeniedSurfaces(t *testing.T) {
	env := newHTTPEnv(t)

	proxy, err := NewProxySigner(env.ts.URL, env.walletID, agentSecret, env.ts.Client())
	require.NoError(t, err)

	_, err = proxy.SignMessage(context.Background(), []byte("hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(siwa.CodePolicyDenied))
}

func TestAuthenticator(t *testing.T) {
	auth, err := NewAuthenticator(adminSecret, agentSecret, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "http://keyring.local/sign-message", nil)
	body := []byte(`{"wallet_id":"w"}`)
	require.NoError(t, SignRequest(req, agentSecret, body))

	require.NoError(t, auth.VerifyAgent(req, body))

	// Wrong secret, tampered body, missing headers.
	other := httptest.NewRequest("POST", "http://keyring.local/sign-message", nil)
	require.NoError(t, SignRequest(other, agentSecret, body))
	assert.Error(t, auth.VerifyAdmin(other, body))

	tampered := httptest.NewRequest("POST", "http://keyring.local/sign-message", nil)
	require.NoError(t, SignRequest(tampered, agentSecret, body))
	assert.Error(t, auth.VerifyAgent(tampered, []byte(`{"wallet_id":"x"}`)))

	bare := httptest.NewRequest("POST", "http://keyring.local/sign-message", nil)
	assert.Error(t, auth.VerifyAgent(bare, body))
}

func TestAuthenticator_StaleTimestamp(t *testing.T) {
	auth, err := NewAuthenticator(adminSecret, agentSecret, time.Minute)
	require.NoError(t, err)
	auth.now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	req := httptest.NewRequest("GET", "http://keyring.local/policies", nil)
	require.NoError(t, SignRequest(req, agentSecret, nil))
	assert.Error(t, auth.VerifyAgent(req, nil))
}

func TestAuthenticator_SecretsMustDiffer(t *testing.T) {
	_, err := NewAuthenticator([]byte("same"), []byte("same"), time.Minute)
	assert.Error(t, err)
	_, err = NewAuthenticator(nil, []byte("agent"), time.Minute)
	assert.Error(t, err)
}
