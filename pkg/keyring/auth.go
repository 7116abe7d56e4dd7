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
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Authentication headers for the keyring HTTP surface.
const (
	HeaderAuthTag   = "X-Keyring-Auth"
	HeaderTimestamp = "X-Keyring-Timestamp"
	HeaderAuthNonce = "X-Keyring-Nonce"
)

// DefaultAuthWindow is how far a request timestamp may deviate from the
// server clock. It doubles as the replay-tracking horizon for tags.
const DefaultAuthWindow = 30 * time.Second

// ComputeAuthTag produces the request-level HMAC over method, path,
// nonce, timestamp and body. The nonce makes every tag unique, so tags
// can be tracked as single-use.
func ComputeAuthTag(secret []byte, method, path, nonce string, body []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s\n%s\n%s\n%d\n", method, path, nonce, timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignRequest attaches auth headers to an outgoing keyring request.
func SignRequest(req *http.Request, secret []byte, body []byte) error {
	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return fmt.Errorf("failed to generate auth nonce: %w", err)
	}
	nonce := hex.EncodeToString(nonceBytes)
	timestamp := time.Now().Unix()
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderAuthNonce, nonce)
	req.Header.Set(HeaderAuthTag, ComputeAuthTag(secret, req.Method, req.URL.Path, nonce, body, timestamp))
	return nil
}

// Authenticator verifies request-level HMACs. Administrative and agent
// capabilities use distinct secrets: a compromised agent secret must
// not suffice to rewrite policies.
type Authenticator struct {
	adminSecret []byte
	agentSecret []byte
	window      time.Duration
	now         func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewAuthenticator creates an authenticator. Both secrets are required
// and must differ.
func NewAuthenticator(adminSecret, agentSecret []byte, window time.Duration) (*Authenticator, error) {
	if len(adminSecret) == 0 || len(agentSecret) == 0 {
		return nil, fmt.Errorf("admin and agent secrets are required")
	}
	if hmac.Equal(adminSecret, agentSecret) {
		return nil, fmt.Errorf("admin and agent secrets must differ")
	}
	if window <= 0 {
		window = DefaultAuthWindow
	}
	return &Authenticator{
		adminSecret: adminSecret,
		agentSecret: agentSecret,
		window:      window,
		now:         time.Now,
		seen:        make(map[string]time.Time),
	}, nil
}

// VerifyAgent checks a request against the agent secret.
func (a *Authenticator) VerifyAgent(r *http.Request, body []byte) error {
	return a.verify(r, body, a.agentSecret)
}

// VerifyAdmin checks a request against the administrative secret.
func (a *Authenticator) VerifyAdmin(r *http.Request, body []byte) error {
	return a.verify(r, body, a.adminSecret)
}

func (a *Authenticator) verify(r *http.Request, body []byte, secret []byte) error {
	tag := r.Header.Get(HeaderAuthTag)
	tsHeader := r.Header.Get(HeaderTimestamp)
	nonce := r.Header.Get(HeaderAuthNonce)
	if tag == "" || tsHeader == "" || nonce == "" {
		return fmt.Errorf("missing auth headers")
	}

	timestamp, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp")
	}
	now := a.now()
	drift := now.Sub(time.Unix(timestamp, 0))
	if drift > a.window || drift < -a.window {
		return fmt.Errorf("timestamp outside window")
	}

	want := ComputeAuthTag(secret, r.Method, r.URL.Path, nonce, body, timestamp)
	if !hmac.Equal([]byte(tag), []byte(want)) {
		return fmt.Errorf("auth tag mismatch")
	}

	// A valid tag is single-use within the window.
	a.mu.Lock()
	defer a.mu.Unlock()
	if seenAt, ok := a.seen[tag]; ok && now.Sub(seenAt) < 2*a.window {
		return fmt.Errorf("replayed auth tag")
	}
	for key, seenAt := range a.seen {
		if now.Sub(seenAt) >= 2*a.window {
			delete(a.seen, key)
		}
	}
	a.seen[tag] = now
	return nil
}
