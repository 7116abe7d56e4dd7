package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/siwa-id/siwa-go/pkg/receipt"
	"github.com/siwa-id/siwa-go/pkg/signer"
	"github.com/siwa-id/siwa-go/pkg/siwa"
)

type contextKey string

const agentContextKey contextKey = "siwa_agent"

// DefaultMaxSignatureAge bounds how old a signature's created timestamp
// may be. It must not exceed the replay window, or a replayed nonce
// could outlive its store entry.
const DefaultMaxSignatureAge = 5 * time.Minute

// clockSkew tolerates created timestamps slightly in the future.
const clockSkew = 30 * time.Second

// Config configures the request verification middleware.
type Config struct {
	// Receipts validates the X-SIWA-Receipt header. Required.
	Receipts *receipt.Service

	// Replay is the nonce store. Nil means a fresh store with the
	// default window.
	Replay *ReplayStore

	// MaxSignatureAge overrides DefaultMaxSignatureAge when positive.
	MaxSignatureAge time.Duration

	// AllowedSignerTypes, when non-empty, restricts which receipt
	// signer categories may call protected resources.
	AllowedSignerTypes []siwa.SignerType

	// Challenger, when set, gates requests behind a bot-defense
	// challenge.
	Challenger Challenger

	// ChallengeRequired decides per request whether the challenge gate
	// applies. Nil with a Challenger set means every request.
	ChallengeRequired func(r *http.Request, agent siwa.Agent) bool

	// Logger receives per-request verification outcomes. The zero value
	// discards them.
	Logger zerolog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// RequestVerifier is HTTP middleware that verifies signed agent
// requests. All failures produce an opaque 401 so callers cannot probe
// the verification order; the one deliberate exception is the
// challenge-required response, which the caller must be able to
// distinguish in order to solve and retry.
type RequestVerifier struct {
	receipts   *receipt.Service
	replay     *ReplayStore
	maxAge     time.Duration
	allowed    map[siwa.SignerType]bool
	challenger Challenger
	required   func(r *http.Request, agent siwa.Agent) bool
	solved     *solvedCache
	logger     zerolog.Logger
	now        func() time.Time
}

// NewRequestVerifier creates the middleware from a config.
func NewRequestVerifier(cfg Config) (*RequestVerifier, error) {
	if cfg.Receipts == nil {
		return nil, fmt.Errorf("receipt service is required")
	}
	if cfg.Replay == nil {
		cfg.Replay = NewReplayStore(0)
	}
	if cfg.MaxSignatureAge <= 0 {
		cfg.MaxSignatureAge = DefaultMaxSignatureAge
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var allowed map[siwa.SignerType]bool
	if len(cfg.AllowedSignerTypes) > 0 {
		allowed = make(map[siwa.SignerType]bool, len(cfg.AllowedSignerTypes))
		for _, st := range cfg.AllowedSignerTypes {
			allowed[st] = true
		}
	}

	v := &RequestVerifier{
		receipts:   cfg.Receipts,
		replay:     cfg.Replay,
		maxAge:     cfg.MaxSignatureAge,
		allowed:    allowed,
		challenger: cfg.Challenger,
		required:   cfg.ChallengeRequired,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if v.challenger != nil {
		v.solved = newSolvedCache(DefaultChallengeTTL * 5)
	}
	return v, nil
}

// Wrap wraps an HTTP handler with request-signature verification.
func (v *RequestVerifier) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS preflight carries no signature.
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		agent, reason := v.verify(r)
		if reason != "" {
			v.logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("reason", reason).
				Msg("request signature rejected")
			v.unauthorized(w)
			return
		}

		if v.challenger != nil && (v.required == nil || v.required(r, *agent)) {
			if !v.passesChallenge(r, agent.Address) {
				v.challengeRequired(w, agent.Address)
				return
			}
		}

		ctx := context.WithValue(r.Context(), agentContextKey, *agent)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verify runs the full chain and returns the caller identity, or a
// non-empty internal reason on failure. Reasons are logged, never sent.
func (v *RequestVerifier) verify(r *http.Request) (*siwa.Agent, string) {
	receiptToken := r.Header.Get(signer.HeaderReceipt)
	sigInputHeader := r.Header.Get(signer.HeaderSignatureInput)
	sigHeader := r.Header.Get(signer.HeaderSignature)
	if receiptToken == "" || sigInputHeader == "" || sigHeader == "" {
		return nil, "missing signature headers"
	}

	payload := v.receipts.Validate(receiptToken)
	if payload == nil {
		return nil, "invalid receipt"
	}

	input, err := signer.ParseSignatureInput(sigInputHeader)
	if err != nil {
		return nil, "malformed signature input: " + err.Error()
	}

	if !coversReceipt(input.Components) {
		return nil, "receipt not covered by signature"
	}

	now := v.now()
	if input.Created == 0 {
		return nil, "missing created timestamp"
	}
	created := time.Unix(input.Created, 0)
	if now.Sub(created) > v.maxAge || created.Sub(now) > clockSkew {
		return nil, "signature outside freshness window"
	}

	// Buffer the body so digest verification and the handler both see it.
	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, "unreadable body"
		}
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewBuffer(body))
	}
	if digest := r.Header.Get(signer.HeaderContentDigest); digest != "" {
		if err := signer.VerifyContentDigest(digest, body); err != nil {
			return nil, "content digest mismatch"
		}
	} else if len(body) > 0 {
		return nil, "body without content digest"
	}

	base, err := signer.BuildSignatureBase(r, input.Components, input.Params)
	if err != nil {
		return nil, "failed to rebuild signature base: " + err.Error()
	}

	sig, err := signer.DecodeSignatureHeader(sigHeader)
	if err != nil || len(sig) != 65 {
		return nil, "malformed signature"
	}
	rsv := make([]byte, 65)
	copy(rsv, sig)
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(base)), rsv)
	if err != nil {
		return nil, "signature recovery failed"
	}
	recovered := crypto.PubkeyToAddress(*pub)

	keyChainID, keyAddress, err := signer.ParseKeyID(input.KeyID)
	if err != nil {
		return nil, "malformed keyid"
	}
	if recovered != keyAddress {
		return nil, "recovered signer does not match keyid"
	}

	// The signer must be the identity the receipt was issued to.
	if !strings.EqualFold(payload.Address, keyAddress.Hex()) {
		return nil, "signer does not match receipt"
	}
	if payload.ChainID != keyChainID {
		return nil, "chain id does not match receipt"
	}
	if v.allowed != nil && !v.allowed[payload.SignerType] {
		return nil, "signer category not allowed"
	}

	replayKey := input.Nonce
	if replayKey == "" {
		replayKey = hex.EncodeToString(sig)
	}
	if !v.replay.CheckAndMark(replayKey) {
		return nil, "replayed signature"
	}

	agent := payload.Agent()
	return &agent, ""
}

func (v *RequestVerifier) passesChallenge(r *http.Request, identity string) bool {
	if v.solved.solved(identity) {
		return true
	}
	token := r.Header.Get(HeaderChallenge)
	solution := r.Header.Get(HeaderChallengeSolution)
	if token == "" || solution == "" {
		return false
	}
	if !v.challenger.Verify(token, solution) {
		return false
	}
	v.solved.mark(identity)
	return true
}

func (v *RequestVerifier) unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"code":  string(siwa.CodeUnauthorized),
		"error": "unauthorized",
	})
}

func (v *RequestVerifier) challengeRequired(w http.ResponseWriter, identity string) {
	ch, err := v.challenger.IssueChallenge(0)
	if err != nil {
		v.logger.Error().Err(err).Msg("failed to issue challenge")
		v.unauthorized(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderChallenge, ch.Token)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"code":      string(siwa.CodeCaptchaRequired),
		"error":     "challenge required",
		"challenge": ch,
	})
	v.logger.Debug().Str("identity", identity).Msg("challenge issued")
}

func coversReceipt(components []string) bool {
	for _, c := range components {
		if c == signer.ComponentReceipt {
			return true
		}
	}
	return false
}

// AgentFromContext extracts the verified caller identity placed in the
// request context by the middleware.
func AgentFromContext(ctx context.Context) (siwa.Agent, bool) {
	agent, ok := ctx.Value(agentContextKey).(siwa.Agent)
	return agent, ok
}
