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
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/siwa-id/siwa-go/pkg/receipt"
	"github.com/siwa-id/siwa-go/pkg/siwa"
	"github.com/siwa-id/siwa-go/pkg/verifier"
)

// SignInHandler serves the relying-party sign-in endpoints: nonce
// issuance (with a fail-fast registration check) and message
// verification that mints a receipt on success.
type SignInHandler struct {
	verifier *verifier.DefaultVerifier
	receipts *receipt.Service
	criteria *verifier.Criteria
	logger   zerolog.Logger
}

// NewSignInHandler assembles the sign-in endpoints. Criteria is
// optional.
func NewSignInHandler(v *verifier.DefaultVerifier, receipts *receipt.Service, criteria *verifier.Criteria, logger zerolog.Logger) *SignInHandler {
	return &SignInHandler{verifier: v, receipts: receipts, criteria: criteria, logger: logger}
}

// Register mounts the endpoints on a mux.
func (h *SignInHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /siwa/nonce", h.handleNonce)
	mux.HandleFunc("POST /siwa/verify", h.handleVerify)
}

func (h *SignInHandler) handleNonce(w http.ResponseWriter, r *http.Request) {
	var req verifier.NonceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	nonce, rejection, err := h.verifier.IssueNonce(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Msg("nonce issuance failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "nonce issuance failed"})
		return
	}
	if rejection != nil {
		writeJSON(w, http.StatusForbidden, rejection)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

type verifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type verifyResponse struct {
	Receipt  string        `json:"receipt,omitempty"`
	Response siwa.Response `json:"response"`
}

func (h *SignInHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result := h.verifier.VerifyWithCriteria(r.Context(), req.Message, req.Signature, h.criteria)
	response := siwa.BuildResponse(result)

	if !result.Valid {
		status := http.StatusUnauthorized
		if response.Status == siwa.StatusNotRegistered {
			status = http.StatusForbidden
		}
		h.logger.Debug().Str("code", string(result.Code)).Msg("sign-in rejected")
		writeJSON(w, status, verifyResponse{Response: response})
		return
	}

	token, err := h.receipts.Issue(receipt.PayloadFromResult(result))
	if err != nil {
		h.logger.Error().Err(err).Msg("receipt issuance failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "receipt issuance failed"})
		return
	}

	h.logger.Info().
		Str("address", result.Address).
		Uint64("agent_id", result.AgentID).
		Msg("agent signed in")
	writeJSON(w, http.StatusOK, verifyResponse{Receipt: token, Response: response})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
