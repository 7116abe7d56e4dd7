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
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/siwa-id/siwa-go/pkg/policy"
	"github.com/siwa-id/siwa-go/pkg/siwa"
)

// Server exposes the keyring over HTTP: signing routes guarded by the
// agent secret, policy administration guarded by the admin secret.
type Server struct {
	service *Service
	store   *Store
	auth    *Authenticator
	logger  zerolog.Logger
}

// NewServer assembles the HTTP surface.
func NewServer(service *Service, store *Store, auth *Authenticator, logger zerolog.Logger) *Server {
	return &Server{service: service, store: store, auth: auth, logger: logger}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Administrative surface.
	mux.HandleFunc("POST /wallets", s.admin(s.handleCreateWallet))
	mux.HandleFunc("POST /policies", s.admin(s.handleCreatePolicy))
	mux.HandleFunc("PUT /policies/{id}", s.admin(s.handleUpdatePolicy))
	mux.HandleFunc("DELETE /policies/{id}", s.admin(s.handleDeletePolicy))
	mux.HandleFunc("POST /wallets/{walletID}/policies/{policyID}", s.admin(s.handleAttachPolicy))
	mux.HandleFunc("DELETE /wallets/{walletID}/policies/{policyID}", s.admin(s.handleDetachPolicy))

	// Read surface, available to the signing capability.
	mux.HandleFunc("GET /wallets/{walletID}", s.agent(s.handleGetWallet))
	mux.HandleFunc("GET /policies", s.agent(s.handleListPolicies))
	mux.HandleFunc("GET /policies/{id}", s.agent(s.handleGetPolicy))
	mux.HandleFunc("GET /wallets/{walletID}/policies", s.agent(s.handleWalletPolicies))

	// Signing surface.
	mux.HandleFunc("POST /sign-message", s.agent(s.handleSignMessage))
	mux.HandleFunc("POST /sign-transaction", s.agent(s.handleSignTransaction))
	mux.HandleFunc("POST /sign-authorization", s.agent(s.handleSignAuthorization))

	return mux
}

type authedHandler func(w http.ResponseWriter, r *http.Request, body []byte)

func (s *Server) admin(next authedHandler) http.HandlerFunc {
	return s.authed(next, s.auth.VerifyAdmin)
}

func (s *Server) agent(next authedHandler) http.HandlerFunc {
	return s.authed(next, s.auth.VerifyAgent)
}

func (s *Server) authed(next authedHandler, verify func(*http.Request, []byte) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			var err error
			body, err = io.ReadAll(r.Body)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, "unreadable body")
				return
			}
			r.Body.Close()
		}
		if err := verify(r, body); err != nil {
			s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("keyring auth rejected")
			s.writeCode(w, http.StatusUnauthorized, siwa.CodeUnauthorized, "unauthorized")
			return
		}
		next(w, r, body)
	}
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request, _ []byte) {
	id, address, err := s.service.CreateWallet(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"wallet_id": id,
		"address":   address.Hex(),
	})
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request, _ []byte) {
	walletID := r.PathValue("walletID")
	address, err := s.service.Address(r.Context(), walletID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "unknown wallet")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"wallet_id": walletID,
		"address":   address.Hex(),
	})
}

func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request, body []byte) {
	var p policy.Policy
	if err := json.Unmarshal(body, &p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid policy document")
		return
	}
	if err := s.store.CreatePolicy(r.Context(), &p); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request, _ []byte) {
	policies, err := s.store.ListPolicies(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if policies == nil {
		policies = []policy.Policy{}
	}
	s.writeJSON(w, http.StatusOK, policies)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request, _ []byte) {
	p, err := s.store.GetPolicy(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writePolicyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request, body []byte) {
	var p policy.Policy
	if err := json.Unmarshal(body, &p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid policy document")
		return
	}
	p.ID = r.PathValue("id")
	if err := s.store.UpdatePolicy(r.Context(), &p); err != nil {
		s.writePolicyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request, _ []byte) {
	if err := s.store.DeletePolicy(r.Context(), r.PathValue("id")); err != nil {
		s.writePolicyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAttachPolicy(w http.ResponseWriter, r *http.Request, _ []byte) {
	err := s.store.AttachPolicy(r.Context(), r.PathValue("walletID"), r.PathValue("policyID"))
	if err != nil {
		s.writePolicyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDetachPolicy(w http.ResponseWriter, r *http.Request, _ []byte) {
	err := s.store.DetachPolicy(r.Context(), r.PathValue("walletID"), r.PathValue("policyID"))
	if err != nil {
		s.writePolicyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWalletPolicies(w http.ResponseWriter, r *http.Request, _ []byte) {
	policies, err := s.store.WalletPolicies(r.Context(), r.PathValue("walletID"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if policies == nil {
		policies = []policy.Policy{}
	}
	s.writeJSON(w, http.StatusOK, policies)
}

type signMessageRequest struct {
	WalletID string `json:"wallet_id"`
	Message  string `json:"message"`
}

func (s *Server) handleSignMessage(w http.ResponseWriter, r *http.Request, body []byte) {
	var req signMessageRequest
	if err := json.Unmarshal(body, &req); err != nil || req.WalletID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	sig, err := s.service.SignMessage(r.Context(), req.WalletID, req.Message)
	if err != nil {
		s.writeSigningError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"signature": sig})
}

type signTransactionRequest struct {
	WalletID    string             `json:"wallet_id"`
	Transaction policy.Transaction `json:"transaction"`
}

func (s *Server) handleSignTransaction(w http.ResponseWriter, r *http.Request, body []byte) {
	var req signTransactionRequest
	if err := json.Unmarshal(body, &req); err != nil || req.WalletID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	raw, err := s.service.SignTransaction(r.Context(), req.WalletID, req.Transaction)
	if err != nil {
		s.writeSigningError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"raw_transaction": raw})
}

type signAuthorizationRequest struct {
	WalletID      string               `json:"wallet_id"`
	Authorization policy.Authorization `json:"authorization"`
}

func (s *Server) handleSignAuthorization(w http.ResponseWriter, r *http.Request, body []byte) {
	var req signAuthorizationRequest
	if err := json.Unmarshal(body, &req); err != nil || req.WalletID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	sig, err := s.service.SignAuthorization(r.Context(), req.WalletID, req.Authorization)
	if err != nil {
		s.writeSigningError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"signature": sig})
}

func (s *Server) writeSigningError(w http.ResponseWriter, err error) {
	var denied *PolicyDeniedError
	switch {
	case errors.As(err, &denied):
		s.writeCode(w, http.StatusForbidden, siwa.CodePolicyDenied, denied.Error())
	case errors.Is(err, ErrApprovalRejected), errors.Is(err, ErrApprovalTimeout):
		s.writeCode(w, http.StatusForbidden, siwa.CodePolicyDenied, err.Error())
	default:
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) writePolicyError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrPolicyNotFound) {
		s.writeError(w, http.StatusNotFound, "policy not found")
		return
	}
	s.writeError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeCode(w http.ResponseWriter, status int, code siwa.ErrorCode, message string) {
	s.writeJSON(w, status, map[string]string{"code": string(code), "error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to write response")
	}
}
