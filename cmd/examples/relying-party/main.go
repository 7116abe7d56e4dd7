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

// Command relying-party runs a demo relying party: sign-in endpoints
// backed by the onchain identity registry, plus a protected resource
// behind the request-verification middleware.
package main

import (
	"context"
	"flag"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/siwa-id/siwa-go/pkg/receipt"
	"github.com/siwa-id/siwa-go/pkg/registry"
	"github.com/siwa-id/siwa-go/pkg/server"
	"github.com/siwa-id/siwa-go/pkg/verifier"
)

// openRegistry accepts any address as the owner of any token. It lets
// the demo run without an RPC endpoint; never use it in production.
type openRegistry struct{}

func (openRegistry) OwnerOf(ctx context.Context, _ common.Address, _ *big.Int) (common.Address, error) {
	return common.Address{}, nil
}

func (openRegistry) IsValidSignature(ctx context.Context, _ common.Address, _ [32]byte, _ []byte) (bool, error) {
	return true, nil
}

func (openRegistry) IsContract(ctx context.Context, _ common.Address) (bool, error) {
	return false, nil
}

func main() {
	listen := flag.String("listen", ":8080", "listen address")
	domain := flag.String("domain", "localhost:8080", "domain expected in sign-in messages")
	rpcURL := flag.String("rpc-url", "", "Ethereum JSON-RPC endpoint (empty runs an open demo registry)")
	receiptSecret := flag.String("receipt-secret", "demo-receipt-secret", "HMAC secret for receipts")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var reg verifier.RegistryClient
	if *rpcURL != "" {
		client, err := registry.Dial(*rpcURL, 0)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RPC endpoint")
		}
		reg = client
	} else {
		log.Warn().Msg("no --rpc-url: running with an open demo registry that accepts everyone")
		reg = openRegistry{}
	}

	v, err := verifier.NewDefaultVerifier(verifier.Config{
		Domain:   *domain,
		Registry: reg,
		Nonces:   verifier.NewNonceManager(0),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build verifier")
	}

	receipts, err := receipt.NewService([]byte(*receiptSecret), 0)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build receipt service")
	}

	guard, err := server.NewRequestVerifier(server.Config{
		Receipts: receipts,
		Logger:   log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build request verifier")
	}

	mux := http.NewServeMux()
	server.NewSignInHandler(v, receipts, nil, log.Logger).Register(mux)
	mux.Handle("GET /protected", guard.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent, _ := server.AgentFromContext(r.Context())
		log.Info().Str("address", agent.Address).Uint64("agent_id", agent.AgentID).Msg("agent request")
		w.Write([]byte("hello, agent " + agent.Address))
	})))

	log.Info().Str("listen", *listen).Str("domain", *domain).Msg("relying party started")
	srv := &http.Server{Addr: *listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
