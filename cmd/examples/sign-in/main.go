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

// Command sign-in demonstrates the full agent flow: generate (or load)
// a key, sign in against a relying party, and make a signed request to
// a protected resource with the obtained receipt.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/siwa-id/siwa-go/pkg/client"
	"github.com/siwa-id/siwa-go/pkg/siwa"
	"github.com/siwa-id/siwa-go/pkg/wallet"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "relying party base URL")
	domain := flag.String("domain", "localhost:8080", "relying party domain")
	keyHex := flag.String("key", "", "hex private key (generates a fresh one when empty)")
	agentID := flag.Uint64("agent-id", 1, "agent token id on the identity registry")
	registry := flag.String("registry", "eip155:84532:0x8004AA63c570c570eBF15376c0dB199918BFe9Fb", "agent registry reference")
	chainID := flag.Uint64("chain-id", 84532, "chain id")
	protected := flag.String("resource", "/protected", "protected path to fetch after sign-in")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var signer *wallet.LocalSigner
	var err error
	if *keyHex != "" {
		signer, err = wallet.NewLocalSignerFromHex(*keyHex)
	} else {
		signer, err = wallet.GenerateLocalSigner()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create signer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	address, _ := signer.Address(ctx)
	log.Info().Str("address", address.Hex()).Msg("agent wallet ready")

	c, err := client.NewSIWAClient(*baseURL, signer, *chainID, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create client")
	}

	resp, err := c.SignIn(ctx, client.SignInParams{
		Domain:        *domain,
		URI:           *baseURL + "/login",
		Statement:     "Sign in to the demo relying party",
		AgentID:       *agentID,
		AgentRegistry: *registry,
		ChainID:       *chainID,
		ExpiresIn:     10 * time.Minute,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("sign-in failed")
	}

	switch resp.Status {
	case siwa.StatusAuthenticated:
		log.Info().
			Uint64("agent_id", resp.AgentID).
			Str("signer_type", string(resp.SignerType)).
			Msg("authenticated")
	case siwa.StatusNotRegistered:
		log.Warn().Msg(resp.Error)
		for _, step := range resp.Action.Steps {
			log.Warn().Msg("  " + step)
		}
		return
	default:
		log.Fatal().Str("code", string(resp.Code)).Str("error", resp.Error).Msg("rejected")
	}

	httpResp, err := c.Get(ctx, *baseURL+*protected)
	if err != nil {
		log.Fatal().Err(err).Msg("signed request failed")
	}
	defer httpResp.Body.Close()

	body, _ := io.ReadAll(httpResp.Body)
	log.Info().
		Int("status", httpResp.StatusCode).
		Str("body", string(body)).
		Msg("protected resource fetched")
}
