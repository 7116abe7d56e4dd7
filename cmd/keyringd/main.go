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

// Package main implements keyringd, the key-custody daemon. It holds
// signing keys behind an HTTP boundary, evaluates wallet policies on
// every signing request, and exposes the policy administration surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/siwa-id/siwa-go/pkg/config"
	"github.com/siwa-id/siwa-go/pkg/keyring"
	siwaversion "github.com/siwa-id/siwa-go/pkg/version"
)

var version = siwaversion.Version

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "keyringd",
		Short: "SIWA key-custody daemon",
		Long: `keyringd holds agent signing keys behind a policy boundary.
Signing requests are evaluated against the wallet's attached policies
before any key is used; policy administration requires a separate
secret.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "keyringd.yaml", "path to configuration file")
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	store, err := keyring.NewStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := keyring.NewService(keyring.NewMemoryKeyStore(), store, nil, logger)
	if err != nil {
		return err
	}
	auth, err := keyring.NewAuthenticator([]byte(cfg.Secrets.Admin), []byte(cfg.Secrets.Agent), 0)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           keyring.NewServer(service, store, auth, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("version", version).
			Str("listen", cfg.Listen).
			Str("database", cfg.DatabasePath).
			Msg("keyringd started")
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}
