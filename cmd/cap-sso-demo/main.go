// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/cap-sso-demo/apiclient"
	"github.com/hashicorp/cap-sso-demo/config"
	"github.com/hashicorp/cap-sso-demo/oidc"
	"github.com/hashicorp/cap-sso-demo/web"
	"github.com/hashicorp/go-hclog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envFile := flag.String("env-file", ".env", "file to read the variables the environment doesn't set from")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	const op = "run"
	cfg, err := config.Load(config.WithDotEnvFiles(envFile))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "cap-sso-demo",
		Level:      cfg.Level(),
		JSONFormat: cfg.LogJSON,
	})

	pc, err := cfg.ProviderConfig()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p, err := oidc.NewProvider(pc, oidc.WithLogger(logger.Named("oidc")))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer p.Done()

	api, err := apiclient.NewClient(cfg.APIURL, apiclient.WithLogger(logger.Named("apiclient")))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	srv, err := web.NewServer(p, api,
		web.WithLogger(logger.Named("web")),
		web.WithSessionIdleTimeout(cfg.SessionIdleTimeout),
		web.WithSecureCookie(strings.HasPrefix(cfg.PublicURL, "https://")),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer srv.Shutdown()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "public_url", cfg.PublicURL, "issuer", cfg.Issuer())
		srvCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-srvCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server closed with error: %w", op, err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: unable to shut down: %w", op, err)
	}
	return nil
}
