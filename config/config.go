// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package config loads the demo's configuration from the environment, and
// from a .env file for the values the environment doesn't set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/cap-sso-demo/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

var ErrInvalidParameter = errors.New("invalid parameter")

// Config is the demo's configuration.
type Config struct {
	// KeycloakURL is the provider's server URL, without the realm.
	KeycloakURL  string `env:"KEYCLOAK_URL" envDefault:"http://localhost:8080"`
	Realm        string `env:"KEYCLOAK_REALM" envDefault:"myrealm"`
	ClientID     string `env:"KEYCLOAK_CLIENT_ID" envDefault:"nextjs-client"`
	ClientSecret string `env:"KEYCLOAK_CLIENT_SECRET"`
	ProviderCA   string `env:"KEYCLOAK_CA_PEM"`

	// APIURL is the base URL of the backend API called by the Check button.
	APIURL string `env:"API_URL" envDefault:"http://localhost:8081"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:"localhost:3000"`

	// PublicURL is the URL browsers reach the demo at.  The provider
	// redirects back to it.
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://localhost:3000"`

	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`
}

// Load reads the configuration.  Variables set in the environment win over
// the ones in the .env files, and missing .env files are ignored.
//
// Supported options: WithEnvironment, WithDotEnvFiles
func Load(opt ...Option) (*Config, error) {
	const op = "config.Load"
	opts := getOpts(opt...)

	environment := opts.withEnvironment
	if environment == nil {
		environment = env.ToMap(os.Environ())
	}
	for _, f := range opts.withDotEnvFiles {
		values, err := godotenv.Read(f)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			return nil, fmt.Errorf("%s: unable to read %s: %w", op, f, err)
		}
		for k, v := range values {
			if _, ok := environment[k]; !ok {
				environment[k] = v
			}
		}
	}

	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Environment: environment}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &c, nil
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	var result *multierror.Error
	for _, u := range []struct{ name, value string }{
		{"KEYCLOAK_URL", c.KeycloakURL},
		{"API_URL", c.APIURL},
		{"PUBLIC_URL", c.PublicURL},
	} {
		if err := validateURL(u.name, u.value); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if strings.TrimSpace(c.Realm) == "" {
		result = multierror.Append(result, fmt.Errorf("KEYCLOAK_REALM is empty: %w", ErrInvalidParameter))
	}
	if strings.TrimSpace(c.ClientID) == "" {
		result = multierror.Append(result, fmt.Errorf("KEYCLOAK_CLIENT_ID is empty: %w", ErrInvalidParameter))
	}
	if c.ListenAddr == "" {
		result = multierror.Append(result, fmt.Errorf("LISTEN_ADDR is empty: %w", ErrInvalidParameter))
	}
	if c.SessionIdleTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("SESSION_IDLE_TIMEOUT must be greater than zero: %w", ErrInvalidParameter))
	}
	if c.Level() == hclog.NoLevel {
		result = multierror.Append(result, fmt.Errorf("LOG_LEVEL %q is unknown: %w", c.LogLevel, ErrInvalidParameter))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func validateURL(name, value string) error {
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s %q is not an http(s) URL: %w", name, value, ErrInvalidParameter)
	}
	return nil
}

// Issuer returns the issuer of the configured realm.
func (c *Config) Issuer() string {
	return oidc.KeycloakIssuer(c.KeycloakURL, c.Realm)
}

// RedirectURL returns where the provider sends the browser back to.
func (c *Config) RedirectURL() string {
	return strings.TrimRight(c.PublicURL, "/") + "/callback"
}

// PostLogoutRedirectURL returns where the provider sends the browser after
// logout.
func (c *Config) PostLogoutRedirectURL() string {
	return strings.TrimRight(c.PublicURL, "/") + "/"
}

// Level returns the log level, or hclog.NoLevel when LOG_LEVEL is unknown.
func (c *Config) Level() hclog.Level {
	return hclog.LevelFromString(c.LogLevel)
}

// ProviderConfig returns the oidc client configuration.
func (c *Config) ProviderConfig() (*oidc.Config, error) {
	const op = "Config.ProviderConfig"
	opts := []oidc.Option{
		oidc.WithScopes("profile", "email"),
		oidc.WithPostLogoutRedirectURL(c.PostLogoutRedirectURL()),
	}
	if c.ProviderCA != "" {
		opts = append(opts, oidc.WithProviderCA(c.ProviderCA))
	}
	pc, err := oidc.NewConfig(c.Issuer(), c.ClientID, oidc.ClientSecret(c.ClientSecret), c.RedirectURL(), opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pc, nil
}
