// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-multierror"
)

// ClientSecret is an oauth client secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Alg represents asymmetric signing algorithms
type Alg string

const (
	RS256 Alg = "RS256"
	RS384 Alg = "RS384"
	RS512 Alg = "RS512"
	ES256 Alg = "ES256"
	ES384 Alg = "ES384"
	ES512 Alg = "ES512"
	PS256 Alg = "PS256"
	PS384 Alg = "PS384"
	PS512 Alg = "PS512"
	EdDSA Alg = "EdDSA"
)

var supportedAlgorithms = map[Alg]bool{
	RS256: true,
	RS384: true,
	RS512: true,
	ES256: true,
	ES384: true,
	ES512: true,
	PS256: true,
	PS384: true,
	PS512: true,
	EdDSA: true,
}

// Config represents the configuration for a public (or confidential) client
// using the OIDC authorization code flow with PKCE.
type Config struct {
	// ClientID is the relying party id
	ClientID string

	// ClientSecret is the relying party secret.  It's optional, since the
	// demo registers as a public client and relies on PKCE.
	ClientSecret ClientSecret

	// Scopes is a list of additional oidc scopes to request of the provider.
	// The required "openid" scope is always requested.
	Scopes []string

	// Issuer is a case-sensitive URL string using the http(s) scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components.
	Issuer string

	// SupportedSigningAlgs is an optional list of id_token signing algorithms.
	// When empty, the algorithms advertised by the provider's discovery
	// document are used.
	SupportedSigningAlgs []Alg

	// RedirectURL is the client's callback for authentication responses.
	RedirectURL string

	// PostLogoutRedirectURL is where the provider sends the browser after
	// ending its session.
	PostLogoutRedirectURL string

	// ProviderCA is an optional CA cert to use when sending requests to the provider.
	ProviderCA string
}

// NewConfig composes a new config for a provider.
//
// Supported options:
//
//	WithScopes
//	WithProviderCA
//	WithSupportedSigningAlgs
//	WithPostLogoutRedirectURL
func NewConfig(issuer string, clientID string, clientSecret ClientSecret, redirectURL string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:                issuer,
		ClientID:              clientID,
		ClientSecret:          clientSecret,
		RedirectURL:           redirectURL,
		PostLogoutRedirectURL: opts.withPostLogoutRedirectURL,
		Scopes:                opts.withScopes,
		SupportedSigningAlgs:  opts.withSupportedSigningAlgs,
		ProviderCA:            opts.withProviderCA,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// KeycloakIssuer returns the issuer of a Keycloak realm hosted at baseURL.
func KeycloakIssuer(baseURL, realm string) string {
	return fmt.Sprintf("%s/realms/%s", strings.TrimRight(baseURL, "/"), url.PathEscape(realm))
}

// Validate the provider configuration.  Among other validations, it verifies
// the issuer is not empty, but it doesn't verify the Issuer is discoverable
// via an http request.  Every problem found is reported, not just the first.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	if err := validateURL("issuer", c.Issuer); err != nil {
		result = multierror.Append(result, fmt.Errorf("%w: %w", ErrInvalidIssuer, err))
	}
	if err := validateURL("redirect URL", c.RedirectURL); err != nil {
		result = multierror.Append(result, err)
	}
	if c.PostLogoutRedirectURL != "" {
		if err := validateURL("post logout redirect URL", c.PostLogoutRedirectURL); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			result = multierror.Append(result, fmt.Errorf("unsupported algorithm %s: %w", a, ErrInvalidParameter))
		}
	}
	if c.ProviderCA != "" {
		if ok := x509.NewCertPool().AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			result = multierror.Append(result, fmt.Errorf("could not parse CA PEM value: %w", ErrInvalidCACert))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func validateURL(name, u string) error {
	if u == "" {
		return fmt.Errorf("%s is empty: %w", name, ErrInvalidParameter)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("%s %q is invalid: %w", name, u, ErrInvalidParameter)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s %q scheme is not http or https: %w", name, u, ErrInvalidParameter)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s %q has no host: %w", name, u, ErrInvalidParameter)
	}
	return nil
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	tr := cleanhttp.DefaultPooledTransport()
	if c.ProviderCA != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs:    certPool,
			MinVersion: tls.VersionTLS12,
		}
	}
	return &http.Client{
		Transport: tr,
	}, nil
}

// HTTPClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}

// configOptions is the set of available options
type configOptions struct {
	withScopes                []string
	withSupportedSigningAlgs  []Alg
	withProviderCA            string
	withPostLogoutRedirectURL string
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScopes provides an optional list of additional scopes for the
// provider's config.  The "openid" scope is always requested and is ignored
// if it's included.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			for _, s := range scopes {
				s = strings.TrimSpace(s)
				if s == "" || s == oidc.ScopeOpenID {
					continue
				}
				o.withScopes = append(o.withScopes, s)
			}
		}
	}
}

// WithSupportedSigningAlgs provides an optional list of id_token signing
// algorithms for the provider's config
func WithSupportedSigningAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSupportedSigningAlgs = algs
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithPostLogoutRedirectURL provides an optional post logout redirect for the
// provider's config
func WithPostLogoutRedirectURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withPostLogoutRedirectURL = u
		}
	}
}
