// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
)

// Provider provides integration with a provider using the typical 3-legged
// OIDC authorization code flow with PKCE.
//
// Discovery is lazy: NewProvider makes no requests, and a failed discovery
// is retried by the next operation that needs it.  A successful discovery is
// kept for the life of the Provider.
type Provider struct {
	config *Config
	client *http.Client
	logger hclog.Logger

	mu         sync.Mutex
	provider   *oidc.Provider
	endSession string

	// done is set by Done() and stops any further discovery.
	done bool
}

// NewProvider creates and initializes a Provider for the OIDC authorization
// code flow.
//
// Supported options: WithLogger
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config, opt ...Option) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	client, err := c.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	opts := getProviderOpts(opt...)
	return &Provider{
		config: c,
		client: client,
		logger: opts.withLogger,
	}, nil
}

// Done with the provider's resources and must be called for every Provider
// created.  Idle connections to the provider are closed and no further
// discovery is attempted.
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.done {
		p.done = true
		p.client.CloseIdleConnections()
	}
}

// Config returns the provider's config.
func (p *Provider) Config() *Config { return p.config }

// discover returns the discovered provider, making the discovery request if
// it hasn't succeeded yet.
func (p *Provider) discover(ctx context.Context) (*oidc.Provider, error) {
	const op = "Provider.discover"
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.provider != nil {
		return p.provider, nil
	}
	if p.done {
		return nil, fmt.Errorf("%s: provider is done: %w", op, ErrDiscoveryFailed)
	}
	provider, err := oidc.NewProvider(HTTPClientContext(ctx, p.client), p.config.Issuer) // makes http req to issuer for discovery
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrDiscoveryFailed, err)
	}
	var extra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, fmt.Errorf("%s: unable to read discovery document: %w: %w", op, ErrDiscoveryFailed, err)
	}
	p.provider = provider
	p.endSession = extra.EndSessionEndpoint
	p.logger.Debug("discovered provider", "issuer", p.config.Issuer)
	return provider, nil
}

// oauth2Config returns a client config for the discovered provider.
func (p *Provider) oauth2Config(provider *oidc.Provider) *oauth2.Config {
	endpoint := provider.Endpoint()
	if p.config.ClientSecret == "" {
		// public clients authenticate with their client_id only
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	// Add the "openid" scope, which is a required scope for oidc flows
	scopes := append([]string{oidc.ScopeOpenID}, p.config.Scopes...)
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: string(p.config.ClientSecret),
		RedirectURL:  p.config.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
}

// AuthURL will generate a URL the caller can use to kick off an OIDC
// authorization code flow with the provider for the Request.  A
// SilentRequest adds prompt=none and a RegisterRequest starts at the
// provider's registration page.
func (p *Provider) AuthURL(ctx context.Context, r *Request) (string, error) {
	const op = "Provider.AuthURL"
	if r == nil {
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.ID() == r.Nonce() {
		return "", fmt.Errorf("%s: request id and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	provider, err := p.discover(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	cfg := p.oauth2Config(provider)
	authCodeOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(r.Nonce()),
		oauth2.S256ChallengeOption(r.verifier),
	}
	switch r.Kind() {
	case SilentRequest:
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("prompt", "none"))
	case RegisterRequest:
		if reg, ok := registrationEndpoint(cfg.Endpoint.AuthURL); ok {
			cfg.Endpoint.AuthURL = reg
		} else {
			authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("prompt", "create"))
		}
	}
	return cfg.AuthCodeURL(r.ID(), authCodeOpts...), nil
}

// registrationEndpoint derives Keycloak's registration endpoint, which sits
// next to its authorization endpoint.
func registrationEndpoint(authURL string) (string, bool) {
	u, err := url.Parse(authURL)
	if err != nil || !strings.HasSuffix(u.Path, "/openid-connect/auth") {
		return "", false
	}
	u.Path = strings.TrimSuffix(u.Path, "/auth") + "/registrations"
	return u.String(), true
}

// Exchange will request a token from the oidc token endpoint, using the
// authorizationCode and authorizationState it received in an earlier
// successful oidc authentication response.
//
// It will also validate the authorizationState it receives against the
// existing Request for the user's oidc authentication flow, and verify the
// returned id_token (signature, issuer, audience, expiry and nonce).
func (p *Provider) Exchange(ctx context.Context, r *Request, authorizationState string, authorizationCode string) (*Token, error) {
	const op = "Provider.Exchange"
	if r == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.ID() != authorizationState {
		return nil, fmt.Errorf("%s: authentication request and authorization state are not equal: %w", op, ErrResponseStateInvalid)
	}
	if r.IsExpired() {
		return nil, fmt.Errorf("%s: authentication request is expired: %w", op, ErrExpiredRequest)
	}
	if authorizationCode == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	provider, err := p.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	oidcCtx := HTTPClientContext(ctx, p.client)
	oauth2Token, err := p.oauth2Config(provider).Exchange(oidcCtx, authorizationCode, oauth2.VerifierOption(r.verifier))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w: %w", op, ErrExchangeFailed, err)
	}
	idToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return nil, fmt.Errorf("%s: id_token is missing from auth code exchange: %w", op, ErrMissingIDToken)
	}
	if err := p.VerifyIDToken(ctx, IDToken(idToken), r.Nonce()); err != nil {
		return nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
	}
	t, err := NewToken(IDToken(idToken), oauth2Token)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create new token: %w", op, err)
	}
	return t, nil
}

// Refresh uses the token's refresh_token to get a new access_token.  The
// refresh_token and id_token are carried over when the provider doesn't
// rotate them.
func (p *Provider) Refresh(ctx context.Context, t *Token) (*Token, error) {
	const op = "Provider.Refresh"
	if t == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	if t.RefreshToken() == "" {
		return nil, fmt.Errorf("%s: no refresh_token: %w", op, ErrRefreshFailed)
	}
	provider, err := p.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	oidcCtx := HTTPClientContext(ctx, p.client)
	// an empty access_token forces the token source to use the refresh grant
	src := p.oauth2Config(provider).TokenSource(oidcCtx, &oauth2.Token{RefreshToken: string(t.RefreshToken())})
	refreshed, err := src.Token()
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.ErrorCode != "" {
			err = &ProviderError{
				Code:        rErr.ErrorCode,
				Description: rErr.ErrorDescription,
				URI:         rErr.ErrorURI,
			}
		}
		return nil, fmt.Errorf("%s: %w: %w", op, ErrRefreshFailed, err)
	}
	idToken := t.IDToken()
	if raw, ok := refreshed.Extra("id_token").(string); ok && raw != "" {
		idToken = IDToken(raw)
	}
	nt, err := NewToken(idToken, refreshed, WithNow(t.nowFunc))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create refreshed token: %w", op, err)
	}
	return nt, nil
}

// VerifyIDToken will verify the inbound IDToken.  It verifies it's been
// signed by the provider, it validates the nonce, and performs the issuer,
// audience and expiry checks.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (p *Provider) VerifyIDToken(ctx context.Context, t IDToken, nonce string) error {
	const op = "Provider.VerifyIDToken"
	if t == "" {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if nonce == "" {
		return fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	provider, err := p.discover(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	algs := make([]string, 0, len(p.config.SupportedSigningAlgs))
	for _, a := range p.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	verifier := provider.Verifier(&oidc.Config{
		ClientID:             p.config.ClientID,
		SupportedSigningAlgs: algs,
	})
	oidcIDToken, err := verifier.Verify(HTTPClientContext(ctx, p.client), string(t))
	if err != nil {
		return fmt.Errorf("%s: invalid id_token: %w", op, err)
	}
	if oidcIDToken.Nonce != nonce {
		return fmt.Errorf("%s: invalid id_token nonce: %w", op, ErrInvalidNonce)
	}
	return nil
}

// LogoutURL returns the provider's end session URL.  The idTokenHint is
// optional.
func (p *Provider) LogoutURL(ctx context.Context, idTokenHint IDToken) (string, error) {
	const op = "Provider.LogoutURL"
	if _, err := p.discover(ctx); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	p.mu.Lock()
	endSession := p.endSession
	p.mu.Unlock()
	if endSession == "" {
		return "", fmt.Errorf("%s: %w", op, ErrUnsupportedLogout)
	}
	u, err := url.Parse(endSession)
	if err != nil {
		return "", fmt.Errorf("%s: invalid end_session_endpoint: %w", op, err)
	}
	q := u.Query()
	q.Set("client_id", p.config.ClientID)
	if p.config.PostLogoutRedirectURL != "" {
		q.Set("post_logout_redirect_uri", p.config.PostLogoutRedirectURL)
	}
	if idTokenHint != "" {
		q.Set("id_token_hint", string(idTokenHint))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// providerOptions is the set of available options for Provider functions
type providerOptions struct {
	withLogger hclog.Logger
}

// providerDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func providerDefaults() providerOptions {
	return providerOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

// getProviderOpts gets the provider defaults and applies the opt overrides
// passed in
func getProviderOpts(opt ...Option) providerOptions {
	opts := providerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
