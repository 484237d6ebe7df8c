// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// AccessToken is an oauth access_token
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// RefreshToken is an oauth refresh_token
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth refresh_token
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON will redact the token
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}

// IDToken is an oidc id_token
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// DefaultTokenExpirySkew defines a time skew when checking a Token's
// expiration.
const DefaultTokenExpirySkew = 10 * time.Second

// Token is the set of tokens returned by the provider's token endpoint.
type Token struct {
	idToken      IDToken
	accessToken  AccessToken
	refreshToken RefreshToken
	expiry       time.Time

	nowFunc func() time.Time
}

// NewToken creates a new Token from an oauth2 token and an optional id_token.
// The id_token is optional, since a refresh grant isn't required to return
// one.
//
// Supported options: WithNow
func NewToken(i IDToken, t *oauth2.Token, opt ...Option) (*Token, error) {
	const op = "NewToken"
	if t == nil {
		return nil, fmt.Errorf("%s: oauth2 token is nil: %w", op, ErrNilParameter)
	}
	if t.AccessToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingAccessToken)
	}
	opts := getTokenOpts(opt...)
	return &Token{
		idToken:      i,
		accessToken:  AccessToken(t.AccessToken),
		refreshToken: RefreshToken(t.RefreshToken),
		expiry:       t.Expiry,
		nowFunc:      opts.withNowFunc,
	}, nil
}

// IDToken returns the id_token, which may be empty after a refresh.
func (t *Token) IDToken() IDToken { return t.idToken }

// AccessToken returns the access_token.
func (t *Token) AccessToken() AccessToken { return t.accessToken }

// RefreshToken returns the refresh_token, if the provider issued one.
func (t *Token) RefreshToken() RefreshToken { return t.refreshToken }

// Expiry returns the access_token's expiry. The zero value means the provider
// didn't say.
func (t *Token) Expiry() time.Time { return t.expiry }

// IsExpired returns true if the token has expired. Supports the
// WithExpirySkew option and if none is provided it will use the
// DefaultTokenExpirySkew.
func (t *Token) IsExpired(opt ...Option) bool {
	opts := getTokenOpts(opt...)
	return t.ExpiresWithin(opts.withExpirySkew)
}

// ExpiresWithin returns true if the access_token expires within d.  A token
// without an expiry never expires.
func (t *Token) ExpiresWithin(d time.Duration) bool {
	if t.expiry.IsZero() {
		return false
	}
	return t.expiry.Round(0).Before(t.now().Add(d))
}

// Valid will ensure that the access_token is not empty and hasn't expired.
func (t *Token) Valid() bool {
	if t == nil {
		return false
	}
	if t.accessToken == "" {
		return false
	}
	return !t.IsExpired()
}

func (t *Token) now() time.Time {
	if t.nowFunc != nil {
		return t.nowFunc()
	}
	return time.Now() // fallback to this default
}

// tokenOptions is the set of available options for Token functions
type tokenOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// tokenDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func tokenDefaults() tokenOptions {
	return tokenOptions{
		withExpirySkew: DefaultTokenExpirySkew,
	}
}

// getTokenOpts gets the token defaults and applies the opt overrides passed in
func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
