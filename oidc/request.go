// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// RequestKind identifies why a Request was sent to the provider.
type RequestKind string

const (
	// LoginRequest is an interactive login.
	LoginRequest RequestKind = "login"

	// RegisterRequest is an interactive login which starts at the provider's
	// registration form.
	RegisterRequest RequestKind = "register"

	// SilentRequest is a prompt=none request used to detect an existing
	// provider session without user interaction.
	SilentRequest RequestKind = "silent"
)

// Request represents one OIDC authentication attempt for a user. It contains
// the data needed to uniquely represent that one-time flow across the
// redirect to the provider and the redirect back.  ID() is passed as the
// oauth "state" parameter. The ID() and Nonce() cannot be equal, and are used
// to prevent CSRF and replay attacks.
type Request struct {
	// id is a unique identifier and an opaque value used to maintain state
	// between the oidc request and the callback
	id string

	// nonce is a unique nonce and suitable for use as an oidc nonce
	nonce string

	// verifier is the PKCE code verifier for the request
	verifier string

	kind       RequestKind
	expiration time.Time
	nowFunc    func() time.Time
}

// NewRequest creates a new Request which expires in expireIn.
//
// Supported options: WithKind, WithNow
func NewRequest(expireIn time.Duration, opt ...Option) (*Request, error) {
	const op = "NewRequest"
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	opts := getReqOpts(opt...)
	nonce, err := NewID(WithPrefix("n"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's nonce: %w", op, err)
	}
	id, err := NewID(WithPrefix("st"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's id: %w", op, err)
	}
	r := &Request{
		id:       id,
		nonce:    nonce,
		verifier: oauth2.GenerateVerifier(),
		kind:     opts.withKind,
		nowFunc:  opts.withNowFunc,
	}
	r.expiration = r.now().Add(expireIn)
	return r, nil
}

// ID is a unique identifier and an opaque value used as the oauth state
// parameter.
func (r *Request) ID() string { return r.id }

// Nonce is the oidc nonce parameter. It's bound to the id_token returned for
// the request.
func (r *Request) Nonce() string { return r.nonce }

// Kind is why the request was sent to the provider.
func (r *Request) Kind() RequestKind { return r.kind }

// Expiration is when the authentication attempt expires.
func (r *Request) Expiration() time.Time { return r.expiration }

// IsExpired returns true if the request has expired. Supports the
// WithExpirySkew option and if none is provided it will use the
// DefaultRequestExpirySkew.
func (r *Request) IsExpired(opt ...Option) bool {
	opts := getReqOpts(opt...)
	return r.expiration.Before(r.now().Add(opts.withExpirySkew))
}

func (r *Request) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now() // fallback to this default
}

// DefaultRequestExpirySkew defines a default time skew when checking a
// Request's expiration.
const DefaultRequestExpirySkew = 1 * time.Second

// reqOptions is the set of available options for Request functions
type reqOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
	withKind       RequestKind
}

// reqDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func reqDefaults() reqOptions {
	return reqOptions{
		withExpirySkew: DefaultRequestExpirySkew,
		withKind:       LoginRequest,
	}
}

// getReqOpts gets the request defaults and applies the opt overrides passed in
func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithKind provides an optional kind for a new Request.  The default is
// LoginRequest.
func WithKind(k RequestKind) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok && k != "" {
			o.withKind = k
		}
	}
}
