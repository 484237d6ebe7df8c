// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrNilParameter          = errors.New("nil parameter")
	ErrInvalidCACert         = errors.New("invalid CA certificate")
	ErrInvalidIssuer         = errors.New("invalid issuer")
	ErrIDGeneratorFailed     = errors.New("id generation failed")
	ErrExpiredRequest        = errors.New("request is expired")
	ErrResponseStateInvalid  = errors.New("response state is invalid")
	ErrMissingIDToken        = errors.New("id_token is missing")
	ErrMissingAccessToken    = errors.New("access_token is missing")
	ErrInvalidNonce          = errors.New("invalid nonce")
	ErrNotFound              = errors.New("not found")
	ErrDiscoveryFailed       = errors.New("provider discovery failed")
	ErrExchangeFailed        = errors.New("authorization code exchange failed")
	ErrRefreshFailed         = errors.New("token refresh failed")
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrAlreadyInitialized    = errors.New("handle already initialized")
	ErrUnsupportedLogout     = errors.New("provider does not support logout")
	ErrProviderErrorResponse = errors.New("provider error response")
)

// ProviderError is an OAuth 2.0 error response returned by the provider, on
// the redirect back to the client or by the token endpoint.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type ProviderError struct {
	Code        string
	Description string
	URI         string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// Is allows errors.Is(err, ErrProviderErrorResponse) to match any
// ProviderError.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderErrorResponse
}

// IsSessionRequired reports whether the provider refused a prompt=none
// request because the end-user has no usable session.  These are the
// expected "not logged in" answers to a silent session check.
func (e *ProviderError) IsSessionRequired() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case "login_required", "interaction_required", "consent_required", "account_selection_required":
		return true
	default:
		return false
	}
}
