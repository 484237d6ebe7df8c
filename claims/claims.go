// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package claims decodes the claims of an access token for display.  Tokens
// are not verified: the claims are shown to the end-user, never trusted.
package claims

import (
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims maps claim names to their values.  The shape is whatever the
// provider put in the token.
type Claims map[string]Value

// Get returns the named claim.
func (c Claims) Get(name string) (Value, bool) {
	v, ok := c[name]
	return v, ok
}

// String returns the named claim if it's a string.
func (c Claims) String(name string) (string, bool) {
	v, ok := c[name]
	if !ok {
		return "", false
	}
	return v.Str()
}

// JSON returns the claims as indented JSON, with sorted keys.
func (c Claims) JSON() (string, error) {
	const op = "Claims.JSON"
	if c == nil {
		c = Claims{}
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(b), nil
}

// Decode returns the claims of a compact JWS without verifying its
// signature.
func Decode(token string) (Claims, error) {
	const op = "claims.Decode"
	if token == "" {
		return nil, fmt.Errorf("%s: token is empty: %w", op, ErrMalformedToken)
	}
	parser := jwt.NewParser(jwt.WithJSONNumber())
	raw := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, raw); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedToken, err)
	}
	c, err := claimsOf(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

func claimsOf(raw map[string]interface{}) (Claims, error) {
	c := make(Claims, len(raw))
	for k, e := range raw {
		v, err := valueOf(e)
		if err != nil {
			return nil, fmt.Errorf("claim %q: %w", k, err)
		}
		c[k] = v
	}
	return c, nil
}
