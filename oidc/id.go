// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-uuid"
)

// DefaultIDLength is the default length for generated IDs, which are used for
// request IDs (the oauth state) and nonces.
const DefaultIDLength = 32

// NewID generates an ID with an optional prefix. The ID generated is suitable
// for a Request's ID or Nonce.
//
// Supported options: WithPrefix
func NewID(opt ...Option) (string, error) {
	const op = "NewID"
	opts := getIDOpts(opt...)
	raw, err := uuid.GenerateRandomBytes(DefaultIDLength / 2)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, ErrIDGeneratorFailed)
	}
	id := fmt.Sprintf("%x", raw)
	if opts.withPrefix != "" {
		return fmt.Sprintf("%s_%s", opts.withPrefix, id), nil
	}
	return id, nil
}

// idOptions is the set of available options.
type idOptions struct {
	withPrefix string
}

// idDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func idDefaults() idOptions {
	return idOptions{}
}

// getIDOpts gets the defaults and applies the opt overrides passed in.
func getIDOpts(opt ...Option) idOptions {
	opts := idDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPrefix provides an optional prefix for a new ID.  When this options is
// provided, NewID will prepend the prefix and an underscore to the new
// identifier.
func WithPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*idOptions); ok {
			o.withPrefix = strings.TrimSpace(prefix)
		}
	}
}
