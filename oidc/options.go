// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithNow provides an optional func for determining what the current time it
// is, for: Request and Token
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *reqOptions:
			v.withNowFunc = now
		case *tokenOptions:
			v.withNowFunc = now
		case *handleOptions:
			v.withNowFunc = now
		}
	}
}

// WithExpirySkew provides an optional expiry skew duration for: Request and
// Token
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *reqOptions:
			v.withExpirySkew = d
		case *tokenOptions:
			v.withExpirySkew = d
		}
	}
}

// WithLogger provides an optional logger for: Provider and Handle
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		switch v := o.(type) {
		case *providerOptions:
			v.withLogger = l
		case *handleOptions:
			v.withLogger = l
		}
	}
}
