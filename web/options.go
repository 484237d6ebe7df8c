// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package web

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultSessionIdleTimeout is how long an unused browser session is
	// kept.
	DefaultSessionIdleTimeout = 30 * time.Minute

	// DefaultWaitTimeout bounds how long a request waits for a mount's
	// State to be initialized.
	DefaultWaitTimeout = 10 * time.Second
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

// serverOptions is the set of available options for Server functions
type serverOptions struct {
	withLogger             hclog.Logger
	withSessionIdleTimeout time.Duration
	withWaitTimeout        time.Duration
	withSecureCookie       bool
	withNowFunc            func() time.Time
}

// serverDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func serverDefaults() serverOptions {
	return serverOptions{
		withLogger:             hclog.NewNullLogger(),
		withSessionIdleTimeout: DefaultSessionIdleTimeout,
		withWaitTimeout:        DefaultWaitTimeout,
	}
}

// getServerOpts gets the server defaults and applies the opt overrides
// passed in
func getServerOpts(opt ...Option) serverOptions {
	opts := serverDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithSessionIdleTimeout provides an optional idle timeout for browser
// sessions.
func WithSessionIdleTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok {
			o.withSessionIdleTimeout = d
		}
	}
}

// WithWaitTimeout provides an optional bound on how long a request waits for
// a State to be initialized.
func WithWaitTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok {
			o.withWaitTimeout = d
		}
	}
}

// WithSecureCookie marks the session cookie Secure, for demos served over
// https.
func WithSecureCookie(secure bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok {
			o.withSecureCookie = secure
		}
	}
}

// WithNow provides an optional func for determining what the current time
// it is, for session expiry.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok && now != nil {
			o.withNowFunc = now
		}
	}
}
