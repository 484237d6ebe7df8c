// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authstate

import "github.com/hashicorp/go-hclog"

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

// bootstrapOptions is the set of available options for Bootstrapper
// functions
type bootstrapOptions struct {
	withLogger hclog.Logger
}

// bootstrapDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func bootstrapDefaults() bootstrapOptions {
	return bootstrapOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

// getBootstrapOpts gets the bootstrap defaults and applies the opt overrides
// passed in
func getBootstrapOpts(opt ...Option) bootstrapOptions {
	opts := bootstrapDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger for the Bootstrapper.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*bootstrapOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}
