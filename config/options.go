// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

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

type options struct {
	withEnvironment map[string]string
	withDotEnvFiles []string
}

func getDefaults() options {
	return options{
		withDotEnvFiles: []string{".env"},
	}
}

func getOpts(opt ...Option) options {
	opts := getDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithEnvironment provides the variables to read instead of the process
// environment.
func WithEnvironment(environment map[string]string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withEnvironment = make(map[string]string, len(environment))
			for k, v := range environment {
				o.withEnvironment[k] = v
			}
		}
	}
}

// WithDotEnvFiles provides the .env files to read, in order of precedence.
// The default is ".env".
func WithDotEnvFiles(files ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withDotEnvFiles = files
		}
	}
}
