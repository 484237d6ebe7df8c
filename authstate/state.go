// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authstate

import (
	"context"
	"time"
)

// Handle is a mount's connection to the identity provider.  The
// Bootstrapper owns it; consumers get it through the published State and
// may call its operations, but never replace it.
type Handle interface {
	// Init performs the silent session check and reports whether the
	// end-user has a provider session.  It's called once.
	Init(ctx context.Context) (bool, error)

	// Token returns the current access token, or "" when unauthenticated.
	Token() string

	// UpdateToken refreshes the access token if it expires within
	// minValidity.  When it fails, the caller must not go on with the
	// current token.
	UpdateToken(ctx context.Context, minValidity time.Duration) error

	// LoginURL, RegisterURL and LogoutURL return where the browser must be
	// sent to start an interactive login, start a registration or end the
	// provider session.
	LoginURL(ctx context.Context) (string, error)
	RegisterURL(ctx context.Context) (string, error)
	LogoutURL(ctx context.Context) (string, error)
}

// State is the authentication state of a mount.  The zero State is the
// state before initialization: no handle, not authenticated, not
// initialized.
type State struct {
	// Handle is nil until the state is initialized, and stays nil when the
	// handle couldn't be created.
	Handle Handle

	// Authenticated is only meaningful once Initialized is true.
	Authenticated bool

	Initialized bool
}
