// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authstate

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
)

// HandleFunc creates the Handle of a mount.
type HandleFunc func(ctx context.Context) (Handle, error)

// Bootstrapper initializes a mount's State: it creates the Handle, performs
// the silent session check and publishes the outcome.  It's the cell's only
// writer and runs once.
type Bootstrapper struct {
	cell      *Cell[State]
	newHandle HandleFunc
	logger    hclog.Logger
	started   atomic.Bool
}

// NewBootstrapper returns a Bootstrapper which publishes to cell.
//
// Supported options: WithLogger
func NewBootstrapper(cell *Cell[State], newHandle HandleFunc, opt ...Option) (*Bootstrapper, error) {
	const op = "NewBootstrapper"
	if cell == nil {
		return nil, fmt.Errorf("%s: cell is nil: %w", op, ErrNilParameter)
	}
	if newHandle == nil {
		return nil, fmt.Errorf("%s: handle func is nil: %w", op, ErrNilParameter)
	}
	opts := getBootstrapOpts(opt...)
	return &Bootstrapper{
		cell:      cell,
		newHandle: newHandle,
		logger:    opts.withLogger,
	}, nil
}

// Bootstrap creates the Handle and performs its silent session check.  The
// State is initialized whatever the outcome: a failure is logged and
// published as unauthenticated.  Only a second call returns an error.
//
// If ctx is done by the time the check resolves, the mount is gone and the
// outcome is discarded.
func (b *Bootstrapper) Bootstrap(ctx context.Context) error {
	const op = "Bootstrapper.Bootstrap"
	if !b.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: %w", op, ErrAlreadyBootstrapped)
	}

	h, err := b.newHandle(ctx)
	switch {
	case ctx.Err() != nil:
		b.logger.Debug("mount is gone, discarding handle")
		return nil
	case err != nil:
		b.logger.Error("unable to create session handle", "error", err)
		b.publish(State{Initialized: true})
		return nil
	case h == nil:
		b.logger.Error("unable to create session handle", "error", ErrNilParameter)
		b.publish(State{Initialized: true})
		return nil
	}

	authenticated, err := h.Init(ctx)
	switch {
	case ctx.Err() != nil:
		b.logger.Debug("mount is gone, discarding silent session check")
		return nil
	case err != nil:
		b.logger.Error("silent session check failed", "error", err)
		authenticated = false
	case authenticated && h.Token() == "":
		b.logger.Warn("session found without an access token, treating as unauthenticated")
		authenticated = false
	}
	b.publish(State{
		Handle:        h,
		Authenticated: authenticated,
		Initialized:   true,
	})
	return nil
}

func (b *Bootstrapper) publish(s State) {
	if !b.cell.Store(s) {
		b.logger.Debug("state cell is closed, discarding state")
	}
}
