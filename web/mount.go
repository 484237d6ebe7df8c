// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package web

import (
	"context"
	"fmt"

	"github.com/hashicorp/cap-sso-demo/authstate"
	"github.com/hashicorp/cap-sso-demo/oidc"
	"github.com/hashicorp/go-hclog"
)

var _ authstate.Handle = (*oidc.Handle)(nil)

// mount is what a page load of the browser app would create: a Handle, the
// State it's bootstrapped into and the Publisher consumers read it from.
// The redirect back from the provider replaces the browser session's mount,
// the way it reloads the browser app.
type mount struct {
	ctx    context.Context
	cancel context.CancelFunc

	// handle is nil when it couldn't be created.
	handle    *oidc.Handle
	cell      *authstate.Cell[authstate.State]
	publisher *authstate.Publisher

	unsubscribe []func()
}

// newMount creates a mount and starts bootstrapping it.  The mount lives
// until close, not for the request which created it.
func newMount(parent context.Context, p *oidc.Provider, requests *oidc.RequestCache, metrics *Metrics, logger hclog.Logger, opt ...oidc.Option) (*mount, error) {
	const op = "newMount"
	cell := authstate.NewCell(authstate.State{})
	publisher, err := authstate.NewPublisher(cell)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	opt = append(opt, oidc.WithLogger(logger.Named("oidc")))
	h, handleErr := oidc.NewHandle(p, requests, opt...)
	newHandle := func(context.Context) (authstate.Handle, error) {
		if handleErr != nil {
			return nil, handleErr
		}
		return h, nil
	}
	b, err := authstate.NewBootstrapper(cell, newHandle, authstate.WithLogger(logger.Named("bootstrap")))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithCancel(parent)
	m := &mount{
		ctx:       ctx,
		cancel:    cancel,
		handle:    h,
		cell:      cell,
		publisher: publisher,
	}
	m.unsubscribe = append(m.unsubscribe,
		publisher.Subscribe(func(s authstate.State) {
			logger.Info("auth state changed", "initialized", s.Initialized, "authenticated", s.Authenticated)
		}),
		publisher.Subscribe(metrics.ObserveState),
	)
	go func() {
		if err := b.Bootstrap(ctx); err != nil {
			logger.Error("bootstrap", "error", err)
		}
	}()
	return m, nil
}

// silentCheckURL returns the pending silent session check, if any.
func (m *mount) silentCheckURL(ctx context.Context) (string, error) {
	if m.handle == nil {
		return "", nil
	}
	return m.handle.SilentCheckURL(ctx)
}

// close tears the mount down.  A bootstrap still running is discarded.
func (m *mount) close() {
	if m == nil {
		return
	}
	m.cancel()
	for _, fn := range m.unsubscribe {
		fn()
	}
	m.cell.Close()
}
