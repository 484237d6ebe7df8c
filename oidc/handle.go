// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultRequestTTL is how long a browser has to come back from the provider
// before a Request expires.
const DefaultRequestTTL = 5 * time.Minute

// Handle is one browser mount's connection to the provider.  It holds the
// tokens of the current end-user and knows how to start, complete and end
// their provider session.
//
// A Handle is initialized exactly once (see Init).  Every other method is
// concurrently safe.
type Handle struct {
	provider   *Provider
	requests   *RequestCache
	callback   *CallbackParams
	requestTTL time.Duration
	logger     hclog.Logger
	nowFunc    func() time.Time

	initialized atomic.Bool

	mu    sync.Mutex
	token *Token

	checkOnce  sync.Once
	checkReady chan struct{}
	checkURL   string
}

// NewHandle creates a Handle for the provider.  The requests cache must be
// the one used by every Handle of the same browser session, since the Handle
// that sends a Request is not the one which completes it.
//
// Supported options: WithCallback, WithRequestTTL, WithLogger, WithNow
func NewHandle(p *Provider, requests *RequestCache, opt ...Option) (*Handle, error) {
	const op = "NewHandle"
	if p == nil {
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	}
	if requests == nil {
		return nil, fmt.Errorf("%s: request cache is nil: %w", op, ErrNilParameter)
	}
	opts := getHandleOpts(opt...)
	if opts.withRequestTTL <= 0 {
		return nil, fmt.Errorf("%s: request TTL not greater than zero: %w", op, ErrInvalidParameter)
	}
	return &Handle{
		provider:   p,
		requests:   requests,
		callback:   opts.withCallback,
		requestTTL: opts.withRequestTTL,
		logger:     opts.withLogger,
		nowFunc:    opts.withNowFunc,
		checkReady: make(chan struct{}),
	}, nil
}

// Init performs the silent session check and reports whether the end-user
// has a provider session.
//
// A Handle created WithCallback completes the authentication attempt the
// callback belongs to: a prompt=none attempt the provider refused with
// login_required (or similar) means "no session", anything else the provider
// refused is an error, and a code is exchanged for tokens.
//
// Otherwise Init sends a new prompt=none Request, publishes its URL through
// SilentCheckURL and suspends until ctx is done, since the answer arrives on
// the redirect back and is handled by the next mount's Handle.
func (h *Handle) Init(ctx context.Context) (bool, error) {
	const op = "Handle.Init"
	if !h.initialized.CompareAndSwap(false, true) {
		return false, fmt.Errorf("%s: %w", op, ErrAlreadyInitialized)
	}
	if h.callback != nil {
		defer h.markCheck("")
		authenticated, err := h.completeCallback(ctx, *h.callback)
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		return authenticated, nil
	}

	u, err := h.authURL(ctx, SilentRequest)
	if err != nil {
		h.markCheck("")
		return false, fmt.Errorf("%s: unable to start silent session check: %w", op, err)
	}
	h.markCheck(u)
	<-ctx.Done()
	return false, ctx.Err()
}

func (h *Handle) completeCallback(ctx context.Context, params CallbackParams) (bool, error) {
	const op = "Handle.completeCallback"
	r, err := h.requests.Take(ctx, params.State)
	if err != nil {
		return false, fmt.Errorf("%s: unable to find the callback's request: %w", op, err)
	}
	if pErr := params.ProviderError(); pErr != nil {
		if r.Kind() == SilentRequest && pErr.IsSessionRequired() {
			h.logger.Debug("no provider session", "reason", pErr.Code)
			return false, nil
		}
		return false, fmt.Errorf("%s: %s request refused: %w", op, r.Kind(), pErr)
	}
	t, err := h.provider.Exchange(ctx, r, params.State, params.Code)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if h.nowFunc != nil {
		t.nowFunc = h.nowFunc
	}
	h.mu.Lock()
	h.token = t
	h.mu.Unlock()
	h.logger.Debug("authentication completed", "kind", r.Kind())
	return true, nil
}

// markCheck records the silent check URL ("" when there's nothing to
// redirect to) and releases SilentCheckURL callers.  Only the first call
// counts.
func (h *Handle) markCheck(u string) {
	h.checkOnce.Do(func() {
		h.checkURL = u
		close(h.checkReady)
	})
}

// SilentCheckURL waits until Init has either sent its silent session check or
// finished, and returns the URL the browser must be redirected to.  It
// returns "" when no redirect is pending.
func (h *Handle) SilentCheckURL(ctx context.Context) (string, error) {
	const op = "Handle.SilentCheckURL"
	select {
	case <-h.checkReady:
		return h.checkURL, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func (h *Handle) authURL(ctx context.Context, kind RequestKind) (string, error) {
	const op = "Handle.authURL"
	r, err := NewRequest(h.requestTTL, WithKind(kind), WithNow(h.nowFunc))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u, err := h.provider.AuthURL(ctx, r)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	h.requests.Add(r)
	return u, nil
}

// LoginURL returns the URL which starts an interactive login.
func (h *Handle) LoginURL(ctx context.Context) (string, error) {
	return h.authURL(ctx, LoginRequest)
}

// RegisterURL returns the URL which starts an interactive login at the
// provider's registration page.
func (h *Handle) RegisterURL(ctx context.Context) (string, error) {
	return h.authURL(ctx, RegisterRequest)
}

// LogoutURL returns the URL which ends the end-user's provider session.
func (h *Handle) LogoutURL(ctx context.Context) (string, error) {
	const op = "Handle.LogoutURL"
	var hint IDToken
	h.mu.Lock()
	if h.token != nil {
		hint = h.token.IDToken()
	}
	h.mu.Unlock()
	u, err := h.provider.LogoutURL(ctx, hint)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// Token returns the current access_token, or "" when unauthenticated.
func (h *Handle) Token() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.token == nil {
		return ""
	}
	return string(h.token.AccessToken())
}

// UpdateToken refreshes the access_token if it expires within minValidity.
// A negative minValidity always refreshes.  When the refresh fails the
// current token is kept and the error is returned, so callers must not carry
// on with the stale token.
func (h *Handle) UpdateToken(ctx context.Context, minValidity time.Duration) error {
	const op = "Handle.UpdateToken"
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.token == nil {
		return fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}
	if minValidity >= 0 && !h.token.ExpiresWithin(minValidity) {
		return nil
	}
	t, err := h.provider.Refresh(ctx, h.token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	h.token = t
	h.logger.Debug("access token refreshed", "expiry", t.Expiry())
	return nil
}

// handleOptions is the set of available options for Handle functions
type handleOptions struct {
	withCallback   *CallbackParams
	withRequestTTL time.Duration
	withLogger     hclog.Logger
	withNowFunc    func() time.Time
}

// handleDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func handleDefaults() handleOptions {
	return handleOptions{
		withRequestTTL: DefaultRequestTTL,
		withLogger:     hclog.NewNullLogger(),
	}
}

// getHandleOpts gets the handle defaults and applies the opt overrides passed
// in
func getHandleOpts(opt ...Option) handleOptions {
	opts := handleDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithCallback provides the parameters of the redirect back from the
// provider which created the Handle.
func WithCallback(params CallbackParams) Option {
	return func(o interface{}) {
		if o, ok := o.(*handleOptions); ok {
			o.withCallback = &params
		}
	}
}

// WithRequestTTL provides an optional lifetime for the Requests a Handle
// sends.
func WithRequestTTL(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*handleOptions); ok {
			o.withRequestTTL = d
		}
	}
}
