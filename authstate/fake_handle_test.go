// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authstate

import (
	"context"
	"errors"
	"time"
)

var errProviderDown = errors.New("provider unreachable")

// fakeHandle is a Handle whose silent session check is scripted.
type fakeHandle struct {
	init  func(ctx context.Context) (bool, error)
	token string
}

func (h *fakeHandle) Init(ctx context.Context) (bool, error) {
	if h.init == nil {
		return false, nil
	}
	return h.init(ctx)
}

func (h *fakeHandle) Token() string { return h.token }

func (h *fakeHandle) UpdateToken(context.Context, time.Duration) error { return nil }

func (h *fakeHandle) LoginURL(context.Context) (string, error) { return "https://idp/login", nil }

func (h *fakeHandle) RegisterURL(context.Context) (string, error) { return "https://idp/register", nil }

func (h *fakeHandle) LogoutURL(context.Context) (string, error) { return "https://idp/logout", nil }

func handleFunc(h Handle, err error) HandleFunc {
	return func(context.Context) (Handle, error) {
		return h, err
	}
}
