// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"sync"
)

// RequestCache holds the in-flight Requests of one browser session, keyed by
// their ID.  It outlives any single Handle, so a Request sent by one Handle
// can be completed by the Handle created for the redirect back.  It is
// concurrently safe.
type RequestCache struct {
	m sync.Mutex
	c map[string]*Request
}

// NewRequestCache returns an empty RequestCache.
func NewRequestCache() *RequestCache {
	return &RequestCache{
		c: map[string]*Request{},
	}
}

// Add a Request.  Expired requests are dropped while the lock is held.
func (rc *RequestCache) Add(r *Request) {
	rc.m.Lock()
	defer rc.m.Unlock()
	for id, existing := range rc.c {
		if existing.IsExpired() {
			delete(rc.c, id)
		}
	}
	rc.c[r.ID()] = r
}

// Take reads and deletes the Request for the given state, so each Request
// can complete only once.
func (rc *RequestCache) Take(_ context.Context, state string) (*Request, error) {
	const op = "RequestCache.Take"
	rc.m.Lock()
	defer rc.m.Unlock()
	r, ok := rc.c[state]
	if !ok {
		return nil, fmt.Errorf("%s: request %q: %w", op, state, ErrNotFound)
	}
	delete(rc.c, state)
	if r.IsExpired() {
		return nil, fmt.Errorf("%s: request %q: %w", op, state, ErrExpiredRequest)
	}
	return r, nil
}

// Len returns the number of in-flight requests.
func (rc *RequestCache) Len() int {
	rc.m.Lock()
	defer rc.m.Unlock()
	return len(rc.c)
}
