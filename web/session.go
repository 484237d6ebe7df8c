// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package web

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/cap-sso-demo/oidc"
)

// session is one browser's state.  Its RequestCache outlives the mounts, so
// the mount created by the redirect back can complete what an earlier mount
// sent.
type session struct {
	id       string
	requests *oidc.RequestCache

	mu       sync.Mutex
	current  *mount
	lastSeen time.Time
}

func newSession(now time.Time) (*session, error) {
	id, err := oidc.NewID(oidc.WithPrefix("s"))
	if err != nil {
		return nil, err
	}
	return &session{
		id:       id,
		requests: oidc.NewRequestCache(),
		lastSeen: now,
	}, nil
}

// mountOrCreate returns the session's mount, creating it with create when
// there's none.
func (s *session) mountOrCreate(create func() (*mount, error)) (*mount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return s.current, nil
	}
	m, err := create()
	if err != nil {
		return nil, err
	}
	s.current = m
	return m, nil
}

// replace makes m the session's mount and tears the previous one down.
func (s *session) replace(m *mount) {
	s.mu.Lock()
	old := s.current
	s.current = m
	s.mu.Unlock()
	old.close()
}

func (s *session) close() {
	s.replace(nil)
}

// sessionCache holds the browser sessions and expires the idle ones.  It is
// concurrently safe.
type sessionCache struct {
	m       sync.Mutex
	c       map[string]*session
	idle    time.Duration
	nowFunc func() time.Time

	// onClose is called for every session leaving the cache.
	onClose func(*session)
}

func newSessionCache(idle time.Duration, nowFunc func() time.Time, onClose func(*session)) *sessionCache {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &sessionCache{
		c:       map[string]*session{},
		idle:    idle,
		nowFunc: nowFunc,
		onClose: onClose,
	}
}

// get returns the session and marks it used.  An idle session is removed
// instead.
func (sc *sessionCache) get(id string) (*session, bool) {
	sc.m.Lock()
	s, ok := sc.c[id]
	if !ok {
		sc.m.Unlock()
		return nil, false
	}
	now := sc.nowFunc()
	s.mu.Lock()
	expired := now.Sub(s.lastSeen) > sc.idle
	if !expired {
		s.lastSeen = now
	}
	s.mu.Unlock()
	if expired {
		delete(sc.c, id)
	}
	sc.m.Unlock()

	if expired {
		sc.closeSession(s)
		return nil, false
	}
	return s, true
}

// create adds a new session.
func (sc *sessionCache) create() (*session, error) {
	s, err := newSession(sc.nowFunc())
	if err != nil {
		return nil, err
	}
	sc.m.Lock()
	sc.c[s.id] = s
	sc.m.Unlock()
	return s, nil
}

// delete removes the session.
func (sc *sessionCache) delete(id string) {
	sc.m.Lock()
	s, ok := sc.c[id]
	delete(sc.c, id)
	sc.m.Unlock()
	if ok {
		sc.closeSession(s)
	}
}

// expire removes the idle sessions and returns how many there were.
func (sc *sessionCache) expire() int {
	now := sc.nowFunc()
	var expired []*session
	sc.m.Lock()
	for id, s := range sc.c {
		s.mu.Lock()
		idle := now.Sub(s.lastSeen) > sc.idle
		s.mu.Unlock()
		if idle {
			delete(sc.c, id)
			expired = append(expired, s)
		}
	}
	sc.m.Unlock()
	for _, s := range expired {
		sc.closeSession(s)
	}
	return len(expired)
}

// janitor expires idle sessions every interval until ctx is done.
func (sc *sessionCache) janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sc.expire()
		}
	}
}

// closeAll removes every session.
func (sc *sessionCache) closeAll() {
	sc.m.Lock()
	all := sc.c
	sc.c = map[string]*session{}
	sc.m.Unlock()
	for _, s := range all {
		sc.closeSession(s)
	}
}

func (sc *sessionCache) len() int {
	sc.m.Lock()
	defer sc.m.Unlock()
	return len(sc.c)
}

func (sc *sessionCache) closeSession(s *session) {
	s.close()
	if sc.onClose != nil {
		sc.onClose(s)
	}
}
