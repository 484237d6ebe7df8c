// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package web serves the demo's pages.  Every browser session gets a mount
// whose authentication State is bootstrapped with a silent session check,
// and the home page renders whatever that State publishes.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/cap-sso-demo/apiclient"
	"github.com/hashicorp/cap-sso-demo/authstate"
	"github.com/hashicorp/cap-sso-demo/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// SessionCookie names the browser session cookie.
	SessionCookie = "cap_sso_demo"

	// checkMinValidity is how long the access token must stay valid for the
	// Check button to use it without a refresh.
	checkMinValidity = 30 * time.Second

	// unknownError is shown for a failure without a message for the end-user.
	unknownError = "Unknown error"
)

// Server is the demo's http.Handler.
type Server struct {
	provider *oidc.Provider
	api      *apiclient.Client
	logger   hclog.Logger

	sessions     *sessionCache
	metrics      *Metrics
	registry     *prometheus.Registry
	router       chi.Router
	waitTimeout  time.Duration
	secureCookie bool

	// ctx is the parent of every mount.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer returns a Server, whose session janitor runs until Shutdown.
//
// Supported options: WithLogger, WithSessionIdleTimeout, WithWaitTimeout,
// WithSecureCookie, WithNow
func NewServer(p *oidc.Provider, api *apiclient.Client, opt ...Option) (*Server, error) {
	const op = "web.NewServer"
	if p == nil {
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	}
	if api == nil {
		return nil, fmt.Errorf("%s: api client is nil: %w", op, ErrNilParameter)
	}
	opts := getServerOpts(opt...)
	if opts.withSessionIdleTimeout <= 0 {
		return nil, fmt.Errorf("%s: session idle timeout not greater than zero: %w", op, ErrInvalidParameter)
	}
	if opts.withWaitTimeout <= 0 {
		return nil, fmt.Errorf("%s: wait timeout not greater than zero: %w", op, ErrInvalidParameter)
	}

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		provider:     p,
		api:          api,
		logger:       opts.withLogger,
		metrics:      metrics,
		registry:     registry,
		waitTimeout:  opts.withWaitTimeout,
		secureCookie: opts.withSecureCookie,
		ctx:          ctx,
		cancel:       cancel,
	}
	s.sessions = newSessionCache(opts.withSessionIdleTimeout, opts.withNowFunc, func(*session) {
		metrics.Sessions.Dec()
	})
	go s.sessions.janitor(ctx, janitorInterval(opts.withSessionIdleTimeout))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Get("/", s.handleHome)
	r.Get("/sso/check", s.handleSilentCheck)
	r.Get("/callback", s.handleCallback)
	r.Post("/login", s.handleLogin)
	r.Post("/register", s.handleRegister)
	r.Post("/logout", s.handleLogout)
	r.Post("/check", s.handleCheck)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	s.router = r
	return s, nil
}

// janitorInterval is half the idle timeout, within [1s, 1m].
func janitorInterval(idle time.Duration) time.Duration {
	return min(max(idle/2, time.Second), time.Minute)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Registry returns the registry the server's metrics are in.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Shutdown stops the janitor and tears every mount down.
func (s *Server) Shutdown() {
	s.cancel()
	s.sessions.closeAll()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Trace("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}

// session returns the browser's session, starting one when the browser has
// none (or an expired one).
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session, error) {
	const op = "Server.session"
	if c, err := r.Cookie(SessionCookie); err == nil {
		if sess, ok := s.sessions.get(c.Value); ok {
			return sess, nil
		}
	}
	sess, err := s.sessions.create()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.Sessions.Inc()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookie,
		// Lax, so the cookie comes along on the provider's redirect back
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

func (s *Server) clearSession(w http.ResponseWriter, sess *session) {
	s.sessions.delete(sess.id)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) newMount(sess *session, opt ...oidc.Option) (*mount, error) {
	return newMount(s.ctx, s.provider, sess.requests, s.metrics, s.logger.Named("mount").With("session", sess.id), opt...)
}

// mount returns the session's mount, starting one (a "page load") when there
// is none.
func (s *Server) mount(w http.ResponseWriter, r *http.Request) (*session, *mount, error) {
	sess, err := s.session(w, r)
	if err != nil {
		return nil, nil, err
	}
	m, err := sess.mountOrCreate(func() (*mount, error) { return s.newMount(sess) })
	if err != nil {
		return nil, nil, err
	}
	return sess, m, nil
}

// wait waits, for a bounded time, until the mount's State is initialized.
// The mount being replaced or the browser going away both end the wait.
func (s *Server) wait(r *http.Request, m *mount) {
	ctx, cancel := context.WithTimeout(r.Context(), s.waitTimeout)
	defer cancel()
	if _, err := m.publisher.Wait(ctx); err != nil {
		s.logger.Debug("stopped waiting for auth state", "error", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	_, m, err := s.mount(w, r)
	if err != nil {
		s.internalError(w, "unable to start session", err)
		return
	}
	s.render(w, m.publisher.Current(), checkResult{})
}

func (s *Server) render(w http.ResponseWriter, st authstate.State, result checkResult) {
	if err := renderPage(w, newPageData(st, result, s.logger)); err != nil {
		s.internalError(w, "unable to render page", err)
	}
}

// handleSilentCheck sends the browser to the pending silent session check.
// Without one, it waits for the State and goes back home.
func (s *Server) handleSilentCheck(w http.ResponseWriter, r *http.Request) {
	_, m, err := s.mount(w, r)
	if err != nil {
		s.internalError(w, "unable to start session", err)
		return
	}
	if m.publisher.Current().Initialized {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.waitTimeout)
	defer cancel()
	u, err := m.silentCheckURL(ctx)
	switch {
	case err != nil:
		s.logger.Debug("silent session check not ready", "error", err)
	case u != "":
		http.Redirect(w, r, u, http.StatusFound)
		return
	}
	s.wait(r, m)
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleCallback remounts with the provider's response, so the new mount's
// bootstrap completes the authentication attempt.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.internalError(w, "unable to start session", err)
		return
	}
	m, err := s.newMount(sess, oidc.WithCallback(oidc.CallbackParamsFromRequest(r)))
	if err != nil {
		s.internalError(w, "unable to mount", err)
		return
	}
	sess.replace(m)
	s.wait(r, m)
	http.Redirect(w, r, "/", http.StatusFound)
}

// initialized returns the session's State, or redirects home when it isn't
// initialized yet.
func (s *Server) initialized(w http.ResponseWriter, r *http.Request) (*session, authstate.State, bool) {
	sess, m, err := s.mount(w, r)
	if err != nil {
		s.internalError(w, "unable to start session", err)
		return nil, authstate.State{}, false
	}
	st := m.publisher.Current()
	if !st.Initialized {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return nil, authstate.State{}, false
	}
	if st.Handle == nil {
		s.logger.Error("no session handle", "session", sess.id)
		http.Error(w, "Identity provider unavailable", http.StatusServiceUnavailable)
		return nil, authstate.State{}, false
	}
	return sess, st, true
}

func (s *Server) redirectToProvider(w http.ResponseWriter, r *http.Request, what string, urlFunc func(context.Context) (string, error)) {
	u, err := urlFunc(r.Context())
	if err != nil {
		s.logger.Error("unable to reach the identity provider", "operation", what, "error", err)
		http.Error(w, "Identity provider unavailable", http.StatusBadGateway)
		return
	}
	http.Redirect(w, r, u, http.StatusSeeOther)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	_, st, ok := s.initialized(w, r)
	if !ok {
		return
	}
	s.redirectToProvider(w, r, "login", st.Handle.LoginURL)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	_, st, ok := s.initialized(w, r)
	if !ok {
		return
	}
	s.redirectToProvider(w, r, "register", st.Handle.RegisterURL)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, st, ok := s.initialized(w, r)
	if !ok {
		return
	}
	u, err := st.Handle.LogoutURL(r.Context())
	if err != nil {
		s.logger.Error("unable to reach the identity provider", "operation", "logout", "error", err)
		http.Error(w, "Identity provider unavailable", http.StatusBadGateway)
		return
	}
	s.clearSession(w, sess)
	http.Redirect(w, r, u, http.StatusSeeOther)
}

// handleCheck refreshes the access token if needed and calls the API with
// it.  Failures are shown on the page, and the State is left as it is.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	_, st, ok := s.initialized(w, r)
	if !ok {
		return
	}
	if !st.Authenticated {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, st, s.check(r.Context(), st.Handle))
}

func (s *Server) check(ctx context.Context, h authstate.Handle) checkResult {
	if err := h.UpdateToken(ctx, checkMinValidity); err != nil {
		s.logger.Warn("unable to refresh access token", "error", err)
		s.metrics.ObserveCheck(checkRefreshFailed)
		return checkResult{Error: refreshErrorMessage(err)}
	}
	msg, err := s.api.Hello(ctx, h.Token())
	var statusErr *apiclient.StatusError
	switch {
	case err == nil:
		s.metrics.ObserveCheck(checkOK)
		return checkResult{Message: msg}
	case errors.Is(err, apiclient.ErrMissingToken):
		s.metrics.ObserveCheck(checkMissingToken)
		return checkResult{Error: "Missing access token"}
	case errors.As(err, &statusErr):
		s.metrics.ObserveCheck(checkStatus)
		return checkResult{Error: statusErr.Error()}
	default:
		s.logger.Warn("api call failed", "error", err)
		s.metrics.ObserveCheck(checkError)
		return checkResult{Error: err.Error()}
	}
}

// refreshErrorMessage is what the page shows for a failed refresh: the
// provider's refusal when there is one.
func refreshErrorMessage(err error) string {
	var pErr *oidc.ProviderError
	if errors.As(err, &pErr) {
		return pErr.Error()
	}
	return unknownError
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
