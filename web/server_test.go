// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/cap-sso-demo/apiclient"
	"github.com/hashicorp/cap-sso-demo/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yhat/scrape"
	"golang.org/x/net/html"
)

// testEnv is a browser, the demo, its API and a provider.
type testEnv struct {
	provider *oidc.TestProvider
	server   *Server
	url      string
	browser  *http.Client

	// forbid makes the API answer 403.
	forbid atomic.Bool
}

func newTestEnv(t *testing.T, opt ...Option) *testEnv {
	t.Helper()
	require := require.New(t)
	env := &testEnv{provider: oidc.StartTestProvider(t)}
	env.provider.SetSubject("0c6f5d7e-alice", map[string]interface{}{
		"preferred_username": "alice",
		"email":              "alice@example.com",
		"name":               "Alice Liddell",
	})

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if env.forbid.Load() || !env.provider.IsAccessToken(token) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("Hello, alice!"))
	}))
	t.Cleanup(api.Close)

	ts := httptest.NewUnstartedServer(nil)
	env.url = "http://" + ts.Listener.Addr().String()

	cfg, err := oidc.NewConfig(env.provider.Issuer(), "nextjs-client", "", env.url+"/callback",
		oidc.WithPostLogoutRedirectURL(env.url+"/"),
		oidc.WithScopes("profile", "email"),
	)
	require.NoError(err)
	logger := hclog.New(&hclog.LoggerOptions{Name: "test", Level: hclog.Debug})
	p, err := oidc.NewProvider(cfg, oidc.WithLogger(logger))
	require.NoError(err)
	t.Cleanup(p.Done)
	c, err := apiclient.NewClient(api.URL)
	require.NoError(err)

	opt = append([]Option{WithLogger(logger), WithWaitTimeout(5 * time.Second)}, opt...)
	env.server, err = NewServer(p, c, opt...)
	require.NoError(err)
	t.Cleanup(env.server.Shutdown)

	ts.Config.Handler = env.server
	ts.Start()
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(err)
	env.browser = &http.Client{Jar: jar, Timeout: 10 * time.Second}
	return env
}

// noRedirects returns the browser, minus following redirects.
func (env *testEnv) noRedirects() *http.Client {
	return &http.Client{
		Jar:     env.browser.Jar,
		Timeout: env.browser.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (env *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := env.browser.Get(env.url + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (env *testEnv) post(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := env.browser.PostForm(env.url+path, url.Values{})
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// load is a page load of the browser: the home page, then the silent check
// its meta refresh points at.
func (env *testEnv) load(t *testing.T) *html.Node {
	t.Helper()
	page := testParse(t, env.get(t, "/"))
	_, loading := testText(page, "loading")
	require.True(t, loading, "expected the loading page")
	return testParse(t, env.get(t, "/sso/check"))
}

func testParse(t *testing.T, resp *http.Response) *html.Node {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	root, err := html.Parse(resp.Body)
	require.NoError(t, err)
	return root
}

func testText(root *html.Node, id string) (string, bool) {
	n, ok := scrape.Find(root, scrape.ById(id))
	if !ok {
		return "", false
	}
	return scrape.Text(n), true
}

func TestNewServer(t *testing.T) {
	t.Parallel()
	tp := oidc.StartTestProvider(t)
	cfg, err := oidc.NewConfig(tp.Issuer(), "nextjs-client", "", "http://localhost:3000/callback")
	require.NoError(t, err)
	p, err := oidc.NewProvider(cfg)
	require.NoError(t, err)
	t.Cleanup(p.Done)
	c, err := apiclient.NewClient("http://localhost:8081")
	require.NoError(t, err)

	tests := []struct {
		name      string
		provider  *oidc.Provider
		api       *apiclient.Client
		opt       []Option
		wantIsErr error
	}{
		{name: "valid", provider: p, api: c},
		{name: "nil-provider", api: c, wantIsErr: ErrNilParameter},
		{name: "nil-api", provider: p, wantIsErr: ErrNilParameter},
		{
			name:     "tiny-idle-timeout",
			provider: p,
			api:      c,
			opt:      []Option{WithSessionIdleTimeout(time.Nanosecond)},
		},
		{
			name:      "zero-idle-timeout",
			provider:  p,
			api:       c,
			opt:       []Option{WithSessionIdleTimeout(0)},
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "negative-wait-timeout",
			provider:  p,
			api:       c,
			opt:       []Option{WithWaitTimeout(-time.Second)},
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewServer(tt.provider, tt.api, tt.opt...)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			defer got.Shutdown()
			assert.NotNil(got.Registry())
		})
	}
}

func TestServer_PageLoad(t *testing.T) {
	t.Parallel()
	t.Run("no-provider-session", func(t *testing.T) {
		assert := assert.New(t)
		env := newTestEnv(t)
		page := env.load(t)
		_, welcome := testText(page, "welcome")
		assert.True(welcome)
		_, loggedIn := testText(page, "logged-in")
		assert.False(loggedIn)
		assert.Equal("none", env.provider.LastAuthRequest().Get("prompt"))
	})
	t.Run("provider-session", func(t *testing.T) {
		assert := assert.New(t)
		env := newTestEnv(t)
		env.provider.SetActiveSession(true)
		page := env.load(t)
		_, loggedIn := testText(page, "logged-in")
		assert.True(loggedIn)
		for id, want := range map[string]string{
			"claim-username": "alice",
			"claim-email":    "alice@example.com",
			"claim-name":     "Alice Liddell",
			"claim-subject":  "0c6f5d7e-alice",
		} {
			got, ok := testText(page, id)
			assert.True(ok, id)
			assert.Equal(want, got, id)
		}
		data, ok := testText(page, "token-data")
		assert.True(ok)
		assert.Contains(data, `"preferred_username": "alice"`)
		_, msg := testText(page, "server-message")
		assert.False(msg)
	})
	t.Run("provider-unavailable", func(t *testing.T) {
		assert := assert.New(t)
		env := newTestEnv(t)
		env.provider.SetUnavailable(true)
		page := env.load(t)
		_, welcome := testText(page, "welcome")
		assert.True(welcome)

		resp := env.post(t, "/login")
		assert.Equal(http.StatusBadGateway, resp.StatusCode)
	})
	t.Run("reload-keeps-state", func(t *testing.T) {
		assert := assert.New(t)
		env := newTestEnv(t)
		env.provider.SetActiveSession(true)
		env.load(t)
		page := testParse(t, env.get(t, "/"))
		_, loggedIn := testText(page, "logged-in")
		assert.True(loggedIn)

		// once initialized, the silent check is done
		resp, err := env.noRedirects().Get(env.url + "/sso/check")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(http.StatusFound, resp.StatusCode)
		assert.Equal("/", resp.Header.Get("Location"))
	})
}

func TestServer_Login(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	env := newTestEnv(t)
	env.load(t)
	assert.False(env.provider.ActiveSession())

	page := testParse(t, env.post(t, "/login"))
	_, loggedIn := testText(page, "logged-in")
	require.True(loggedIn)
	assert.True(env.provider.ActiveSession())
	assert.Empty(env.provider.LastAuthRequest().Get("prompt"))
	username, _ := testText(page, "claim-username")
	assert.Equal("alice", username)
}

func TestServer_Register(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	env := newTestEnv(t)
	env.load(t)

	resp, err := env.noRedirects().PostForm(env.url+"/register", url.Values{})
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusSeeOther, resp.StatusCode)
	loc, err := resp.Location()
	require.NoError(err)
	assert.True(strings.HasSuffix(loc.Path, "/protocol/openid-connect/registrations"), loc.Path)

	followed, err := env.browser.Get(loc.String())
	require.NoError(err)
	defer followed.Body.Close()
	page := testParse(t, followed)
	_, loggedIn := testText(page, "logged-in")
	assert.True(loggedIn)
}

func TestServer_Logout(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	env := newTestEnv(t)
	env.provider.SetActiveSession(true)
	env.load(t)

	page := testParse(t, env.post(t, "/logout"))
	_, loading := testText(page, "loading")
	assert.True(loading, "the post logout redirect starts over")
	assert.False(env.provider.ActiveSession())

	page = testParse(t, env.get(t, "/sso/check"))
	_, welcome := testText(page, "welcome")
	assert.True(welcome)
}

func TestServer_Check(t *testing.T) {
	t.Parallel()
	t.Run("ok", func(t *testing.T) {
		assert := assert.New(t)
		env := newTestEnv(t)
		env.provider.SetActiveSession(true)
		env.load(t)
		page := testParse(t, env.post(t, "/check"))
		msg, ok := testText(page, "server-message")
		assert.True(ok)
		assert.Equal("Hello, alice!", msg)
		_, failed := testText(page, "check-error")
		assert.False(failed)
	})
	t.Run("forbidden", func(t *testing.T) {
		assert := assert.New(t)
		env := newTestEnv(t)
		env.provider.SetActiveSession(true)
		env.forbid.Store(true)
		env.load(t)
		page := testParse(t, env.post(t, "/check"))
		msg, ok := testText(page, "check-error")
		assert.True(ok)
		assert.Equal("Request failed with status 403", msg)
		_, loggedIn := testText(page, "logged-in")
		assert.True(loggedIn)
	})
	t.Run("refreshed", func(t *testing.T) {
		assert := assert.New(t)
		env := newTestEnv(t)
		env.provider.SetAccessTokenTTL(10 * time.Second)
		env.provider.SetActiveSession(true)
		env.load(t)
		page := testParse(t, env.post(t, "/check"))
		msg, _ := testText(page, "server-message")
		assert.Equal("Hello, alice!", msg)
	})
	t.Run("refresh-rejected", func(t *testing.T) {
		assert := assert.New(t)
		env := newTestEnv(t)
		env.provider.SetAccessTokenTTL(10 * time.Second)
		env.provider.SetActiveSession(true)
		env.load(t)
		env.provider.RejectRefresh(true)
		page := testParse(t, env.post(t, "/check"))
		msg, ok := testText(page, "check-error")
		assert.True(ok)
		assert.Equal("invalid_grant: Token is not active", msg)
		assert.NotContains(msg, "Handle.UpdateToken")
		_, called := testText(page, "server-message")
		assert.False(called)
		_, loggedIn := testText(page, "logged-in")
		assert.True(loggedIn, "a failed refresh doesn't log out")
	})
	t.Run("not-authenticated", func(t *testing.T) {
		assert := assert.New(t)
		env := newTestEnv(t)
		env.load(t)
		resp, err := env.noRedirects().PostForm(env.url+"/check", url.Values{})
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(http.StatusSeeOther, resp.StatusCode)
	})
}

func TestServer_SessionExpiry(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	var now atomic.Int64
	now.Store(time.Now().UnixNano())
	env := newTestEnv(t,
		WithSessionIdleTimeout(time.Minute),
		WithNow(func() time.Time { return time.Unix(0, now.Load()) }),
	)
	env.provider.SetActiveSession(true)
	env.load(t)
	assert.Equal(1, env.server.sessions.len())

	now.Add(int64(2 * time.Minute))
	page := testParse(t, env.get(t, "/"))
	_, loading := testText(page, "loading")
	assert.True(loading, "an expired session starts over")
	assert.Equal(1, env.server.sessions.len())
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	env := newTestEnv(t)
	env.provider.SetActiveSession(true)
	env.load(t)
	env.post(t, "/check")

	resp := env.get(t, "/metrics")
	require.Equal(http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(err)
	assert.Contains(string(body), `cap_sso_demo_bootstraps_total{outcome="authenticated"} 1`)
	assert.Contains(string(body), `cap_sso_demo_checks_total{outcome="ok"} 1`)
	assert.Contains(string(body), "cap_sso_demo_sessions 1")
	assert.NotContains(string(body), `outcome="failed"`)
}

func TestServer_Health(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	env := newTestEnv(t)
	resp := env.get(t, "/healthz")
	assert.Equal(http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal("ok", string(body))
}

func TestServer_Shutdown(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	env := newTestEnv(t)
	env.get(t, "/")
	assert.Equal(1, env.server.sessions.len())
	env.server.Shutdown()
	assert.Equal(0, env.server.sessions.len())
	assert.ErrorIs(env.server.ctx.Err(), context.Canceled)
}

func TestRefreshErrorMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "provider-refusal",
			err: fmt.Errorf("Handle.UpdateToken: Provider.Refresh: %w: %w", oidc.ErrRefreshFailed,
				&oidc.ProviderError{Code: "invalid_grant", Description: "Token is not active"}),
			want: "invalid_grant: Token is not active",
		},
		{
			name: "code-only",
			err:  fmt.Errorf("refresh: %w", &oidc.ProviderError{Code: "invalid_grant"}),
			want: "invalid_grant",
		},
		{
			name: "no-provider-message",
			err:  fmt.Errorf("Handle.UpdateToken: %w", errors.New("dial tcp: connection refused")),
			want: unknownError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, refreshErrorMessage(tt.err))
		})
	}
}

func TestJanitorInterval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		idle time.Duration
		want time.Duration
	}{
		{name: "nanosecond", idle: time.Nanosecond, want: time.Second},
		{name: "one-second", idle: time.Second, want: time.Second},
		{name: "half", idle: 30 * time.Second, want: 15 * time.Second},
		{name: "capped", idle: 30 * time.Minute, want: time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, janitorInterval(tt.idle))
		})
	}
}
