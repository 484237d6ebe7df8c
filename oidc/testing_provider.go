// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is a local server shaped like a Keycloak realm, which makes
// writing tests of OIDC relying parties much easier.  It supports discovery,
// the authorization code flow with PKCE (including prompt=none and the
// registrations endpoint), refresh grants and RP-initiated logout.
//
// The "end-user" of a TestProvider logs in as soon as an interactive request
// reaches it, and keeps an SSO session until logout.
type TestProvider struct {
	httpServer *httptest.Server
	realm      string
	keyID      string
	jwks       *jose.JSONWebKeySet

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t testing.TB

	mu                  sync.Mutex
	clientID            string
	allowedRedirectURIs []string
	subject             string
	customClaims        map[string]interface{}
	activeSession       bool
	accessTokenTTL      time.Duration
	idTokenTTL          time.Duration
	rejectRefresh       bool
	unavailable         bool
	codes               map[string]testAuthCode
	refreshTokens       map[string]bool
	accessTokens        map[string]bool
	lastAuthRequest     url.Values
}

type testAuthCode struct {
	clientID    string
	redirectURI string
	nonce       string
	challenge   string
}

// DefaultTestRealm is the realm a TestProvider serves.
const DefaultTestRealm = "myrealm"

// StartTestProvider creates and starts a disposable TestProvider, which is
// stopped when the test completes.
func StartTestProvider(t testing.TB) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		realm:          DefaultTestRealm,
		keyID:          "test-key",
		t:              t,
		clientID:       "nextjs-client",
		subject:        "r3qXcK2bix9eFECzsU3Sbmh0K16fatW6",
		customClaims:   map[string]interface{}{},
		accessTokenTTL: 5 * time.Minute,
		idTokenTTL:     5 * time.Minute,
		codes:          map[string]testAuthCode{},
		refreshTokens:  map[string]bool{},
		accessTokens:   map[string]bool{},
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)

	block, _ := pem.Decode([]byte(p.ecdsaPublicKey))
	require.NotNil(block)
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(err)
	p.jwks = &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       pub,
				KeyID:     p.keyID,
				Algorithm: string(jose.ES256),
				Use:       "sig",
			},
		},
	}

	p.httpServer = httptest.NewServer(p)
	t.Cleanup(p.httpServer.Close)
	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's running
// webserver, which is what Keycloak calls its server URL.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// Realm returns the realm served by the test provider.
func (p *TestProvider) Realm() string { return p.realm }

// Issuer returns the issuer of the test provider's realm.
func (p *TestProvider) Issuer() string { return KeycloakIssuer(p.Addr(), p.realm) }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// SetClientID configures the only client the provider accepts.
func (p *TestProvider) SetClientID(clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs.
// When none are configured, any redirect URI is allowed.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetSubject configures the end-user: their subject and the additional claims
// embedded in the tokens issued for them.
func (p *TestProvider) SetSubject(sub string, customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subject = sub
	p.customClaims = customClaims
}

// SetActiveSession sets whether the end-user has an SSO session with the
// provider, which is what a prompt=none request looks for.
func (p *TestProvider) SetActiveSession(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeSession = active
}

// ActiveSession reports whether the end-user has an SSO session.
func (p *TestProvider) ActiveSession() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeSession
}

// SetAccessTokenTTL configures the lifetime of issued access tokens.
func (p *TestProvider) SetAccessTokenTTL(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokenTTL = d
}

// RejectRefresh makes the token endpoint refuse refresh grants the way
// Keycloak does once the refresh token has expired.
func (p *TestProvider) RejectRefresh(reject bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejectRefresh = reject
}

// SetUnavailable makes every endpoint answer 503 Service Unavailable.
func (p *TestProvider) SetUnavailable(unavailable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unavailable = unavailable
}

// LastAuthRequest returns the query of the last request to the authorization
// or registration endpoint.
func (p *TestProvider) LastAuthRequest() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAuthRequest
}

// IsAccessToken reports whether the token is an access token the provider
// issued.
func (p *TestProvider) IsAccessToken(token string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accessTokens[token]
}

func (p *TestProvider) path(endpoint string) string {
	return "/realms/" + p.realm + endpoint
}

func (p *TestProvider) endpoint(endpoint string) string {
	return p.Issuer() + endpoint
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, redirectURI, state, errorCode, errorMessage string) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	q := u.Query()
	q.Set("state", state)
	q.Set("error", errorCode)
	if errorMessage != "" {
		q.Set("error_description", errorMessage)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, req, u.String(), http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(&body)
}

func (p *TestProvider) redirectAllowed(uri string) bool {
	if len(p.allowedRedirectURIs) == 0 {
		return true
	}
	for _, allowed := range p.allowedRedirectURIs {
		if allowed == uri {
			return true
		}
	}
	return false
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unavailable {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	switch req.URL.Path {
	case p.path("/.well-known/openid-configuration"):
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reply := struct {
			Issuer             string   `json:"issuer"`
			AuthEndpoint       string   `json:"authorization_endpoint"`
			TokenEndpoint      string   `json:"token_endpoint"`
			JWKSURI            string   `json:"jwks_uri"`
			UserinfoEndpoint   string   `json:"userinfo_endpoint"`
			EndSessionEndpoint string   `json:"end_session_endpoint"`
			IDTokenSigningAlgs []string `json:"id_token_signing_alg_values_supported"`
			CodeChallengeAlgs  []string `json:"code_challenge_methods_supported"`
		}{
			Issuer:             p.Issuer(),
			AuthEndpoint:       p.endpoint("/protocol/openid-connect/auth"),
			TokenEndpoint:      p.endpoint("/protocol/openid-connect/token"),
			JWKSURI:            p.endpoint("/protocol/openid-connect/certs"),
			UserinfoEndpoint:   p.endpoint("/protocol/openid-connect/userinfo"),
			EndSessionEndpoint: p.endpoint("/protocol/openid-connect/logout"),
			IDTokenSigningAlgs: []string{string(ES256)},
			CodeChallengeAlgs:  []string{"S256"},
		}
		_ = p.writeJSON(w, &reply)

	case p.path("/protocol/openid-connect/auth"), p.path("/protocol/openid-connect/registrations"):
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.serveAuth(w, req)

	case p.path("/protocol/openid-connect/token"):
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.serveToken(w, req)

	case p.path("/protocol/openid-connect/certs"):
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.jwks)

	case p.path("/protocol/openid-connect/logout"):
		p.activeSession = false
		redirect := req.FormValue("post_logout_redirect_uri")
		if redirect == "" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("You are logged out"))
			return
		}
		if !p.redirectAllowed(redirect) {
			http.Error(w, "invalid post_logout_redirect_uri", http.StatusBadRequest)
			return
		}
		http.Redirect(w, req, redirect, http.StatusFound)

	case p.path("/protocol/openid-connect/userinfo"):
		token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		if !p.accessTokens[token] {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply := map[string]interface{}{"sub": p.subject}
		for k, v := range p.customClaims {
			reply[k] = v
		}
		_ = p.writeJSON(w, reply)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestProvider) serveAuth(w http.ResponseWriter, req *http.Request) {
	qv := req.URL.Query()
	p.lastAuthRequest = qv

	redirectURI := qv.Get("redirect_uri")
	if redirectURI == "" || !p.redirectAllowed(redirectURI) {
		// never redirect to an unknown client
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	if qv.Get("client_id") != p.clientID {
		http.Error(w, "client not found", http.StatusBadRequest)
		return
	}
	state := qv.Get("state")
	switch {
	case qv.Get("response_type") != "code":
		p.writeAuthErrorResponse(w, req, redirectURI, state, "unsupported_response_type", "")
		return
	case !strings.Contains(" "+qv.Get("scope")+" ", " openid "):
		p.writeAuthErrorResponse(w, req, redirectURI, state, "invalid_scope", "")
		return
	case state == "":
		p.writeAuthErrorResponse(w, req, redirectURI, state, "invalid_request", "missing state parameter")
		return
	case qv.Get("code_challenge") == "" || qv.Get("code_challenge_method") != "S256":
		p.writeAuthErrorResponse(w, req, redirectURI, state, "invalid_request", "Missing parameter: code_challenge_method")
		return
	}

	if qv.Get("prompt") == "none" {
		if !p.activeSession {
			p.writeAuthErrorResponse(w, req, redirectURI, state, "login_required", "")
			return
		}
	} else {
		// the end-user completes the login form
		p.activeSession = true
	}

	code := p.newID("code")
	p.codes[code] = testAuthCode{
		clientID:    p.clientID,
		redirectURI: redirectURI,
		nonce:       qv.Get("nonce"),
		challenge:   qv.Get("code_challenge"),
	}
	u, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	q := u.Query()
	q.Set("state", state)
	q.Set("code", code)
	u.RawQuery = q.Encode()
	http.Redirect(w, req, u.String(), http.StatusFound)
}

func (p *TestProvider) serveToken(w http.ResponseWriter, req *http.Request) {
	clientID := req.FormValue("client_id")
	if user, _, ok := req.BasicAuth(); ok {
		clientID = user
	}
	if clientID != p.clientID {
		_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "unauthorized_client", "Invalid client or Invalid client credentials")
		return
	}

	switch req.FormValue("grant_type") {
	case "authorization_code":
		code, ok := p.codes[req.FormValue("code")]
		delete(p.codes, req.FormValue("code"))
		switch {
		case !ok:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "Code not valid")
			return
		case code.redirectURI != req.FormValue("redirect_uri"):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "Incorrect redirect_uri")
			return
		case !testVerifierMatches(req.FormValue("code_verifier"), code.challenge):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
			return
		}
		_ = p.writeJSON(w, p.issueTokens(code.nonce))

	case "refresh_token":
		rt := req.FormValue("refresh_token")
		if p.rejectRefresh || !p.refreshTokens[rt] {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "Token is not active")
			return
		}
		delete(p.refreshTokens, rt)
		_ = p.writeJSON(w, p.issueTokens(""))

	default:
		_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "")
	}
}

type testTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope"`
}

// issueTokens must be called with the lock held.
func (p *TestProvider) issueTokens(nonce string) testTokenResponse {
	now := time.Now()
	accessClaims := jwt.Claims{
		ID:        p.newID("at"),
		Subject:   p.subject,
		Issuer:    p.Issuer(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(now.Add(p.accessTokenTTL)),
		Audience:  jwt.Audience{"account"},
	}
	accessPrivate := map[string]interface{}{
		"typ": "Bearer",
		"azp": p.clientID,
	}
	for k, v := range p.customClaims {
		accessPrivate[k] = v
	}
	accessToken := TestSignJWT(p.t, p.ecdsaPrivateKey, p.keyID, accessClaims, accessPrivate)
	p.accessTokens[accessToken] = true

	idClaims := jwt.Claims{
		ID:        p.newID("id"),
		Subject:   p.subject,
		Issuer:    p.Issuer(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(now.Add(p.idTokenTTL)),
		Audience:  jwt.Audience{p.clientID},
	}
	idPrivate := map[string]interface{}{
		"typ": "ID",
		"azp": p.clientID,
	}
	if nonce != "" {
		idPrivate["nonce"] = nonce
	}
	for k, v := range p.customClaims {
		idPrivate[k] = v
	}

	refreshToken := p.newID("rt")
	p.refreshTokens[refreshToken] = true

	return testTokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(p.accessTokenTTL / time.Second),
		RefreshToken: refreshToken,
		IDToken:      TestSignJWT(p.t, p.ecdsaPrivateKey, p.keyID, idClaims, idPrivate),
		Scope:        "openid",
	}
}

func (p *TestProvider) newID(prefix string) string {
	id, err := NewID(WithPrefix(prefix))
	require.NoError(p.t, err)
	return id
}

func testVerifierMatches(verifier, challenge string) bool {
	if verifier == "" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]) == challenge
}
