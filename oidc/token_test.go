// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestTokens_Redacted(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		token interface {
			fmt.Stringer
			json.Marshaler
		}
		want string
	}{
		{name: "access_token", token: AccessToken("super secret"), want: RedactedAccessToken},
		{name: "refresh_token", token: RefreshToken("super secret"), want: RedactedRefreshToken},
		{name: "id_token", token: IDToken("super secret"), want: RedactedIDToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			assert.Equal(tt.want, tt.token.String())
			got, err := tt.token.MarshalJSON()
			require.NoError(err)
			assert.Equal(fmt.Sprintf(`"%s"`, tt.want), string(got))
		})
	}
}

func TestNewToken(t *testing.T) {
	t.Parallel()
	expiry := time.Now().Add(5 * time.Minute)
	tests := []struct {
		name      string
		idToken   IDToken
		token     *oauth2.Token
		wantErr   bool
		wantIsErr error
	}{
		{
			name:    "valid",
			idToken: "id",
			token:   &oauth2.Token{AccessToken: "at", RefreshToken: "rt", Expiry: expiry},
		},
		{
			name:  "valid-without-id-token",
			token: &oauth2.Token{AccessToken: "at"},
		},
		{
			name:      "nil-token",
			wantErr:   true,
			wantIsErr: ErrNilParameter,
		},
		{
			name:      "missing-access-token",
			token:     &oauth2.Token{RefreshToken: "rt"},
			wantErr:   true,
			wantIsErr: ErrMissingAccessToken,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewToken(tt.idToken, tt.token)
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			assert.Equal(tt.idToken, got.IDToken())
			assert.Equal(AccessToken(tt.token.AccessToken), got.AccessToken())
			assert.Equal(RefreshToken(tt.token.RefreshToken), got.RefreshToken())
			assert.Equal(tt.token.Expiry, got.Expiry())
		})
	}
}

func TestToken_Expiry(t *testing.T) {
	t.Parallel()
	now := time.Now()
	testNow := func() time.Time { return now }
	newToken := func(t *testing.T, expiry time.Time) *Token {
		tk, err := NewToken("", &oauth2.Token{AccessToken: "at", Expiry: expiry}, WithNow(testNow))
		require.NoError(t, err)
		return tk
	}
	tests := []struct {
		name        string
		expiry      time.Time
		within      time.Duration
		wantWithin  bool
		wantExpired bool
		wantValid   bool
	}{
		{
			name:      "fresh",
			expiry:    now.Add(5 * time.Minute),
			within:    30 * time.Second,
			wantValid: true,
		},
		{
			name:       "expires-within-window",
			expiry:     now.Add(20 * time.Second),
			within:     30 * time.Second,
			wantWithin: true,
			wantValid:  true,
		},
		{
			name:        "inside-skew",
			expiry:      now.Add(5 * time.Second),
			within:      30 * time.Second,
			wantWithin:  true,
			wantExpired: true,
		},
		{
			name:        "expired",
			expiry:      now.Add(-time.Minute),
			within:      0,
			wantWithin:  true,
			wantExpired: true,
		},
		{
			name:      "no-expiry",
			within:    time.Hour,
			wantValid: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			tk := newToken(t, tt.expiry)
			assert.Equal(tt.wantWithin, tk.ExpiresWithin(tt.within))
			assert.Equal(tt.wantExpired, tk.IsExpired())
			assert.Equal(tt.wantValid, tk.Valid())
		})
	}
	t.Run("WithExpirySkew", func(t *testing.T) {
		tk := newToken(t, now.Add(time.Minute))
		assert.False(t, tk.IsExpired())
		assert.True(t, tk.IsExpired(WithExpirySkew(2*time.Minute)))
	})
	t.Run("nil-token", func(t *testing.T) {
		var tk *Token
		assert.False(t, tk.Valid())
	})
}
