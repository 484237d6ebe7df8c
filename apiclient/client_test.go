// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "valid", baseURL: "http://localhost:8081"},
		{name: "trailing-slash", baseURL: "https://api.example.com/"},
		{name: "empty", baseURL: "", wantErr: true},
		{name: "no-scheme", baseURL: "localhost:8081", wantErr: true},
		{name: "bad-scheme", baseURL: "ftp://localhost", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewClient(tt.baseURL)
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, ErrInvalidParameter)
				return
			}
			require.NoError(err)
			assert.NotNil(got)
		})
	}
}

func TestClient_Hello(t *testing.T) {
	t.Parallel()
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/hello" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_, _ = w.Write([]byte("Hello, alice!"))
		case "Bearer created":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("made it"))
		default:
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("nope"))
		}
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)

	tests := []struct {
		name       string
		token      string
		want       string
		wantStatus int
		wantIsErr  error
	}{
		{name: "ok", token: "good", want: "Hello, alice!"},
		{name: "2xx", token: "created", want: "made it"},
		{name: "forbidden", token: "bad", wantStatus: http.StatusForbidden},
		{name: "missing-token", wantIsErr: ErrMissingToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			gotAuth = ""
			got, err := c.Hello(context.Background(), tt.token)
			switch {
			case tt.wantStatus != 0:
				require.Error(err)
				var statusErr *StatusError
				require.True(errors.As(err, &statusErr))
				assert.Equal(tt.wantStatus, statusErr.StatusCode)
				assert.Equal("Request failed with status 403", statusErr.Error())
			case tt.wantIsErr != nil:
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				assert.Empty(gotAuth, "no request without a token")
			default:
				require.NoError(err)
				assert.Equal(tt.want, got)
				assert.Equal("Bearer "+tt.token, gotAuth)
			}
		})
	}
	t.Run("unreachable", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		c, err := NewClient(dead.URL)
		require.NoError(t, err)
		_, err = c.Hello(context.Background(), "good")
		assert.Error(t, err)
		var statusErr *StatusError
		assert.False(t, errors.As(err, &statusErr))
	})
}
