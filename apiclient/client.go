// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package apiclient makes the demo's authenticated call to the backend API.
package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// maxBodySize bounds how much of a response is read.
const maxBodySize = 1 << 20

// Client calls the backend API on behalf of an authenticated end-user.
type Client struct {
	baseURL string
	client  *http.Client
	logger  hclog.Logger
}

// NewClient returns a Client for the API at baseURL.
//
// Supported options: WithHTTPClient, WithLogger
func NewClient(baseURL string, opt ...Option) (*Client, error) {
	const op = "apiclient.NewClient"
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%s: base URL %q is not an http(s) URL: %w", op, baseURL, ErrInvalidParameter)
	}
	opts := getClientOpts(opt...)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  opts.withHTTPClient,
		logger:  opts.withLogger,
	}, nil
}

// Hello calls GET /api/hello with the access token and returns the response
// body verbatim.  A non-2xx response is a *StatusError.
func (c *Client) Hello(ctx context.Context, token string) (string, error) {
	const op = "Client.Hello"
	if token == "" {
		return "", fmt.Errorf("%s: %w", op, ErrMissingToken)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/hello", nil)
	if err != nil {
		return "", fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("%s: unable to read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("api call failed", "status", resp.StatusCode)
		return "", fmt.Errorf("%s: %w", op, &StatusError{StatusCode: resp.StatusCode})
	}
	return string(body), nil
}
