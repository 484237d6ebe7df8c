// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"net/http"
)

// CallbackParams are the parameters the provider sends to the client's
// redirect URL at the end of an authentication attempt.  Either Code or
// Error is set.
type CallbackParams struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
	ErrorURI         string
}

// CallbackParamsFromRequest reads the callback parameters from either the
// body or query parameters.  FormValue prioritizes body values, if found.
func CallbackParamsFromRequest(req *http.Request) CallbackParams {
	return CallbackParams{
		State:            req.FormValue("state"),
		Code:             req.FormValue("code"),
		Error:            req.FormValue("error"),
		ErrorDescription: req.FormValue("error_description"),
		ErrorURI:         req.FormValue("error_uri"),
	}
}

// ProviderError returns the provider's error response, or nil when the
// callback carries an authorization code.
func (p CallbackParams) ProviderError() *ProviderError {
	if p.Error == "" {
		return nil
	}
	return &ProviderError{
		Code:        p.Error,
		Description: p.ErrorDescription,
		URI:         p.ErrorURI,
	}
}
