// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package apiclient

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrMissingToken     = errors.New("missing access token")
)

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
}

// Error returns the message shown to the end-user.
func (e *StatusError) Error() string {
	return fmt.Sprintf("Request failed with status %d", e.StatusCode)
}
