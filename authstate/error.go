// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authstate

import "errors"

var (
	ErrNilParameter        = errors.New("nil parameter")
	ErrAlreadyBootstrapped = errors.New("already bootstrapped")
	ErrClosed              = errors.New("state cell is closed")
)
