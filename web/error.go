// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package web

import "errors"

var (
	ErrNilParameter     = errors.New("nil parameter")
	ErrInvalidParameter = errors.New("invalid parameter")
)
