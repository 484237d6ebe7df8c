// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package claims

import "errors"

// ErrMalformedToken is returned when a token's payload can't be decoded.
var ErrMalformedToken = errors.New("malformed token")
