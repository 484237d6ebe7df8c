// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		opt        []Option
		wantPrefix string
		wantLen    int
	}{
		{
			name:    "no-prefix",
			wantLen: DefaultIDLength,
		},
		{
			name:       "with-prefix",
			opt:        []Option{WithPrefix("st")},
			wantPrefix: "st_",
			wantLen:    DefaultIDLength + len("st_"),
		},
		{
			name:       "with-blank-prefix",
			opt:        []Option{WithPrefix("  ")},
			wantPrefix: "",
			wantLen:    DefaultIDLength,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewID(tt.opt...)
			require.NoError(err)
			assert.Len(got, tt.wantLen)
			assert.True(strings.HasPrefix(got, tt.wantPrefix))

			another, err := NewID(tt.opt...)
			require.NoError(err)
			assert.NotEqual(got, another)
		})
	}
}
