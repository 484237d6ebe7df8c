// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("take-once", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		rc := NewRequestCache()
		r, err := NewRequest(time.Minute)
		require.NoError(err)
		rc.Add(r)
		assert.Equal(1, rc.Len())

		got, err := rc.Take(ctx, r.ID())
		require.NoError(err)
		assert.Equal(r, got)
		assert.Equal(0, rc.Len())

		_, err = rc.Take(ctx, r.ID())
		assert.ErrorIs(err, ErrNotFound)
	})
	t.Run("unknown-state", func(t *testing.T) {
		rc := NewRequestCache()
		_, err := rc.Take(ctx, "st_unknown")
		assert.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("expired", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		now := time.Now()
		current := now
		testNow := func() time.Time { return current }
		rc := NewRequestCache()

		expired, err := NewRequest(time.Minute, WithNow(testNow))
		require.NoError(err)
		rc.Add(expired)
		current = now.Add(time.Hour)

		_, err = rc.Take(ctx, expired.ID())
		assert.ErrorIs(err, ErrExpiredRequest)
		assert.Equal(0, rc.Len())
	})
	t.Run("add-prunes-expired", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		now := time.Now()
		current := now
		testNow := func() time.Time { return current }
		rc := NewRequestCache()

		old, err := NewRequest(time.Minute, WithNow(testNow))
		require.NoError(err)
		rc.Add(old)
		current = now.Add(time.Hour)

		fresh, err := NewRequest(time.Minute, WithNow(testNow))
		require.NoError(err)
		rc.Add(fresh)
		assert.Equal(1, rc.Len())
		_, err = rc.Take(ctx, fresh.ID())
		assert.NoError(err)
	})
}
