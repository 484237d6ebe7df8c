// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCell(t *testing.T) {
	t.Parallel()

	t.Run("load-store", func(t *testing.T) {
		assert := assert.New(t)
		c := NewCell(1)
		assert.Equal(1, c.Load())
		assert.True(c.Store(2))
		assert.Equal(2, c.Load())
	})
	t.Run("subscribers-in-order", func(t *testing.T) {
		assert := assert.New(t)
		c := NewCell("")
		var got []string
		c.Subscribe(func(v string) { got = append(got, "a:"+v) })
		c.Subscribe(func(v string) { got = append(got, "b:"+v) })
		c.Store("1")
		c.Store("2")
		assert.Equal([]string{"a:1", "b:1", "a:2", "b:2"}, got)
	})
	t.Run("subscriber-can-load", func(t *testing.T) {
		c := NewCell(0)
		var loaded int
		c.Subscribe(func(int) { loaded = c.Load() })
		c.Store(7)
		assert.Equal(t, 7, loaded)
	})
	t.Run("unsubscribe", func(t *testing.T) {
		assert := assert.New(t)
		c := NewCell(0)
		var a, b int
		unsubscribeA := c.Subscribe(func(v int) { a = v })
		c.Subscribe(func(v int) { b = v })
		c.Store(1)
		unsubscribeA()
		unsubscribeA()
		c.Store(2)
		assert.Equal(1, a)
		assert.Equal(2, b)
	})
	t.Run("close", func(t *testing.T) {
		assert := assert.New(t)
		c := NewCell(0)
		var calls int
		c.Subscribe(func(int) { calls++ })
		c.Close()
		c.Close()
		assert.False(c.Store(1))
		assert.Equal(0, c.Load())
		assert.Equal(0, calls)
		select {
		case <-c.Done():
		default:
			assert.Fail("Done not closed")
		}

		c.Subscribe(func(int) { calls++ })
		assert.False(c.Store(2))
		assert.Equal(0, calls)
	})
	t.Run("nil-subscriber", func(t *testing.T) {
		c := NewCell(0)
		unsubscribe := c.Subscribe(nil)
		assert.True(t, c.Store(1))
		unsubscribe()
	})
	t.Run("concurrent-stores-deliver-serially", func(t *testing.T) {
		assert := assert.New(t)
		c := NewCell(0)
		var (
			mu        sync.Mutex
			inFlight  int
			overlap   bool
			delivered int
		)
		c.Subscribe(func(int) {
			mu.Lock()
			inFlight++
			if inFlight > 1 {
				overlap = true
			}
			mu.Unlock()

			mu.Lock()
			inFlight--
			delivered++
			mu.Unlock()
		})
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c.Store(i)
			}(i)
		}
		wg.Wait()
		assert.False(overlap)
		assert.Equal(50, delivered)
	})
}
