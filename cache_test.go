// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff_test

import (
	"os"
	"testing"

	"github.com/doeffvm/doeff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *doeff.Cache {
	t.Helper()
	dir, err := os.MkdirTemp("", "doeff-cache-unit-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	c, err := doeff.OpenCache(dir)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCacheGetMissingKeyReturnsFalse(t *testing.T) {
	c := openTestCache(t)
	v, ok, err := c.Get("absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestCacheSetThenGetRoundTripsCompressed(t *testing.T) {
	c := openTestCache(t)
	require.NoError(t, c.Set("k", []byte("hello world")))

	v, ok, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello world"), v)
}

func TestCacheSetOverwritesPriorValue(t *testing.T) {
	c := openTestCache(t)
	require.NoError(t, c.Set("k", []byte("first")))
	require.NoError(t, c.Set("k", []byte("second")))

	v, ok, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), v)
}

func TestCacheHandlesEmptyValue(t *testing.T) {
	c := openTestCache(t)
	require.NoError(t, c.Set("empty", []byte{}))

	v, ok, err := c.Get("empty")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, v)
}

func TestOpenCacheCreatesMissingDir(t *testing.T) {
	dir, err := os.MkdirTemp("", "doeff-cache-parent-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	nested := dir + "/nested/cache/dir"
	c, err := doeff.OpenCache(nested)
	require.NoError(t, err)
	defer c.Close()

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCacheKeysWithSameContentDoNotCollideAcrossKeys(t *testing.T) {
	c := openTestCache(t)
	require.NoError(t, c.Set("key-one", []byte("payload")))
	require.NoError(t, c.Set("key-two", []byte("payload")))

	v1, ok1, err := c.Get("key-one")
	require.NoError(t, err)
	require.True(t, ok1)
	v2, ok2, err := c.Get("key-two")
	require.NoError(t, err)
	require.True(t, ok2)
	assert.Equal(t, v1, v2)

	require.NoError(t, c.Set("key-one", []byte("changed")))
	v1Again, _, err := c.Get("key-one")
	require.NoError(t, err)
	assert.Equal(t, []byte("changed"), v1Again)
	v2Unchanged, _, err := c.Get("key-two")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), v2Unchanged, "a different key must not be affected by another key's write")
}
