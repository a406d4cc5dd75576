package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrComputeCachesWithinTTL(t *testing.T) {
	c := New(16, time.Minute)
	key := Key{Route: "index", Session: "s1", Page: 1}

	calls := 0
	compute := func() ([]byte, error) {
		calls++
		return []byte("rendering"), nil
	}

	first, hit, err := c.GetOrCompute(key, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	// the underlying data may have changed; the cached bytes must not
	second, hit, err := c.GetOrCompute(key, func() ([]byte, error) {
		calls++
		return []byte("changed"), nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestKeysAreIsolated(t *testing.T) {
	c := New(16, time.Minute)

	a, _, err := c.GetOrCompute(Key{Route: "index", Session: "a", Page: 1}, func() ([]byte, error) {
		return []byte("for a"), nil
	})
	require.NoError(t, err)

	b, hit, err := c.GetOrCompute(Key{Route: "index", Session: "b", Page: 1}, func() ([]byte, error) {
		return []byte("for b"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotEqual(t, a, b)

	p2, hit, err := c.GetOrCompute(Key{Route: "index", Session: "a", Page: 2}, func() ([]byte, error) {
		return []byte("page two"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotEqual(t, a, p2)
}

func TestExpiryRecomputes(t *testing.T) {
	c := New(16, 50*time.Millisecond)
	key := Key{Route: "index", Session: "s", Page: 1}

	value := "before"
	compute := func() ([]byte, error) { return []byte(value), nil }

	first, _, err := c.GetOrCompute(key, compute)
	require.NoError(t, err)

	value = "after"
	time.Sleep(120 * time.Millisecond)

	second, hit, err := c.GetOrCompute(key, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotEqual(t, first, second)
}

func TestPurge(t *testing.T) {
	c := New(16, time.Minute)
	key := Key{Route: "index", Session: "s", Page: 1}

	value := "before"
	compute := func() ([]byte, error) { return []byte(value), nil }

	_, _, err := c.GetOrCompute(key, compute)
	require.NoError(t, err)

	value = "after"
	c.Purge()

	got, hit, err := c.GetOrCompute(key, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("after"), got)
}

func TestComputeErrorIsNotCached(t *testing.T) {
	c := New(16, time.Minute)
	key := Key{Route: "index", Session: "s", Page: 1}

	_, _, err := c.GetOrCompute(key, func() ([]byte, error) {
		return nil, errors.New("boom")
	})
	assert.Error(t, err)

	got, hit, err := c.GetOrCompute(key, func() ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("ok"), got)
}
