package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-rebalance/internal/contracts"
)

func TestCache_SetGet(t *testing.T) {
	c, err := New(16, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	out := &contracts.Outcome{RunID: "run-1", Status: contracts.StatusReady}
	c.Set("hash-1", out)

	got, ok := c.Get("hash-1")
	require.True(t, ok)
	assert.Same(t, out, got)

	_, ok = c.Get("hash-2")
	assert.False(t, ok)

	c.Del("hash-1")
	_, ok = c.Get("hash-1")
	assert.False(t, ok)
}

func TestCache_Expires(t *testing.T) {
	c, err := New(16, 20*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	c.Set("hash-1", &contracts.Outcome{RunID: "run-1"})
	time.Sleep(50 * time.Millisecond)

	_, ok := c.Get("hash-1")
	assert.False(t, ok)
}

func TestCache_NilIsDisabled(t *testing.T) {
	var c *Cache
	c.Set("hash-1", &contracts.Outcome{})
	_, ok := c.Get("hash-1")
	assert.False(t, ok)
	c.Del("hash-1")
	c.Close()
}
