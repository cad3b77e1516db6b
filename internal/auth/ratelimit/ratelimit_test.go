package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowRefills(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("k", 3), "request %d", i)
	}
	assert.False(t, l.Allow("k", 3))
	assert.True(t, l.Allow("other", 3))

	now = now.Add(30 * time.Second)
	assert.True(t, l.Allow("k", 3))
	assert.False(t, l.Allow("k", 3))

	assert.True(t, l.Allow("free", 0))
}

func TestEvictIdle(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(time.Second)
	l.now = func() time.Time { return now }
	l.Allow("a", 1)
	now = now.Add(time.Second)
	l.Allow("b", 1)
	now = now.Add(1500 * time.Millisecond)
	l.evictIdle()
	assert.Equal(t, 1, l.Len())

	l.Reset("b")
	assert.Zero(t, l.Len())
}
