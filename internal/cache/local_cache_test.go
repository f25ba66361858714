package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalCache_SetGetExpire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewLocalCache[int](ctx, 10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", 1, 0)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLocalCache_MaxSize(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewLocalCache[string](ctx, 2, time.Minute)
	c.Set("a", "1", 0)
	c.Set("b", "2", 0)
	c.Set("c", "3", 0)

	_, ok := c.Get("c")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	// 已存在的键可以覆盖
	c.Set("a", "updated", 0)
	v, _ := c.Get("a")
	assert.Equal(t, "updated", v)
}

func TestLocalCache_PurgeExpired(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewLocalCache[int](ctx, 0, time.Second)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("a", 1, 0)
	c.Set("b", 2, time.Hour)

	now = now.Add(time.Minute)
	c.purgeExpired()

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("b")
	assert.True(t, ok)
}
