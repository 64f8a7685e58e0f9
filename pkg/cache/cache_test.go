package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProbeKey(t *testing.T) {
	assert.Equal(t, "mysql:student.status", ProbeKey("mysql", "Student", "STATUS"))
}

func TestMemoryProbeCache_SetGet(t *testing.T) {
	c := NewMemoryProbeCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	values := []string{"在读", "休学"}
	c.Set(ctx, "k", values)
	values[0] = "mutated"

	got, ok := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []string{"在读", "休学"}, got)
}

func TestMemoryProbeCache_Expires(t *testing.T) {
	c := NewMemoryProbeCache(20 * time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", []string{"v"})
	assert.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestNopProbeCache(t *testing.T) {
	var c ProbeCache = NopProbeCache{}
	c.Set(context.Background(), "k", []string{"v"})
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}
