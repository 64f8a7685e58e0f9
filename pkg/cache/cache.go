// Package cache stores distinct-value probe samples so repeated diagnoses of
// the same field do not re-query the data store.
package cache

import (
	"context"
	"strings"
)

// ProbeCache holds probe samples keyed by ProbeKey.
// Implementations are safe for concurrent use. A failing backend behaves as a miss.
type ProbeCache interface {
	Get(ctx context.Context, key string) ([]string, bool)
	Set(ctx context.Context, key string, values []string)
}

// ProbeKey builds the cache key for a probed column.
func ProbeKey(dialect, table, column string) string {
	return strings.ToLower(dialect + ":" + table + "." + column)
}

// NopProbeCache never stores anything.
type NopProbeCache struct{}

var _ ProbeCache = NopProbeCache{}

func (NopProbeCache) Get(context.Context, string) ([]string, bool) { return nil, false }
func (NopProbeCache) Set(context.Context, string, []string) {}
