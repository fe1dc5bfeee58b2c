package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/trendbrief/internal/model"
)

func TestCacheKey(t *testing.T) {
	a := CacheKey(model.SourceKindRSS, "https://example.com/feed")
	b := CacheKey(model.SourceKindHTML, "https://example.com/feed")

	assert.True(t, strings.HasPrefix(a, "trendbrief:v1:"))
	assert.NotEqual(t, a, b, "kind must participate in the key")
	assert.Equal(t, a, CacheKey(model.SourceKindRSS, "https://example.com/feed"))
}

func TestNew(t *testing.T) {
	assert.Nil(t, New(model.CacheConfig{Enabled: false}))
	assert.IsType(t, &MemoryCache{}, New(model.CacheConfig{Enabled: true, TTL: time.Minute}))
	assert.IsType(t, &LayeredCache{}, New(model.CacheConfig{Enabled: true, TTL: time.Minute, Dir: t.TempDir()}))
}

func TestItemsRoundTrip(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	items := []model.RawItem{{Title: "A", URL: "https://a", Rank: 1}}

	require.NoError(t, SetItems(c, "k", items, 0))
	got, ok := GetItems(c, "k")
	require.True(t, ok)
	assert.Equal(t, items, got)

	_, ok = GetItems(c, "missing")
	assert.False(t, ok)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	value := []byte("abc")
	require.NoError(t, c.Set("k", value, 0))
	value[0] = 'z'

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, 1, c.Len())
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(CacheKey(model.SourceKindRSS, "u"), []byte("payload"), 0))
	got, ok := c.Get(CacheKey(model.SourceKindRSS, "u"))
	require.True(t, ok)
	assert.Equal(t, "payload", string(got))

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok = c.Get(CacheKey(model.SourceKindRSS, "u"))
	assert.False(t, ok)

	assert.NoError(t, c.Delete("never-set"))
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	layered := NewLayeredCache(time.Minute, dir, time.Minute)
	require.NoError(t, layered.Set("k", []byte("v"), 0))

	fresh := NewLayeredCache(time.Minute, dir, time.Minute)
	got, ok := fresh.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))

	mem, ok := fresh.memory.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(mem))

	require.NoError(t, fresh.Delete("k"))
	_, ok = fresh.Get("k")
	assert.False(t, ok)
}
