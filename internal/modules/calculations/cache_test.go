package calculations

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-optimizer/internal/database"
	testhelpers "portfolio-optimizer/internal/testing"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	db := testhelpers.NewTestDB(t, "cache", database.ProfileCache)
	c := NewCache(db.Conn(), zerolog.Nop())
	require.NoError(t, c.InitSchema())
	return c
}

type cachedStats struct {
	Mean map[string]float64 `msgpack:"mean"`
	Cov  [][]float64        `msgpack:"cov"`
}

func TestCache_SetGetRoundtrip(t *testing.T) {
	c := newTestCache(t)

	stored := cachedStats{
		Mean: map[string]float64{"AAA": 0.12, "BBB": 0.08},
		Cov:  [][]float64{{0.04, 0.01}, {0.01, 0.03}},
	}
	require.NoError(t, c.Set("statistics", "key1", stored, time.Hour))

	var got cachedStats
	require.True(t, c.Get("statistics", "key1", &got))
	assert.Equal(t, stored.Mean, got.Mean)
	assert.Equal(t, stored.Cov, got.Cov)
}

func TestCache_MissOnUnknownKey(t *testing.T) {
	c := newTestCache(t)

	var got cachedStats
	assert.False(t, c.Get("statistics", "nope", &got))
}

func TestCache_ExpiredEntryIsMiss(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Set("statistics", "key1", cachedStats{}, -time.Second))

	var got cachedStats
	assert.False(t, c.Get("statistics", "key1", &got))
}

func TestCache_NamespacesAreIsolated(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Set("a", "key", cachedStats{Mean: map[string]float64{"X": 1}}, time.Hour))

	var got cachedStats
	assert.False(t, c.Get("b", "key", &got))
	assert.True(t, c.Get("a", "key", &got))
}

func TestCache_DeleteByPrefix(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Set("statistics", "k1", cachedStats{}, time.Hour))
	require.NoError(t, c.Set("statistics", "k2", cachedStats{}, time.Hour))
	require.NoError(t, c.Set("other", "k1", cachedStats{}, time.Hour))

	require.NoError(t, c.DeleteByPrefix("statistics"))

	var got cachedStats
	assert.False(t, c.Get("statistics", "k1", &got))
	assert.False(t, c.Get("statistics", "k2", &got))
	assert.True(t, c.Get("other", "k1", &got))
}

func TestCache_PruneExpired(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Set("ns", "live", cachedStats{}, time.Hour))
	require.NoError(t, c.Set("ns", "dead", cachedStats{}, -time.Second))

	pruned, err := c.PruneExpired()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	var got cachedStats
	assert.True(t, c.Get("ns", "live", &got))
}

func TestHashTickers_OrderIndependent(t *testing.T) {
	h1 := HashTickers([]string{"AAA", "BBB", "CCC"})
	h2 := HashTickers([]string{"CCC", "AAA", "BBB"})
	h3 := HashTickers([]string{"AAA", "BBB"})

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}
