package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/models"
)

func newTestCache(t *testing.T, ttl time.Duration) (*ResultCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, ttl, zap.NewNop()), mr
}

func TestKey_NormalizesQuestion(t *testing.T) {
	assert.Equal(t, "nl2sql:acme:how many incidents?", Key("acme", "  How Many Incidents?  "))
	assert.Equal(t, Key("acme", "count rows"), Key("acme", "COUNT ROWS"))
	assert.NotEqual(t, Key("acme", "count rows"), Key("other", "count rows"))
}

func TestGetSet_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	resp := &models.ChatResponse{
		Mode:    models.ModeSQLAndSummary,
		Summary: "3 open incidents",
		SQL:     "select count(*) from incidents;",
		Dataframe: &models.DataFrame{
			Columns: []string{"count"},
			Rows:    []map[string]any{{"count": float64(3)}},
		},
	}

	key := Key("acme", "how many incidents?")
	c.Set(ctx, key, resp)

	got, hit := c.Get(ctx, key)
	require.True(t, hit)
	assert.Equal(t, resp.Summary, got.Summary)
	assert.Equal(t, resp.SQL, got.SQL)
	require.NotNil(t, got.Dataframe)
	assert.Equal(t, resp.Dataframe.Rows, got.Dataframe.Rows)
}

func TestGet_MissesAfterTTL(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	key := Key("acme", "q")
	c.Set(ctx, key, &models.ChatResponse{Mode: models.ModeSummaryOnly, Summary: "s"})

	_, hit := c.Get(ctx, key)
	require.True(t, hit)

	mr.FastForward(2 * time.Minute)
	_, hit = c.Get(ctx, key)
	assert.False(t, hit)
}

func TestGet_TreatsRedisFaultAsMiss(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	key := Key("acme", "q")
	c.Set(ctx, key, &models.ChatResponse{Mode: models.ModeSummaryOnly, Summary: "s"})
	mr.Close()

	_, hit := c.Get(ctx, key)
	assert.False(t, hit)
}

func TestDisabledCache_NeverHits(t *testing.T) {
	c := New(nil, time.Minute, zap.NewNop())
	ctx := context.Background()

	assert.False(t, c.Enabled())
	c.Set(ctx, Key("acme", "q"), &models.ChatResponse{Mode: models.ModeSummaryOnly})
	_, hit := c.Get(ctx, Key("acme", "q"))
	assert.False(t, hit)
}
