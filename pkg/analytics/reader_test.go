package analytics_test

import (
	"context"
	"testing"

	"github.com/harun/trackd/pkg/analytics"
	"github.com/harun/trackd/pkg/cache"
	"github.com/harun/trackd/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_Latest(t *testing.T) {
	ctx := context.Background()

	t.Run("no data yet", func(t *testing.T) {
		_, err := analytics.NewReader(cache.NewMemory(), "").Latest(ctx)
		assert.ErrorIs(t, err, analytics.ErrNoDataYet)
	})

	t.Run("returns cached payload", func(t *testing.T) {
		c := cache.NewMemory()
		require.NoError(t, c.Set(ctx, "metrics", []byte(`{"id":"01HX","computedAt":"2024-05-01T10:30:00Z","metrics":{"uniqueUsers":5,"uniqueUsersWithObjectInView":2}}`)))

		snap, err := analytics.NewReader(c, "metrics").Latest(ctx)
		require.NoError(t, err)
		assert.Equal(t, "01HX", snap.ID)
		assert.Equal(t, int64(5), snap.Metrics["uniqueUsers"])
		assert.Equal(t, int64(2), snap.Metrics["uniqueUsersWithObjectInView"])
	})

	t.Run("undecodable payload", func(t *testing.T) {
		c := cache.NewMemory()
		require.NoError(t, c.Set(ctx, "metrics", []byte("not json")))

		_, err := analytics.NewReader(c, "").Latest(ctx)
		assert.ErrorIs(t, err, storage.ErrUnavailable)
		assert.NotErrorIs(t, err, analytics.ErrNoDataYet)
	})

	t.Run("cache failure", func(t *testing.T) {
		_, err := analytics.NewReader(failingCache{}, "").Latest(ctx)
		assert.ErrorIs(t, err, storage.ErrUnavailable)
	})
}
