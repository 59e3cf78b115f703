package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDeduper(t *testing.T) {
	deduper := NewMemoryDeduper()
	defer deduper.Close()
	ctx := context.Background()

	t.Run("first sighting is fresh", func(t *testing.T) {
		first, err := deduper.MarkProcessed(ctx, "wamid.A", time.Minute)
		require.NoError(t, err)
		assert.True(t, first)
	})

	t.Run("second sighting is duplicate", func(t *testing.T) {
		first, err := deduper.MarkProcessed(ctx, "wamid.A", time.Minute)
		require.NoError(t, err)
		assert.False(t, first)
	})

	t.Run("distinct ids are independent", func(t *testing.T) {
		first, err := deduper.MarkProcessed(ctx, "wamid.B", time.Minute)
		require.NoError(t, err)
		assert.True(t, first)
	})

	t.Run("expired id is fresh again", func(t *testing.T) {
		first, err := deduper.MarkProcessed(ctx, "wamid.C", 10*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, first)

		time.Sleep(20 * time.Millisecond)

		first, err = deduper.MarkProcessed(ctx, "wamid.C", time.Minute)
		require.NoError(t, err)
		assert.True(t, first)
	})
}

func TestMemoryDeduperCloseIdempotent(t *testing.T) {
	deduper := NewMemoryDeduper()
	assert.NoError(t, deduper.Close())
	assert.NoError(t, deduper.Close())
}
