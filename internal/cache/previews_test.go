package cache

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { SetClient(nil) })
	return mr
}

func TestPreviewRoundTrip(t *testing.T) {
	setupMiniredis(t)
	ctx := context.Background()

	assert.Nil(t, GetPreview(ctx, "req-1", 0))

	SetPreview(ctx, "req-1", 0, []byte("webp-bytes"))
	assert.Equal(t, []byte("webp-bytes"), GetPreview(ctx, "req-1", 0))

	// Pages are independent keys.
	assert.Nil(t, GetPreview(ctx, "req-1", 1))
	assert.Nil(t, GetPreview(ctx, "req-2", 0))
}

func TestPreviewExpiry(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	SetPreview(ctx, "req-1", 0, []byte("webp-bytes"))
	mr.FastForward(previewTTL + time.Second)
	assert.Nil(t, GetPreview(ctx, "req-1", 0))
}

func TestInvalidatePreviews(t *testing.T) {
	setupMiniredis(t)
	ctx := context.Background()

	SetPreview(ctx, "req-1", 0, []byte("a"))
	SetPreview(ctx, "req-1", 1, []byte("b"))
	InvalidatePreviews(ctx, "req-1", 2)

	assert.Nil(t, GetPreview(ctx, "req-1", 0))
	assert.Nil(t, GetPreview(ctx, "req-1", 1))
}

func TestPreviewDisabledClient(t *testing.T) {
	SetClient(nil)
	ctx := context.Background()

	// All operations are safe no-ops without Redis.
	SetPreview(ctx, "req-1", 0, []byte("a"))
	assert.Nil(t, GetPreview(ctx, "req-1", 0))
	InvalidatePreviews(ctx, "req-1", 1)
}

func TestEncodePreview(t *testing.T) {
	data, err := EncodePreview(image.NewRGBA(image.Rect(0, 0, 16, 16)))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	// RIFF container magic.
	assert.Equal(t, "RIFF", string(data[:4]))
}
