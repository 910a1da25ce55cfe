package cache

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/chai2010/webp"
)

const (
	previewKeyPrefix = "preview:%s:%d"
	previewTTL       = 15 * time.Minute

	previewQuality = 80
)

// PreviewContentType is the MIME type of cached preview images.
const PreviewContentType = "image/webp"

func previewKey(requestID string, page int) string {
	return fmt.Sprintf(previewKeyPrefix, requestID, page)
}

// EncodePreview compresses a rendered page for the preview cache. Previews
// are lossy on purpose: the signer reviews content, not print fidelity.
func EncodePreview(img image.Image) ([]byte, error) {
	return webp.EncodeRGB(img, previewQuality)
}

// GetPreview returns the cached preview image, or nil on miss or when
// caching is disabled.
func GetPreview(ctx context.Context, requestID string, page int) []byte {
	if client == nil {
		return nil
	}
	data, err := client.Get(ctx, previewKey(requestID, page)).Bytes()
	if err != nil {
		return nil
	}
	return data
}

// SetPreview stores a preview image with the preview TTL. Best effort.
func SetPreview(ctx context.Context, requestID string, page int, data []byte) {
	if client == nil {
		return
	}
	client.Set(ctx, previewKey(requestID, page), data, previewTTL)
}

// InvalidatePreviews drops every cached preview page of a request.
func InvalidatePreviews(ctx context.Context, requestID string, pageCount int) {
	if client == nil {
		return
	}
	for i := 0; i < pageCount; i++ {
		client.Del(ctx, previewKey(requestID, i))
	}
}
