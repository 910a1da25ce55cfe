package liveness_test

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firma/internal/liveness"
	"firma/internal/models"
	"firma/internal/testutil"
)

type recordingDetector struct {
	faces  int
	err    error
	bounds image.Rectangle
	params liveness.Params
}

func (d *recordingDetector) Detect(img *image.Gray, p liveness.Params) (int, error) {
	d.bounds = img.Bounds()
	d.params = p
	if d.err != nil {
		return 0, d.err
	}
	return d.faces, nil
}

func TestHasFace(t *testing.T) {
	det := &recordingDetector{faces: 2}
	checker := liveness.NewChecker(det, liveness.DefaultParams())

	ok, err := checker.HasFace(testutil.TinyPNG())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1.1, det.params.ScaleFactor)
	assert.Equal(t, 4, det.params.MinNeighbors)
}

func TestHasFaceNoFace(t *testing.T) {
	checker := liveness.NewChecker(&testutil.StubDetector{Faces: 0}, liveness.DefaultParams())

	ok, err := checker.HasFace(testutil.TinyPNG())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasFaceDecodesJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10)), nil))

	checker := liveness.NewChecker(&testutil.StubDetector{Faces: 1}, liveness.DefaultParams())
	ok, err := checker.HasFace(buf.Bytes())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasFaceCheckFailures(t *testing.T) {
	checker := liveness.NewChecker(&testutil.StubDetector{Faces: 1}, liveness.DefaultParams())

	assertFailed := func(data []byte) {
		t.Helper()
		_, err := checker.HasFace(data)
		var appErr *models.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, models.CodeLivenessFailed, appErr.Code)
	}

	assertFailed(nil)
	assertFailed([]byte("not an image"))

	broken := liveness.NewChecker(&testutil.StubDetector{Err: errors.New("engine down")}, liveness.DefaultParams())
	_, err := broken.HasFace(testutil.TinyPNG())
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeLivenessFailed, appErr.Code)
}

func TestLargeImagesAreDownscaled(t *testing.T) {
	// A wide image larger than the detection bound must be shrunk before
	// it reaches the detector.
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2048, 512)), &jpeg.Options{Quality: 30}))

	det := &recordingDetector{faces: 1}
	checker := liveness.NewChecker(det, liveness.DefaultParams())
	_, err := checker.HasFace(buf.Bytes())
	require.NoError(t, err)

	assert.LessOrEqual(t, det.bounds.Dx(), 1024)
	assert.LessOrEqual(t, det.bounds.Dy(), 1024)
	// Aspect ratio roughly preserved.
	assert.Equal(t, 1024, det.bounds.Dx())
	assert.Equal(t, 256, det.bounds.Dy())
}
