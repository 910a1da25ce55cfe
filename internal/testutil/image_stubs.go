package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"firma/internal/liveness"
)

// StubDetector is a liveness.Detector returning a fixed face count or error.
type StubDetector struct {
	Faces int
	Err   error
}

// Detect returns the configured result.
func (d *StubDetector) Detect(_ *image.Gray, _ liveness.Params) (int, error) {
	if d.Err != nil {
		return 0, d.Err
	}
	return d.Faces, nil
}

// TinyPNG returns a small valid PNG for upload fixtures.
func TinyPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
