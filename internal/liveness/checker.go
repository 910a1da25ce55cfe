// Package liveness implements the selfie face-presence check. It is a
// presence heuristic only, not biometric identity verification.
package liveness

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder; mobile browsers upload webp selfies

	"firma/internal/models"
)

// Params tune the face detector. Fixed per deployment.
type Params struct {
	ScaleFactor  float64
	MinNeighbors int
}

// DefaultParams mirror the cascade settings the workflow was calibrated with.
func DefaultParams() Params {
	return Params{ScaleFactor: 1.1, MinNeighbors: 4}
}

// Detector finds faces in a grayscale image. Implementations wrap an
// external detection engine (e.g. a Haar cascade); tests use a stub.
type Detector interface {
	// Detect returns the number of faces found.
	Detect(img *image.Gray, p Params) (int, error)
}

// maxDetectSize bounds the image fed to the detector so the check cost is
// bounded by a constant rather than the upload size.
const maxDetectSize = 1024

// Checker runs the liveness check against submitted selfies.
type Checker struct {
	detector Detector
	params   Params
}

// NewChecker returns a Checker with the given detector and parameters.
func NewChecker(detector Detector, params Params) *Checker {
	return &Checker{detector: detector, params: params}
}

// HasFace reports whether at least one face is present in the encoded image.
// A clean zero-face result returns (false, nil); decode or engine failures
// return a LIVENESS_CHECK_FAILED error.
func (c *Checker) HasFace(data []byte) (bool, error) {
	if len(data) == 0 {
		return false, models.NewLivenessCheckFailedError(fmt.Errorf("empty image"))
	}

	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return false, models.NewLivenessCheckFailedError(fmt.Errorf("decode selfie: %w", err))
	}

	gray := toGray(decoded)

	count, err := c.detector.Detect(gray, c.params)
	if err != nil {
		return false, models.NewLivenessCheckFailedError(err)
	}
	return count > 0, nil
}

// toGray converts to grayscale, downscaling large images first.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if w > maxDetectSize || h > maxDetectSize {
		scale := float64(maxDetectSize) / float64(max(w, h))
		dw, dh := int(float64(w)*scale), int(float64(h)*scale)
		if dw < 1 {
			dw = 1
		}
		if dh < 1 {
			dh = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, dw, dh))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, b, xdraw.Over, nil)
		img = scaled
		b = scaled.Bounds()
	}

	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}
