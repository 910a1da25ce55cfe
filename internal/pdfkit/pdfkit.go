// Package pdfkit implements the document-assembly pipeline: template
// overlay, page rasterization, audit-page generation and final assembly.
//
// The PDF primitives themselves (parsing, drawing, merging, rendering) are
// capability interfaces supplied by a collaborator toolkit; this package
// only composes them.
package pdfkit

import (
	"image"
)

// Letter page size in PDF points.
const (
	LetterWidth  = 612.0
	LetterHeight = 792.0
)

// Document is a parsed paginated document produced by an Engine.
type Document interface {
	// PageCount returns the number of pages.
	PageCount() int
	// PageSize returns the size of the zero-based page in points.
	PageSize(page int) (width, height float64)
}

// Canvas accumulates drawing operations for a fresh single-page document.
type Canvas interface {
	// SetFont selects the font for subsequent Text calls.
	SetFont(name string, size float64)
	// Text draws a string with its baseline anchored at (x, y).
	Text(x, y float64, text string)
	// Image draws encoded image data into the box anchored at (x, y),
	// preserving aspect ratio within maxWidth x maxHeight. Implementations
	// must tolerate images with transparency.
	Image(data []byte, x, y, maxWidth, maxHeight float64) error
	// Doc finalizes the canvas into a single-page document.
	Doc() (Document, error)
}

// Engine provides the PDF primitives the pipeline composes.
type Engine interface {
	// Open parses a serialized document.
	Open(data []byte) (Document, error)
	// NewCanvas creates a blank page of the given size.
	NewCanvas(width, height float64) Canvas
	// MergePage returns a single-page document containing the overlay's
	// first page drawn on top of the base's zero-based page. Base content
	// underneath is preserved.
	MergePage(base Document, page int, overlay Document) (Document, error)
	// ExtractPage returns a single-page document containing the base's
	// zero-based page unchanged.
	ExtractPage(base Document, page int) (Document, error)
	// Concat returns a document holding all pages of parts, in order.
	Concat(parts ...Document) (Document, error)
	// RenderPage rasterizes the zero-based page to an image.
	RenderPage(doc Document, page int) (image.Image, error)
	// Marshal serializes a document to bytes.
	Marshal(doc Document) ([]byte, error)
}
