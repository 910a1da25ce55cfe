package pdfkit

import (
	"fmt"
	"image"

	"firma/internal/models"
)

// PageStream is a lazy, finite, restartable sequence of rendered pages.
// Pages are produced independently and in order; Reset restarts the
// sequence identically from the same parsed document.
type PageStream struct {
	engine Engine
	doc    Document
	next   int
}

// Rasterize parses the document and returns a stream of one image per page.
func Rasterize(e Engine, data []byte) (*PageStream, error) {
	doc, err := e.Open(data)
	if err != nil {
		return nil, models.NewRenderError(fmt.Errorf("open document for rasterization: %w", err))
	}
	return &PageStream{engine: e, doc: doc}, nil
}

// Len returns the total number of pages in the stream.
func (s *PageStream) Len() int {
	return s.doc.PageCount()
}

// Next renders the next page. ok is false once the sequence is exhausted.
func (s *PageStream) Next() (img image.Image, ok bool, err error) {
	if s.next >= s.doc.PageCount() {
		return nil, false, nil
	}
	img, renderErr := s.engine.RenderPage(s.doc, s.next)
	if renderErr != nil {
		return nil, false, models.NewRenderError(fmt.Errorf("render page %d: %w", s.next, renderErr))
	}
	s.next++
	return img, true, nil
}

// Reset restarts the sequence from the first page.
func (s *PageStream) Reset() {
	s.next = 0
}

// RenderAll is a convenience that drains the stream into a slice.
func (s *PageStream) RenderAll() ([]image.Image, error) {
	s.Reset()
	images := make([]image.Image, 0, s.Len())
	for {
		img, ok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return images, nil
		}
		images = append(images, img)
	}
}
