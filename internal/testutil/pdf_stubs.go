// Package testutil provides shared test doubles and fixtures for workflow tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"image"

	"firma/internal/pdfkit"
)

// FakeOp records one drawing operation on a fake canvas.
type FakeOp struct {
	Kind     string  `json:"kind"` // "text" or "image"
	Text     string  `json:"text,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Font     string  `json:"font,omitempty"`
	FontSize float64 `json:"font_size,omitempty"`
	ImageLen int     `json:"image_len,omitempty"`
}

// FakePage is one page of a fake document.
type FakePage struct {
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
	Ops    []FakeOp `json:"ops"`
}

// FakeDoc is an in-memory document with a deterministic byte encoding, so
// tests can assert on page counts, drawn content and byte identity.
type FakeDoc struct {
	Pages []FakePage `json:"pages"`
}

// PageCount returns the number of pages.
func (d *FakeDoc) PageCount() int { return len(d.Pages) }

// PageSize returns the page dimensions.
func (d *FakeDoc) PageSize(page int) (float64, float64) {
	return d.Pages[page].Width, d.Pages[page].Height
}

// Texts returns every text drawn on the zero-based page, in draw order.
func (d *FakeDoc) Texts(page int) []string {
	var out []string
	for _, op := range d.Pages[page].Ops {
		if op.Kind == "text" {
			out = append(out, op.Text)
		}
	}
	return out
}

// Images returns the byte lengths of images drawn on the zero-based page.
func (d *FakeDoc) Images(page int) []int {
	var out []int
	for _, op := range d.Pages[page].Ops {
		if op.Kind == "image" {
			out = append(out, op.ImageLen)
		}
	}
	return out
}

type fakeCanvas struct {
	page     FakePage
	font     string
	fontSize float64
}

func (c *fakeCanvas) SetFont(name string, size float64) {
	c.font = name
	c.fontSize = size
}

func (c *fakeCanvas) Text(x, y float64, text string) {
	c.page.Ops = append(c.page.Ops, FakeOp{
		Kind: "text", Text: text, X: x, Y: y, Font: c.font, FontSize: c.fontSize,
	})
}

func (c *fakeCanvas) Image(data []byte, x, y, maxWidth, maxHeight float64) error {
	if len(data) == 0 {
		return fmt.Errorf("empty image data")
	}
	c.page.Ops = append(c.page.Ops, FakeOp{Kind: "image", X: x, Y: y, ImageLen: len(data)})
	return nil
}

func (c *fakeCanvas) Doc() (pdfkit.Document, error) {
	return &FakeDoc{Pages: []FakePage{c.page}}, nil
}

// FakeEngine is a pdfkit.Engine whose documents are JSON blobs. Failure
// switches let tests exercise error paths.
type FakeEngine struct {
	FailOpen   bool
	FailRender bool
	FailMerge  bool
}

// Open parses a fake document.
func (e *FakeEngine) Open(data []byte) (pdfkit.Document, error) {
	if e.FailOpen {
		return nil, fmt.Errorf("open failure injected")
	}
	var doc FakeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("not a fake document: %w", err)
	}
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	return &doc, nil
}

// NewCanvas creates a blank fake page.
func (e *FakeEngine) NewCanvas(width, height float64) pdfkit.Canvas {
	return &fakeCanvas{page: FakePage{Width: width, Height: height}}
}

// MergePage overlays the overlay's first page onto the base page.
func (e *FakeEngine) MergePage(base pdfkit.Document, page int, overlay pdfkit.Document) (pdfkit.Document, error) {
	if e.FailMerge {
		return nil, fmt.Errorf("merge failure injected")
	}
	b := base.(*FakeDoc)
	o := overlay.(*FakeDoc)
	merged := FakePage{
		Width:  b.Pages[page].Width,
		Height: b.Pages[page].Height,
	}
	merged.Ops = append(merged.Ops, b.Pages[page].Ops...)
	merged.Ops = append(merged.Ops, o.Pages[0].Ops...)
	return &FakeDoc{Pages: []FakePage{merged}}, nil
}

// ExtractPage copies a single page.
func (e *FakeEngine) ExtractPage(base pdfkit.Document, page int) (pdfkit.Document, error) {
	b := base.(*FakeDoc)
	if page < 0 || page >= len(b.Pages) {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	return &FakeDoc{Pages: []FakePage{b.Pages[page]}}, nil
}

// Concat joins the pages of all parts in order.
func (e *FakeEngine) Concat(parts ...pdfkit.Document) (pdfkit.Document, error) {
	var out FakeDoc
	for _, part := range parts {
		out.Pages = append(out.Pages, part.(*FakeDoc).Pages...)
	}
	return &out, nil
}

// RenderPage produces a small solid image whose bounds derive from the page size.
func (e *FakeEngine) RenderPage(doc pdfkit.Document, page int) (image.Image, error) {
	if e.FailRender {
		return nil, fmt.Errorf("render failure injected")
	}
	d := doc.(*FakeDoc)
	if page < 0 || page >= len(d.Pages) {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	w := int(d.Pages[page].Width / 8)
	h := int(d.Pages[page].Height / 8)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

// Marshal serializes a fake document deterministically.
func (e *FakeEngine) Marshal(doc pdfkit.Document) ([]byte, error) {
	return json.Marshal(doc.(*FakeDoc))
}

// FakePDF builds the serialized form of a fake document with the given
// number of letter-size pages.
func FakePDF(pages int) []byte {
	doc := FakeDoc{}
	for i := 0; i < pages; i++ {
		doc.Pages = append(doc.Pages, FakePage{
			Width:  pdfkit.LetterWidth,
			Height: pdfkit.LetterHeight,
			Ops:    []FakeOp{{Kind: "text", Text: fmt.Sprintf("page %d", i), X: 72, Y: 720}},
		})
	}
	data, _ := json.Marshal(&doc)
	return data
}

// MustOpen parses fake document bytes, panicking on malformed fixtures.
func MustOpen(data []byte) *FakeDoc {
	var doc FakeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		panic(err)
	}
	return &doc
}
