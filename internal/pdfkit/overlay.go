package pdfkit

import (
	"fmt"

	"firma/internal/models"
)

// Fixed overlay layout for the bank-detail template: lines start at
// (80, 380) and descend in 20-point steps. Values are opaque display
// strings drawn at fixed coordinates; overly long values may visually
// overflow the template boxes.
const (
	overlayTextX     = 80.0
	overlayTextTopY  = 380.0
	overlayLineStep  = 20.0
	overlayFontName  = "Helvetica"
	overlayFontSize  = 10.0
)

// FillTemplate draws the template data as fixed-position text lines onto a
// blank page sized to the template's first page, merges that overlay on top
// of page one, and appends the remaining template pages unchanged.
func FillTemplate(e Engine, template []byte, data map[string]string) ([]byte, error) {
	tpl, err := e.Open(template)
	if err != nil {
		return nil, models.NewRenderError(fmt.Errorf("open template: %w", err))
	}
	if tpl.PageCount() == 0 {
		return nil, models.NewRenderError(fmt.Errorf("template has no pages"))
	}

	w, h := tpl.PageSize(0)
	canvas := e.NewCanvas(w, h)
	canvas.SetFont(overlayFontName, overlayFontSize)

	y := overlayTextTopY
	canvas.Text(overlayTextX, y, fmt.Sprintf("COOPERADO: %s", data["nome"]))
	y -= overlayLineStep
	canvas.Text(overlayTextX, y, "DADOS BANCARIOS")
	for _, field := range models.TemplateFieldOrder {
		if field.Key == "nome" {
			continue
		}
		y -= overlayLineStep
		canvas.Text(overlayTextX, y, fmt.Sprintf("%s: %s", field.Label, data[field.Key]))
	}

	overlay, err := canvas.Doc()
	if err != nil {
		return nil, models.NewRenderError(fmt.Errorf("finalize overlay: %w", err))
	}

	merged, err := e.MergePage(tpl, 0, overlay)
	if err != nil {
		return nil, models.NewRenderError(fmt.Errorf("merge overlay: %w", err))
	}

	parts := []Document{merged}
	for page := 1; page < tpl.PageCount(); page++ {
		rest, err := e.ExtractPage(tpl, page)
		if err != nil {
			return nil, models.NewRenderError(fmt.Errorf("extract page %d: %w", page, err))
		}
		parts = append(parts, rest)
	}

	filled, err := e.Concat(parts...)
	if err != nil {
		return nil, models.NewRenderError(fmt.Errorf("concat filled document: %w", err))
	}

	out, err := e.Marshal(filled)
	if err != nil {
		return nil, models.NewRenderError(fmt.Errorf("serialize filled document: %w", err))
	}
	return out, nil
}
