package pdfkit

import (
	"fmt"

	"firma/internal/models"
)

// Assemble concatenates every page of the original document followed by
// exactly the one audit page, producing the final signed artifact.
func Assemble(e Engine, original []byte, auditPage Document) ([]byte, error) {
	orig, err := e.Open(original)
	if err != nil {
		return nil, models.NewAssemblyError(fmt.Errorf("open original document: %w", err))
	}
	if auditPage == nil || auditPage.PageCount() != 1 {
		return nil, models.NewAssemblyError(fmt.Errorf("audit page must be a single-page document"))
	}

	final, err := e.Concat(orig, auditPage)
	if err != nil {
		return nil, models.NewAssemblyError(fmt.Errorf("concatenate pages: %w", err))
	}

	out, err := e.Marshal(final)
	if err != nil {
		return nil, models.NewAssemblyError(fmt.Errorf("serialize final document: %w", err))
	}
	return out, nil
}
