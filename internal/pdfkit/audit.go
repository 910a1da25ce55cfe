package pdfkit

import (
	"fmt"
	"strings"
	"time"

	"firma/internal/models"
)

// Audit page layout constants. The layout is deterministic: fixed positions,
// fixed order, letter-size page.
const (
	auditMarginX       = 72.0
	auditTitleY        = LetterHeight - 72
	auditBodyTopY      = LetterHeight - 120
	auditLineStep      = 20.0
	auditSectionGap    = 40.0
	auditSignatureW    = 200.0
	auditSignatureH    = 100.0
	auditSelfieX       = 350.0
	auditSelfieW       = 120.0
	auditSelfieH       = 90.0
	auditImageDropY    = 140.0
	auditTitleFontSize = 16.0
	auditHeadFontSize  = 12.0
	auditBodyFontSize  = 10.0
)

// AuditData is the full input of the audit page. The page is a pure function
// of this struct; the timestamp is an explicit input, never sampled here.
type AuditData struct {
	OriginalFilename string
	ContentHash      string
	SignerName       string
	NationalID       string
	DateOfBirth      *string
	// TemplateData is nil for raw uploads. Fields are rendered in the
	// fixed template order, excluding name and national ID which already
	// appear above.
	TemplateData map[string]string
	IP           string
	Timestamp    time.Time
	UserAgent    string
	SignaturePNG []byte
	SelfiePNG    []byte
}

// GenerateAuditPage renders the structured evidence page appended to every
// signed document.
func GenerateAuditPage(e Engine, d AuditData) (Document, error) {
	c := e.NewCanvas(LetterWidth, LetterHeight)

	c.SetFont("Helvetica-Bold", auditTitleFontSize)
	c.Text(auditMarginX, auditTitleY, "Página de Auditoria da Assinatura Eletrônica")

	y := auditBodyTopY
	c.SetFont("Helvetica-Bold", auditHeadFontSize)
	c.Text(auditMarginX, y, "Detalhes do Documento Original")

	y -= auditLineStep
	c.SetFont("Helvetica", auditBodyFontSize)
	c.Text(auditMarginX, y, fmt.Sprintf("Arquivo: %s", d.OriginalFilename))
	y -= auditLineStep
	c.Text(auditMarginX, y, fmt.Sprintf("Hash: %s", d.ContentHash))

	y -= auditSectionGap
	c.SetFont("Helvetica-Bold", auditHeadFontSize)
	c.Text(auditMarginX, y, "Detalhes do Signatário")

	y -= auditLineStep
	c.SetFont("Helvetica", auditBodyFontSize)
	c.Text(auditMarginX, y, fmt.Sprintf("Nome: %s", d.SignerName))
	y -= auditLineStep
	c.Text(auditMarginX, y, fmt.Sprintf("CPF: %s", d.NationalID))
	if d.DateOfBirth != nil && *d.DateOfBirth != "" {
		y -= auditLineStep
		c.Text(auditMarginX, y, fmt.Sprintf("Data de Nascimento: %s", *d.DateOfBirth))
	}

	if d.TemplateData != nil {
		for _, field := range models.TemplateFieldOrder {
			if field.Key == "nome" || field.Key == "cpf" {
				continue
			}
			value, ok := d.TemplateData[field.Key]
			if !ok {
				continue
			}
			y -= auditLineStep
			c.Text(auditMarginX, y, fmt.Sprintf("%s: %s", strings.ToUpper(field.Key), value))
		}
	}

	y -= auditLineStep
	c.Text(auditMarginX, y, fmt.Sprintf("IP: %s", d.IP))
	y -= auditLineStep
	c.Text(auditMarginX, y, fmt.Sprintf("Data (UTC): %s", d.Timestamp.UTC().Format(time.RFC3339)))
	y -= auditLineStep
	c.Text(auditMarginX, y, fmt.Sprintf("User Agent: %s", d.UserAgent))

	y -= auditSectionGap
	c.Text(auditMarginX, y, "Assinatura:")
	if err := c.Image(d.SignaturePNG, auditMarginX, y-auditImageDropY, auditSignatureW, auditSignatureH); err != nil {
		return nil, models.NewRenderError(fmt.Errorf("embed signature image: %w", err))
	}
	c.Text(auditSelfieX, y, "Selfie:")
	if err := c.Image(d.SelfiePNG, auditSelfieX, y-auditImageDropY, auditSelfieW, auditSelfieH); err != nil {
		return nil, models.NewRenderError(fmt.Errorf("embed selfie image: %w", err))
	}

	doc, err := c.Doc()
	if err != nil {
		return nil, models.NewRenderError(fmt.Errorf("finalize audit page: %w", err))
	}
	return doc, nil
}
