package pdfkit_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firma/internal/models"
	"firma/internal/pdfkit"
	"firma/internal/testutil"
)

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func sampleData() map[string]string {
	return map[string]string{
		"nome":      "João Pereira",
		"banco":     "Banco do Brasil",
		"agencia":   "1234",
		"conta":     "56789-0",
		"tipoconta": "Poupança",
		"cpf":       "12345678909",
		"telefone":  "11999998888",
		"email":     "joao@example.com",
	}
}

func TestFillTemplate(t *testing.T) {
	e := &testutil.FakeEngine{}
	data := sampleData()

	filled, err := pdfkit.FillTemplate(e, testutil.FakePDF(3), data)
	require.NoError(t, err)

	doc := testutil.MustOpen(filled)
	// Page count preserved, overlay only on page one.
	require.Equal(t, 3, doc.PageCount())

	first := doc.Texts(0)
	assert.Contains(t, first, "COOPERADO: João Pereira")
	assert.Contains(t, first, "DADOS BANCARIOS")
	assert.Contains(t, first, "BANCO: Banco do Brasil")
	assert.Contains(t, first, "TIPO DE CONTA: Poupança")
	assert.Contains(t, first, "E-MAIL: joao@example.com")
	// Pre-existing template content survives underneath.
	assert.Contains(t, first, "page 0")

	assert.NotContains(t, doc.Texts(1), "DADOS BANCARIOS")
	assert.Contains(t, doc.Texts(2), "page 2")
}

func TestFillTemplateOpenError(t *testing.T) {
	e := &testutil.FakeEngine{}
	_, err := pdfkit.FillTemplate(e, []byte("not a document"), sampleData())
	assertCode(t, err, models.CodeRender)
}

func TestFillTemplateMergeError(t *testing.T) {
	e := &testutil.FakeEngine{FailMerge: true}
	_, err := pdfkit.FillTemplate(e, testutil.FakePDF(1), sampleData())
	assertCode(t, err, models.CodeRender)
}

func TestRasterize(t *testing.T) {
	e := &testutil.FakeEngine{}
	stream, err := pdfkit.Rasterize(e, testutil.FakePDF(2))
	require.NoError(t, err)
	assert.Equal(t, 2, stream.Len())

	images, err := stream.RenderAll()
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.False(t, images[0].Bounds().Empty())

	// Exhausted stream reports done, Reset restarts it.
	_, ok, err := stream.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	stream.Reset()
	_, ok, err = stream.Next()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRasterizeRenderError(t *testing.T) {
	e := &testutil.FakeEngine{FailRender: true}
	stream, err := pdfkit.Rasterize(e, testutil.FakePDF(1))
	require.NoError(t, err)

	_, _, err = stream.Next()
	assertCode(t, err, models.CodeRender)
}

func auditData() pdfkit.AuditData {
	return pdfkit.AuditData{
		OriginalFilename: "contract.pdf",
		ContentHash:      "aabbcc",
		SignerName:       "Ana Lima",
		NationalID:       "98765432100",
		IP:               "198.51.100.7",
		Timestamp:        time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC),
		UserAgent:        "firefox",
		SignaturePNG:     testutil.TinyPNG(),
		SelfiePNG:        testutil.TinyPNG(),
	}
}

func TestGenerateAuditPage(t *testing.T) {
	e := &testutil.FakeEngine{}
	page, err := pdfkit.GenerateAuditPage(e, auditData())
	require.NoError(t, err)
	require.Equal(t, 1, page.PageCount())

	w, h := page.PageSize(0)
	assert.Equal(t, pdfkit.LetterWidth, w)
	assert.Equal(t, pdfkit.LetterHeight, h)

	doc := page.(*testutil.FakeDoc)
	texts := doc.Texts(0)
	assert.Contains(t, texts, "Página de Auditoria da Assinatura Eletrônica")
	assert.Contains(t, texts, "Arquivo: contract.pdf")
	assert.Contains(t, texts, "Hash: aabbcc")
	assert.Contains(t, texts, "Nome: Ana Lima")
	assert.Contains(t, texts, "CPF: 98765432100")
	assert.Contains(t, texts, "IP: 198.51.100.7")
	assert.Contains(t, texts, "Data (UTC): 2026-01-05T09:30:00Z")
	assert.Contains(t, texts, "User Agent: firefox")
	assert.NotContains(t, texts, "Data de Nascimento: ")
	assert.Len(t, doc.Images(0), 2)
}

func TestGenerateAuditPageOptionalFields(t *testing.T) {
	e := &testutil.FakeEngine{}
	d := auditData()
	dob := "1990-07-01"
	d.DateOfBirth = &dob
	d.TemplateData = sampleData()

	page, err := pdfkit.GenerateAuditPage(e, d)
	require.NoError(t, err)

	texts := page.(*testutil.FakeDoc).Texts(0)
	assert.Contains(t, texts, "Data de Nascimento: 1990-07-01")
	assert.Contains(t, texts, "BANCO: Banco do Brasil")
	assert.Contains(t, texts, "EMAIL: joao@example.com")
	// Name and national ID are already rendered above the template block.
	assert.NotContains(t, texts, "NOME: João Pereira")
	assert.NotContains(t, texts, "CPF: 12345678909")
}

func TestGenerateAuditPageDeterministic(t *testing.T) {
	e := &testutil.FakeEngine{}
	first, err := pdfkit.GenerateAuditPage(e, auditData())
	require.NoError(t, err)
	second, err := pdfkit.GenerateAuditPage(e, auditData())
	require.NoError(t, err)

	a, err := e.Marshal(first)
	require.NoError(t, err)
	b, err := e.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAssemble(t *testing.T) {
	e := &testutil.FakeEngine{}
	audit, err := pdfkit.GenerateAuditPage(e, auditData())
	require.NoError(t, err)

	final, err := pdfkit.Assemble(e, testutil.FakePDF(4), audit)
	require.NoError(t, err)

	doc := testutil.MustOpen(final)
	require.Equal(t, 5, doc.PageCount())
	// Original pages first, in order, audit page last.
	assert.Contains(t, doc.Texts(0), "page 0")
	assert.Contains(t, doc.Texts(3), "page 3")
	assert.Contains(t, doc.Texts(4), "Página de Auditoria da Assinatura Eletrônica")
}

func TestAssembleErrors(t *testing.T) {
	e := &testutil.FakeEngine{}
	audit, err := pdfkit.GenerateAuditPage(e, auditData())
	require.NoError(t, err)

	_, err = pdfkit.Assemble(e, []byte("garbage"), audit)
	assertCode(t, err, models.CodeAssembly)

	multi, err := e.Open(testutil.FakePDF(2))
	require.NoError(t, err)
	_, err = pdfkit.Assemble(e, testutil.FakePDF(1), multi)
	assertCode(t, err, models.CodeAssembly)
}
