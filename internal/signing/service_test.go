package signing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firma/internal/blob"
	"firma/internal/liveness"
	"firma/internal/models"
	"firma/internal/notify"
	"firma/internal/testutil"
)

const testTemplateFile = "template.pdf"

type serviceFixture struct {
	svc      *Service
	repo     *testutil.DocRepoStub
	blobs    *blob.Store
	engine   *testutil.FakeEngine
	detector *testutil.StubDetector
	root     string
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	root := t.TempDir()

	blobs, err := blob.NewStore(
		filepath.Join(root, "pending"),
		filepath.Join(root, "signed"),
		filepath.Join(root, "completed"),
		filepath.Join(root, "templates"),
	)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(
		filepath.Join(root, "templates", testTemplateFile), testutil.FakePDF(2), 0o644))

	repo := testutil.NewDocRepoStub()
	engine := &testutil.FakeEngine{}
	detector := &testutil.StubDetector{Faces: 1}
	checker := liveness.NewChecker(detector, liveness.DefaultParams())

	svc := NewService(repo, blobs, engine, checker, notify.NewNotifier(""), "http://localhost:8460", testTemplateFile)
	svc.now = func() time.Time { return time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC) }

	return &serviceFixture{svc: svc, repo: repo, blobs: blobs, engine: engine, detector: detector, root: root}
}

func uploadIntake() UploadIntake {
	return UploadIntake{
		Filename:   "contract.pdf",
		Content:    testutil.FakePDF(2),
		SignerName: gofakeit.Name(),
		NationalID: "12345678909",
		Phone:      gofakeit.Phone(),
	}
}

func templateData() map[string]string {
	return map[string]string{
		"nome":      gofakeit.Name(),
		"cpf":       "98765432100",
		"conta":     "12345-6",
		"banco":     "Banco Central",
		"agencia":   "0001",
		"tipoconta": "Corrente",
		"telefone":  gofakeit.Phone(),
		"email":     gofakeit.Email(),
	}
}

func appErrorCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.Code
}

func TestIntakeUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := uploadIntake()
	result, err := f.svc.IntakeUpload(ctx, in)
	require.NoError(t, err)
	assert.False(t, result.Reused)
	assert.Equal(t, "http://localhost:8460/sign/"+result.RequestID, result.SignURL)

	assert.True(t, f.blobs.WorkFileExists(result.RequestID, in.Filename))

	doc, err := f.repo.GetByID(ctx, result.RequestID)
	require.NoError(t, err)
	assert.Equal(t, HashBytes(in.Content), doc.OriginalContentHash)
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.False(t, doc.IsTemplated())
}

func TestIntakeUploadReusesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := uploadIntake()
	first, err := f.svc.IntakeUpload(ctx, in)
	require.NoError(t, err)

	second, err := f.svc.IntakeUpload(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.RequestID, second.RequestID)

	// A different filename for the same signer is a new request.
	other := in
	other.Filename = "another.pdf"
	third, err := f.svc.IntakeUpload(ctx, other)
	require.NoError(t, err)
	assert.False(t, third.Reused)
	assert.NotEqual(t, first.RequestID, third.RequestID)
}

func TestIntakeUploadValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*UploadIntake)
	}{
		{"missing name", func(in *UploadIntake) { in.SignerName = "  " }},
		{"missing national id", func(in *UploadIntake) { in.NationalID = "abc" }},
		{"wrong extension", func(in *UploadIntake) { in.Filename = "contract.docx" }},
		{"empty content", func(in *UploadIntake) { in.Content = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := uploadIntake()
			tt.mutate(&in)
			_, err := f.svc.IntakeUpload(ctx, in)
			assert.Equal(t, models.CodeValidation, appErrorCode(t, err))
		})
	}
}

func TestIntakeTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	data := templateData()
	result, err := f.svc.IntakeTemplate(ctx, data)
	require.NoError(t, err)
	assert.False(t, result.Reused)

	doc, err := f.repo.GetByID(ctx, result.RequestID)
	require.NoError(t, err)
	assert.Equal(t, templatedPrefix+result.RequestID+".pdf", doc.OriginalFilename)
	assert.True(t, doc.IsTemplated())
	assert.Equal(t, data["nome"], doc.SignerName)

	// The filled document keeps the template page count and carries the
	// overlay on page one.
	filled, err := f.blobs.ReadWorkFile(result.RequestID, doc.OriginalFilename)
	require.NoError(t, err)
	parsed := testutil.MustOpen(filled)
	assert.Equal(t, 2, parsed.PageCount())
	assert.Contains(t, parsed.Texts(0), "COOPERADO: "+data["nome"])

	// Same signer, still pending: reuse.
	again, err := f.svc.IntakeTemplate(ctx, templateDataFor(data["cpf"]))
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.Equal(t, result.RequestID, again.RequestID)
}

func templateDataFor(nationalID string) map[string]string {
	data := templateData()
	data["cpf"] = nationalID
	return data
}

func TestIntakeTemplateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, key := range models.RequiredTemplateKeys() {
		t.Run("missing "+key, func(t *testing.T) {
			data := templateData()
			delete(data, key)
			_, err := f.svc.IntakeTemplate(ctx, data)
			assert.Equal(t, models.CodeValidation, appErrorCode(t, err))
		})
	}
}

func TestIntakeTemplateMissingTemplate(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.root, "templates", testTemplateFile)))

	_, err := f.svc.IntakeTemplate(context.Background(), templateData())
	assert.Equal(t, models.CodeTemplateMiss, appErrorCode(t, err))
}

func TestReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := uploadIntake()
	created, err := f.svc.IntakeUpload(ctx, in)
	require.NoError(t, err)

	review, err := f.svc.Review(ctx, created.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "***.456.789-**", review.MaskedNationalID)
	assert.Equal(t, 2, review.PageCount)
	assert.Equal(t, []string{"page_0.png", "page_1.png"}, review.Pages)
	for _, page := range review.Pages {
		assert.True(t, f.blobs.WorkFileExists(created.RequestID, page), page)
	}

	// Review is idempotent.
	_, err = f.svc.Review(ctx, created.RequestID)
	require.NoError(t, err)
}

func TestReviewErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Review(ctx, "missing-id")
	assert.Equal(t, models.CodeNotFound, appErrorCode(t, err))

	created, err := f.svc.IntakeUpload(ctx, uploadIntake())
	require.NoError(t, err)
	_, err = f.svc.SubmitSignature(ctx, submitInput(created.RequestID))
	require.NoError(t, err)

	_, err = f.svc.Review(ctx, created.RequestID)
	assert.Equal(t, models.CodeForbidden, appErrorCode(t, err))
}

func submitInput(requestID string) SubmitInput {
	return SubmitInput{
		RequestID:    requestID,
		SignaturePNG: testutil.TinyPNG(),
		Selfie:       testutil.TinyPNG(),
		IP:           "203.0.113.9",
		UserAgent:    "test-agent",
	}
}

func TestSubmitSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := uploadIntake()
	created, err := f.svc.IntakeUpload(ctx, in)
	require.NoError(t, err)

	result, err := f.svc.SubmitSignature(ctx, submitInput(created.RequestID))
	require.NoError(t, err)
	assert.Equal(t, "signed_"+in.Filename, result.SignedFilename)
	assert.Equal(t, "http://localhost:8460/download/"+created.RequestID, result.DownloadURL)

	// Record carries the audit evidence.
	doc, err := f.repo.GetByID(ctx, created.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSigned, doc.Status)
	require.NotNil(t, doc.AuditIP)
	assert.Equal(t, "203.0.113.9", *doc.AuditIP)
	require.NotNil(t, doc.AuditUserAgent)
	assert.Equal(t, "test-agent", *doc.AuditUserAgent)
	require.NotNil(t, doc.AuditTimestamp)
	assert.Equal(t, time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC), doc.AuditTimestamp.UTC())

	// Final artifact is the original plus exactly one audit page.
	final, err := f.blobs.ReadSigned(result.SignedFilename)
	require.NoError(t, err)
	parsed := testutil.MustOpen(final)
	assert.Equal(t, 3, parsed.PageCount())
	auditTexts := parsed.Texts(2)
	assert.Contains(t, auditTexts, "Página de Auditoria da Assinatura Eletrônica")
	assert.Contains(t, auditTexts, "Nome: "+in.SignerName)
	assert.Contains(t, auditTexts, "Hash: "+HashBytes(in.Content))
	assert.Len(t, parsed.Images(2), 2)

	// Working directory relocated to the completed archive with every artifact.
	assert.False(t, f.blobs.WorkDirExists(created.RequestID))
	assert.True(t, f.blobs.CompletedExists(created.RequestID))
	for _, name := range []string{in.Filename, SignatureFilename, SelfieFilename, AuditFilename} {
		_, err := os.Stat(filepath.Join(f.root, "completed", created.RequestID, name))
		assert.NoError(t, err, name)
	}
}

func TestSubmitSignatureLivenessRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.detector.Faces = 0

	created, err := f.svc.IntakeUpload(ctx, uploadIntake())
	require.NoError(t, err)

	_, err = f.svc.SubmitSignature(ctx, submitInput(created.RequestID))
	assert.Equal(t, models.CodeLivenessReject, appErrorCode(t, err))

	// Rejection leaves the request pending and keeps the captured artifacts
	// for retry diagnostics.
	doc, err := f.repo.GetByID(ctx, created.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Nil(t, doc.AuditTimestamp)
	assert.True(t, f.blobs.WorkFileExists(created.RequestID, SelfieFilename))

	// A retry with a detectable face succeeds.
	f.detector.Faces = 1
	_, err = f.svc.SubmitSignature(ctx, submitInput(created.RequestID))
	require.NoError(t, err)
}

func TestSubmitSignatureLivenessCheckFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.detector.Err = errors.New("cascade file corrupted")

	created, err := f.svc.IntakeUpload(ctx, uploadIntake())
	require.NoError(t, err)

	_, err = f.svc.SubmitSignature(ctx, submitInput(created.RequestID))
	assert.Equal(t, models.CodeLivenessFailed, appErrorCode(t, err))

	doc, err := f.repo.GetByID(ctx, created.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, doc.Status)
}

func TestSubmitSignatureAlreadySigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.IntakeUpload(ctx, uploadIntake())
	require.NoError(t, err)

	_, err = f.svc.SubmitSignature(ctx, submitInput(created.RequestID))
	require.NoError(t, err)

	_, err = f.svc.SubmitSignature(ctx, submitInput(created.RequestID))
	assert.Equal(t, models.CodeForbidden, appErrorCode(t, err))
}

func TestSubmitSignatureConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.IntakeUpload(ctx, uploadIntake())
	require.NoError(t, err)

	const attempts = 4
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.SubmitSignature(ctx, submitInput(created.RequestID))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.Equal(t, models.CodeForbidden, appErrorCode(t, err))
		}
	}
	assert.Equal(t, 1, successes)
}

func TestDeleteSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.IntakeUpload(ctx, uploadIntake())
	require.NoError(t, err)

	err = f.svc.DeleteSelf(ctx, created.RequestID, "00000000000")
	assert.Equal(t, models.CodeForbidden, appErrorCode(t, err))

	// A formatted national ID still matches on digits.
	require.NoError(t, f.svc.DeleteSelf(ctx, created.RequestID, "123.456.789-09"))
	assert.False(t, f.blobs.WorkDirExists(created.RequestID))

	_, err = f.repo.GetByID(ctx, created.RequestID)
	assert.Error(t, err)
}

func TestDeleteSelfSignedForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.IntakeUpload(ctx, uploadIntake())
	require.NoError(t, err)
	_, err = f.svc.SubmitSignature(ctx, submitInput(created.RequestID))
	require.NoError(t, err)

	err = f.svc.DeleteSelf(ctx, created.RequestID, "12345678909")
	assert.Equal(t, models.CodeForbidden, appErrorCode(t, err))
}

func TestDeleteAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.IntakeUpload(ctx, uploadIntake())
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAdmin(ctx, created.RequestID))
	err = f.svc.DeleteAdmin(ctx, created.RequestID)
	assert.Equal(t, models.CodeNotFound, appErrorCode(t, err))
}

func TestDeleteAdminSignedForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.IntakeUpload(ctx, uploadIntake())
	require.NoError(t, err)
	_, err = f.svc.SubmitSignature(ctx, submitInput(created.RequestID))
	require.NoError(t, err)

	err = f.svc.DeleteAdmin(ctx, created.RequestID)
	assert.Equal(t, models.CodeForbidden, appErrorCode(t, err))
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.IntakeUpload(ctx, uploadIntake())
	require.NoError(t, err)

	// Simulate a crash after commit: the record is signed but the working
	// directory was never archived.
	ok, err := f.repo.MarkSigned(ctx, created.RequestID, "ip", "ua", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, f.blobs.WorkDirExists(created.RequestID))

	moved, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.False(t, f.blobs.WorkDirExists(created.RequestID))
	assert.True(t, f.blobs.CompletedExists(created.RequestID))

	// Second pass is a no-op.
	moved, err = f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, moved)
}

func TestListSummaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.IntakeUpload(ctx, uploadIntake())
	require.NoError(t, err)
	_, err = f.svc.SubmitSignature(ctx, submitInput(a.RequestID))
	require.NoError(t, err)

	summaries, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, models.StatusSigned, summaries[0].Status)
	assert.NotNil(t, summaries[0].SignedAt)
}

