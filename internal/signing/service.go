// Package signing implements the document signing workflow: intake of raw
// and template-generated documents, review, the pending -> signed
// transition, and the crash-repair pass over finished requests.
package signing

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"firma/internal/blob"
	"firma/internal/liveness"
	"firma/internal/middleware"
	"firma/internal/models"
	"firma/internal/notify"
	"firma/internal/observability"
	"firma/internal/pdfkit"
	"firma/internal/repository"
)

// Workflow artifact filenames inside a request's working directory.
const (
	SignatureFilename = "signature.png"
	SelfieFilename    = "selfie.png"
	AuditFilename     = "audit_page.pdf"

	signedPrefix    = "signed_"
	templatedPrefix = "documento_preenchido_"
)

// Service orchestrates the signing workflow. All state transitions go
// through here; handlers never touch the repository or storage directly.
type Service struct {
	repo     repository.DocumentRepository
	blobs    *blob.Store
	engine   pdfkit.Engine
	liveness *liveness.Checker
	notifier *notify.Notifier

	baseURL      string
	templateFile string

	now   func() time.Time
	newID func() string

	mu    sync.Mutex
	locks map[string]*recordLock
}

type recordLock struct {
	sync.Mutex
	refs int
}

// NewService wires the workflow service.
func NewService(repo repository.DocumentRepository, blobs *blob.Store, engine pdfkit.Engine, checker *liveness.Checker, notifier *notify.Notifier, baseURL, templateFile string) *Service {
	return &Service{
		repo:         repo,
		blobs:        blobs,
		engine:       engine,
		liveness:     checker,
		notifier:     notifier,
		baseURL:      strings.TrimRight(baseURL, "/"),
		templateFile: templateFile,
		now:          time.Now,
		newID:        uuid.NewString,
		locks:        make(map[string]*recordLock),
	}
}

// UploadIntake is the input of a raw document intake.
type UploadIntake struct {
	Filename    string
	Content     []byte
	SignerName  string
	NationalID  string
	Phone       string
	DateOfBirth *string
}

// IntakeResult reports the request created (or reused) by an intake.
type IntakeResult struct {
	RequestID string `json:"request_id"`
	SignURL   string `json:"sign_url"`
	Reused    bool   `json:"reused"`
}

// IntakeUpload registers an uploaded PDF for signing. A pending request
// with the same signer and filename is reused instead of duplicated.
func (s *Service) IntakeUpload(ctx context.Context, in UploadIntake) (*IntakeResult, error) {
	if strings.TrimSpace(in.SignerName) == "" {
		return nil, models.NewValidationError("signer name is required")
	}
	if DigitsOnly(in.NationalID) == "" {
		return nil, models.NewValidationError("signer national ID is required")
	}
	if !strings.HasSuffix(strings.ToLower(in.Filename), ".pdf") {
		return nil, models.NewValidationError("only PDF files are accepted")
	}
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("uploaded file is empty")
	}

	existing, err := s.repo.FindPendingUpload(ctx, in.NationalID, in.Filename)
	if err == nil {
		observability.IntakesTotal.WithLabelValues("upload", "reused").Inc()
		return &IntakeResult{RequestID: existing.RequestID, SignURL: s.signURL(existing.RequestID), Reused: true}, nil
	}
	if !repository.IsNotFound(err) {
		return nil, models.NewInternalError(err)
	}

	id := s.newID()
	if err := s.blobs.CreateWorkDir(id); err != nil {
		return nil, models.NewStorageError(err)
	}
	if err := s.blobs.WriteWorkFile(id, in.Filename, in.Content); err != nil {
		_ = s.blobs.RemoveWorkDir(id)
		return nil, models.NewStorageError(err)
	}

	doc := &models.DocumentRequest{
		RequestID:           id,
		Status:              models.StatusPending,
		OriginalFilename:    in.Filename,
		OriginalContentHash: HashBytes(in.Content),
		CreatedAt:           s.now().UTC(),
		SignerName:          in.SignerName,
		SignerNationalID:    in.NationalID,
		SignerPhone:         in.Phone,
		SignerDateOfBirth:   in.DateOfBirth,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		_ = s.blobs.RemoveWorkDir(id)
		observability.IntakesTotal.WithLabelValues("upload", "error").Inc()
		return nil, models.NewInternalError(err)
	}

	observability.IntakesTotal.WithLabelValues("upload", "created").Inc()
	s.notifier.Send(ctx, in.SignerName, in.NationalID, s.signURL(id), notify.StageAwaitingSignature, in.Phone)
	return &IntakeResult{RequestID: id, SignURL: s.signURL(id)}, nil
}

// IntakeTemplate fills the fixed bank-detail template with the supplied
// fields and registers the result for signing. A pending templated request
// for the same signer is reused.
func (s *Service) IntakeTemplate(ctx context.Context, data map[string]string) (*IntakeResult, error) {
	for _, key := range models.RequiredTemplateKeys() {
		if strings.TrimSpace(data[key]) == "" {
			return nil, models.NewValidationError(fmt.Sprintf("field %q is required", key))
		}
	}
	nationalID := data["cpf"]

	existing, err := s.repo.FindPendingTemplated(ctx, nationalID)
	if err == nil {
		observability.IntakesTotal.WithLabelValues("template", "reused").Inc()
		return &IntakeResult{RequestID: existing.RequestID, SignURL: s.signURL(existing.RequestID), Reused: true}, nil
	}
	if !repository.IsNotFound(err) {
		return nil, models.NewInternalError(err)
	}

	if !s.blobs.TemplateExists(s.templateFile) {
		return nil, models.NewTemplateMissingError(s.templateFile)
	}
	template, err := s.blobs.ReadTemplate(s.templateFile)
	if err != nil {
		return nil, models.NewStorageError(err)
	}

	stop := observability.TrackStage("fill_template")
	filled, err := pdfkit.FillTemplate(s.engine, template, data)
	stop()
	if err != nil {
		observability.IntakesTotal.WithLabelValues("template", "error").Inc()
		return nil, err
	}

	id := s.newID()
	filename := templatedPrefix + id + ".pdf"
	if err := s.blobs.CreateWorkDir(id); err != nil {
		return nil, models.NewStorageError(err)
	}
	if err := s.blobs.WriteWorkFile(id, filename, filled); err != nil {
		_ = s.blobs.RemoveWorkDir(id)
		return nil, models.NewStorageError(err)
	}

	doc := &models.DocumentRequest{
		RequestID:           id,
		Status:              models.StatusPending,
		OriginalFilename:    filename,
		OriginalContentHash: HashBytes(filled),
		CreatedAt:           s.now().UTC(),
		SignerName:          data["nome"],
		SignerNationalID:    nationalID,
		SignerPhone:         data["telefone"],
		TemplateData:        data,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		_ = s.blobs.RemoveWorkDir(id)
		observability.IntakesTotal.WithLabelValues("template", "error").Inc()
		return nil, models.NewInternalError(err)
	}

	observability.IntakesTotal.WithLabelValues("template", "created").Inc()
	s.notifier.Send(ctx, doc.SignerName, nationalID, s.signURL(id), notify.StageAwaitingSignature, doc.SignerPhone)
	return &IntakeResult{RequestID: id, SignURL: s.signURL(id)}, nil
}

// ReviewData is what the signing page shows before signature capture.
type ReviewData struct {
	RequestID        string   `json:"request_id"`
	SignerName       string   `json:"signer_name"`
	MaskedNationalID string   `json:"masked_national_id"`
	OriginalFilename string   `json:"original_filename"`
	PageCount        int      `json:"page_count"`
	Pages            []string `json:"pages"`
}

// Review loads a pending request for the signing page, materializing one
// preview image per document page in the working directory. The signer's
// national ID is exposed masked only.
func (s *Service) Review(ctx context.Context, requestID string) (*ReviewData, error) {
	doc, err := s.loadPending(ctx, requestID)
	if err != nil {
		return nil, err
	}

	original, err := s.blobs.ReadWorkFile(requestID, doc.OriginalFilename)
	if err != nil {
		return nil, models.NewMissingFileError(doc.OriginalFilename)
	}

	count, err := s.ensurePreviews(requestID, original)
	if err != nil {
		return nil, err
	}

	pages := make([]string, count)
	for i := range pages {
		pages[i] = PreviewFilename(i)
	}
	return &ReviewData{
		RequestID:        doc.RequestID,
		SignerName:       doc.SignerName,
		MaskedNationalID: MaskNationalID(doc.SignerNationalID),
		OriginalFilename: doc.OriginalFilename,
		PageCount:        count,
		Pages:            pages,
	}, nil
}

// ensurePreviews renders page_<n>.png files into the working directory when
// absent. Rendering is idempotent: pages of an immutable document.
func (s *Service) ensurePreviews(requestID string, original []byte) (int, error) {
	defer observability.TrackStage("rasterize")()

	stream, err := pdfkit.Rasterize(s.engine, original)
	if err != nil {
		return 0, err
	}

	for i := 0; ; i++ {
		img, ok, err := stream.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		name := PreviewFilename(i)
		if s.blobs.WorkFileExists(requestID, name) {
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return 0, models.NewRenderError(fmt.Errorf("encode page %d: %w", i, err))
		}
		if err := s.blobs.WriteWorkFile(requestID, name, buf.Bytes()); err != nil {
			return 0, models.NewStorageError(err)
		}
	}
	return stream.Len(), nil
}

// SubmitInput carries one signature submission.
type SubmitInput struct {
	RequestID    string
	SignaturePNG []byte
	Selfie       []byte
	IP           string
	UserAgent    string
}

// SubmitResult reports a successful signature.
type SubmitResult struct {
	RequestID      string `json:"request_id"`
	SignedFilename string `json:"signed_filename"`
	DownloadURL    string `json:"download_url"`
}

// SubmitSignature executes the signing transaction: persist the captured
// artifacts, gate on the liveness check, assemble the final document, then
// commit the pending -> signed transition and archive the working directory.
// The database transition is the commit point; everything before it leaves
// the request pending and retryable, everything after it is repairable by
// Reconcile. Submissions for the same request are serialized, and the
// conditional update guarantees at most one succeeds.
func (s *Service) SubmitSignature(ctx context.Context, in SubmitInput) (res *SubmitResult, err error) {
	span, ctx := observability.NewSpan(ctx, "signing.submit")
	span.AddAttributes(attribute.String("document.id", in.RequestID))
	defer func() {
		span.SetError(err)
		span.End()
	}()

	lock := s.acquire(in.RequestID)
	defer s.release(in.RequestID, lock)

	doc, err := s.loadPending(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if len(in.SignaturePNG) == 0 {
		return nil, models.NewValidationError("signature image is required")
	}
	if len(in.Selfie) == 0 {
		return nil, models.NewValidationError("selfie image is required")
	}

	if err := s.blobs.WriteWorkFile(in.RequestID, SignatureFilename, in.SignaturePNG); err != nil {
		return nil, models.NewStorageError(err)
	}
	if err := s.blobs.WriteWorkFile(in.RequestID, SelfieFilename, in.Selfie); err != nil {
		return nil, models.NewStorageError(err)
	}

	stop := observability.TrackStage("liveness")
	hasFace, err := s.liveness.HasFace(in.Selfie)
	stop()
	if err != nil {
		observability.SignaturesTotal.WithLabelValues("check_failed").Inc()
		return nil, err
	}
	if !hasFace {
		observability.LivenessRejectionsTotal.Inc()
		observability.SignaturesTotal.WithLabelValues("liveness_rejected").Inc()
		return nil, models.NewLivenessRejectedError()
	}

	original, err := s.blobs.ReadWorkFile(in.RequestID, doc.OriginalFilename)
	if err != nil {
		return nil, models.NewMissingFileError(doc.OriginalFilename)
	}

	ts := s.now().UTC()
	stop = observability.TrackStage("assemble")
	auditPage, err := pdfkit.GenerateAuditPage(s.engine, pdfkit.AuditData{
		OriginalFilename: doc.OriginalFilename,
		ContentHash:      doc.OriginalContentHash,
		SignerName:       doc.SignerName,
		NationalID:       doc.SignerNationalID,
		DateOfBirth:      doc.SignerDateOfBirth,
		TemplateData:     doc.TemplateData,
		IP:               in.IP,
		Timestamp:        ts,
		UserAgent:        in.UserAgent,
		SignaturePNG:     in.SignaturePNG,
		SelfiePNG:        in.Selfie,
	})
	if err == nil {
		var auditBytes []byte
		if auditBytes, err = s.engine.Marshal(auditPage); err == nil {
			err = s.blobs.WriteWorkFile(in.RequestID, AuditFilename, auditBytes)
		}
	}
	var final []byte
	if err == nil {
		final, err = pdfkit.Assemble(s.engine, original, auditPage)
	}
	stop()
	if err != nil {
		observability.SignaturesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	signedName := signedPrefix + doc.OriginalFilename
	if err := s.blobs.WriteSigned(signedName, final); err != nil {
		observability.SignaturesTotal.WithLabelValues("error").Inc()
		return nil, models.NewStorageError(err)
	}

	committed, err := s.repo.MarkSigned(ctx, in.RequestID, in.IP, in.UserAgent, ts)
	if err != nil {
		observability.SignaturesTotal.WithLabelValues("error").Inc()
		return nil, models.NewInternalError(err)
	}
	if !committed {
		observability.SignaturesTotal.WithLabelValues("conflict").Inc()
		return nil, models.NewForbiddenError("document has already been signed")
	}

	// Past the commit point: relocation failures are logged and left for
	// the repair pass, never surfaced to the signer.
	if err := s.blobs.MoveToCompleted(in.RequestID); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to archive working directory, leaving for reconcile",
			slog.String("error", err.Error()),
		)
	}

	observability.SignaturesTotal.WithLabelValues("success").Inc()
	s.notifier.Send(ctx, doc.SignerName, doc.SignerNationalID, s.downloadURL(in.RequestID), notify.StageCompleted, doc.SignerPhone)
	return &SubmitResult{
		RequestID:      in.RequestID,
		SignedFilename: signedName,
		DownloadURL:    s.downloadURL(in.RequestID),
	}, nil
}

// SignedDocument returns the final artifact of a signed request.
func (s *Service) SignedDocument(ctx context.Context, requestID string) (string, []byte, error) {
	doc, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", nil, models.NewNotFoundError("document request", requestID)
		}
		return "", nil, models.NewInternalError(err)
	}
	if doc.IsPending() {
		return "", nil, models.NewForbiddenError("document has not been signed yet")
	}
	name := signedPrefix + doc.OriginalFilename
	data, err := s.blobs.ReadSigned(name)
	if err != nil {
		return "", nil, models.NewMissingFileError(name)
	}
	return name, data, nil
}

// PendingFilePath resolves a file inside a pending request's working
// directory for serving, verifying the request is still pending.
func (s *Service) PendingFilePath(ctx context.Context, requestID, filename string) (string, error) {
	if _, err := s.loadPending(ctx, requestID); err != nil {
		return "", err
	}
	if !s.blobs.WorkFileExists(requestID, filename) {
		return "", models.NewMissingFileError(filename)
	}
	return s.blobs.WorkFilePath(requestID, filename), nil
}

// DeleteSelf cancels a pending request on behalf of its signer. The caller
// proves ownership by presenting the signer's national ID; comparison is on
// digits only so formatting differences do not lock signers out.
func (s *Service) DeleteSelf(ctx context.Context, requestID, nationalID string) error {
	lock := s.acquire(requestID)
	defer s.release(requestID, lock)

	doc, err := s.loadPending(ctx, requestID)
	if err != nil {
		return err
	}
	if DigitsOnly(doc.SignerNationalID) != DigitsOnly(nationalID) || DigitsOnly(nationalID) == "" {
		return models.NewForbiddenError("national ID does not match this request")
	}
	return s.deleteRequest(ctx, doc)
}

// DeleteAdmin removes a pending request regardless of ownership. Signed
// requests are immutable and cannot be deleted.
func (s *Service) DeleteAdmin(ctx context.Context, requestID string) error {
	lock := s.acquire(requestID)
	defer s.release(requestID, lock)

	doc, err := s.loadPending(ctx, requestID)
	if err != nil {
		return err
	}
	return s.deleteRequest(ctx, doc)
}

func (s *Service) deleteRequest(ctx context.Context, doc *models.DocumentRequest) error {
	if err := s.repo.Delete(ctx, doc.RequestID); err != nil {
		if repository.IsNotFound(err) {
			return models.NewNotFoundError("document request", doc.RequestID)
		}
		return models.NewInternalError(err)
	}
	if err := s.blobs.RemoveWorkDir(doc.RequestID); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to remove working directory",
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// List returns every request, newest first, for the admin surface.
func (s *Service) List(ctx context.Context) ([]models.Summary, error) {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	summaries := make([]models.Summary, len(docs))
	for i := range docs {
		summaries[i] = docs[i].Summarize()
	}
	return summaries, nil
}

// Reconcile archives working directories of requests that committed the
// signed transition but whose relocation was interrupted. Run at startup.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	docs, err := s.repo.ListByStatus(ctx, models.StatusSigned)
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	moved := 0
	for i := range docs {
		id := docs[i].RequestID
		if !s.blobs.WorkDirExists(id) {
			continue
		}
		if err := s.blobs.MoveToCompleted(id); err != nil {
			middleware.Logger.ErrorContext(ctx, "reconcile failed to archive working directory",
				slog.String("document_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		middleware.Logger.InfoContext(ctx, "reconciled interrupted signing",
			slog.String("document_id", id),
		)
		moved++
	}
	return moved, nil
}

func (s *Service) loadPending(ctx context.Context, requestID string) (*models.DocumentRequest, error) {
	doc, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, models.NewNotFoundError("document request", requestID)
		}
		return nil, models.NewInternalError(err)
	}
	if !doc.IsPending() {
		return nil, models.NewForbiddenError("document has already been signed")
	}
	return doc, nil
}

func (s *Service) signURL(requestID string) string {
	return s.baseURL + "/sign/" + requestID
}

func (s *Service) downloadURL(requestID string) string {
	return s.baseURL + "/download/" + requestID
}

// PreviewFilename names the rendered preview of a zero-based page.
func PreviewFilename(page int) string {
	return fmt.Sprintf("page_%d.png", page)
}

// acquire serializes operations on a single request. Locks are reference
// counted so the map does not grow with the request history.
func (s *Service) acquire(requestID string) *recordLock {
	s.mu.Lock()
	lock, ok := s.locks[requestID]
	if !ok {
		lock = &recordLock{}
		s.locks[requestID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.Lock()
	return lock
}

func (s *Service) release(requestID string, lock *recordLock) {
	lock.Unlock()

	s.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, requestID)
	}
	s.mu.Unlock()
}
