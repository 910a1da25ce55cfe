package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"firma/internal/models"
	"firma/internal/repository"
)

// DocRepoStub is an in-memory document repository for service tests. It is
// safe for concurrent use, so tests can race submissions against it.
type DocRepoStub struct {
	mu    sync.Mutex
	items map[string]*models.DocumentRequest

	// FailMarkSigned injects a storage error on MarkSigned.
	FailMarkSigned error
}

// NewDocRepoStub creates an empty in-memory repository.
func NewDocRepoStub() *DocRepoStub {
	return &DocRepoStub{items: make(map[string]*models.DocumentRequest)}
}

// Create stores a copy of the request.
func (s *DocRepoStub) Create(_ context.Context, doc *models.DocumentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.items[doc.RequestID] = &cp
	return nil
}

// GetByID fetches a request copy by ID.
func (s *DocRepoStub) GetByID(_ context.Context, requestID string) (*models.DocumentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[requestID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *item
	return &cp, nil
}

// FindPendingUpload matches on signer, filename and pending status.
func (s *DocRepoStub) FindPendingUpload(_ context.Context, nationalID, filename string) (*models.DocumentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.SignerNationalID == nationalID && item.OriginalFilename == filename && item.Status == models.StatusPending {
			cp := *item
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// FindPendingTemplated matches pending template-generated requests by signer.
func (s *DocRepoStub) FindPendingTemplated(_ context.Context, nationalID string) (*models.DocumentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.SignerNationalID == nationalID && item.Status == models.StatusPending &&
			strings.HasPrefix(item.OriginalFilename, "documento_preenchido_") {
			cp := *item
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// List returns every request, newest first.
func (s *DocRepoStub) List(_ context.Context) ([]models.DocumentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DocumentRequest, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListByStatus filters by status, newest first.
func (s *DocRepoStub) ListByStatus(ctx context.Context, status string) ([]models.DocumentRequest, error) {
	all, _ := s.List(ctx)
	out := all[:0]
	for _, item := range all {
		if item.Status == status {
			out = append(out, item)
		}
	}
	return out, nil
}

// MarkSigned performs the conditional transition. Exactly one concurrent
// caller observes true.
func (s *DocRepoStub) MarkSigned(_ context.Context, requestID, ip, userAgent string, ts time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailMarkSigned != nil {
		return false, s.FailMarkSigned
	}
	item, ok := s.items[requestID]
	if !ok || item.Status != models.StatusPending {
		return false, nil
	}
	item.Status = models.StatusSigned
	item.AuditIP = &ip
	item.AuditUserAgent = &userAgent
	tsCopy := ts
	item.AuditTimestamp = &tsCopy
	return true, nil
}

// Delete removes a request.
func (s *DocRepoStub) Delete(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[requestID]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.items, requestID)
	return nil
}

var _ repository.DocumentRepository = (*DocRepoStub)(nil)
