// Package repository contains data access layers for persistent entities.
package repository

import (
	"context"
	"errors"
	"time"

	"firma/internal/models"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a document request does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// templatedFilenamePrefix marks documents generated from the fixed template.
const templatedFilenamePrefix = "documento_preenchido_"

// DocumentRepository defines storage operations for document requests.
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.DocumentRequest) error
	GetByID(ctx context.Context, requestID string) (*models.DocumentRequest, error)
	// FindPendingUpload returns the pending request matching both national ID
	// and original filename, or ErrNotFound.
	FindPendingUpload(ctx context.Context, nationalID, filename string) (*models.DocumentRequest, error)
	// FindPendingTemplated returns the pending template-generated request for
	// the national ID, or ErrNotFound.
	FindPendingTemplated(ctx context.Context, nationalID string) (*models.DocumentRequest, error)
	List(ctx context.Context) ([]models.DocumentRequest, error)
	ListByStatus(ctx context.Context, status string) ([]models.DocumentRequest, error)
	// MarkSigned performs the conditional pending -> signed transition,
	// setting the three audit fields in the same statement. It returns false
	// when the request was not pending anymore: under concurrent submissions
	// exactly one caller observes true.
	MarkSigned(ctx context.Context, requestID, ip, userAgent string, ts time.Time) (bool, error)
	Delete(ctx context.Context, requestID string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository returns a repository implementation for document requests.
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *models.DocumentRequest) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *documentRepository) GetByID(ctx context.Context, requestID string) (*models.DocumentRequest, error) {
	var doc models.DocumentRequest
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindPendingUpload(ctx context.Context, nationalID, filename string) (*models.DocumentRequest, error) {
	var doc models.DocumentRequest
	err := r.db.WithContext(ctx).
		Where("signer_national_id = ? AND original_filename = ? AND status = ?",
			nationalID, filename, models.StatusPending).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindPendingTemplated(ctx context.Context, nationalID string) (*models.DocumentRequest, error) {
	var doc models.DocumentRequest
	err := r.db.WithContext(ctx).
		Where("signer_national_id = ? AND status = ? AND original_filename LIKE ?",
			nationalID, models.StatusPending, templatedFilenamePrefix+"%").
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) List(ctx context.Context) ([]models.DocumentRequest, error) {
	var docs []models.DocumentRequest
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&docs).Error
	return docs, err
}

func (r *documentRepository) ListByStatus(ctx context.Context, status string) ([]models.DocumentRequest, error) {
	var docs []models.DocumentRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Find(&docs).Error
	return docs, err
}

func (r *documentRepository) MarkSigned(ctx context.Context, requestID, ip, userAgent string, ts time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.DocumentRequest{}).
		Where("request_id = ? AND status = ?", requestID, models.StatusPending).
		Updates(map[string]interface{}{
			"status":           models.StatusSigned,
			"audit_ip":         ip,
			"audit_user_agent": userAgent,
			"audit_timestamp":  ts,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *documentRepository) Delete(ctx context.Context, requestID string) error {
	res := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Delete(&models.DocumentRequest{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
