// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Document request lifecycle states. A request is created pending and
// transitions to signed exactly once; there is no reverse transition.
const (
	StatusPending = "pending"
	StatusSigned  = "signed"
)

// DocumentRequest is the central entity of the signing workflow: one
// document awaiting (or carrying) a signature, together with the signer's
// identity fields and the audit evidence captured at signing time.
type DocumentRequest struct {
	// RequestID is an immutable UUIDv4 assigned at intake.
	RequestID string `gorm:"primaryKey;size:36" json:"request_id"`
	Status    string `gorm:"size:20;default:pending;index" json:"status"`

	OriginalFilename string `gorm:"size:255" json:"original_filename"`
	// OriginalContentHash is the SHA-256 hex digest of the source PDF,
	// computed once when the file is finalized on disk.
	OriginalContentHash string    `gorm:"size:64" json:"original_content_hash"`
	CreatedAt           time.Time `json:"created_at"`

	SignerName        string  `gorm:"size:255" json:"signer_name"`
	SignerNationalID  string  `gorm:"size:20;index" json:"signer_national_id"`
	SignerPhone       string  `gorm:"size:20" json:"signer_phone"`
	SignerDateOfBirth *string `gorm:"size:20" json:"signer_date_of_birth,omitempty"`

	// TemplateData holds the field/value mapping for template-generated
	// documents; nil for raw uploads.
	TemplateData map[string]string `gorm:"serializer:json;type:text" json:"template_data,omitempty"`

	// Audit fields are set exactly once, atomically with the
	// pending -> signed transition.
	AuditIP        *string    `gorm:"size:45" json:"audit_ip,omitempty"`
	AuditUserAgent *string    `gorm:"size:255" json:"audit_user_agent,omitempty"`
	AuditTimestamp *time.Time `json:"audit_timestamp,omitempty"`
}

// IsPending reports whether the request may still be reviewed, signed or deleted.
func (d *DocumentRequest) IsPending() bool {
	return d.Status == StatusPending
}

// IsTemplated reports whether the request was generated from the fixed
// template rather than a raw upload.
func (d *DocumentRequest) IsTemplated() bool {
	return d.TemplateData != nil
}

// Summary is the admin/listing projection of a request.
type Summary struct {
	RequestID        string     `json:"request_id"`
	Status           string     `json:"status"`
	OriginalFilename string     `json:"original_filename"`
	SignerName       string     `json:"signer_name"`
	SignerNationalID string     `json:"signer_national_id"`
	CreatedAt        time.Time  `json:"created_at"`
	SignedAt         *time.Time `json:"signed_at,omitempty"`
}

// Summarize returns the listing projection of the request.
func (d *DocumentRequest) Summarize() Summary {
	return Summary{
		RequestID:        d.RequestID,
		Status:           d.Status,
		OriginalFilename: d.OriginalFilename,
		SignerName:       d.SignerName,
		SignerNationalID: d.SignerNationalID,
		CreatedAt:        d.CreatedAt,
		SignedAt:         d.AuditTimestamp,
	}
}

// TemplateField pairs a template data key with its display label.
type TemplateField struct {
	Key   string
	Label string
}

// TemplateFieldOrder is the allowed key set for the fixed bank-detail
// template, in the order fields are drawn on the filled page. Name and
// national ID are rendered separately on the audit page and therefore
// excluded from its template-field iteration.
var TemplateFieldOrder = []TemplateField{
	{Key: "nome", Label: "COOPERADO"},
	{Key: "banco", Label: "BANCO"},
	{Key: "agencia", Label: "AGÊNCIA"},
	{Key: "conta", Label: "CONTA"},
	{Key: "tipoconta", Label: "TIPO DE CONTA"},
	{Key: "cpf", Label: "CPF"},
	{Key: "telefone", Label: "TELEFONE"},
	{Key: "email", Label: "E-MAIL"},
}

// RequiredTemplateKeys lists the keys a templated intake must supply.
func RequiredTemplateKeys() []string {
	return []string{"nome", "cpf", "conta", "banco", "agencia", "tipoconta", "telefone", "email"}
}
