package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error codes covering the signing workflow taxonomy.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeForbidden      = "FORBIDDEN"
	CodeLivenessReject = "LIVENESS_REJECTED"
	CodeLivenessFailed = "LIVENESS_CHECK_FAILED"
	CodeTemplateMiss   = "TEMPLATE_MISSING"
	CodeRender         = "RENDER_ERROR"
	CodeAssembly       = "ASSEMBLY_ERROR"
	CodeMissingFile    = "MISSING_FILE"
	CodeStorage        = "STORAGE_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
)

// Predefined error constructors
func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %v not found", resource, id),
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message}
}

// NewLivenessRejectedError indicates no face was found in the selfie.
// The signer may retry; the request stays pending.
func NewLivenessRejectedError() *AppError {
	return &AppError{Code: CodeLivenessReject, Message: "No face detected in the submitted selfie"}
}

// NewLivenessCheckFailedError indicates the detection engine itself failed,
// e.g. on a corrupt image.
func NewLivenessCheckFailedError(err error) *AppError {
	return &AppError{Code: CodeLivenessFailed, Message: "Face detection failed", Err: err}
}

func NewTemplateMissingError(name string) *AppError {
	return &AppError{Code: CodeTemplateMiss, Message: fmt.Sprintf("Template document %q not found", name)}
}

func NewRenderError(err error) *AppError {
	return &AppError{Code: CodeRender, Message: "Document rendering failed", Err: err}
}

func NewAssemblyError(err error) *AppError {
	return &AppError{Code: CodeAssembly, Message: "Document assembly failed", Err: err}
}

func NewMissingFileError(name string) *AppError {
	return &AppError{Code: CodeMissingFile, Message: fmt.Sprintf("Stored file %q is missing", name)}
}

func NewStorageError(err error) *AppError {
	return &AppError{Code: CodeStorage, Message: "Storage operation failed", Err: err}
}

func NewInternalError(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "Internal server error", Err: err}
}

// StatusForError maps an application error to an HTTP status code.
// Pipeline faults surface as opaque 5xx; signer-recoverable errors stay 4xx.
func StatusForError(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case CodeValidation:
		return fiber.StatusBadRequest
	case CodeNotFound, CodeMissingFile:
		return fiber.StatusNotFound
	case CodeForbidden:
		return fiber.StatusForbidden
	case CodeLivenessReject:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		// Server-side pipeline faults stay opaque to the caller.
		if appErr.Err != nil && status < fiber.StatusInternalServerError {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
