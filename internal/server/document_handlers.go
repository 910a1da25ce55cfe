package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"

	"firma/internal/cache"
	"firma/internal/middleware"
	"firma/internal/models"
	"firma/internal/signing"
)

// CreateUploadRequest handles POST /api/requests
func (s *Server) CreateUploadRequest(c *fiber.Ctx) error {
	file, err := c.FormFile("arquivo")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("No file uploaded"))
	}
	if file.Size > int64(s.config.MaxUploadSizeMB)*1024*1024 {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Uploaded file is too large"))
	}

	src, err := file.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}
	defer func() { _ = src.Close() }()
	content, err := io.ReadAll(src)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}

	var dob *string
	if v := strings.TrimSpace(c.FormValue("nascimento")); v != "" {
		dob = &v
	}

	result, err := s.workflow.IntakeUpload(c.UserContext(), signing.UploadIntake{
		Filename:    file.Filename,
		Content:     content,
		SignerName:  c.FormValue("nome"),
		NationalID:  c.FormValue("cpf"),
		Phone:       c.FormValue("telefone"),
		DateOfBirth: dob,
	})
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	status := fiber.StatusCreated
	if result.Reused {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(result)
}

// CreateTemplateRequest handles POST /api/requests/template
func (s *Server) CreateTemplateRequest(c *fiber.Ctx) error {
	data := map[string]string{}
	contentType := string(c.Request().Header.ContentType())
	if strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
		if err := json.Unmarshal(c.Body(), &data); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid JSON body"))
		}
	} else {
		for _, key := range models.RequiredTemplateKeys() {
			data[key] = c.FormValue(key)
		}
	}

	result, err := s.workflow.IntakeTemplate(c.UserContext(), data)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	status := fiber.StatusCreated
	if result.Reused {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(result)
}

// GetSigningRequest handles GET /sign/:id
func (s *Server) GetSigningRequest(c *fiber.Ctx) error {
	id, err := requestIDParam(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}
	c.SetUserContext(middleware.WithDocumentID(c.UserContext(), id))

	review, err := s.workflow.Review(c.UserContext(), id)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(review)
}

// GetPreviewPage handles GET /sign/:id/pages/:page, serving the rendered
// page image. Hits go through the Redis cache as lossy webp; misses fall
// back to the PNG materialized by Review.
func (s *Server) GetPreviewPage(c *fiber.Ctx) error {
	id, err := requestIDParam(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}
	page, err := c.ParamsInt("page")
	if err != nil || page < 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid page number"))
	}
	c.SetUserContext(middleware.WithDocumentID(c.UserContext(), id))

	if data := cache.GetPreview(c.UserContext(), id, page); data != nil {
		c.Set(fiber.HeaderContentType, cache.PreviewContentType)
		return c.Send(data)
	}

	path, err := s.workflow.PendingFilePath(c.UserContext(), id, signing.PreviewFilename(page))
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	raw, readErr := os.ReadFile(path)
	if readErr != nil {
		return models.RespondWithError(c, fiber.StatusNotFound, models.NewMissingFileError(signing.PreviewFilename(page)))
	}

	if img, decErr := png.Decode(bytes.NewReader(raw)); decErr == nil {
		if encoded, encErr := cache.EncodePreview(img); encErr == nil {
			cache.SetPreview(c.UserContext(), id, page, encoded)
			c.Set(fiber.HeaderContentType, cache.PreviewContentType)
			return c.Send(encoded)
		}
	}

	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(raw)
}

// GetPendingFile handles GET /sign/:id/files/:filename, serving working
// directory artifacts to the signing page.
func (s *Server) GetPendingFile(c *fiber.Ctx) error {
	id, err := requestIDParam(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}
	filename := strings.TrimSpace(c.Params("filename"))
	if filename == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid filename"))
	}

	path, err := s.workflow.PendingFilePath(c.UserContext(), id, filename)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.SendFile(path)
}

// SubmitSignature handles POST /sign/:id
func (s *Server) SubmitSignature(c *fiber.Ctx) error {
	id, err := requestIDParam(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}
	c.SetUserContext(middleware.WithDocumentID(c.UserContext(), id))

	signature, err := imageField(c, "assinatura")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}
	selfie, err := imageField(c, "selfie")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	result, err := s.workflow.SubmitSignature(c.UserContext(), signing.SubmitInput{
		RequestID:    id,
		SignaturePNG: signature,
		Selfie:       selfie,
		IP:           c.IP(),
		UserAgent:    c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(result)
}

// DeleteOwnRequest handles DELETE /sign/:id. The signer proves ownership
// with their national ID.
func (s *Server) DeleteOwnRequest(c *fiber.Ctx) error {
	id, err := requestIDParam(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}
	nationalID := c.FormValue("cpf")
	if nationalID == "" {
		nationalID = c.Query("cpf")
	}

	if err := s.workflow.DeleteSelf(c.UserContext(), id, nationalID); err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(fiber.Map{"message": "Request cancelled"})
}

// DownloadSignedDocument handles GET /download/:id
func (s *Server) DownloadSignedDocument(c *fiber.Ctx) error {
	id, err := requestIDParam(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	name, data, err := s.workflow.SignedDocument(c.UserContext(), id)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Send(data)
}
