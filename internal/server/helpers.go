package server

import (
	"encoding/base64"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"firma/internal/models"
)

// imageField reads an image either as a multipart file or as a base64 data
// URL form value under the same name. Signature pads and selfie capture
// widgets submit data URLs; API clients upload files.
func imageField(c *fiber.Ctx, name string) ([]byte, error) {
	if file, err := c.FormFile(name); err == nil {
		src, err := file.Open()
		if err != nil {
			return nil, models.NewValidationError("Unable to read uploaded " + name)
		}
		defer func() { _ = src.Close() }()
		data, err := io.ReadAll(src)
		if err != nil {
			return nil, models.NewValidationError("Unable to read uploaded " + name)
		}
		return data, nil
	}

	value := strings.TrimSpace(c.FormValue(name))
	if value == "" {
		return nil, models.NewValidationError("Field " + name + " is required")
	}
	return decodeDataURL(value)
}

// decodeDataURL strips an optional "data:image/...;base64," prefix and
// decodes the payload.
func decodeDataURL(value string) ([]byte, error) {
	if idx := strings.Index(value, ";base64,"); idx >= 0 {
		value = value[idx+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, models.NewValidationError("Invalid base64 image payload")
	}
	return data, nil
}

// requestIDParam extracts and validates the :id route parameter.
func requestIDParam(c *fiber.Ctx) (string, error) {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" || len(id) > 36 {
		return "", models.NewValidationError("Invalid request ID")
	}
	for _, r := range id {
		valid := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') || r == '-'
		if !valid {
			return "", models.NewValidationError("Invalid request ID")
		}
	}
	return id, nil
}
