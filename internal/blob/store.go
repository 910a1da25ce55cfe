// Package blob provides per-request working directories and the signed /
// completed storage roots used by the signing workflow.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store manages the four on-disk roots of the workflow: pending working
// directories (one per request), the signed artifact area, the completed
// archive for finished working directories, and the template library.
type Store struct {
	pendingRoot   string
	signedRoot    string
	completedRoot string
	templatesRoot string
}

// NewStore creates the storage roots if missing.
func NewStore(pendingRoot, signedRoot, completedRoot, templatesRoot string) (*Store, error) {
	for _, root := range []string{pendingRoot, signedRoot, completedRoot, templatesRoot} {
		if strings.TrimSpace(root) == "" {
			return nil, fmt.Errorf("storage root is required")
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create storage root %s: %w", root, err)
		}
	}
	return &Store{
		pendingRoot:   pendingRoot,
		signedRoot:    signedRoot,
		completedRoot: completedRoot,
		templatesRoot: templatesRoot,
	}, nil
}

// CreateWorkDir creates the isolated working directory for a request.
func (s *Store) CreateWorkDir(requestID string) error {
	return os.MkdirAll(s.workDir(requestID), 0o755)
}

// WorkDirExists reports whether a pending working directory exists.
func (s *Store) WorkDirExists(requestID string) bool {
	info, err := os.Stat(s.workDir(requestID))
	return err == nil && info.IsDir()
}

// WriteWorkFile writes a file inside the request's working directory.
func (s *Store) WriteWorkFile(requestID, filename string, data []byte) error {
	target := filepath.Join(s.workDir(requestID), safeFilename(filename))
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write work file: %w", err)
	}
	return nil
}

// ReadWorkFile reads a file from the request's working directory.
func (s *Store) ReadWorkFile(requestID, filename string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.workDir(requestID), safeFilename(filename)))
}

// WorkFilePath returns the absolute path of a file in the working directory.
func (s *Store) WorkFilePath(requestID, filename string) string {
	return filepath.Join(s.workDir(requestID), safeFilename(filename))
}

// WorkFileExists reports whether the named file exists in the working directory.
func (s *Store) WorkFileExists(requestID, filename string) bool {
	info, err := os.Stat(s.WorkFilePath(requestID, filename))
	return err == nil && !info.IsDir()
}

// RemoveWorkDir deletes a request's working directory and its contents.
func (s *Store) RemoveWorkDir(requestID string) error {
	dir := s.workDir(requestID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(dir)
}

// WriteSigned stores a final signed artifact under the signed root.
func (s *Store) WriteSigned(filename string, data []byte) error {
	target := filepath.Join(s.signedRoot, safeFilename(filename))
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write signed file: %w", err)
	}
	return nil
}

// ReadSigned reads a final signed artifact.
func (s *Store) ReadSigned(filename string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.signedRoot, safeFilename(filename)))
}

// SignedPath returns the absolute path of a signed artifact.
func (s *Store) SignedPath(filename string) string {
	return filepath.Join(s.signedRoot, safeFilename(filename))
}

// MoveToCompleted relocates a finished working directory into the completed
// root. Rename is atomic on the same filesystem; cross-device moves fall back
// to copy-then-remove.
func (s *Store) MoveToCompleted(requestID string) error {
	src := s.workDir(requestID)
	dst := filepath.Join(s.completedRoot, requestID)
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyDir(src, dst); err != nil {
		return fmt.Errorf("relocate working directory: %w", err)
	}
	return os.RemoveAll(src)
}

// CompletedExists reports whether a completed directory exists for the request.
func (s *Store) CompletedExists(requestID string) bool {
	info, err := os.Stat(filepath.Join(s.completedRoot, requestID))
	return err == nil && info.IsDir()
}

// ReadTemplate loads a template document from the template library.
func (s *Store) ReadTemplate(filename string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.templatesRoot, safeFilename(filename)))
}

// TemplateExists reports whether a template document is present.
func (s *Store) TemplateExists(filename string) bool {
	info, err := os.Stat(filepath.Join(s.templatesRoot, safeFilename(filename)))
	return err == nil && !info.IsDir()
}

func (s *Store) workDir(requestID string) string {
	// Request IDs are UUIDs; Base guards against traversal anyway.
	return filepath.Join(s.pendingRoot, filepath.Base(requestID))
}

func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := copyDir(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, entry.Name()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dst, entry.Name()), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func safeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	name = strings.TrimSpace(name)
	if name == "" {
		return "document"
	}
	return name
}
