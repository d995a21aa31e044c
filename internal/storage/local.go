package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrObjectNotFound indicates the referenced object does not exist.
	ErrObjectNotFound = errors.New("storage: object not found")
	// ErrInvalidReference indicates a reference that escapes the store root.
	ErrInvalidReference = errors.New("storage: invalid object reference")

	errMissingUserID = errors.New("storage: user id required")
	errEmptyPayload  = errors.New("storage: empty payload")
)

const defaultExtension = ".jpg"

// LocalStore persists uploaded files on local disk, namespaced per user.
type LocalStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalStore prepares the upload root and returns a store.
func NewLocalStore(baseDir string, logger *zap.Logger) (*LocalStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("storage: base directory required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalStore{baseDir: baseDir, logger: logger}, nil
}

// BaseDir returns the root directory served to clients.
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

// Put writes the payload under the user's namespace with a generated
// collision-free filename and returns a store-relative reference. The file is
// written to a temporary name and renamed so a half-written file is never
// visible under its final name.
func (s *LocalStore) Put(userID string, data []byte, filenameHint string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errMissingUserID
	}
	if len(data) == 0 {
		return "", errEmptyPayload
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	filename := id.String() + extensionFromHint(filenameHint)

	userDir := filepath.Join(s.baseDir, userID)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return "", err
	}

	finalPath := filepath.Join(userDir, filename)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			s.logger.Warn("failed to remove temporary upload",
				zap.String("path", tempPath), zap.Error(removeErr))
		}
		return "", err
	}

	return filepath.ToSlash(filepath.Join(userID, filename)), nil
}

// Read returns the stored payload for the reference.
func (s *LocalStore) Read(reference string) ([]byte, error) {
	path, err := s.resolve(reference)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes the stored object, reporting ErrObjectNotFound when absent.
func (s *LocalStore) Delete(reference string) error {
	path, err := s.resolve(reference)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrObjectNotFound
	}
	return err
}

func (s *LocalStore) resolve(reference string) (string, error) {
	if strings.TrimSpace(reference) == "" {
		return "", ErrInvalidReference
	}
	cleaned := filepath.Clean(filepath.FromSlash(reference))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", ErrInvalidReference
	}
	return filepath.Join(s.baseDir, cleaned), nil
}

func extensionFromHint(hint string) string {
	ext := strings.ToLower(filepath.Ext(hint))
	if ext == "" || ext == "." {
		return defaultExtension
	}
	return ext
}
