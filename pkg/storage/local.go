package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aminofox/hlspack/pkg/logger"
)

// LocalStorage implements local filesystem storage
type LocalStorage struct {
	config StorageConfig
	logger logger.Logger
}

// NewLocalStorage creates a new local storage backend
func NewLocalStorage(config StorageConfig, log logger.Logger) (*LocalStorage, error) {
	if config.Type != StorageTypeLocal {
		return nil, fmt.Errorf("invalid storage type: %s", config.Type)
	}

	if log == nil {
		log = logger.NewDefaultLogger(logger.InfoLevel, logger.FormatText)
	}

	// Create base directory if it doesn't exist
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	return &LocalStorage{
		config: config,
		logger: log,
	}, nil
}

// Upload writes data to the local filesystem under key
func (s *LocalStorage) Upload(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	filePath, err := s.getFilePath(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Retry logic
	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("Retrying upload",
				logger.Field{Key: "attempt", Value: attempt},
				logger.Field{Key: "key", Value: key},
			)
			time.Sleep(s.config.RetryDelay)
		}

		file, err := os.Create(filePath)
		if err != nil {
			lastErr = err
			continue
		}

		written, err := io.Copy(file, data)
		file.Close()

		if err != nil {
			lastErr = err
			os.Remove(filePath)
			continue
		}

		if size > 0 && written != size {
			lastErr = fmt.Errorf("size mismatch: expected %d, wrote %d", size, written)
			os.Remove(filePath)
			continue
		}

		s.logger.Debug("File written",
			logger.Field{Key: "key", Value: key},
			logger.Field{Key: "size", Value: written},
		)

		return nil
	}

	return fmt.Errorf("upload failed after %d attempts: %w", s.config.MaxRetries+1, lastErr)
}

// Download opens a file from the local filesystem
func (s *LocalStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	filePath, err := s.getFilePath(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes a file from the local filesystem
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	filePath, err := s.getFilePath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// Exists checks if a file exists
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	filePath, err := s.getFilePath(key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// List lists files with the given prefix
func (s *LocalStorage) List(ctx context.Context, prefix string, maxKeys int) ([]StorageObject, error) {
	baseDir := s.config.BasePath

	objects := make([]StorageObject, 0)

	err := filepath.Walk(baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}
		if prefix != "" && !strings.HasPrefix(relPath, prefix) {
			return nil
		}
		if maxKeys > 0 && len(objects) >= maxKeys {
			return filepath.SkipAll
		}

		objects = append(objects, StorageObject{
			Key:          relPath,
			Size:         info.Size(),
			LastModified: info.ModTime(),
			ContentType:  contentTypeFor(relPath),
		})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return objects, nil
}

// Close closes the storage backend
func (s *LocalStorage) Close() error {
	return nil
}

// getFilePath resolves a key inside the base path. Leading ".." elements are
// cleaned away so the result never escapes it; an empty key is rejected.
func (s *LocalStorage) getFilePath(key string) (string, error) {
	key = strings.TrimPrefix(filepath.Clean("/"+key), "/")
	if key == "" || key == "." {
		return "", ErrInvalidObjectKey
	}
	return filepath.Join(s.config.BasePath, key), nil
}
