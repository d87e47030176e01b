package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const fileExt = ".json"

var _ Store = (*FileStore)(nil)

// FileStore persists each key as one small JSON file inside a directory, the on-device
// preferences analogue. File names are derived from the key hash; the key itself is
// kept inside the record so Keys can report it.
type FileStore struct {
	mu      sync.RWMutex
	dirPath string
}

// fileRecord is the on-disk layout of a single key.
type fileRecord struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// NewFileStore creates the directory when needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	return &FileStore{dirPath: absPath}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dirPath, strconv.FormatUint(xxhash.Sum64String(key), 16)+fileExt)
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := readRecord(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	// A different key hashed to the same file.
	if record.Key != key {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return record.Value, nil
}

// Set writes through a temporary file and renames it into place so readers never see a
// partially written record.
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	data, err := json.Marshal(fileRecord{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmpFile, err := os.CreateTemp(s.dirPath, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func (s *FileStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	record, err := readRecord(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if record.Key != key {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *FileStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list store directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		record, err := readRecord(filepath.Join(s.dirPath, name))
		if err != nil {
			// Unreadable files are skipped; the record disappeared or is not ours.
			continue
		}
		keys = append(keys, record.Key)
	}
	return keys, nil
}

func (s *FileStore) Close() error {
	return nil
}

func readRecord(path string) (fileRecord, error) {
	var record fileRecord
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return record, os.ErrNotExist
		}
		return record, fmt.Errorf("failed to read record: %w", err)
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return record, nil
}
