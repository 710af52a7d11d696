// Package store provides the persistence drivers for the mention index.
// Both drivers implement the same whole-document contract: Load returns the
// full recipient index and Save rewrites it entirely, so the index written
// is always internally consistent regardless of driver.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/edgard/whoasked/internal/tracker"
)

// FileStore keeps the recipient index as a single JSON document on disk,
// field-compatible with the message_records.json format of earlier
// deployments.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a file-backed store at the given path. The parent
// directory is created on first save.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FileStore{
		path:   path,
		logger: logger.With("component", "store", "driver", "json"),
	}
}

// Load reads the index document. A missing file is not an error; it simply
// means no mentions have been recorded yet.
func (s *FileStore) Load(ctx context.Context) (tracker.Index, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.InfoContext(ctx, "No recorded mentions found, starting fresh", "path", s.path)
		return tracker.Index{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mention index %s: %w", s.path, err)
	}

	var idx tracker.Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse mention index %s: %w", s.path, err)
	}
	return idx, nil
}

// Save rewrites the full index document. The write goes through a temporary
// file and a rename, so a crash mid-save leaves the previous document intact.
func (s *FileStore) Save(ctx context.Context, idx tracker.Index) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory for %s: %w", s.path, err)
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode mention index: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write mention index %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace mention index %s: %w", s.path, err)
	}

	s.logger.DebugContext(ctx, "Mention index saved", "path", s.path, "recipients", len(idx))
	return nil
}

// Maintain is a no-op for the file driver; the document is rewritten
// wholesale on every save and never accumulates garbage.
func (s *FileStore) Maintain(ctx context.Context) error {
	s.logger.DebugContext(ctx, "File store requires no maintenance")
	return nil
}
