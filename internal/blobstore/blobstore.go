// Package blobstore is the filesystem-backed blob store spec.md §4.5/§6
// requires under a single configured base directory: pending uploads at
// pending/<number>, bound attachments at
// <space_slug>/<note_number or __space__>/<number>.
package blobstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store resolves every relative blob path under Dir, rejecting any path
// that would resolve outside it (spec.md §4.5 "path safety"), matching the
// base-directory-rooted opens the teacher's internal/db.Open does for its
// SQLite file.
type Store struct {
	Dir string
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create base dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("blobstore: resolve base dir: %w", err)
	}
	return &Store{Dir: abs}, nil
}

// resolve maps a slash-separated relative path to an absolute path under
// s.Dir, rejecting any path whose lexical (cleaned, symlink-unaware)
// resolution lands outside the base directory; ".." segments that stay
// inside it are accepted.
func (s *Store) resolve(relPath string) (string, error) {
	clean := filepath.Clean(filepath.Join(s.Dir, filepath.FromSlash(relPath)))
	if clean != s.Dir && !strings.HasPrefix(clean, s.Dir+string(filepath.Separator)) {
		return "", fmt.Errorf("blobstore: path %q escapes base directory", relPath)
	}
	return clean, nil
}

// Write stores data at relPath, creating any parent directories.
func (s *Store) Write(relPath string, data []byte) error {
	abs, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("blobstore: create parent dir: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("blobstore: write %q: %w", relPath, err)
	}
	return nil
}

// Open returns a reader for the blob at relPath.
func (s *Store) Open(relPath string) (io.ReadCloser, error) {
	abs, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %q: %w", relPath, err)
	}
	return f, nil
}

// Read loads the entire blob at relPath into memory, for the small
// (attachment-sized) reads the metadata extractor and rendition pipeline
// need.
func (s *Store) Read(relPath string) ([]byte, error) {
	abs, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %q: %w", relPath, err)
	}
	return data, nil
}

// Move relocates a blob from oldRel to newRel, creating newRel's parent
// directories, used by the attachment pipeline's promotion step.
func (s *Store) Move(oldRel, newRel string) error {
	oldAbs, err := s.resolve(oldRel)
	if err != nil {
		return err
	}
	newAbs, err := s.resolve(newRel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		return fmt.Errorf("blobstore: create parent dir: %w", err)
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return fmt.Errorf("blobstore: move %q to %q: %w", oldRel, newRel, err)
	}
	return nil
}

// Delete removes the blob at relPath. Missing files are not an error.
func (s *Store) Delete(relPath string) error {
	abs, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: delete %q: %w", relPath, err)
	}
	return nil
}

// PendingPath is the blob path for a pending (unbound) attachment.
func PendingPath(number int64) string {
	return fmt.Sprintf("pending/%d", number)
}

// BoundPath is the blob path for a promoted attachment. noteScope is
// domain.SpaceScope for a space-level attachment.
func BoundPath(spaceSlug, noteScope string, number int64) string {
	return fmt.Sprintf("%s/%s/%d", spaceSlug, noteScope, number)
}

// RenditionPath is the blob path for a WebP rendition derived from a bound
// attachment.
func RenditionPath(spaceSlug, noteScope string, number int64) string {
	return fmt.Sprintf("%s/%s/%d.webp", spaceSlug, noteScope, number)
}
