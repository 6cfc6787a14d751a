// Package disk stores uploads as files in a local directory served under a
// URL prefix.
package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sakif/photoshare/internal/storage"
)

// Store writes files into dir and references them as prefix + "/" + name.
type Store struct {
	dir    string
	prefix string
}

var _ storage.FileStore = (*Store)(nil)

// New creates the directory if needed.
func New(dir, urlPrefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk: creating upload dir %s: %w", dir, err)
	}
	return &Store{dir: dir, prefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// Dir is the directory files are written to, for mounting a file server.
func (s *Store) Dir() string {
	return s.dir
}

// Save creates the file exclusively; an existing name yields storage.ErrExists.
// A partially written file is removed on failure.
func (s *Store) Save(ctx context.Context, name, _ string, r io.Reader) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	full := filepath.Join(s.dir, name)
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", storage.ErrExists
		}
		return "", fmt.Errorf("disk: creating %s: %w", name, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("disk: writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("disk: closing %s: %w", name, err)
	}

	return s.prefix + "/" + name, nil
}

// Delete removes the file a reference points at.
func (s *Store) Delete(_ context.Context, ref string) error {
	name := path.Base(ref)
	if err := validName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("disk: removing %s: %w", name, err)
	}
	return nil
}

// validName rejects anything that could escape the upload directory.
func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("disk: invalid file name %q", name)
	}
	return nil
}
