// Package storage declares where uploaded image bytes end up.
//
// A FileStore persists a named object and hands back a reference (a URL path
// or absolute URL) that is stored on the photo and served to browsers.
// Implementations live in the disk and s3 sub-packages.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrExists is returned by Save when an object with the same name is already
// stored. Stores never overwrite.
var ErrExists = errors.New("storage: object already exists")

// FileStore persists uploaded files.
type FileStore interface {
	// Save writes r under name and returns a reference to the stored object.
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	// Delete removes the object behind a reference returned by Save. Deleting
	// a missing object is not an error.
	Delete(ctx context.Context, ref string) error
}
