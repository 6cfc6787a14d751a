// Package upload validates incoming image files and hands them to a
// storage.FileStore under a fresh, collision-free name.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/storage"
)

const (
	DefaultMaxBytes = 10 << 20

	thumbSize    = 300
	saveAttempts = 5
)

var (
	allowedExtensions = map[string]bool{".jpeg": true, ".jpg": true, ".png": true, ".gif": true}
	allowedMIMETypes  = map[string]bool{"image/jpeg": true, "image/jpg": true, "image/png": true, "image/gif": true}
)

// StoredFile is what an accepted upload turned into. ThumbnailURL is empty
// when no thumbnail could be produced.
type StoredFile struct {
	Name         string
	ImageURL     string
	ThumbnailURL string
}

type Intake struct {
	store    storage.FileStore
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
}

func NewIntake(store storage.FileStore, maxBytes int64, logger *slog.Logger) *Intake {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Intake{
		store:    store,
		maxBytes: maxBytes,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckType accepts a file only when both its extension and its declared
// media type name one of the supported image formats.
func CheckType(originalFilename, declaredMIME string) error {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	if !allowedExtensions[ext] {
		return apperror.UnsupportedMediaType("Error: Images Only!")
	}

	mediaType, _, err := mime.ParseMediaType(declaredMIME)
	if err != nil || !allowedMIMETypes[strings.ToLower(mediaType)] {
		return apperror.UnsupportedMediaType("Error: Images Only!")
	}
	return nil
}

// Accept validates and stores one upload. field is the form field the file
// arrived in and prefixes the stored name.
func (in *Intake) Accept(ctx context.Context, r io.Reader, declaredMIME, originalFilename, field string) (*StoredFile, error) {
	if err := CheckType(originalFilename, declaredMIME); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, in.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) == 0 {
		return nil, apperror.ValidationFailed(field, "please choose an image to upload")
	}
	if int64(len(data)) > in.maxBytes {
		return nil, apperror.ValidationFailed(field, fmt.Sprintf("image is larger than %d bytes", in.maxBytes))
	}

	ext := strings.ToLower(filepath.Ext(originalFilename))
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	name, ref, err := in.save(ctx, field, ext, contentType, data)
	if err != nil {
		return nil, err
	}

	stored := &StoredFile{Name: name, ImageURL: ref}
	if thumb, err := thumbnail(data, ext); err != nil {
		in.logger.Warn("thumbnail skipped", "file", name, "error", err)
	} else if ref, err := in.store.Save(ctx, "thumb-"+name, contentType, bytes.NewReader(thumb)); err != nil {
		in.logger.Warn("thumbnail upload failed", "file", name, "error", err)
	} else {
		stored.ThumbnailURL = ref
	}

	in.logger.Info("upload stored", "file", name, "bytes", len(data))
	return stored, nil
}

// save picks a timestamped name and retries with a new one while the store
// reports it taken.
//
// NAMING AND COLLISIONS
//
// A stored name is "<field>-<unix nanos><ext>", e.g. "photo-1700000000000000000.png".
// Two uploads in the same nanosecond (or a clock that steps backwards) would
// produce the same name, so neither backend overwrites:
//
//	disk: os.OpenFile with O_EXCL fails if the file exists
//	s3:   PutObject with If-None-Match: * answers 412 if the key exists
//
// Both surface as storage.ErrExists. The next attempt adds 1 to the
// timestamp, so "photo-...000.png" becomes "photo-...001.png". The user's
// original filename only contributes its extension and never reaches the
// store, which keeps path tricks like "../../etc/passwd.png" out of it.
func (in *Intake) save(ctx context.Context, field, ext, contentType string, data []byte) (string, string, error) {
	if field == "" {
		field = "photo"
	}
	for attempt := 0; attempt < saveAttempts; attempt++ {
		name := fmt.Sprintf("%s-%d%s", field, in.now().UnixNano()+int64(attempt), ext)
		ref, err := in.store.Save(ctx, name, contentType, bytes.NewReader(data))
		if errors.Is(err, storage.ErrExists) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("storing upload: %w", err)
		}
		return name, ref, nil
	}
	return "", "", fmt.Errorf("storing upload: no free name after %d attempts", saveAttempts)
}

// Discard removes the files of an upload. Failures are logged only.
func (in *Intake) Discard(ctx context.Context, imageURL, thumbnailURL string) {
	for _, ref := range []string{imageURL, thumbnailURL} {
		if ref == "" {
			continue
		}
		if err := in.store.Delete(ctx, ref); err != nil {
			in.logger.Warn("removing stored file", "ref", ref, "error", err)
		}
	}
}

func thumbnail(data []byte, ext string) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	thumb := imaging.Thumbnail(img, thumbSize, thumbSize, imaging.Lanczos)
	if err := imaging.Encode(&buf, thumb, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
