package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/auth"
	"github.com/sakif/photoshare/internal/model"
	"github.com/sakif/photoshare/internal/repository"
	"github.com/sakif/photoshare/internal/upload"
)

const (
	MaxTitleLength       = 120
	MaxDescriptionLength = 2000

	// PhotoField is the multipart field uploads arrive in.
	PhotoField = "photo"
)

// Intake is the part of *upload.Intake the photo service needs.
type Intake interface {
	Accept(ctx context.Context, r io.Reader, declaredMIME, originalFilename, field string) (*upload.StoredFile, error)
	Discard(ctx context.Context, imageURL, thumbnailURL string)
}

// UploadedFile is an image as received from the client.
type UploadedFile struct {
	Content     io.Reader
	Filename    string
	ContentType string
}

// PhotoService enforces who may do what with photos.
//
// Mutations always run in the same order: fetch the photo (NotFound if it is
// missing), apply auth.OwnershipGuard, then touch the repository. A rejected
// request therefore never changes anything.
type PhotoService struct {
	photos repository.PhotoRepository
	intake Intake
	logger *slog.Logger
}

func NewPhotoService(photos repository.PhotoRepository, intake Intake, logger *slog.Logger) *PhotoService {
	return &PhotoService{
		photos: photos,
		intake: intake,
		logger: logger,
	}
}

// Create stores the uploaded image and a photo owned by user. If the photo
// cannot be saved the stored files are removed again.
func (s *PhotoService) Create(ctx context.Context, user *model.User, input model.PhotoInput, file *UploadedFile) (*model.Photo, error) {
	if err := auth.RouteGuard(user); err != nil {
		return nil, err
	}
	input, err := normalizePhotoInput(input)
	if err != nil {
		return nil, err
	}
	if file == nil || file.Content == nil {
		return nil, apperror.ValidationFailed(PhotoField, "please choose an image to upload")
	}

	stored, err := s.intake.Accept(ctx, file.Content, file.ContentType, file.Filename, PhotoField)
	if err != nil {
		return nil, err
	}

	photo := &model.Photo{
		UserID:       user.ID,
		Title:        input.Title,
		Description:  input.Description,
		Tags:         input.Tags,
		ImageURL:     stored.ImageURL,
		ThumbnailURL: stored.ThumbnailURL,
	}
	if err := s.photos.CreatePhoto(ctx, photo); err != nil {
		s.intake.Discard(ctx, stored.ImageURL, stored.ThumbnailURL)
		return nil, fmt.Errorf("service/photo: creating photo: %w", err)
	}

	s.logger.Info("photo created", slog.String("photoID", photo.ID), slog.String("userID", user.ID))
	return photo, nil
}

func (s *PhotoService) Get(ctx context.Context, id string) (*model.Photo, error) {
	if id == "" {
		return nil, apperror.NotFound("photo", id)
	}
	return s.photos.GetPhotoByID(ctx, id)
}

// ListByOwner returns the user's own photos for the dashboard.
func (s *PhotoService) ListByOwner(ctx context.Context, user *model.User) ([]model.Photo, error) {
	if err := auth.RouteGuard(user); err != nil {
		return nil, err
	}
	photos, err := s.photos.ListPhotosByOwner(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/photo: listing photos of %s: %w", user.ID, err)
	}
	return photos, nil
}

// ListAll returns the public gallery.
func (s *PhotoService) ListAll(ctx context.Context) ([]model.Photo, error) {
	photos, err := s.photos.ListPhotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/photo: listing photos: %w", err)
	}
	return photos, nil
}

// Search matches whitespace-separated terms against title, description and
// tags. A photo matches if any term does. A blank query returns the gallery.
func (s *PhotoService) Search(ctx context.Context, query string) ([]model.Photo, error) {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return s.ListAll(ctx)
	}
	photos, err := s.photos.SearchPhotos(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("service/photo: searching %q: %w", query, err)
	}
	return photos, nil
}

// GetForEdit returns a photo only to its owner.
func (s *PhotoService) GetForEdit(ctx context.Context, user *model.User, id string) (*model.Photo, error) {
	return s.owned(ctx, user, id)
}

// Update replaces title, description and tags. The image and owner never change.
func (s *PhotoService) Update(ctx context.Context, user *model.User, id string, input model.PhotoInput) (*model.Photo, error) {
	photo, err := s.owned(ctx, user, id)
	if err != nil {
		return nil, err
	}
	input, err = normalizePhotoInput(input)
	if err != nil {
		return nil, err
	}

	photo.Title = input.Title
	photo.Description = input.Description
	photo.Tags = input.Tags
	if err := s.photos.UpdatePhoto(ctx, photo); err != nil {
		return nil, fmt.Errorf("service/photo: updating %s: %w", id, err)
	}

	s.logger.Info("photo updated", slog.String("photoID", id), slog.String("userID", user.ID))
	return photo, nil
}

// Delete removes the photo, then its stored files on a best-effort basis.
func (s *PhotoService) Delete(ctx context.Context, user *model.User, id string) error {
	photo, err := s.owned(ctx, user, id)
	if err != nil {
		return err
	}
	if err := s.photos.DeletePhoto(ctx, id); err != nil {
		return fmt.Errorf("service/photo: deleting %s: %w", id, err)
	}
	s.intake.Discard(ctx, photo.ImageURL, photo.ThumbnailURL)

	s.logger.Info("photo deleted", slog.String("photoID", id), slog.String("userID", user.ID))
	return nil
}

func (s *PhotoService) owned(ctx context.Context, user *model.User, id string) (*model.Photo, error) {
	if err := auth.RouteGuard(user); err != nil {
		return nil, err
	}
	photo, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.OwnershipGuard(user, photo.UserID); err != nil {
		s.logger.Warn("ownership check failed",
			slog.String("photoID", id),
			slog.String("userID", user.ID),
		)
		return nil, err
	}
	return photo, nil
}

func normalizePhotoInput(in model.PhotoInput) (model.PhotoInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.Title == "" {
		return in, apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(in.Title) > MaxTitleLength {
		return in, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return in, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}

	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	in.Tags = tags
	return in, nil
}
