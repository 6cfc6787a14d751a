// Package repository declares the persistence contracts the services depend on.
//
// Implementations translate "no such row" into apperror.ErrNotFound and a
// username uniqueness violation into apperror.ErrDuplicateUsername; every other
// failure is returned wrapped.
package repository

import (
	"context"
	"time"

	"github.com/sakif/photoshare/internal/model"
)

type UserRepository interface {
	// CreateUser inserts the user, assigning ID and timestamps.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
}

// PhotoRepository stores photos. It does not check ownership; callers must run
// the ownership guard before Update or Delete.
type PhotoRepository interface {
	CreatePhoto(ctx context.Context, photo *model.Photo) error
	GetPhotoByID(ctx context.Context, id string) (*model.Photo, error)
	// ListPhotosByOwner returns the owner's photos in creation order.
	ListPhotosByOwner(ctx context.Context, ownerID string) ([]model.Photo, error)
	// ListPhotos returns every photo in creation order with OwnerUsername set.
	ListPhotos(ctx context.Context) ([]model.Photo, error)
	// SearchPhotos returns photos where any query token is a case-insensitive
	// substring of the title, description or a tag, with OwnerUsername set.
	SearchPhotos(ctx context.Context, tokens []string) ([]model.Photo, error)
	// UpdatePhoto writes title, description and tags only.
	UpdatePhoto(ctx context.Context, photo *model.Photo) error
	DeletePhoto(ctx context.Context, id string) error
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	// DeleteSession is a no-op when the session does not exist.
	DeleteSession(ctx context.Context, id string) error
	// DeleteExpiredSessions removes sessions that expired before now and
	// returns how many were removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
