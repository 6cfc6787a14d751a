package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/auth"
	"github.com/sakif/photoshare/internal/model"
	"github.com/sakif/photoshare/internal/upload"
)

// In-memory fakes for the repository interfaces. They reproduce the error
// contract of the sqlite implementation (NotFound, DuplicateUsername) so the
// services can be tested without a database.

type fakeUserRepo struct {
	users     map[string]*model.User
	nextID    int
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if u.Username == user.Username {
			return apperror.DuplicateUsername(user.Username)
		}
		if u.GitHubID != nil && user.GitHubID != nil && *u.GitHubID == *user.GitHubID {
			return apperror.Conflict("user", user.Username)
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (f *fakeUserRepo) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", username)
}

func (f *fakeUserRepo) GetUserByGitHubID(_ context.Context, githubID int64) (*model.User, error) {
	for _, u := range f.users {
		if u.GitHubID != nil && *u.GitHubID == githubID {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", fmt.Sprint(githubID))
}

type fakeSessionRepo struct {
	sessions map[string]model.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]model.Session)}
}

func (f *fakeSessionRepo) CreateSession(_ context.Context, s *model.Session) error {
	f.sessions[s.ID] = *s
	return nil
}

func (f *fakeSessionRepo) GetSession(_ context.Context, id string) (*model.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperror.NotFound("session", id)
	}
	return &s, nil
}

func (f *fakeSessionRepo) DeleteSession(_ context.Context, id string) error {
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessionRepo) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, s := range f.sessions {
		if s.Expired(now) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

type fakePhotoRepo struct {
	users     *fakeUserRepo
	photos    map[string]*model.Photo
	order     []string
	nextID    int
	createErr error
}

func newFakePhotoRepo(users *fakeUserRepo) *fakePhotoRepo {
	return &fakePhotoRepo{users: users, photos: make(map[string]*model.Photo)}
}

func (f *fakePhotoRepo) CreatePhoto(_ context.Context, p *model.Photo) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	p.ID = fmt.Sprintf("photo-%d", f.nextID)
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	stored := *p
	stored.Tags = slices.Clone(p.Tags)
	f.photos[p.ID] = &stored
	f.order = append(f.order, p.ID)
	return nil
}

func (f *fakePhotoRepo) get(id string) model.Photo {
	p := *f.photos[id]
	p.Tags = slices.Clone(p.Tags)
	if u, ok := f.users.users[p.UserID]; ok {
		p.OwnerUsername = u.Username
	}
	return p
}

func (f *fakePhotoRepo) GetPhotoByID(_ context.Context, id string) (*model.Photo, error) {
	if _, ok := f.photos[id]; !ok {
		return nil, apperror.NotFound("photo", id)
	}
	p := f.get(id)
	return &p, nil
}

func (f *fakePhotoRepo) list(keep func(model.Photo) bool) []model.Photo {
	result := []model.Photo{}
	for _, id := range f.order {
		if _, ok := f.photos[id]; !ok {
			continue
		}
		if p := f.get(id); keep(p) {
			result = append(result, p)
		}
	}
	return result
}

func (f *fakePhotoRepo) ListPhotosByOwner(_ context.Context, ownerID string) ([]model.Photo, error) {
	return f.list(func(p model.Photo) bool { return p.UserID == ownerID }), nil
}

func (f *fakePhotoRepo) ListPhotos(_ context.Context) ([]model.Photo, error) {
	return f.list(func(model.Photo) bool { return true }), nil
}

func (f *fakePhotoRepo) SearchPhotos(_ context.Context, tokens []string) ([]model.Photo, error) {
	return f.list(func(p model.Photo) bool {
		haystack := strings.ToLower(p.Title + "\x00" + p.Description + "\x00" + strings.Join(p.Tags, "\x00"))
		for _, t := range tokens {
			if strings.Contains(haystack, strings.ToLower(t)) {
				return true
			}
		}
		return false
	}), nil
}

func (f *fakePhotoRepo) UpdatePhoto(_ context.Context, p *model.Photo) error {
	stored, ok := f.photos[p.ID]
	if !ok {
		return apperror.NotFound("photo", p.ID)
	}
	stored.Title = p.Title
	stored.Description = p.Description
	stored.Tags = slices.Clone(p.Tags)
	return nil
}

func (f *fakePhotoRepo) DeletePhoto(_ context.Context, id string) error {
	if _, ok := f.photos[id]; !ok {
		return apperror.NotFound("photo", id)
	}
	delete(f.photos, id)
	return nil
}

type fakeIntake struct {
	accepted  int
	discarded []string
	acceptErr error
}

func (f *fakeIntake) Accept(_ context.Context, r io.Reader, declaredMIME, filename, field string) (*upload.StoredFile, error) {
	if err := upload.CheckType(filename, declaredMIME); err != nil {
		return nil, err
	}
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	io.Copy(io.Discard, r)
	f.accepted++
	name := fmt.Sprintf("%s-%d%s", field, f.accepted, strings.ToLower(filename[strings.LastIndex(filename, "."):]))
	return &upload.StoredFile{
		Name:         name,
		ImageURL:     "/uploads/" + name,
		ThumbnailURL: "/uploads/thumb-" + name,
	}, nil
}

func (f *fakeIntake) Discard(_ context.Context, imageURL, thumbnailURL string) {
	f.discarded = append(f.discarded, imageURL, thumbnailURL)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testEnv struct {
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	photos   *fakePhotoRepo
	intake   *fakeIntake
	auth     *AuthService
	photoSvc *PhotoService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	env := &testEnv{
		users:    newFakeUserRepo(),
		sessions: newFakeSessionRepo(),
		intake:   &fakeIntake{},
	}
	env.photos = newFakePhotoRepo(env.users)
	// Cost 4 is the bcrypt minimum and keeps the tests fast.
	env.auth = NewAuthService(env.users, env.sessions, ts, auth.NewPasswordServiceForTest(4), time.Hour, testLogger())
	env.photoSvc = NewPhotoService(env.photos, env.intake, testLogger())
	return env
}

func (e *testEnv) register(t *testing.T, username string) *model.User {
	t.Helper()
	res, err := e.auth.Register(context.Background(), username, "", "secret123")
	if err != nil {
		t.Fatalf("Register(%q): %v", username, err)
	}
	return res.User
}

func pngUpload() *UploadedFile {
	return &UploadedFile{Content: strings.NewReader("png"), Filename: "shot.png", ContentType: "image/png"}
}
