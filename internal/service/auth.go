// Package service holds the business rules between the HTTP handlers and the
// repositories:
//
//	Handler (HTTP) → Service (validation, sessions, ownership) → Repository (DB)
//
// Services take and return plain Go values and apperror errors. They never see
// an *http.Request, so the same rules apply to every caller.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/auth"
	"github.com/sakif/photoshare/internal/model"
	"github.com/sakif/photoshare/internal/repository"
)

const (
	DefaultSessionTTL = 24 * time.Hour

	MinUsernameLength = 3
	MaxUsernameLength = 32
	MinPasswordLength = 6
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// AuthService registers users, checks credentials and owns the session
// lifecycle.
//
// A session is a row in the sessions table plus a signed token naming it. The
// token only proves which session the browser claims; the row decides whether
// that session still exists, so destroying it takes effect on the very next
// request.
type AuthService struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	ttl time.Duration,
	logger *slog.Logger,
) *AuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		passwords: passwords,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// AuthResult bundles an authenticated user with the token of the session
// established for them, so the handler can set the cookie in one step.
type AuthResult struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// Register creates an account and logs it in.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if email != "" && !strings.Contains(email, "@") {
		return nil, apperror.ValidationFailed("email", "email address is not valid")
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicateUsername) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user %q: %w", username, err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID), slog.String("username", user.Username))
	return s.EstablishSession(ctx, user)
}

// Authenticate checks a username and password. Unknown usernames and wrong
// passwords both yield InvalidCredentials and cost one bcrypt comparison.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperror.InvalidCredentials()
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.VerifyAgainstDummy(password)
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up %q: %w", username, err)
	}

	// Accounts created through an external provider have no password.
	if user.PasswordHash == "" {
		s.passwords.VerifyAgainstDummy(password)
		return nil, apperror.InvalidCredentials()
	}
	if !auth.Verify(user.PasswordHash, password) {
		return nil, apperror.InvalidCredentials()
	}
	return user, nil
}

// Login authenticates and establishes a session.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		s.logger.Info("login failed", slog.String("username", strings.TrimSpace(username)))
		return nil, err
	}
	return s.EstablishSession(ctx, user)
}

// EstablishSession starts a new session for an authenticated user. Every call
// creates a distinct session; existing sessions of the user stay valid.
func (s *AuthService) EstablishSession(ctx context.Context, user *model.User) (*AuthResult, error) {
	now := s.now()
	session := &model.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("service/auth: creating session for %s: %w", user.ID, err)
	}

	token, err := s.tokens.Issue(session.ID, user.ID, session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for %s: %w", user.ID, err)
	}

	s.logger.Info("session established", slog.String("userID", user.ID))
	return &AuthResult{User: user, Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// ResolveSession maps a session token to its user. A token that is malformed,
// forged, expired, destroyed or names a deleted user resolves to (nil, false).
func (s *AuthService) ResolveSession(ctx context.Context, token string) (*model.User, bool) {
	if token == "" {
		return nil, false
	}

	claims, err := s.tokens.Parse(token)
	if err != nil {
		s.logger.Debug("session token rejected", slog.String("error", err.Error()))
		return nil, false
	}

	session, err := s.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Warn("session lookup failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	if session.UserID != claims.UserID || session.Expired(s.now()) {
		return nil, false
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Warn("session user lookup failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	return user, true
}

// DestroySession ends the session behind token. Destroying an unknown or
// already destroyed session succeeds.
func (s *AuthService) DestroySession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	sessionID, err := s.tokens.SessionID(token)
	if err != nil {
		// Nothing we issued, so nothing to destroy.
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("service/auth: deleting session: %w", err)
	}
	s.logger.Info("session destroyed")
	return nil
}

// LoginWithExternalIdentity finds or creates the account linked to an external
// identity and establishes a session. When the provider's username is taken
// by a local account a suffixed variant is used.
func (s *AuthService) LoginWithExternalIdentity(ctx context.Context, ident *auth.ExternalIdentity) (*AuthResult, error) {
	if ident == nil || ident.ID == 0 {
		return nil, fmt.Errorf("service/auth: external identity must not be empty")
	}

	user, err := s.users.GetUserByGitHubID(ctx, ident.ID)
	switch {
	case err == nil:
		return s.EstablishSession(ctx, user)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up github user %d: %w", ident.ID, err)
	}

	githubID := ident.ID
	base := externalUsername(ident.Username)
	for _, candidate := range usernameCandidates(base) {
		user = &model.User{
			Username: candidate,
			Email:    ident.Email,
			GitHubID: &githubID,
		}
		err = s.users.CreateUser(ctx, user)
		if err == nil {
			s.logger.Info("user registered via github",
				slog.String("userID", user.ID),
				slog.String("username", user.Username),
				slog.Int64("githubID", githubID),
			)
			return s.EstablishSession(ctx, user)
		}
		if !errors.Is(err, apperror.ErrDuplicateUsername) {
			return nil, fmt.Errorf("service/auth: creating github user %d: %w", ident.ID, err)
		}
	}
	return nil, fmt.Errorf("service/auth: no free username for github user %d: %w", ident.ID, err)
}

// SweepExpiredSessions deletes sessions past their expiry.
func (s *AuthService) SweepExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service/auth: sweeping sessions: %w", err)
	}
	return n, nil
}

func validateUsername(username string) error {
	switch {
	case username == "":
		return apperror.ValidationFailed("username", "username is required")
	case len(username) < MinUsernameLength || len(username) > MaxUsernameLength:
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d to %d characters", MinUsernameLength, MaxUsernameLength))
	case !usernamePattern.MatchString(username):
		return apperror.ValidationFailed("username",
			"username may only contain letters, digits, '.', '_' and '-'")
	}
	return nil
}

// externalUsername coerces a provider login into a valid local username.
func externalUsername(login string) string {
	var b strings.Builder
	for _, r := range login {
		if r < 128 && usernamePattern.MatchString(string(r)) {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if len(name) > MaxUsernameLength-8 {
		name = name[:MaxUsernameLength-8]
	}
	for len(name) < MinUsernameLength {
		name += "_"
	}
	return name
}

func usernameCandidates(base string) []string {
	candidates := []string{base}
	for i := 2; i <= 4; i++ {
		candidates = append(candidates, fmt.Sprintf("%s-%d", base, i))
	}
	// Last resort: a random suffix that cannot realistically clash.
	id := xid.New().String()
	return append(candidates, base+"-"+id[len(id)-6:])
}
