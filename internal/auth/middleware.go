package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/sakif/photoshare/internal/model"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "session"

// contextKey is an unexported type used for context keys in this package.
type contextKey string

const userKey contextKey = "user"

// SessionResolver turns a session token into the user behind it. It reports
// false for a missing, expired or revoked session and never fails.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*model.User, bool)
}

// LoadSession resolves the session cookie once per request and stores the
// resulting user in the request context. Anonymous requests pass through
// unchanged; protected routes add RequireAuth.
func LoadSession(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := SessionToken(r); token != "" {
				if user, ok := resolver.ResolveSession(r.Context(), token); ok {
					r = r.WithContext(WithUser(r.Context(), user))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth applies RouteGuard and redirects anonymous requests to loginPath.
func RequireAuth(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := RouteGuard(UserFromContext(r.Context())); err != nil {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUser returns a context carrying the resolved user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the user resolved by LoadSession, or nil for an
// anonymous request. Handlers pass the value explicitly to the services.
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(userKey).(*model.User)
	return user
}

// SessionToken returns the raw session token from the request, or "".
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetSessionCookie stores the token in an HttpOnly cookie that expires with the
// session.
func SetSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
