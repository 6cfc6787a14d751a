package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/photoshare/internal/auth"
	"github.com/sakif/photoshare/internal/service"
)

const stateCookie = "oauth_state"

// Authenticator is the part of *service.AuthService the auth handlers use.
type Authenticator interface {
	Register(ctx context.Context, username, email, password string) (*service.AuthResult, error)
	Login(ctx context.Context, username, password string) (*service.AuthResult, error)
	DestroySession(ctx context.Context, token string) error
	LoginWithExternalIdentity(ctx context.Context, ident *auth.ExternalIdentity) (*service.AuthResult, error)
}

// AuthHandler serves registration, login and logout, and the optional
// external provider login.
type AuthHandler struct {
	responder
	auth         Authenticator
	provider     auth.ExternalIdentityProvider
	cookieSecure bool
}

// NewAuthHandler creates an AuthHandler. provider may be nil, in which case
// the external login routes are not mounted.
func NewAuthHandler(
	authn Authenticator,
	provider auth.ExternalIdentityProvider,
	renderer Renderer,
	cookieSecure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		responder:    responder{renderer: renderer, logger: logger},
		auth:         authn,
		provider:     provider,
		cookieSecure: cookieSecure,
	}
}

// ExternalEnabled reports whether an external identity provider is configured.
func (h *AuthHandler) ExternalEnabled() bool {
	return h.provider != nil
}

// HandleRegisterForm renders the registration form.
//
// HTTP: GET /register
func (h *AuthHandler) HandleRegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, PageRegister, View{})
}

// HandleRegister creates the account and logs it in.
//
// HTTP: POST /register (form: username, email, password)
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, PageRegister, View{Error: "invalid form submission"})
		return
	}
	username := r.PostForm.Get("username")
	email := r.PostForm.Get("email")

	res, err := h.auth.Register(r.Context(), username, email, r.PostForm.Get("password"))
	if err != nil {
		h.failForm(w, r, PageRegister, View{Form: map[string]string{"username": username, "email": email}}, err)
		return
	}

	auth.SetSessionCookie(w, res.Token, res.ExpiresAt, h.cookieSecure)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleLoginForm renders the login form.
//
// HTTP: GET /login
func (h *AuthHandler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, PageLogin, View{})
}

// HandleLogin checks the credentials and starts a session.
//
// HTTP: POST /login (form: username, password)
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, PageLogin, View{Error: "invalid form submission"})
		return
	}
	username := r.PostForm.Get("username")

	res, err := h.auth.Login(r.Context(), username, r.PostForm.Get("password"))
	if err != nil {
		h.failForm(w, r, PageLogin, View{Form: map[string]string{"username": username}}, err)
		return
	}

	auth.SetSessionCookie(w, res.Token, res.ExpiresAt, h.cookieSecure)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleLogout destroys the session and clears the cookie. Logging out
// without a session is fine.
//
// HTTP: GET or POST /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.DestroySession(r.Context(), auth.SessionToken(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	auth.ClearSessionCookie(w, h.cookieSecure)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleExternalLogin sends the browser to the provider with a fresh state
// value, remembered in a short-lived cookie.
//
// HTTP: GET /auth/github
func (h *AuthHandler) HandleExternalLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	h.setStateCookie(w, state, 600)
	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleExternalCallback completes the provider login.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleExternalCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		h.render(w, r, http.StatusBadRequest, PageLogin, View{Error: "login with GitHub failed, please try again"})
		return
	}

	// Single use.
	h.setStateCookie(w, "", -1)

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.render(w, r, http.StatusBadRequest, PageLogin, View{Error: "login with GitHub failed, please try again"})
		return
	}

	ident, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.auth.LoginWithExternalIdentity(r.Context(), ident)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	auth.SetSessionCookie(w, res.Token, res.ExpiresAt, h.cookieSecure)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// setStateCookie writes or, with a negative maxAge, clears the state cookie.
// Both use the same attributes so the browser treats them as one cookie.
func (h *AuthHandler) setStateCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
