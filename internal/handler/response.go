package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/auth"
)

// LoginPath is where unauthenticated requests are sent.
const LoginPath = "/login"

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an error to its HTTP status. Anything that is not an
// *apperror.AppError is an infrastructure failure.
func statusFor(err error) int {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	switch {
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// isFormError reports whether the user can fix err by resubmitting the form.
func isFormError(err error) bool {
	return errors.Is(err, apperror.ErrValidation) ||
		errors.Is(err, apperror.ErrInvalidCredentials) ||
		errors.Is(err, apperror.ErrDuplicateUsername) ||
		errors.Is(err, apperror.ErrUnsupportedMediaType)
}

// responder is shared by the handlers for rendering pages and failures.
type responder struct {
	renderer Renderer
	logger   *slog.Logger
}

func (rs *responder) render(w http.ResponseWriter, r *http.Request, status int, page string, view View) {
	if view.User == nil {
		view.User = auth.UserFromContext(r.Context())
	}
	rs.renderer.Render(w, status, page, view)
}

// fail renders the error view for err. Unauthenticated requests are
// redirected to the login page instead.
func (rs *responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperror.ErrUnauthenticated) {
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		return
	}

	status := statusFor(err)
	message := "An internal error occurred"
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	} else {
		// Never show infrastructure errors to the user.
		rs.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	rs.render(w, r, status, PageError, View{Error: message})
}

// failForm re-renders page with the error message for errors the user can
// correct, and falls back to fail for everything else.
func (rs *responder) failForm(w http.ResponseWriter, r *http.Request, page string, view View, err error) {
	if !isFormError(err) {
		rs.fail(w, r, err)
		return
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		view.Error = appErr.Message
		view.Field = appErr.Field
	}
	rs.render(w, r, statusFor(err), page, view)
}
