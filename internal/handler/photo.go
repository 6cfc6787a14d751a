package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/auth"
	"github.com/sakif/photoshare/internal/model"
	"github.com/sakif/photoshare/internal/service"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to temp files.
const multipartMemory = 8 << 20

// Photos is the part of *service.PhotoService the photo handlers use.
type Photos interface {
	Create(ctx context.Context, user *model.User, input model.PhotoInput, file *service.UploadedFile) (*model.Photo, error)
	ListByOwner(ctx context.Context, user *model.User) ([]model.Photo, error)
	ListAll(ctx context.Context) ([]model.Photo, error)
	Search(ctx context.Context, query string) ([]model.Photo, error)
	GetForEdit(ctx context.Context, user *model.User, id string) (*model.Photo, error)
	Update(ctx context.Context, user *model.User, id string, input model.PhotoInput) (*model.Photo, error)
	Delete(ctx context.Context, user *model.User, id string) error
}

// PhotoHandler serves the gallery, search, dashboard and the photo CRUD
// pages. Ownership is decided by the service; the handler only passes the
// resolved user along.
type PhotoHandler struct {
	responder
	photos   Photos
	maxBytes int64
}

func NewPhotoHandler(photos Photos, renderer Renderer, maxUploadBytes int64, logger *slog.Logger) *PhotoHandler {
	return &PhotoHandler{
		responder: responder{renderer: renderer, logger: logger},
		photos:    photos,
		maxBytes:  maxUploadBytes,
	}
}

// HTTP: GET /
func (h *PhotoHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, PageHome, View{})
}

// HTTP: GET /gallery
func (h *PhotoHandler) HandleGallery(w http.ResponseWriter, r *http.Request) {
	photos, err := h.photos.ListAll(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, PageGallery, View{Photos: photos})
}

// HTTP: GET /search?q=
func (h *PhotoHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	photos, err := h.photos.Search(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, PageSearch, View{Photos: photos, Query: query})
}

// HTTP: GET /dashboard
func (h *PhotoHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	photos, err := h.photos.ListByOwner(r.Context(), auth.UserFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, PageDashboard, View{Photos: photos})
}

// HTTP: GET /upload
func (h *PhotoHandler) HandleUploadForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, PageUpload, View{})
}

// HandleUpload stores the image and creates the photo.
//
// HTTP: POST /upload (multipart: photo, title, description, tags)
func (h *PhotoHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	// Leave room for the other form fields on top of the image itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.failForm(w, r, PageUpload, View{}, apperror.ValidationFailed(service.PhotoField, "image is too large"))
			return
		}
		h.failForm(w, r, PageUpload, View{}, apperror.ValidationFailed(service.PhotoField, "invalid upload"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	input, form := photoInputFromForm(r)

	var upload *service.UploadedFile
	file, header, err := r.FormFile(service.PhotoField)
	switch {
	case err == nil:
		defer file.Close()
		upload = &service.UploadedFile{
			Content:     file,
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
		}
	case !errors.Is(err, http.ErrMissingFile):
		h.fail(w, r, err)
		return
	}

	if _, err := h.photos.Create(r.Context(), auth.UserFromContext(r.Context()), input, upload); err != nil {
		h.failForm(w, r, PageUpload, View{Form: form}, err)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HTTP: GET /edit/{id}
func (h *PhotoHandler) HandleEditForm(w http.ResponseWriter, r *http.Request) {
	photo, err := h.photos.GetForEdit(r.Context(), auth.UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, PageEdit, View{Photo: photo})
}

// HandleEdit updates title, description and tags.
//
// HTTP: POST /edit/{id} (form: title, description, tags)
func (h *PhotoHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, apperror.ValidationFailed("", "invalid form submission"))
		return
	}
	input, form := photoInputFromForm(r)

	if _, err := h.photos.Update(r.Context(), auth.UserFromContext(r.Context()), id, input); err != nil {
		view := View{
			Form: form,
			Photo: &model.Photo{
				ID:          id,
				Title:       input.Title,
				Description: input.Description,
				Tags:        input.Tags,
			},
		}
		h.failForm(w, r, PageEdit, view, err)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HTTP: POST /delete/{id}
func (h *PhotoHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.photos.Delete(r.Context(), auth.UserFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func photoInputFromForm(r *http.Request) (model.PhotoInput, map[string]string) {
	form := map[string]string{
		"title":       r.FormValue("title"),
		"description": r.FormValue("description"),
		"tags":        r.FormValue("tags"),
	}
	return model.PhotoInput{
		Title:       form["title"],
		Description: form["description"],
		Tags:        model.ParseTags(form["tags"]),
	}, form
}
