package handler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sakif/photoshare/internal/model"
)

// Page names. With the template renderer each page is <name>.html rendered
// inside base.html.
const (
	PageHome      = "home"
	PageGallery   = "gallery"
	PageSearch    = "search"
	PageDashboard = "dashboard"
	PageUpload    = "upload"
	PageEdit      = "edit"
	PageRegister  = "register"
	PageLogin     = "login"
	PageError     = "error"
)

var pages = []string{
	PageHome, PageGallery, PageSearch, PageDashboard, PageUpload,
	PageEdit, PageRegister, PageLogin, PageError,
}

// View is everything a page may show. Form echoes submitted values back when a
// form is re-rendered with an error.
type View struct {
	User   *model.User       `json:"user,omitempty"`
	Photos []model.Photo     `json:"photos,omitempty"`
	Photo  *model.Photo      `json:"photo,omitempty"`
	Query  string            `json:"query,omitempty"`
	Error  string            `json:"error,omitempty"`
	Field  string            `json:"field,omitempty"`
	Form   map[string]string `json:"form,omitempty"`
}

// Renderer writes a page. Implementations own formatting entirely; handlers
// only pick the status, page and view.
type Renderer interface {
	Render(w http.ResponseWriter, status int, page string, view View)
}

// NewRenderer returns a TemplateRenderer when templateDir holds base.html and
// a JSONRenderer otherwise.
func NewRenderer(templateDir string, logger *slog.Logger) (Renderer, error) {
	if _, err := os.Stat(filepath.Join(templateDir, "base.html")); errors.Is(err, fs.ErrNotExist) {
		logger.Warn("no templates found, rendering JSON", slog.String("dir", templateDir))
		return NewJSONRenderer(logger), nil
	}
	return NewTemplateRenderer(templateDir, logger)
}

// TemplateRenderer renders html/template pages parsed once at startup.
type TemplateRenderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// NewTemplateRenderer parses base.html together with each page file, so every
// page fills base's "content" block independently.
func NewTemplateRenderer(templateDir string, logger *slog.Logger) (*TemplateRenderer, error) {
	base := filepath.Join(templateDir, "base.html")
	set := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		tmpl, err := template.ParseFiles(base, filepath.Join(templateDir, page+".html"))
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", page, err)
		}
		set[page] = tmpl
	}
	return &TemplateRenderer{pages: set, logger: logger}, nil
}

func (t *TemplateRenderer) Render(w http.ResponseWriter, status int, page string, view View) {
	tmpl, ok := t.pages[page]
	if !ok {
		t.logger.Error("unknown page", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// Render into a buffer so a template error can still become a clean 500.
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", view); err != nil {
		t.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// JSONRenderer writes the view as JSON, tagged with the page name.
type JSONRenderer struct {
	logger *slog.Logger
}

func NewJSONRenderer(logger *slog.Logger) *JSONRenderer {
	return &JSONRenderer{logger: logger}
}

type jsonPage struct {
	Page string `json:"page"`
	View
}

func (j *JSONRenderer) Render(w http.ResponseWriter, status int, page string, view View) {
	writeJSON(w, status, jsonPage{Page: page, View: view})
}
