package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photoshare/internal/config"
	"github.com/sakif/photoshare/internal/model"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Port:            0,
		DBPath:          ":memory:",
		TemplateDir:     filepath.Join(dir, "no-templates"),
		SessionSecret:   "test-secret-at-least-16-chars!!",
		SessionTTL:      time.Hour,
		SessionSweep:    "@every 1h",
		UploadDir:       filepath.Join(dir, "uploads"),
		UploadURLPrefix: "/uploads",
		MaxUploadBytes:  1 << 20,
		StorageBackend:  config.StorageDisk,
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// browser is an HTTP client with its own cookie jar that does not follow
// redirects, so tests can assert on them.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, ts *httptest.Server) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: ts.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) do(req *http.Request) *http.Response {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (b *browser) get(path string) *http.Response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) postForm(path string, values url.Values) *http.Response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(values.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) upload(filename, contentType string, body []byte, fields map[string]string) *http.Response {
	b.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(b.t, mw.WriteField(k, v))
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="photo"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(b.t, err)
	_, err = part.Write(body)
	require.NoError(b.t, err)
	require.NoError(b.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, b.base+"/upload", &buf)
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return b.do(req)
}

type page struct {
	Page   string        `json:"page"`
	User   *model.User   `json:"user"`
	Photos []model.Photo `json:"photos"`
	Photo  *model.Photo  `json:"photo"`
	Error  string        `json:"error"`
}

func decodePage(t *testing.T, resp *http.Response) page {
	t.Helper()
	var p page
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	return p
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 30))))
	return buf.Bytes()
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp := newBrowser(t, ts).get("/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProtectedRoutesRedirectAnonymous(t *testing.T) {
	ts := newTestServer(t)
	b := newBrowser(t, ts)

	for _, path := range []string{"/dashboard", "/upload", "/edit/abc"} {
		resp := b.get(path)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/login", resp.Header.Get("Location"), path)
	}
	resp := b.postForm("/delete/abc", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestExternalLoginDisabledByDefault(t *testing.T) {
	ts := newTestServer(t)
	resp := newBrowser(t, ts).get("/auth/github")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPhotoSharingFlow(t *testing.T) {
	ts := newTestServer(t)
	alice := newBrowser(t, ts)
	bob := newBrowser(t, ts)
	anon := newBrowser(t, ts)

	// Registration logs the user in.
	resp := alice.postForm("/register", url.Values{"username": {"alice"}, "password": {"secret123"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp = bob.postForm("/register", url.Values{"username": {"bob"}, "password": {"hunter22"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// A second alice is rejected.
	resp = anon.postForm("/register", url.Values{"username": {"alice"}, "password": {"whatever1"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "register", decodePage(t, resp).Page)

	// Only images are accepted.
	resp = alice.upload("tool.exe", "application/octet-stream", []byte("MZ"), map[string]string{"title": "nope"})
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	resp = alice.upload("sunset.png", "image/png", pngImage(t), map[string]string{
		"title": "Sunset", "description": "over the bay", "tags": "sky, orange",
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	dash := decodePage(t, alice.get("/dashboard"))
	require.Len(t, dash.Photos, 1)
	photo := dash.Photos[0]
	assert.Equal(t, "Sunset", photo.Title)
	assert.Equal(t, []string{"sky", "orange"}, photo.Tags)
	assert.True(t, strings.HasPrefix(photo.ImageURL, "/uploads/photo-"), photo.ImageURL)

	// The stored file is served.
	resp = anon.get(photo.ImageURL)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	served, _ := io.ReadAll(resp.Body)
	assert.Equal(t, pngImage(t), served)

	// Everyone sees it in the gallery and in search.
	gallery := decodePage(t, anon.get("/gallery"))
	require.Len(t, gallery.Photos, 1)
	assert.Equal(t, "alice", gallery.Photos[0].OwnerUsername)
	assert.Len(t, decodePage(t, anon.get("/search?q=ORANGE")).Photos, 1)
	assert.Empty(t, decodePage(t, anon.get("/search?q=volcano")).Photos)

	// Bob can neither edit nor delete it.
	resp = bob.get("/edit/" + photo.ID)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = bob.postForm("/edit/"+photo.ID, url.Values{"title": {"mine"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = bob.postForm("/delete/"+photo.ID, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Alice can.
	resp = alice.postForm("/edit/"+photo.ID, url.Values{"title": {"Dusk"}, "tags": {"evening"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	edited := decodePage(t, alice.get("/edit/"+photo.ID))
	require.NotNil(t, edited.Photo)
	assert.Equal(t, "Dusk", edited.Photo.Title)

	resp = alice.postForm("/delete/"+photo.ID, nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Empty(t, decodePage(t, anon.get("/gallery")).Photos)
	assert.Equal(t, http.StatusNotFound, alice.get("/edit/"+photo.ID).StatusCode)
	assert.Equal(t, http.StatusNotFound, anon.get(photo.ImageURL).StatusCode)

	// Logging out ends the session.
	resp = alice.postForm("/logout", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp = alice.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	b := newBrowser(t, ts)

	resp := b.postForm("/register", url.Values{"username": {"carol"}, "password": {"secret123"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	b.postForm("/logout", nil)

	resp = b.postForm("/login", url.Values{"username": {"carol"}, "password": {"wrong-one"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid username or password", decodePage(t, resp).Error)

	resp = b.postForm("/login", url.Values{"username": {"carol"}, "password": {"secret123"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	home := decodePage(t, b.get("/"))
	require.NotNil(t, home.User)
	assert.Equal(t, "carol", home.User.Username)
}

func TestNewFileStore_S3UsesPrefix(t *testing.T) {
	paths := make(chan string, 1)
	bucket := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		paths <- r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(bucket.Close)

	cfg := &config.Config{
		StorageBackend: config.StorageS3,
		S3: config.S3Config{
			Bucket:          "photos",
			Region:          "us-east-1",
			Endpoint:        bucket.URL,
			AccessKeyID:     "test",
			SecretAccessKey: "test",
			PublicURL:       "https://cdn.example.com",
			Prefix:          "uploads",
		},
	}

	store, diskStore, err := newFileStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, diskStore)

	ref, err := store.Save(context.Background(), "photo-1.png", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/uploads/photo-1.png", ref)
	assert.Equal(t, "/photos/uploads/photo-1.png", <-paths)
}
