package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photoshare/internal/storage"
)

type recordedRequest struct {
	method string
	path   string
	body   string
}

// fakeBucket answers PUT and DELETE the way S3 does for a path-style bucket.
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string]bool
	requests []recordedRequest
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{method: r.Method, path: r.URL.Path, body: string(body)})

	switch r.Method {
	case http.MethodPut:
		if f.objects[r.URL.Path] && r.Header.Get("If-None-Match") == "*" {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusPreconditionFailed)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>PreconditionFailed</Code><Message>At least one of the pre-conditions you specified did not hold</Message></Error>`)
			return
		}
		f.objects[r.URL.Path] = true
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T) (*Store, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: map[string]bool{}}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), Config{
		Region:          "us-east-1",
		Bucket:          "photos",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		PublicURL:       "https://cdn.example.com/",
		Prefix:          "originals",
	})
	require.NoError(t, err)
	return s, bucket
}

func TestSave_PutsObjectAndReturnsPublicURL(t *testing.T) {
	s, bucket := newTestStore(t)

	ref, err := s.Save(context.Background(), "photo-1.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/originals/photo-1.png", ref)

	require.Len(t, bucket.requests, 1)
	assert.Equal(t, http.MethodPut, bucket.requests[0].method)
	assert.Equal(t, "/photos/originals/photo-1.png", bucket.requests[0].path)
}

func TestSave_ExistingKeyReturnsErrExists(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Save(context.Background(), "photo-1.png", "image/png", strings.NewReader("a"))
	require.NoError(t, err)

	_, err = s.Save(context.Background(), "photo-1.png", "image/png", strings.NewReader("b"))
	assert.True(t, errors.Is(err, storage.ErrExists), "got %v", err)
}

func TestDelete(t *testing.T) {
	s, bucket := newTestStore(t)

	ref, err := s.Save(context.Background(), "photo-1.png", "image/png", strings.NewReader("a"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), ref))
	last := bucket.requests[len(bucket.requests)-1]
	assert.Equal(t, http.MethodDelete, last.method)
	assert.Equal(t, "/photos/originals/photo-1.png", last.path)
}

func TestDelete_ForeignReference(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Error(t, s.Delete(context.Background(), "https://elsewhere.example.com/x.png"))
}
