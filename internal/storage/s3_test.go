package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/config"
)

// fakeS3 answers path-style requests for a single bucket.
type fakeS3 struct {
	mu       sync.Mutex
	requests []string
	objects  map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	_, _ = io.Copy(io.Discard, r.Body)

	switch r.Method {
	case http.MethodPut:
		f.objects[r.URL.Path] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		if _, ok := f.objects[r.URL.Path]; !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.objects[r.URL.Path])
		_, _ = io.WriteString(w, "stored-bytes")
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}
}

func newFakeS3Storage(t *testing.T) (*fakeS3, FileStorage) {
	t.Helper()
	fake := &fakeS3{objects: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3Storage(context.Background(), config.S3Config{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		BucketName:      "attachments",
	}, zap.NewNop())
	require.NoError(t, err)
	return fake, store
}

func TestS3Storage_RequiresBucket(t *testing.T) {
	_, err := NewS3Storage(context.Background(), config.S3Config{Region: "us-east-1"}, zap.NewNop())
	assert.Error(t, err)
}

func TestS3Storage_PutGetDeleteUsePathStyle(t *testing.T) {
	ctx := context.Background()
	fake, store := newFakeS3Storage(t)
	key := "emails/campaigns/c1/attachments/abc.pdf"

	require.NoError(t, store.PutObject(ctx, key, strings.NewReader("%PDF-1.4"), 8, "application/pdf"))

	rc, err := store.GetObject(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "stored-bytes", string(body))

	require.NoError(t, store.DeleteObject(ctx, key))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{
		"PUT /attachments/" + key,
		"GET /attachments/" + key,
		"DELETE /attachments/" + key,
	}, fake.requests)
	assert.Empty(t, fake.objects)
}

func TestS3Storage_MissingObject(t *testing.T) {
	_, store := newFakeS3Storage(t)
	_, err := store.GetObject(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
