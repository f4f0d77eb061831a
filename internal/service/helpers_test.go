package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/config"
	"alcyxob/emstore/internal/credential"
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/monitoring"
	"alcyxob/emstore/internal/repository"
	"alcyxob/emstore/internal/repository/memory"
	"alcyxob/emstore/internal/storage"
)

const (
	testSecret  = "test-server-secret-0123456789"
	testBaseURL = "https://emstore.example.com"
)

var errBoom = errors.New("boom")

// recordingStorage is an in-memory FileStorage that can be told to fail.
type recordingStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	puts      int
	failPut   error
	failDel   map[string]bool
	blockPuts bool
}

func newRecordingStorage() *recordingStorage {
	return &recordingStorage{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
		failDel: make(map[string]bool),
	}
}

func (s *recordingStorage) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if s.blockPuts {
		<-ctx.Done()
		return ctx.Err()
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.failPut != nil {
		return s.failPut
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *recordingStorage) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *recordingStorage) DeleteObject(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDel[key] {
		return errBoom
	}
	delete(s.objects, key)
	return nil
}

func (s *recordingStorage) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *recordingStorage) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// mockStorage lets tests script blob store responses call by call.
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, body, size, contentType)
	return args.Error(0)
}

func (m *mockStorage) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockStorage) DeleteObject(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// failingCreateRepo rejects every insert.
type failingCreateRepo struct {
	repository.AttachmentRepository
}

func (r failingCreateRepo) Create(ctx context.Context, a *domain.Attachment) error {
	return errBoom
}

func apiResolver() *URLResolver {
	return NewURLResolver(config.StorageConfig{URLStrategy: config.URLAPI, PublicBaseURL: testBaseURL}, config.S3Config{})
}

func testOptions() AttachmentOptions {
	return AttachmentOptions{
		MaxBytes:     1024,
		AllowedTypes: config.DefaultAllowedTypes,
		Timeout:      time.Second,
	}
}

type attachmentFixture struct {
	store   *memory.Store
	blobs   *recordingStorage
	metrics *monitoring.Metrics
	svc     AttachmentService
}

func newAttachmentFixture(t *testing.T, kind domain.ParentKind, opts AttachmentOptions) *attachmentFixture {
	t.Helper()
	f := &attachmentFixture{
		store:   memory.New(),
		blobs:   newRecordingStorage(),
		metrics: monitoring.NewMetrics(prometheus.NewRegistry()),
	}
	f.svc = NewAttachmentService(f.store.Attachments(kind), f.blobs, apiResolver(), opts, f.metrics, zap.NewNop())
	return f
}

func testCipher(t *testing.T) *credential.Cipher {
	t.Helper()
	c, err := credential.NewCipher(testSecret)
	require.NoError(t, err)
	return c
}

func textFile(name, body string) FileSource {
	return FileSource{Filename: name, ContentType: "text/plain", Reader: bytes.NewReader([]byte(body))}
}
