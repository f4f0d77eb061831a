package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/monitoring"
	"alcyxob/emstore/internal/repository"
	"alcyxob/emstore/internal/storage"
)

const (
	DefaultMaxUploadBytes = 10 << 20
	DefaultBlobTimeout    = 30 * time.Second

	maxFilenameLength = 255
	maxExtLength      = 10
)

// AttachmentOptions configures one AttachmentService. Zero values fall back to defaults.
type AttachmentOptions struct {
	MaxBytes     int64
	AllowedTypes []string
	KeyPrefix    string
	Timeout      time.Duration // bound on each blob store call
}

// PreparedFile is an upload that passed validation but has not been stored yet.
type PreparedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// FileSource is an incoming file as the transport layer sees it.
type FileSource struct {
	Filename    string
	ContentType string
	Reader      io.Reader
}

// BackfillResult counts the outcome of a URL backfill run.
type BackfillResult struct {
	Scanned int
	Updated int
	Failed  int
}

type AttachmentService interface {
	Kind() domain.ParentKind

	// Prepare reads and validates a file without touching the blob store.
	Prepare(src FileSource) (*PreparedFile, error)
	// Store writes a prepared file for parentID and records its row.
	Store(ctx context.Context, parentID string, file *PreparedFile) (*domain.Attachment, error)
	// Upload is Prepare followed by Store.
	Upload(ctx context.Context, parentID string, src FileSource) (*domain.Attachment, error)

	Get(ctx context.Context, id string) (*domain.Attachment, error)
	List(ctx context.Context, parentID string, filter domain.AttachmentFilter) ([]domain.Attachment, error)
	ResolveURL(ctx context.Context, a *domain.Attachment) (string, error)
	// FillURLs resolves URLs for the rows of list that have none, logging
	// failures once for the whole list. It returns the number of failures.
	FillURLs(ctx context.Context, list []domain.Attachment) int
	Open(ctx context.Context, a *domain.Attachment) (io.ReadCloser, error)

	Delete(ctx context.Context, a *domain.Attachment) error
	DeleteAllForParent(ctx context.Context, parentID string) error

	// BackfillURLs resolves and caches URLs for up to limit rows that have none.
	BackfillURLs(ctx context.Context, limit, workers int) (BackfillResult, error)
}

// attachmentService implements AttachmentService for one parent kind.
type attachmentService struct {
	repo     repository.AttachmentRepository
	store    storage.FileStorage // nil: bytes are kept inline in the row
	resolver *URLResolver
	types    *contentTypeResolver
	opts     AttachmentOptions
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewAttachmentService wires an attachment service. A nil store selects the
// inline variant where bytes live in the metadata row.
func NewAttachmentService(
	repo repository.AttachmentRepository,
	store storage.FileStorage,
	resolver *URLResolver,
	opts AttachmentOptions,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) AttachmentService {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxUploadBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBlobTimeout
	}
	opts.KeyPrefix = strings.Trim(opts.KeyPrefix, "/")
	if log == nil {
		log = zap.NewNop()
	}
	return &attachmentService{
		repo:     repo,
		store:    store,
		resolver: resolver,
		types:    newContentTypeResolver(opts.AllowedTypes),
		opts:     opts,
		metrics:  metrics,
		log:      log.With(zap.String("kind", string(repo.Kind()))),
	}
}

func (s *attachmentService) Kind() domain.ParentKind { return s.repo.Kind() }

func (s *attachmentService) kind() string { return string(s.repo.Kind()) }

func (s *attachmentService) Prepare(src FileSource) (*PreparedFile, error) {
	// One byte past the limit is enough to know the upload is too large.
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(src.Reader, s.opts.MaxBytes+1))
	if err != nil {
		s.metrics.RecordUpload(s.kind(), monitoring.ResultFailed, 0)
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if n > s.opts.MaxBytes {
		s.metrics.RecordUpload(s.kind(), monitoring.ResultTooLarge, 0)
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrPayloadTooLarge, s.opts.MaxBytes)
	}

	filename := cleanFilename(src.Filename)
	contentType, err := s.types.resolve(buf.Bytes(), filename, src.ContentType)
	if err != nil {
		s.metrics.RecordUpload(s.kind(), monitoring.ResultUnsupported, 0)
		return nil, fmt.Errorf("%w: %q (declared %q)", err, filename, src.ContentType)
	}

	return &PreparedFile{Filename: filename, ContentType: contentType, Data: buf.Bytes()}, nil
}

func (s *attachmentService) Store(ctx context.Context, parentID string, file *PreparedFile) (*domain.Attachment, error) {
	if parentID == "" {
		return nil, invalid("parent id is required")
	}

	now := time.Now().UTC()
	a := &domain.Attachment{
		ID:               uuid.NewString(),
		ParentKind:       s.repo.Kind(),
		ParentID:         parentID,
		OriginalFilename: file.Filename,
		ContentType:      file.ContentType,
		SizeBytes:        int64(len(file.Data)),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if s.store == nil {
		a.BlobData = file.Data
	} else {
		a.BlobKey = s.objectKey(parentID, file.Filename)
		if err := s.putBlob(ctx, a.BlobKey, file); err != nil {
			s.metrics.RecordUpload(s.kind(), monitoring.ResultStorage, 0)
			return nil, err
		}
	}

	// Eager URL when configuration allows it; otherwise resolved lazily.
	if u, err := s.resolver.Resolve(a); err == nil {
		a.DownloadURL = &u
	}

	if err := s.repo.Create(ctx, a); err != nil {
		s.metrics.RecordUpload(s.kind(), monitoring.ResultFailed, 0)
		if !a.Inline() {
			s.discardBlob(ctx, a.BlobKey)
		}
		return nil, fmt.Errorf("save attachment: %w", err)
	}

	s.metrics.RecordUpload(s.kind(), monitoring.ResultOK, a.SizeBytes)
	s.log.Info("Attachment stored",
		zap.String("id", a.ID),
		zap.String("parentId", parentID),
		zap.String("contentType", a.ContentType),
		zap.Int64("size", a.SizeBytes),
	)
	a.BlobData = nil
	return a, nil
}

func (s *attachmentService) Upload(ctx context.Context, parentID string, src FileSource) (*domain.Attachment, error) {
	file, err := s.Prepare(src)
	if err != nil {
		return nil, err
	}
	return s.Store(ctx, parentID, file)
}

func (s *attachmentService) putBlob(ctx context.Context, key string, file *PreparedFile) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := s.store.PutObject(ctx, key, bytes.NewReader(file.Data), int64(len(file.Data)), file.ContentType)
	s.metrics.RecordBlobWrite(time.Since(start))
	if err != nil {
		s.log.Error("Blob write failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// discardBlob removes an object whose row never committed. Failure leaves an orphan.
func (s *attachmentService) discardBlob(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cancel()
	if err := s.store.DeleteObject(ctx, key); err != nil {
		s.log.Warn("Orphaned blob after failed insert", zap.String("key", key), zap.Error(err))
	}
}

// objectKey builds <prefix>/<kind>s/<parent>/attachments/<uuid><ext>.
func (s *attachmentService) objectKey(parentID, filename string) string {
	name := uuid.NewString() + safeExt(filename)
	return path.Join(s.opts.KeyPrefix, s.kind()+"s", parentID, "attachments", name)
}

func (s *attachmentService) Get(ctx context.Context, id string) (*domain.Attachment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "get attachment")
	}
	return a, nil
}

func (s *attachmentService) List(ctx context.Context, parentID string, filter domain.AttachmentFilter) ([]domain.Attachment, error) {
	list, err := s.repo.ListByParent(ctx, parentID, filter)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return list, nil
}

func (s *attachmentService) ResolveURL(ctx context.Context, a *domain.Attachment) (string, error) {
	u, err := s.resolveURL(ctx, a)
	if err != nil {
		s.log.Warn("Download URL resolution failed", zap.String("id", a.ID), zap.Error(err))
	}
	return u, err
}

func (s *attachmentService) FillURLs(ctx context.Context, list []domain.Attachment) int {
	var failed int
	var firstErr error
	for i := range list {
		if list[i].HasURL() {
			continue
		}
		if _, err := s.resolveURL(ctx, &list[i]); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed++
		}
	}
	if failed > 0 {
		s.log.Warn("Download URL resolution failed for listed attachments",
			zap.Int("failed", failed), zap.Int("listed", len(list)), zap.Error(firstErr))
	}
	return failed
}

// resolveURL derives and caches the URL without logging a failure.
func (s *attachmentService) resolveURL(ctx context.Context, a *domain.Attachment) (string, error) {
	if a.HasURL() {
		s.metrics.RecordURLResolution("cached")
		return *a.DownloadURL, nil
	}

	u, err := s.resolver.Resolve(a)
	if err != nil {
		s.metrics.RecordURLResolution("failed")
		return "", err
	}
	s.metrics.RecordURLResolution("derived")

	if err := s.repo.SetDownloadURL(ctx, a.ID, u); err != nil {
		// The URL is deterministic, so an uncached result is still correct.
		s.log.Warn("Caching download URL failed", zap.String("id", a.ID), zap.Error(err))
	}
	a.DownloadURL = &u
	return u, nil
}

func (s *attachmentService) Open(ctx context.Context, a *domain.Attachment) (io.ReadCloser, error) {
	if a.Inline() {
		if a.BlobData == nil && a.SizeBytes > 0 {
			full, err := s.Get(ctx, a.ID)
			if err != nil {
				return nil, err
			}
			a = full
		}
		return io.NopCloser(bytes.NewReader(a.BlobData)), nil
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: attachment %s has a blob key but no blob store is configured", ErrStorageUnavailable, a.ID)
	}

	rc, err := s.store.GetObject(ctx, a.BlobKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.log.Error("Attachment row references a missing blob", zap.String("id", a.ID), zap.String("key", a.BlobKey))
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return rc, nil
}

// Delete removes the blob first, then the row. A failed blob delete is
// logged and never blocks the row delete.
func (s *attachmentService) Delete(ctx context.Context, a *domain.Attachment) error {
	s.deleteBlob(ctx, a)
	if err := s.repo.Delete(ctx, a.ID); err != nil {
		return notFound(err, "delete attachment")
	}
	s.log.Info("Attachment deleted", zap.String("id", a.ID), zap.String("parentId", a.ParentID))
	return nil
}

func (s *attachmentService) deleteBlob(ctx context.Context, a *domain.Attachment) {
	if a.Inline() || s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if err := s.store.DeleteObject(ctx, a.BlobKey); err != nil {
		s.metrics.RecordBlobDeleteFailure(s.kind())
		s.log.Error("Blob delete failed, continuing with row delete",
			zap.String("id", a.ID), zap.String("key", a.BlobKey), zap.Error(err))
	}
}

// DeleteAllForParent deletes attachments one at a time. Individual failures
// are logged; rows left behind are removed by the parent's own delete.
func (s *attachmentService) DeleteAllForParent(ctx context.Context, parentID string) error {
	list, err := s.repo.ListByParent(ctx, parentID, domain.AttachmentFilter{})
	if err != nil {
		return fmt.Errorf("list attachments for cascade: %w", err)
	}
	for i := range list {
		a := &list[i]
		s.deleteBlob(ctx, a)
		if err := s.repo.Delete(ctx, a.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.log.Error("Attachment row delete failed during cascade", zap.String("id", a.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *attachmentService) BackfillURLs(ctx context.Context, limit, workers int) (BackfillResult, error) {
	list, err := s.repo.ListMissingURL(ctx, limit)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("list attachments without URL: %w", err)
	}
	if workers <= 0 {
		workers = 1
	}

	var updated, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range list {
		a := &list[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if _, err := s.resolveURL(gctx, a); err != nil {
				failed.Add(1)
				return nil
			}
			updated.Add(1)
			return nil
		})
	}
	err = g.Wait()

	res := BackfillResult{Scanned: len(list), Updated: int(updated.Load()), Failed: int(failed.Load())}
	s.log.Info("Download URL backfill finished",
		zap.Int("scanned", res.Scanned), zap.Int("updated", res.Updated), zap.Int("failed", res.Failed))
	return res, err
}

// cleanFilename keeps only the base name, bounded to the column width.
func cleanFilename(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return "attachment"
	}
	for len(name) > maxFilenameLength {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}

// safeExt returns the lowercased extension if it is short and alphanumeric.
func safeExt(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) < 2 || len(ext) > maxExtLength+1 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
