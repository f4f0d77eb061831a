package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"alcyxob/emstore/internal/config"
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/monitoring"
	"alcyxob/emstore/internal/repository/memory"
)

func zipBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("data.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("zipped content"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestUpload_TextFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newAttachmentFixture(t, domain.KindCampaign, testOptions())

	a, err := f.svc.Upload(ctx, "P", textFile("notes.txt", "abc"))
	require.NoError(t, err)

	assert.Equal(t, int64(3), a.SizeBytes)
	assert.Equal(t, "notes.txt", a.OriginalFilename)
	assert.Equal(t, "text/plain", a.ContentType)
	assert.Equal(t, "P", a.ParentID)
	assert.True(t, strings.HasPrefix(a.BlobKey, "campaigns/P/attachments/"), a.BlobKey)
	assert.True(t, strings.HasSuffix(a.BlobKey, ".txt"), a.BlobKey)
	assert.NotContains(t, a.BlobKey, "notes")

	rows, err := f.svc.List(ctx, "P", domain.AttachmentFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	url, err := f.svc.ResolveURL(ctx, &rows[0])
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+"/api/v1/attachments/campaigns/"+a.ID+"/download", url)

	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	rc, err := f.svc.Open(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, "abc", readAll(t, rc))
	assert.Equal(t, "text/plain", f.blobs.types[a.BlobKey])
}

func TestUpload_SizeBoundary(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.MaxBytes = 16
	f := newAttachmentFixture(t, domain.KindSubmission, opts)

	a, err := f.svc.Upload(ctx, "P", textFile("exact.txt", strings.Repeat("a", 16)))
	require.NoError(t, err)
	assert.Equal(t, int64(16), a.SizeBytes)
	require.Equal(t, 1, f.blobs.putCount())

	_, err = f.svc.Upload(ctx, "P", textFile("over.txt", strings.Repeat("a", 17)))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Equal(t, 1, f.blobs.putCount(), "oversized upload must not reach the blob store")

	rows, err := f.svc.List(ctx, "P", domain.AttachmentFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.UploadsTotal.WithLabelValues("submission", monitoring.ResultTooLarge)))
}

func TestUpload_ContentTypeResolution(t *testing.T) {
	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	zipped := zipBytes(t)
	binary := []byte{0x00, 0x9c, 0x13, 0x37, 0x00, 0x42, 0x00, 0x01}

	tests := []struct {
		name     string
		data     []byte
		filename string
		declared string
		want     string
		wantErr  error
	}{
		{"declared allowed wins", []byte("abc"), "notes.txt", "text/plain", "text/plain", nil},
		{"declared with params", []byte("abc"), "notes.txt", "Text/Plain; charset=utf-8", "text/plain", nil},
		{"pdf sniffed", pdf, "scan", "application/octet-stream", "application/pdf", nil},
		{"pdf sniffed under foreign declared type", pdf, "scan.bin", "application/x-custom", "application/pdf", nil},
		{"png sniffed", png, "logo", "", "image/png", nil},
		{"docx declared as octet-stream", zipped, "report.docx", "application/octet-stream", mimeDocx, nil},
		{"docx by vendor string", zipped, "upload", "application/vnd.openxmlformats-officedocument.wordprocessingml.document+zip", mimeDocx, nil},
		{"xlsx not on allow-list", zipped, "sheet.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "", ErrUnsupportedMediaType},
		{"plain zip rejected", zipped, "archive.zip", "application/zip", "", ErrUnsupportedMediaType},
		{"other text maps to plain", []byte("a,b,c\n1,2,3\n"), "data.csv", "text/csv", "text/plain", nil},
		{"unknown binary rejected", binary, "tool.exe", "application/x-msdownload", "", ErrUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAttachmentFixture(t, domain.KindCampaign, testOptions())
			a, err := f.svc.Upload(context.Background(), "P", FileSource{
				Filename:    tt.filename,
				ContentType: tt.declared,
				Reader:      bytes.NewReader(tt.data),
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, f.blobs.putCount(), "rejected upload must not reach the blob store")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.ContentType)
		})
	}
}

func TestUpload_StorageFailure(t *testing.T) {
	ctx := context.Background()
	f := newAttachmentFixture(t, domain.KindCampaign, testOptions())
	f.blobs.failPut = errBoom

	_, err := f.svc.Upload(ctx, "P", textFile("notes.txt", "abc"))
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	rows, err := f.svc.List(ctx, "P", domain.AttachmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUpload_StorageTimeout(t *testing.T) {
	opts := testOptions()
	opts.Timeout = 20 * time.Millisecond
	f := newAttachmentFixture(t, domain.KindCampaign, opts)
	f.blobs.blockPuts = true

	start := time.Now()
	_, err := f.svc.Upload(context.Background(), "P", textFile("notes.txt", "abc"))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestUpload_RowInsertFailureRemovesBlob(t *testing.T) {
	store := memory.New()
	blobs := newRecordingStorage()
	svc := NewAttachmentService(failingCreateRepo{store.Attachments(domain.KindCampaign)}, blobs, apiResolver(), testOptions(), nil, zap.NewNop())

	_, err := svc.Upload(context.Background(), "P", textFile("notes.txt", "abc"))
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, blobs.putCount())
	assert.Empty(t, blobs.keys(), "blob of an uncommitted row should be removed")
}

func TestUpload_ConcurrentUploadsGetDistinctKeys(t *testing.T) {
	ctx := context.Background()
	f := newAttachmentFixture(t, domain.KindCampaign, testOptions())

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Upload(ctx, "P", textFile("same-name.txt", fmt.Sprintf("file %d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rows, err := f.svc.List(ctx, "P", domain.AttachmentFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, n)

	seen := make(map[string]bool, n)
	for _, a := range rows {
		assert.False(t, seen[a.BlobKey], "duplicate key %s", a.BlobKey)
		seen[a.BlobKey] = true
	}
	assert.Len(t, f.blobs.keys(), n)
}

func TestUpload_FilenameIsMetadataOnly(t *testing.T) {
	f := newAttachmentFixture(t, domain.KindCampaign, testOptions())

	a, err := f.svc.Upload(context.Background(), "P", textFile(`..\..\secrets/../../passwd.txt`, "abc"))
	require.NoError(t, err)
	assert.Equal(t, "passwd.txt", a.OriginalFilename)
	assert.NotContains(t, a.BlobKey, "..")
	assert.NotContains(t, a.BlobKey, "passwd")
}

func TestUpload_KeyPrefix(t *testing.T) {
	opts := testOptions()
	opts.KeyPrefix = "/prod/"
	f := newAttachmentFixture(t, domain.KindSubmission, opts)

	a, err := f.svc.Upload(context.Background(), "S1", textFile("notes.TXT", "abc"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(a.BlobKey, "prod/submissions/S1/attachments/"), a.BlobKey)
	assert.True(t, strings.HasSuffix(a.BlobKey, ".txt"), a.BlobKey)
}

func TestUpload_EagerURLWithPublicBase(t *testing.T) {
	store := memory.New()
	blobs := newRecordingStorage()
	resolver := NewURLResolver(config.StorageConfig{URLStrategy: config.URLPublicBase, PublicBaseURL: "https://files.example.com/"}, config.S3Config{})
	svc := NewAttachmentService(store.Attachments(domain.KindCampaign), blobs, resolver, testOptions(), nil, nil)

	a, err := svc.Upload(context.Background(), "P", textFile("notes.txt", "abc"))
	require.NoError(t, err)
	require.True(t, a.HasURL())
	assert.Equal(t, "https://files.example.com/"+a.BlobKey, *a.DownloadURL)
}

func TestResolveURL_LazyThenCached(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := store.Attachments(domain.KindCampaign)
	blobs := newRecordingStorage()

	broken := NewURLResolver(config.StorageConfig{URLStrategy: config.URLPublicBase}, config.S3Config{})
	svc := NewAttachmentService(repo, blobs, broken, testOptions(), nil, nil)

	a, err := svc.Upload(ctx, "P", textFile("notes.txt", "abc"))
	require.NoError(t, err)
	assert.False(t, a.HasURL(), "URL stays empty when it cannot be derived")

	_, err = svc.ResolveURL(ctx, a)
	assert.ErrorIs(t, err, ErrURLResolution)

	endpoint := NewURLResolver(
		config.StorageConfig{URLStrategy: config.URLEndpoint},
		config.S3Config{Endpoint: "https://s3.example.com", BucketName: "mail"},
	)
	fixed := NewAttachmentService(repo, blobs, endpoint, testOptions(), nil, nil)

	row, err := fixed.Get(ctx, a.ID)
	require.NoError(t, err)
	url, err := fixed.ResolveURL(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example.com/mail/"+a.BlobKey, url)

	persisted, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, persisted.HasURL())
	assert.Equal(t, url, *persisted.DownloadURL)
	assert.Equal(t, []byte(nil), persisted.BlobData, "URL update must not touch stored bytes")

	// The cached value wins even when configuration can no longer derive one.
	again, err := svc.ResolveURL(ctx, persisted)
	require.NoError(t, err)
	assert.Equal(t, url, again)
}

func TestFillURLs_WarnsOncePerList(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := store.Attachments(domain.KindCampaign)
	core, logs := observer.New(zapcore.WarnLevel)

	broken := NewURLResolver(config.StorageConfig{URLStrategy: config.URLPublicBase}, config.S3Config{})
	svc := NewAttachmentService(repo, newRecordingStorage(), broken, testOptions(), nil, zap.New(core))

	for i := 0; i < 3; i++ {
		_, err := svc.Upload(ctx, "P", textFile(fmt.Sprintf("n%d.txt", i), "abc"))
		require.NoError(t, err)
	}
	list, err := svc.List(ctx, "P", domain.AttachmentFilter{})
	require.NoError(t, err)

	assert.Equal(t, 3, svc.FillURLs(ctx, list))
	assert.Equal(t, 1, logs.Len(), "one warning for the whole list")
	for _, a := range list {
		assert.False(t, a.HasURL())
	}

	endpoint := NewURLResolver(
		config.StorageConfig{URLStrategy: config.URLEndpoint},
		config.S3Config{Endpoint: "https://s3.example.com", BucketName: "mail"},
	)
	fixed := NewAttachmentService(repo, newRecordingStorage(), endpoint, testOptions(), nil, zap.New(core))
	assert.Zero(t, fixed.FillURLs(ctx, list))
	assert.Equal(t, 1, logs.Len())
	for _, a := range list {
		assert.True(t, a.HasURL())
	}
}

func TestDelete_BlobFailureStillRemovesRow(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := store.Attachments(domain.KindCampaign)
	blobs := new(mockStorage)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	svc := NewAttachmentService(repo, blobs, apiResolver(), testOptions(), metrics, zap.NewNop())

	blobs.On("PutObject", mock.Anything, mock.AnythingOfType("string"), mock.Anything, int64(3), "text/plain").Return(nil).Once()
	blobs.On("DeleteObject", mock.Anything, mock.AnythingOfType("string")).Return(errBoom).Once()

	a, err := svc.Upload(ctx, "P", textFile("notes.txt", "abc"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, a))

	_, err = svc.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BlobDeleteFailures.WithLabelValues("campaign")))
	blobs.AssertExpectations(t)
}

func TestDeleteAllForParent_ContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	f := newAttachmentFixture(t, domain.KindCampaign, testOptions())

	var stuck string
	for i := 0; i < 3; i++ {
		a, err := f.svc.Upload(ctx, "P", textFile(fmt.Sprintf("f%d.txt", i), "abc"))
		require.NoError(t, err)
		if i == 1 {
			stuck = a.BlobKey
		}
	}
	other, err := f.svc.Upload(ctx, "Q", textFile("keep.txt", "abc"))
	require.NoError(t, err)
	f.blobs.failDel[stuck] = true

	require.NoError(t, f.svc.DeleteAllForParent(ctx, "P"))

	rows, err := f.svc.List(ctx, "P", domain.AttachmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.ElementsMatch(t, []string{stuck, other.BlobKey}, f.blobs.keys())
}

func TestInlineBackend(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewAttachmentService(store.Attachments(domain.KindSubmission), nil, apiResolver(), testOptions(), nil, nil)

	a, err := svc.Upload(ctx, "S", textFile("notes.txt", "abc"))
	require.NoError(t, err)
	assert.True(t, a.Inline())
	require.True(t, a.HasURL(), "api strategy resolves eagerly")
	assert.Equal(t, testBaseURL+"/api/v1/attachments/submissions/"+a.ID+"/download", *a.DownloadURL)

	rows, err := svc.List(ctx, "S", domain.AttachmentFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].BlobData, "listings carry metadata only")

	rc, err := svc.Open(ctx, &rows[0])
	require.NoError(t, err)
	assert.Equal(t, "abc", readAll(t, rc))

	require.NoError(t, svc.Delete(ctx, &rows[0]))
	_, err = svc.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_MissingBlob(t *testing.T) {
	ctx := context.Background()
	f := newAttachmentFixture(t, domain.KindCampaign, testOptions())

	a, err := f.svc.Upload(ctx, "P", textFile("notes.txt", "abc"))
	require.NoError(t, err)
	require.NoError(t, f.blobs.DeleteObject(ctx, a.BlobKey))

	_, err = f.svc.Open(ctx, a)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_Filters(t *testing.T) {
	ctx := context.Background()
	f := newAttachmentFixture(t, domain.KindCampaign, testOptions())
	pdf := []byte("%PDF-1.4\n%%EOF\n")

	_, err := f.svc.Upload(ctx, "P", textFile("Quarterly-Report.txt", "abc"))
	require.NoError(t, err)
	_, err = f.svc.Upload(ctx, "P", FileSource{Filename: "invoice.pdf", ContentType: "application/pdf", Reader: bytes.NewReader(pdf)})
	require.NoError(t, err)

	byType, err := f.svc.List(ctx, "P", domain.AttachmentFilter{ContentType: "PDF"})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "invoice.pdf", byType[0].OriginalFilename)

	byName, err := f.svc.List(ctx, "P", domain.AttachmentFilter{Search: "report"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Quarterly-Report.txt", byName[0].OriginalFilename)
}

func TestBackfillURLs(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := store.Attachments(domain.KindCampaign)
	blobs := newRecordingStorage()

	lazy := NewAttachmentService(repo, blobs, NewURLResolver(config.StorageConfig{URLStrategy: config.URLPublicBase}, config.S3Config{}), testOptions(), nil, nil)
	for i := 0; i < 5; i++ {
		_, err := lazy.Upload(ctx, "P", textFile(fmt.Sprintf("f%d.txt", i), "abc"))
		require.NoError(t, err)
	}

	failing, err := lazy.BackfillURLs(ctx, 100, 4)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Scanned: 5, Updated: 0, Failed: 5}, failing)

	svc := NewAttachmentService(repo, blobs, apiResolver(), testOptions(), nil, nil)
	res, err := svc.BackfillURLs(ctx, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Scanned: 3, Updated: 3, Failed: 0}, res)

	res, err = svc.BackfillURLs(ctx, 100, 2)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Scanned: 2, Updated: 2, Failed: 0}, res)

	missing, err := repo.ListMissingURL(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, missing)
}
