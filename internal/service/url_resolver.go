package service

import (
	"fmt"
	"net/url"
	"strings"

	"alcyxob/emstore/internal/config"
	"alcyxob/emstore/internal/domain"
)

// URLResolver derives download URLs from configuration alone. Exactly one
// strategy is active per deployment, so the same attachment always resolves
// to the same URL.
type URLResolver struct {
	strategy string
	baseURL  string // public_base and api strategies
	endpoint string // endpoint strategy
	bucket   string
}

func NewURLResolver(storageCfg config.StorageConfig, s3Cfg config.S3Config) *URLResolver {
	return &URLResolver{
		strategy: storageCfg.URLStrategy,
		baseURL:  strings.TrimRight(storageCfg.PublicBaseURL, "/"),
		endpoint: strings.TrimRight(s3Cfg.Endpoint, "/"),
		bucket:   s3Cfg.BucketName,
	}
}

// DownloadPath is the API route that streams an attachment's bytes.
func DownloadPath(kind domain.ParentKind, id string) string {
	return "/api/v1/attachments/" + string(kind) + "s/" + url.PathEscape(id) + "/download"
}

// Resolve returns the URL for a, or an error wrapping ErrURLResolution when
// the configuration cannot produce one.
func (r *URLResolver) Resolve(a *domain.Attachment) (string, error) {
	switch r.strategy {
	case config.URLPublicBase:
		if r.baseURL == "" || a.Inline() {
			return "", fmt.Errorf("%w: public base URL needs a configured domain and a stored object", ErrURLResolution)
		}
		return joinKey(r.baseURL, a.BlobKey)
	case config.URLEndpoint:
		if r.endpoint == "" || r.bucket == "" || a.Inline() {
			return "", fmt.Errorf("%w: endpoint URL needs s3.endpoint, s3.bucket_name and a stored object", ErrURLResolution)
		}
		return joinKey(r.endpoint, r.bucket+"/"+a.BlobKey)
	case config.URLAPI:
		if r.baseURL == "" || !a.ParentKind.Valid() || a.ID == "" {
			return "", fmt.Errorf("%w: api URL needs storage.public_base_url and a persisted attachment", ErrURLResolution)
		}
		return r.baseURL + DownloadPath(a.ParentKind, a.ID), nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q", ErrURLResolution, r.strategy)
	}
}

func joinKey(base, key string) (string, error) {
	u, err := url.JoinPath(base, strings.Split(key, "/")...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrURLResolution, err)
	}
	return u, nil
}
