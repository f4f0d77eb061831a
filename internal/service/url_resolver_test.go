package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/emstore/internal/config"
	"alcyxob/emstore/internal/domain"
)

func TestURLResolver(t *testing.T) {
	stored := &domain.Attachment{ID: "a1", ParentKind: domain.KindCampaign, BlobKey: "campaigns/p1/attachments/u 1.pdf"}
	inline := &domain.Attachment{ID: "a2", ParentKind: domain.KindSubmission}

	tests := []struct {
		name    string
		storage config.StorageConfig
		s3      config.S3Config
		in      *domain.Attachment
		want    string
		wantErr bool
	}{
		{
			name:    "public base",
			storage: config.StorageConfig{URLStrategy: config.URLPublicBase, PublicBaseURL: "https://pub.r2.dev/"},
			in:      stored,
			want:    "https://pub.r2.dev/campaigns/p1/attachments/u%201.pdf",
		},
		{
			name:    "public base without domain",
			storage: config.StorageConfig{URLStrategy: config.URLPublicBase},
			in:      stored,
			wantErr: true,
		},
		{
			name:    "public base cannot serve inline bytes",
			storage: config.StorageConfig{URLStrategy: config.URLPublicBase, PublicBaseURL: "https://pub.r2.dev"},
			in:      inline,
			wantErr: true,
		},
		{
			name:    "endpoint",
			storage: config.StorageConfig{URLStrategy: config.URLEndpoint},
			s3:      config.S3Config{Endpoint: "http://localhost:9000/", BucketName: "attachments"},
			in:      stored,
			want:    "http://localhost:9000/attachments/campaigns/p1/attachments/u%201.pdf",
		},
		{
			name:    "endpoint without bucket",
			storage: config.StorageConfig{URLStrategy: config.URLEndpoint},
			s3:      config.S3Config{Endpoint: "http://localhost:9000"},
			in:      stored,
			wantErr: true,
		},
		{
			name:    "api route",
			storage: config.StorageConfig{URLStrategy: config.URLAPI, PublicBaseURL: "https://api.example.com"},
			in:      inline,
			want:    "https://api.example.com/api/v1/attachments/submissions/a2/download",
		},
		{
			name:    "unknown strategy",
			storage: config.StorageConfig{URLStrategy: "presign"},
			in:      stored,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewURLResolver(tt.storage, tt.s3)
			got, err := r.Resolve(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrURLResolution)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := r.Resolve(tt.in)
			require.NoError(t, err)
			assert.Equal(t, got, again, "resolution must be deterministic")
		})
	}
}
