package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/config"
)

func memoryConfig(t *testing.T, backend string) config.Config {
	return config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverMemory},
		Storage: config.StorageConfig{
			Backend:       backend,
			Root:          t.TempDir(),
			Timeout:       time.Second,
			URLStrategy:   config.URLAPI,
			PublicBaseURL: "http://localhost:8080",
		},
		Upload:   config.UploadConfig{MaxBytes: 1024, AllowedTypes: config.DefaultAllowedTypes},
		Security: config.SecurityConfig{SecretKey: "app-test-secret-key-123"},
		JWT:      config.JWTConfig{Secret: "jwt", Expiration: time.Hour},
	}
}

func TestNew_WiresEveryBackendCombination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, backend := range []string{config.BackendFilesystem, config.BackendInline} {
		t.Run(backend, func(t *testing.T) {
			a, err := New(context.Background(), memoryConfig(t, backend), zap.NewNop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = a.Close() })

			router := a.Router()
			body, _ := json.Marshal(map[string]string{"name": "A", "email": "a@example.com", "password": "password123"})
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusCreated, rec.Code)

			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
			assert.Equal(t, http.StatusOK, rec.Code)

			assert.Len(t, a.AttachmentServices(), 2)
		})
	}
}

func TestNew_RejectsWeakSecret(t *testing.T) {
	cfg := memoryConfig(t, config.BackendInline)
	cfg.Security.SecretKey = "short"
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestOpenRepositories_UnknownDriver(t *testing.T) {
	_, err := OpenRepositories(context.Background(), config.DatabaseConfig{Driver: "sqlite"}, zap.NewNop())
	assert.Error(t, err)
}
