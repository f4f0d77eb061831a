// Package app assembles the service from configuration. Both binaries use it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/api"
	"alcyxob/emstore/internal/config"
	"alcyxob/emstore/internal/credential"
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/health"
	"alcyxob/emstore/internal/monitoring"
	"alcyxob/emstore/internal/repository"
	"alcyxob/emstore/internal/repository/memory"
	"alcyxob/emstore/internal/repository/mongo"
	"alcyxob/emstore/internal/repository/postgres"
	"alcyxob/emstore/internal/service"
	"alcyxob/emstore/internal/storage"
)

const (
	healthTimeout   = 3 * time.Second
	indexTimeout    = time.Minute
	multipartMemory = 8 << 20
)

// Repositories is one metadata backend.
type Repositories struct {
	Users           repository.UserRepository
	Campaigns       repository.CampaignRepository
	Submissions     repository.SubmissionRepository
	EmailEntries    repository.EmailEntryRepository
	CampaignFiles   repository.AttachmentRepository
	SubmissionFiles repository.AttachmentRepository
	Pinger          repository.Pinger
	close           func() error
}

// OpenRepositories connects the configured metadata backend.
func OpenRepositories(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*Repositories, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		log.Info("Connected to PostgreSQL")
		return &Repositories{
			Users:           postgres.NewUserRepository(db),
			Campaigns:       postgres.NewCampaignRepository(db),
			Submissions:     postgres.NewSubmissionRepository(db),
			EmailEntries:    postgres.NewEmailEntryRepository(db),
			CampaignFiles:   postgres.NewAttachmentRepository(db, domain.KindCampaign),
			SubmissionFiles: postgres.NewAttachmentRepository(db, domain.KindSubmission),
			Pinger:          postgres.Health{DB: db},
			close:           func() error { return postgres.Close(db) },
		}, nil

	case config.DriverMongo:
		client, err := mongo.ConnectDB(ctx, cfg.URI, "emstore")
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Name)
		idxCtx, cancel := context.WithTimeout(ctx, indexTimeout)
		defer cancel()
		if err := mongo.EnsureIndexes(idxCtx, db); err != nil {
			// Missing indexes only cost performance, except the unique email index.
			log.Warn("Ensuring MongoDB indexes failed", zap.Error(err))
		}
		log.Info("Connected to MongoDB", zap.String("database", cfg.Name))
		return &Repositories{
			Users:           mongo.NewMongoUserRepository(db),
			Campaigns:       mongo.NewMongoCampaignRepository(db),
			Submissions:     mongo.NewMongoSubmissionRepository(db),
			EmailEntries:    mongo.NewMongoEmailEntryRepository(db),
			CampaignFiles:   mongo.NewMongoAttachmentRepository(db, domain.KindCampaign),
			SubmissionFiles: mongo.NewMongoAttachmentRepository(db, domain.KindSubmission),
			Pinger:          mongo.Health{Client: client},
			close:           func() error { return mongo.DisconnectDB(client) },
		}, nil

	case config.DriverMemory:
		store := memory.New()
		log.Warn("Using the in-memory store; data is lost on restart")
		return &Repositories{
			Users:           store.Users(),
			Campaigns:       store.Campaigns(),
			Submissions:     store.Submissions(),
			EmailEntries:    store.EmailEntries(),
			CampaignFiles:   store.Attachments(domain.KindCampaign),
			SubmissionFiles: store.Attachments(domain.KindSubmission),
			Pinger:          store,
			close:           func() error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func (r *Repositories) Close() error {
	if r == nil || r.close == nil {
		return nil
	}
	return r.close()
}

// OpenStorage returns the configured blob store, or nil for the inline backend.
func OpenStorage(ctx context.Context, cfg config.Config, log *zap.Logger) (storage.FileStorage, error) {
	switch cfg.Storage.Backend {
	case config.BackendS3:
		return storage.NewS3Storage(ctx, cfg.S3, log)
	case config.BackendFilesystem:
		log.Info("Using filesystem blob storage", zap.String("root", cfg.Storage.Root))
		return storage.NewFilesystemStorage(cfg.Storage.Root)
	case config.BackendInline:
		log.Info("Storing attachment bytes inline in metadata rows")
		return nil, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// App holds the wired services.
type App struct {
	Config   config.Config
	Log      *zap.Logger
	Registry *prometheus.Registry
	Metrics  *monitoring.Metrics
	Health   *health.Checker

	Repos           *Repositories
	Auth            service.AuthService
	Campaigns       service.CampaignService
	Submissions     service.SubmissionService
	EmailEntries    service.EmailEntryService
	CampaignFiles   service.AttachmentService
	SubmissionFiles service.AttachmentService
}

// New wires every component from cfg.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	cipher, err := credential.NewCipher(cfg.Security.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("credential cipher: %w", err)
	}

	repos, err := OpenRepositories(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	blobs, err := OpenStorage(ctx, cfg, log)
	if err != nil {
		return nil, errors.Join(err, repos.Close())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	checker := health.NewChecker(log)
	checker.AddBackend("database", repos.Pinger, healthTimeout)

	resolver := service.NewURLResolver(cfg.Storage, cfg.S3)
	opts := service.AttachmentOptions{
		MaxBytes:     cfg.Upload.MaxBytes,
		AllowedTypes: cfg.Upload.AllowedTypes,
		KeyPrefix:    cfg.Storage.KeyPrefix,
		Timeout:      cfg.Storage.Timeout,
	}
	campaignFiles := service.NewAttachmentService(repos.CampaignFiles, blobs, resolver, opts, metrics, log)
	submissionFiles := service.NewAttachmentService(repos.SubmissionFiles, blobs, resolver, opts, metrics, log)

	return &App{
		Config:          cfg,
		Log:             log,
		Registry:        reg,
		Metrics:         metrics,
		Health:          checker,
		Repos:           repos,
		Auth:            service.NewAuthService(repos.Users, cfg.JWT.Secret, cfg.JWT.Expiration),
		Campaigns:       service.NewCampaignService(repos.Campaigns, campaignFiles, cipher, metrics, log),
		Submissions:     service.NewSubmissionService(repos.Submissions, submissionFiles, cipher, metrics, log),
		EmailEntries:    service.NewEmailEntryService(repos.EmailEntries, repos.Campaigns, log),
		CampaignFiles:   campaignFiles,
		SubmissionFiles: submissionFiles,
	}, nil
}

// Router returns the HTTP handler for the API.
func (a *App) Router() *gin.Engine {
	return api.NewRouter(api.RouterDeps{
		AuthService:        a.Auth,
		CampaignService:    a.Campaigns,
		SubmissionService:  a.Submissions,
		EmailEntryService:  a.EmailEntries,
		CampaignFiles:      a.CampaignFiles,
		SubmissionFiles:    a.SubmissionFiles,
		Metrics:            a.Metrics,
		Health:             a.Health,
		CORSOrigins:        a.Config.Server.CORSOrigins,
		MaxMultipartMemory: multipartMemory,
		Log:                a.Log,
	})
}

// AttachmentServices returns the attachment service of every parent kind.
func (a *App) AttachmentServices() []service.AttachmentService {
	return []service.AttachmentService{a.CampaignFiles, a.SubmissionFiles}
}

func (a *App) Close() error {
	return a.Repos.Close()
}
