package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/health"
	"alcyxob/emstore/internal/monitoring"
	"alcyxob/emstore/internal/service"
)

// RouterDeps is everything the HTTP layer needs.
type RouterDeps struct {
	AuthService       service.AuthService
	CampaignService   service.CampaignService
	SubmissionService service.SubmissionService
	EmailEntryService service.EmailEntryService
	CampaignFiles     service.AttachmentService
	SubmissionFiles   service.AttachmentService
	Metrics           *monitoring.Metrics
	Health            *health.Checker // optional
	CORSOrigins       []string
	// MaxMultipartMemory bounds in-memory multipart parsing; larger parts spill to disk.
	MaxMultipartMemory int64
	Log                *zap.Logger
}

// NewRouter builds the engine with the global middleware and all routes.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(deps.Log))
	router.Use(MetricsMiddleware(deps.Metrics))
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(corsConfig(deps.CORSOrigins)))
	}
	if deps.MaxMultipartMemory > 0 {
		router.MaxMultipartMemory = deps.MaxMultipartMemory
	}

	SetupRoutes(router, deps)
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Duplicates"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// Credentials cannot be combined with a wildcard origin.
	for _, o := range origins {
		if o == "*" {
			cfg.AllowOrigins = nil
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			break
		}
	}
	return cfg
}

func SetupRoutes(router *gin.Engine, deps RouterDeps) {
	authHandler := NewAuthHandler(deps.AuthService, deps.Log)
	campaignHandler := NewCampaignHandler(deps.CampaignService, deps.Log)
	submissionHandler := NewSubmissionHandler(deps.SubmissionService, deps.Log)
	entryHandler := NewEmailEntryHandler(deps.EmailEntryService, deps.Log)
	attachmentHandler := NewAttachmentHandler(
		deps.CampaignService, deps.CampaignFiles,
		deps.SubmissionService, deps.SubmissionFiles,
		deps.Log,
	)

	authMiddleware := AuthMiddleware(deps.AuthService)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}
	if deps.Health != nil {
		router.GET("/healthz/live", gin.WrapH(deps.Health.LiveHandler()))
		router.GET("/healthz/ready", gin.WrapH(deps.Health.ReadyHandler()))
	}

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		// Public: attachment IDs are unguessable and the route backs the api URL strategy.
		apiV1.GET("/attachments/:kind/:id/download", attachmentHandler.Download)
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", authHandler.Me)

		campaigns := protected.Group("/campaigns")
		{
			campaigns.POST("", campaignHandler.Create)
			campaigns.GET("", campaignHandler.List)
			campaigns.GET("/:id", campaignHandler.Get)
			campaigns.PUT("/:id", campaignHandler.Update)
			campaigns.DELETE("/:id", campaignHandler.Delete)
			campaigns.GET("/:id/password", campaignHandler.Password)
			campaigns.POST("/:id/attachments", attachmentHandler.UploadFor(domain.KindCampaign))
			campaigns.GET("/:id/attachments", attachmentHandler.ListFor(domain.KindCampaign))
		}

		submissions := protected.Group("/submissions")
		{
			submissions.POST("", submissionHandler.Create)
			submissions.GET("", submissionHandler.List)
			submissions.GET("/:id", submissionHandler.Get)
			submissions.PUT("/:id", submissionHandler.Update)
			submissions.DELETE("/:id", submissionHandler.Delete)
			submissions.GET("/:id/password", submissionHandler.Password)
			submissions.POST("/:id/attachments", attachmentHandler.UploadFor(domain.KindSubmission))
			submissions.GET("/:id/attachments", attachmentHandler.ListFor(domain.KindSubmission))
		}

		entries := protected.Group("/email-entries")
		{
			entries.POST("", entryHandler.Create)
			entries.GET("", entryHandler.List)
			entries.GET("/:id", entryHandler.Get)
			entries.PUT("/:id", entryHandler.Update)
			entries.DELETE("/:id", entryHandler.Delete)
		}

		attachments := protected.Group("/attachments/:kind/:id")
		{
			attachments.GET("", attachmentHandler.Get)
			attachments.DELETE("", attachmentHandler.Delete)
			attachments.GET("/url", attachmentHandler.URL)
		}
	}
}
