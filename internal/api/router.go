package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"quicktexts/engine/internal/api/handlers"
	"quicktexts/engine/internal/api/middleware"
	"quicktexts/engine/internal/auth"
	"quicktexts/engine/internal/cache"
	"quicktexts/engine/internal/config"
	"quicktexts/engine/internal/localstore"
	"quicktexts/engine/internal/services"
	"quicktexts/engine/internal/storage"
	"quicktexts/engine/internal/store"
)

// SetupRouter configures and returns the main Gin engine along with the
// session and sharing services the caller needs for lifecycle management
// (session.Start/Stop on startup/shutdown, sharing.Flush before exit).
func SetupRouter(cfg *config.Config, st store.Store, identity auth.Identity, kv localstore.Settings, local *localstore.LocalStore, notifier services.Notifier) (*gin.Engine, services.ISessionService, services.ISharingService) {
	// Initialize services needed by API handlers HERE
	tplCache := cache.NewTemplateCache()

	var attachments services.AttachmentStore
	if cfg.AwsS3Bucket != "" {
		s3Storage, err := storage.NewS3Storage(cfg)
		if err != nil {
			log.Fatalf("CRITICAL: Failed to initialize S3 storage for API: %v", err)
		}
		attachments = s3Storage
	}

	// sessionService must be initialized before syncService
	sessionService := services.NewSessionService(st, identity, kv, tplCache, cfg.SettleDelay)
	memberService := services.NewMemberService(st, sessionService)
	templateService := services.NewTemplateService(st, local, tplCache, sessionService, attachments)
	sharingService := services.NewSharingService(st, sessionService, memberService, notifier, cfg.ShareFlushDelay)
	settingsService := services.NewSettingsService(st, kv, sessionService)
	syncService := services.NewSyncService(st, local, kv, sessionService, settingsService)
	// Now, update sessionService with the initialized syncService
	sessionService.SetSyncService(syncService)

	r := gin.Default()

	// Apply global middleware first (order matters)
	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	restTemplateHandler := handlers.NewRestTemplateHandler(templateService)
	restSharingHandler := handlers.NewRestSharingHandler(sharingService, memberService)
	restSessionHandler := handlers.NewRestSessionHandler(sessionService, syncService, cfg)
	restSettingsHandler := handlers.NewRestSettingsHandler(settingsService)

	v1 := r.Group("/v1")
	{
		// Public Routes. Template and settings reads/writes work signed
		// out (they fall back to the local store), so no token is required.
		v1.POST("/session", restSessionHandler.SignIn)
		v1.GET("/session", restSessionHandler.CurrentUser)

		v1.GET("/templates", restTemplateHandler.GetTemplates)
		v1.GET("/templates/:id", restTemplateHandler.GetTemplateByID)
		v1.POST("/templates", restTemplateHandler.CreateTemplate)
		v1.PUT("/templates/:id", restTemplateHandler.UpdateTemplate)
		v1.DELETE("/templates/:id", restTemplateHandler.DeleteTemplate)
		v1.DELETE("/local/templates", restTemplateHandler.ClearLocalTemplates)

		v1.GET("/settings", restSettingsHandler.GetSettings)
		v1.PUT("/settings", restSettingsHandler.UpdateSettings)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated Routes
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.DELETE("/session", restSessionHandler.SignOut)
			authRequired.POST("/sync", restSessionHandler.SyncNow)

			authRequired.GET("/sharing", restSharingHandler.GetSharing)
			authRequired.POST("/sharing", restSharingHandler.UpdateSharing)
			authRequired.GET("/members", restSharingHandler.GetMembers)

			authRequired.POST("/templates/:id/attachments", restTemplateHandler.AddAttachments)
			authRequired.DELETE("/templates/:id/attachments", restTemplateHandler.RemoveAttachments)
		}
	}

	return r, sessionService, sharingService
}
