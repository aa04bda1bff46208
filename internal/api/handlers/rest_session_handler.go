package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"quicktexts/engine/internal/auth"
	"quicktexts/engine/internal/config"
	"quicktexts/engine/internal/services"
)

// RestSessionHandler handles sign-in/sign-out and explicit sync requests.
type RestSessionHandler struct {
	sessionService services.ISessionService
	syncService    services.ISyncService
	cfg            *config.Config
}

// NewRestSessionHandler creates a new RestSessionHandler.
func NewRestSessionHandler(sessionService services.ISessionService, syncService services.ISyncService, cfg *config.Config) *RestSessionHandler {
	return &RestSessionHandler{
		sessionService: sessionService,
		syncService:    syncService,
		cfg:            cfg,
	}
}

// SignIn handles POST /v1/session. On success it returns the signed-in
// projection plus an API token for the protected routes.
func (h *RestSessionHandler) SignIn(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	user, err := h.sessionService.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		// Credential failures and provider errors look the same to the
		// caller.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in failed"})
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// SignOut handles DELETE /v1/session.
func (h *RestSessionHandler) SignOut(c *gin.Context) {
	if err := h.sessionService.SignOut(c.Request.Context()); err != nil {
		if errors.Is(err, auth.ErrNotSignedIn) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not signed in"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign out"})
		return
	}
	c.Status(http.StatusNoContent)
}

// CurrentUser handles GET /v1/session.
func (h *RestSessionHandler) CurrentUser(c *gin.Context) {
	user, err := h.sessionService.CurrentUser(c.Request.Context())
	if err != nil {
		if errors.Is(err, auth.ErrNotSignedIn) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not signed in"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// SyncNow handles POST /v1/sync.
func (h *RestSessionHandler) SyncNow(c *gin.Context) {
	if err := h.syncService.SyncNow(c.Request.Context()); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sync failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
