package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"quicktexts/engine/internal/services"
)

// RestSettingsHandler handles REST requests for user preferences.
type RestSettingsHandler struct {
	settingsService services.ISettingsService
}

// NewRestSettingsHandler creates a new RestSettingsHandler.
func NewRestSettingsHandler(settingsService services.ISettingsService) *RestSettingsHandler {
	return &RestSettingsHandler{
		settingsService: settingsService,
	}
}

// GetSettings handles GET /v1/settings
func (h *RestSettingsHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingsService.Get(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings handles PUT /v1/settings. The body is a partial settings
// object; absent keys keep their current value.
func (h *RestSettingsHandler) UpdateSettings(c *gin.Context) {
	var values map[string]interface{}
	if err := c.ShouldBindJSON(&values); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(values) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No settings provided"})
		return
	}

	if err := h.settingsService.Set(c.Request.Context(), values); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
		return
	}

	settings, err := h.settingsService.Get(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, settings)
}
