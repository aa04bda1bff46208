package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"quicktexts/engine/internal/auth"
	"quicktexts/engine/internal/models"
	"quicktexts/engine/internal/services"
)

// RestSharingHandler handles REST requests for template ACLs and customer
// members.
type RestSharingHandler struct {
	sharingService services.ISharingService
	memberService  services.IMemberService
}

// NewRestSharingHandler creates a new RestSharingHandler.
func NewRestSharingHandler(sharingService services.ISharingService, memberService services.IMemberService) *RestSharingHandler {
	return &RestSharingHandler{
		sharingService: sharingService,
		memberService:  memberService,
	}
}

// GetSharing handles GET /v1/sharing?ids=a,b,c
func (h *RestSharingHandler) GetSharing(c *gin.Context) {
	idsStr := c.Query("ids")
	var ids []string
	for _, id := range strings.Split(idsStr, ",") {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'ids' required"})
		return
	}

	acls, err := h.sharingService.GetSharing(c.Request.Context(), ids)
	if err != nil {
		if errors.Is(err, auth.ErrNotSignedIn) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in required"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load sharing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": acls})
}

// UpdateSharing handles POST /v1/sharing
func (h *RestSharingHandler) UpdateSharing(c *gin.Context) {
	var upd models.SharingUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := h.sharingService.UpdateSharing(c.Request.Context(), &upd); err != nil {
		if errors.Is(err, auth.ErrNotSignedIn) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in required"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update sharing"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetMembers handles GET /v1/members. Without an "exclude" parameter the
// caller is excluded; "exclude=" (empty) returns every member; otherwise the
// comma-separated ids are excluded.
func (h *RestSharingHandler) GetMembers(c *gin.Context) {
	var exclude []string
	if excludeStr, present := c.GetQuery("exclude"); present {
		exclude = []string{}
		for _, id := range strings.Split(excludeStr, ",") {
			if trimmed := strings.TrimSpace(id); trimmed != "" {
				exclude = append(exclude, trimmed)
			}
		}
	}

	members, err := h.memberService.GetMembers(c.Request.Context(), exclude)
	if err != nil {
		if errors.Is(err, auth.ErrNotSignedIn) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in required"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load members"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": members})
}
