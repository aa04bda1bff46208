package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"quicktexts/engine/internal/auth"
	"quicktexts/engine/internal/models"
	"quicktexts/engine/internal/services"
	"quicktexts/engine/internal/storage"
	"quicktexts/engine/internal/store"
)

// RestTemplateHandler handles REST requests for templates.
type RestTemplateHandler struct {
	templateService services.ITemplateService
}

// NewRestTemplateHandler creates a new RestTemplateHandler.
func NewRestTemplateHandler(templateService services.ITemplateService) *RestTemplateHandler {
	return &RestTemplateHandler{
		templateService: templateService,
	}
}

// GetTemplates handles GET /v1/templates
func (h *RestTemplateHandler) GetTemplates(c *gin.Context) {
	templates, err := h.templateService.GetTemplate(c.Request.Context(), "")
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load templates"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": templates})
}

// GetTemplateByID handles GET /v1/templates/:id
func (h *RestTemplateHandler) GetTemplateByID(c *gin.Context) {
	id := c.Param("id")
	templates, err := h.templateService.GetTemplate(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load template"})
		return
	}
	c.JSON(http.StatusOK, templates[id])
}

// CreateTemplate handles POST /v1/templates
func (h *RestTemplateHandler) CreateTemplate(c *gin.Context) {
	var draft models.TemplateDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	id, err := h.templateService.CreateTemplate(c.Request.Context(), &draft)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create template"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// UpdateTemplate handles PUT /v1/templates/:id
func (h *RestTemplateHandler) UpdateTemplate(c *gin.Context) {
	id := c.Param("id")
	var draft models.TemplateDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := h.templateService.UpdateTemplate(c.Request.Context(), id, &draft); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update template"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// DeleteTemplate handles DELETE /v1/templates/:id
func (h *RestTemplateHandler) DeleteTemplate(c *gin.Context) {
	id := c.Param("id")
	if err := h.templateService.DeleteTemplate(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete template"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// ClearLocalTemplates handles DELETE /v1/local/templates
func (h *RestTemplateHandler) ClearLocalTemplates(c *gin.Context) {
	if err := h.templateService.ClearLocalTemplates(c.Request.Context()); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear local templates"})
		return
	}
	c.Status(http.StatusNoContent)
}

// AddAttachments handles POST /v1/templates/:id/attachments (multipart form,
// any number of files under the "files" field).
func (h *RestTemplateHandler) AddAttachments(c *gin.Context) {
	id := c.Param("id")

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form: " + err.Error()})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	uploads := make([]models.AttachmentUpload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file " + fh.Filename})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file " + fh.Filename})
			return
		}
		uploads = append(uploads, models.AttachmentUpload{Name: fh.Filename, Data: data})
	}

	added, err := h.templateService.AddAttachments(c.Request.Context(), id, uploads)
	if err != nil {
		var vErr *storage.ValidationError
		switch {
		case errors.Is(err, auth.ErrNotSignedIn):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in required"})
			return
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
			return
		case errors.As(err, &vErr) && len(added) > 0:
			// Partial success: report what landed alongside what was rejected.
			c.JSON(http.StatusOK, gin.H{"data": added, "rejected": err.Error()})
			return
		case errors.As(err, &vErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload attachments"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": added})
}

// RemoveAttachments handles DELETE /v1/templates/:id/attachments
func (h *RestTemplateHandler) RemoveAttachments(c *gin.Context) {
	id := c.Param("id")
	var req struct {
		URLs []string `json:"urls"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(req.URLs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No attachment URLs provided"})
		return
	}

	if err := h.templateService.RemoveAttachments(c.Request.Context(), id, req.URLs); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove attachments"})
		return
	}
	c.Status(http.StatusNoContent)
}
