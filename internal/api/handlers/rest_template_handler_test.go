package handlers_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"quicktexts/engine/internal/api/handlers"
	"quicktexts/engine/internal/models"
	"quicktexts/engine/internal/store"
)

// --- Tests ---

func TestRestTemplateHandler_GetTemplates_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockTemplateSvc := new(MockTemplateService)
	handler := handlers.NewRestTemplateHandler(mockTemplateSvc)

	r := gin.New()
	r.GET("/v1/templates", handler.GetTemplates)

	expected := map[string]models.Template{
		"t-1": {ID: "t-1", Title: "Greeting", Body: "Hi there"},
		"t-2": {ID: "t-2", Title: "Signature", Body: "Best, Alice"},
	}
	mockTemplateSvc.On("GetTemplate", mock.Anything, "").Return(expected, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/templates", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody struct {
		Data map[string]models.Template `json:"data"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Len(t, respBody.Data, 2)
	assert.Equal(t, "Greeting", respBody.Data["t-1"].Title)
	mockTemplateSvc.AssertExpectations(t)
}

func TestRestTemplateHandler_GetTemplateByID_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockTemplateSvc := new(MockTemplateService)
	handler := handlers.NewRestTemplateHandler(mockTemplateSvc)

	r := gin.New()
	r.GET("/v1/templates/:id", handler.GetTemplateByID)

	mockTemplateSvc.On("GetTemplate", mock.Anything, "missing").Return(nil, store.ErrNotFound)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/templates/missing", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var respBody map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Contains(t, respBody["error"], "Template not found")
	mockTemplateSvc.AssertExpectations(t)
}

func TestRestTemplateHandler_CreateTemplate_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockTemplateSvc := new(MockTemplateService)
	handler := handlers.NewRestTemplateHandler(mockTemplateSvc)

	r := gin.New()
	r.POST("/v1/templates", handler.CreateTemplate)

	mockTemplateSvc.On("CreateTemplate", mock.Anything, mock.MatchedBy(func(d *models.TemplateDraft) bool {
		return d.Title != nil && *d.Title == "Greeting"
	})).Return("t-new", nil)

	body := `{"title":"Greeting","body":"Hi there","tags":["welcome"]}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/templates", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var respBody map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Equal(t, "t-new", respBody["id"])
	mockTemplateSvc.AssertExpectations(t)
}

func TestRestTemplateHandler_CreateTemplate_InvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockTemplateSvc := new(MockTemplateService)
	handler := handlers.NewRestTemplateHandler(mockTemplateSvc)

	r := gin.New()
	r.POST("/v1/templates", handler.CreateTemplate)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/templates", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockTemplateSvc.AssertNotCalled(t, "CreateTemplate", mock.Anything, mock.Anything)
}

func TestRestTemplateHandler_UpdateTemplate_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockTemplateSvc := new(MockTemplateService)
	handler := handlers.NewRestTemplateHandler(mockTemplateSvc)

	r := gin.New()
	r.PUT("/v1/templates/:id", handler.UpdateTemplate)

	mockTemplateSvc.On("UpdateTemplate", mock.Anything, "missing", mock.Anything).Return(store.ErrNotFound)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/v1/templates/missing", strings.NewReader(`{"title":"New"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockTemplateSvc.AssertExpectations(t)
}

func TestRestTemplateHandler_DeleteTemplate_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockTemplateSvc := new(MockTemplateService)
	handler := handlers.NewRestTemplateHandler(mockTemplateSvc)

	r := gin.New()
	r.DELETE("/v1/templates/:id", handler.DeleteTemplate)

	mockTemplateSvc.On("DeleteTemplate", mock.Anything, "t-1").Return(nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/v1/templates/t-1", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockTemplateSvc.AssertExpectations(t)
}

func TestRestTemplateHandler_ClearLocalTemplates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockTemplateSvc := new(MockTemplateService)
	handler := handlers.NewRestTemplateHandler(mockTemplateSvc)

	r := gin.New()
	r.DELETE("/v1/local/templates", handler.ClearLocalTemplates)

	mockTemplateSvc.On("ClearLocalTemplates", mock.Anything).Return(nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/v1/local/templates", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockTemplateSvc.AssertExpectations(t)
}

func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile("files", name)
		assert.NoError(t, err)
		_, err = fw.Write(data)
		assert.NoError(t, err)
	}
	assert.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestRestTemplateHandler_AddAttachments_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockTemplateSvc := new(MockTemplateService)
	handler := handlers.NewRestTemplateHandler(mockTemplateSvc)

	r := gin.New()
	r.POST("/v1/templates/:id/attachments", handler.AddAttachments)

	added := []models.Attachment{{URL: "https://bucket.s3.example/attachments/abc.pdf", Name: "report.pdf"}}
	mockTemplateSvc.On("AddAttachments", mock.Anything, "t-1", mock.MatchedBy(func(uploads []models.AttachmentUpload) bool {
		return len(uploads) == 1 && uploads[0].Name == "report.pdf"
	})).Return(added, nil)

	buf, contentType := multipartBody(t, map[string][]byte{"report.pdf": []byte("pdf bytes")})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/templates/t-1/attachments", buf)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody struct {
		Data []models.Attachment `json:"data"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Len(t, respBody.Data, 1)
	assert.Equal(t, "report.pdf", respBody.Data[0].Name)
	mockTemplateSvc.AssertExpectations(t)
}

func TestRestTemplateHandler_AddAttachments_NoFiles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockTemplateSvc := new(MockTemplateService)
	handler := handlers.NewRestTemplateHandler(mockTemplateSvc)

	r := gin.New()
	r.POST("/v1/templates/:id/attachments", handler.AddAttachments)

	buf, contentType := multipartBody(t, map[string][]byte{})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/templates/t-1/attachments", buf)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockTemplateSvc.AssertNotCalled(t, "AddAttachments", mock.Anything, mock.Anything, mock.Anything)
}

func TestRestTemplateHandler_RemoveAttachments_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockTemplateSvc := new(MockTemplateService)
	handler := handlers.NewRestTemplateHandler(mockTemplateSvc)

	r := gin.New()
	r.DELETE("/v1/templates/:id/attachments", handler.RemoveAttachments)

	urls := []string{"https://bucket.s3.example/attachments/abc.pdf"}
	mockTemplateSvc.On("RemoveAttachments", mock.Anything, "t-1", urls).Return(nil)

	body, _ := json.Marshal(map[string]interface{}{"urls": urls})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/v1/templates/t-1/attachments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockTemplateSvc.AssertExpectations(t)
}
