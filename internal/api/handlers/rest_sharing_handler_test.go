package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"quicktexts/engine/internal/api/handlers"
	"quicktexts/engine/internal/auth"
	"quicktexts/engine/internal/models"
)

func TestRestSharingHandler_GetSharing_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSharingSvc := new(MockSharingService)
	mockMemberSvc := new(MockMemberService)
	handler := handlers.NewRestSharingHandler(mockSharingSvc, mockMemberSvc)

	r := gin.New()
	r.GET("/v1/sharing", handler.GetSharing)

	expected := []models.ACLEntry{
		{TargetUserID: "user-1", Email: "alice@example.com", Name: "Alice"},
		{TargetUserID: "user-2", Email: "bob@example.com", Name: "Bob"},
	}
	mockSharingSvc.On("GetSharing", mock.Anything, []string{"t-1", "t-2"}).Return(expected, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/sharing?ids=t-1,%20t-2", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody struct {
		Data []models.ACLEntry `json:"data"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Len(t, respBody.Data, 2)
	assert.Equal(t, "user-1", respBody.Data[0].TargetUserID)
	mockSharingSvc.AssertExpectations(t)
}

func TestRestSharingHandler_GetSharing_MissingIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSharingSvc := new(MockSharingService)
	mockMemberSvc := new(MockMemberService)
	handler := handlers.NewRestSharingHandler(mockSharingSvc, mockMemberSvc)

	r := gin.New()
	r.GET("/v1/sharing", handler.GetSharing)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/sharing", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSharingSvc.AssertNotCalled(t, "GetSharing", mock.Anything, mock.Anything)
}

func TestRestSharingHandler_UpdateSharing_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSharingSvc := new(MockSharingService)
	mockMemberSvc := new(MockMemberService)
	handler := handlers.NewRestSharingHandler(mockSharingSvc, mockMemberSvc)

	r := gin.New()
	r.POST("/v1/sharing", handler.UpdateSharing)

	mockSharingSvc.On("UpdateSharing", mock.Anything, mock.MatchedBy(func(upd *models.SharingUpdate) bool {
		return upd.Action == models.SharingActionUpdate && len(upd.Templates["t-1"]) == 1
	})).Return(nil)

	body := `{"action":"update","templates":{"t-1":["bob@example.com"]},"notify":true}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/sharing", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockSharingSvc.AssertExpectations(t)
}

func TestRestSharingHandler_UpdateSharing_SignedOut(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSharingSvc := new(MockSharingService)
	mockMemberSvc := new(MockMemberService)
	handler := handlers.NewRestSharingHandler(mockSharingSvc, mockMemberSvc)

	r := gin.New()
	r.POST("/v1/sharing", handler.UpdateSharing)

	mockSharingSvc.On("UpdateSharing", mock.Anything, mock.Anything).Return(auth.ErrNotSignedIn)

	body := `{"action":"update","templates":{"t-1":["bob@example.com"]}}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/sharing", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mockSharingSvc.AssertExpectations(t)
}

func TestRestSharingHandler_GetMembers_DefaultExcludesCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSharingSvc := new(MockSharingService)
	mockMemberSvc := new(MockMemberService)
	handler := handlers.NewRestSharingHandler(mockSharingSvc, mockMemberSvc)

	r := gin.New()
	r.GET("/v1/members", handler.GetMembers)

	members := []models.ACLEntry{{TargetUserID: "user-2", Email: "bob@example.com", Name: "Bob"}}
	// No "exclude" query parameter maps to a nil slice.
	mockMemberSvc.On("GetMembers", mock.Anything, []string(nil)).Return(members, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/members", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody struct {
		Data []models.ACLEntry `json:"data"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &respBody)
	assert.NoError(t, err)
	assert.Len(t, respBody.Data, 1)
	mockMemberSvc.AssertExpectations(t)
}

func TestRestSharingHandler_GetMembers_EmptyExcludeKeepsEveryone(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSharingSvc := new(MockSharingService)
	mockMemberSvc := new(MockMemberService)
	handler := handlers.NewRestSharingHandler(mockSharingSvc, mockMemberSvc)

	r := gin.New()
	r.GET("/v1/members", handler.GetMembers)

	members := []models.ACLEntry{
		{TargetUserID: "user-1", Email: "alice@example.com"},
		{TargetUserID: "user-2", Email: "bob@example.com"},
	}
	// An explicit empty "exclude" maps to an empty non-nil slice.
	mockMemberSvc.On("GetMembers", mock.Anything, []string{}).Return(members, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/members?exclude=", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockMemberSvc.AssertExpectations(t)
}
