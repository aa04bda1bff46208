package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"quicktexts/engine/internal/models"
	"quicktexts/engine/internal/services"
)

// --- Mocks ---

// MockTemplateService
type MockTemplateService struct {
	mock.Mock
}

func (m *MockTemplateService) GetTemplate(ctx context.Context, id string) (map[string]models.Template, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]models.Template), args.Error(1)
}

func (m *MockTemplateService) CreateTemplate(ctx context.Context, draft *models.TemplateDraft) (string, error) {
	args := m.Called(ctx, draft)
	return args.String(0), args.Error(1)
}

func (m *MockTemplateService) UpdateTemplate(ctx context.Context, id string, draft *models.TemplateDraft) error {
	args := m.Called(ctx, id, draft)
	return args.Error(0)
}

func (m *MockTemplateService) DeleteTemplate(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTemplateService) ClearLocalTemplates(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTemplateService) AddAttachments(ctx context.Context, id string, uploads []models.AttachmentUpload) ([]models.Attachment, error) {
	args := m.Called(ctx, id, uploads)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Attachment), args.Error(1)
}

func (m *MockTemplateService) RemoveAttachments(ctx context.Context, id string, urls []string) error {
	args := m.Called(ctx, id, urls)
	return args.Error(0)
}

// MockSharingService
type MockSharingService struct {
	mock.Mock
}

func (m *MockSharingService) GetSharing(ctx context.Context, templateIDs []string) ([]models.ACLEntry, error) {
	args := m.Called(ctx, templateIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ACLEntry), args.Error(1)
}

func (m *MockSharingService) UpdateSharing(ctx context.Context, upd *models.SharingUpdate) error {
	args := m.Called(ctx, upd)
	return args.Error(0)
}

func (m *MockSharingService) Flush() {
	m.Called()
}

// MockMemberService
type MockMemberService struct {
	mock.Mock
}

func (m *MockMemberService) GetMembers(ctx context.Context, exclude []string) ([]models.ACLEntry, error) {
	args := m.Called(ctx, exclude)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ACLEntry), args.Error(1)
}

func (m *MockMemberService) Customer(ctx context.Context) (*models.Customer, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}

// MockSessionService
type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSessionService) Stop() {
	m.Called()
}

func (m *MockSessionService) SignIn(ctx context.Context, email, password string) (*models.SignedInUser, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SignedInUser), args.Error(1)
}

func (m *MockSessionService) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSessionService) CurrentUser(ctx context.Context) (*models.SignedInUser, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SignedInUser), args.Error(1)
}

func (m *MockSessionService) SetSyncService(sync services.ISyncService) {
	m.Called(sync)
}

// MockSyncService
type MockSyncService struct {
	mock.Mock
}

func (m *MockSyncService) SyncNow(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockSettingsService
type MockSettingsService struct {
	mock.Mock
}

func (m *MockSettingsService) Get(ctx context.Context) (models.Settings, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.Settings), args.Error(1)
}

func (m *MockSettingsService) Set(ctx context.Context, values map[string]interface{}) error {
	args := m.Called(ctx, values)
	return args.Error(0)
}

func (m *MockSettingsService) Push(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
