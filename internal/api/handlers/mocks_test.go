package handlers_test

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"formsevo/backend/internal/models"
	"formsevo/backend/internal/services"
)

// --- Mocks ---

// MockQuestionService
type MockQuestionService struct {
	mock.Mock
}

func (m *MockQuestionService) GetQuestions(ctx context.Context, tenant string) ([]models.Question, error) {
	args := m.Called(ctx, tenant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Question), args.Error(1)
}

func (m *MockQuestionService) CreateQuestion(ctx context.Context, q *models.Question) (*models.Question, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Question), args.Error(1)
}

func (m *MockQuestionService) UpdateQuestion(ctx context.Context, q *models.Question) error {
	args := m.Called(ctx, q)
	return args.Error(0)
}

func (m *MockQuestionService) DeleteQuestion(ctx context.Context, tenant string, id primitive.ObjectID) error {
	args := m.Called(ctx, tenant, id)
	return args.Error(0)
}

func (m *MockQuestionService) SwapSteps(ctx context.Context, tenant string, stepA, stepB int) error {
	args := m.Called(ctx, tenant, stepA, stepB)
	return args.Error(0)
}

// MockSettingsService
type MockSettingsService struct {
	mock.Mock
}

func (m *MockSettingsService) GetSettings(ctx context.Context, tenant string) (*models.TenantSettings, error) {
	args := m.Called(ctx, tenant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TenantSettings), args.Error(1)
}

func (m *MockSettingsService) UpdateSettings(ctx context.Context, settings *models.TenantSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

// MockDispatchService
type MockDispatchService struct {
	mock.Mock
}

func (m *MockDispatchService) Submit(ctx context.Context, tenant string, trace map[string]interface{}, opts services.SubmitOptions) (*services.SubmitResult, error) {
	args := m.Called(ctx, tenant, trace, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SubmitResult), args.Error(1)
}

// MockPartialService
type MockPartialService struct {
	mock.Mock
}

func (m *MockPartialService) RecordPartial(ctx context.Context, sessionID, tenant string, stepReached int, partialData map[string]interface{}) error {
	args := m.Called(ctx, sessionID, tenant, stepReached, partialData)
	return args.Error(0)
}

// MockQueueService
type MockQueueService struct {
	mock.Mock
}

func (m *MockQueueService) ListAgents(ctx context.Context, tenant string) ([]models.WhatsAppAgent, error) {
	args := m.Called(ctx, tenant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.WhatsAppAgent), args.Error(1)
}

func (m *MockQueueService) SaveAgent(ctx context.Context, agent *models.WhatsAppAgent) (*models.WhatsAppAgent, error) {
	args := m.Called(ctx, agent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WhatsAppAgent), args.Error(1)
}

func (m *MockQueueService) DeleteAgent(ctx context.Context, tenant string, id primitive.ObjectID) error {
	args := m.Called(ctx, tenant, id)
	return args.Error(0)
}

// MockRotationService
type MockRotationService struct {
	mock.Mock
}

func (m *MockRotationService) Allocate(ctx context.Context, tenant string) (*services.Allocation, error) {
	args := m.Called(ctx, tenant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Allocation), args.Error(1)
}

func (m *MockRotationService) ResetCursor(ctx context.Context, tenant string) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

// MockCRMService
type MockCRMService struct {
	mock.Mock
}

func (m *MockCRMService) GetIntegration(ctx context.Context, tenant string) (*models.CRMIntegration, error) {
	args := m.Called(ctx, tenant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CRMIntegration), args.Error(1)
}

func (m *MockCRMService) SaveIntegration(ctx context.Context, integration *models.CRMIntegration) error {
	args := m.Called(ctx, integration)
	return args.Error(0)
}

func (m *MockCRMService) BuildPayload(integration *models.CRMIntegration, trace map[string]interface{}, origin string) map[string]interface{} {
	args := m.Called(integration, trace, origin)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[string]interface{})
}

// MockAsynqClient
type MockAsynqClient struct {
	mock.Mock
}

func (m *MockAsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}
