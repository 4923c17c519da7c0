package tasks

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"formsevo/backend/internal/config"
	"formsevo/backend/internal/models"
)

type mockPartialService struct {
	mock.Mock
}

func (m *mockPartialService) RecordPartial(ctx context.Context, sessionID, tenant string, stepReached int, partialData map[string]interface{}) error {
	args := m.Called(ctx, sessionID, tenant, stepReached, partialData)
	return args.Error(0)
}

type mockSettingsService struct {
	mock.Mock
}

func (m *mockSettingsService) GetSettings(ctx context.Context, tenant string) (*models.TenantSettings, error) {
	args := m.Called(ctx, tenant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TenantSettings), args.Error(1)
}

func (m *mockSettingsService) UpdateSettings(ctx context.Context, settings *models.TenantSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

type mockEmailSender struct {
	mock.Mock
}

func (m *mockEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	args := m.Called(ctx, to, subject, rawMessage)
	return args.Error(0)
}

func TestHandlePartialRecord(t *testing.T) {
	partialSvc := new(mockPartialService)
	partialSvc.On("RecordPartial", mock.Anything, "sess-1", "acme", 2,
		map[string]interface{}{"nome": "Maria"}).Return(nil)
	processor := NewTaskProcessor(&config.Config{}, nil, partialSvc, nil)

	task, err := NewPartialRecordTask(PartialRecordPayload{
		SessionID:   "sess-1",
		Tenant:      "acme",
		StepReached: 2,
		PartialData: map[string]interface{}{"nome": "Maria"},
	})
	require.NoError(t, err)
	assert.Equal(t, TypePartialRecord, task.Type())

	assert.NoError(t, processor.HandlePartialRecord(context.Background(), task))
	partialSvc.AssertExpectations(t)
}

func TestHandlePartialRecord_ErrorsAreDropped(t *testing.T) {
	partialSvc := new(mockPartialService)
	partialSvc.On("RecordPartial", mock.Anything, "sess-1", "acme", 2, mock.Anything).
		Return(assert.AnError)
	processor := NewTaskProcessor(&config.Config{}, nil, partialSvc, nil)

	task, err := NewPartialRecordTask(PartialRecordPayload{SessionID: "sess-1", Tenant: "acme", StepReached: 2})
	require.NoError(t, err)

	// Fire-and-forget: a storage failure never triggers a retry
	assert.NoError(t, processor.HandlePartialRecord(context.Background(), task))
}

func TestHandlePartialRecord_BadPayload(t *testing.T) {
	processor := NewTaskProcessor(&config.Config{}, nil, new(mockPartialService), nil)
	task := asynq.NewTask(TypePartialRecord, []byte("not json"))
	assert.Error(t, processor.HandlePartialRecord(context.Background(), task))
}

func TestHandleLeadNotify(t *testing.T) {
	settingsSvc := new(mockSettingsService)
	settingsSvc.On("GetSettings", mock.Anything, "acme").Return(&models.TenantSettings{
		Tenant:            "acme",
		NotificationEmail: "vendas@acme.example.com",
	}, nil)
	sender := new(mockEmailSender)
	sender.On("Send", mock.Anything, []string{"vendas@acme.example.com"},
		mock.MatchedBy(func(subject string) bool { return subject != "" }),
		mock.Anything).Return(nil)

	processor := NewTaskProcessor(&config.Config{AppName: "FormsEvo"}, sender, nil, settingsSvc)

	task, err := NewLeadNotifyTask(LeadNotifyPayload{Tenant: "acme", LeadID: "abc123", LeadName: "Maria", Agent: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, TypeLeadNotify, task.Type())

	assert.NoError(t, processor.HandleLeadNotify(context.Background(), task))
	sender.AssertExpectations(t)
}

func TestHandleLeadNotify_NoAddressConfigured(t *testing.T) {
	settingsSvc := new(mockSettingsService)
	settingsSvc.On("GetSettings", mock.Anything, "acme").Return(&models.TenantSettings{Tenant: "acme"}, nil)
	sender := new(mockEmailSender)

	processor := NewTaskProcessor(&config.Config{}, sender, nil, settingsSvc)

	task, err := NewLeadNotifyTask(LeadNotifyPayload{Tenant: "acme", LeadID: "abc123"})
	require.NoError(t, err)

	assert.NoError(t, processor.HandleLeadNotify(context.Background(), task))
	sender.AssertNotCalled(t, "Send")
}
