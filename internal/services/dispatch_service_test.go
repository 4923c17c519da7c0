package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"formsevo/backend/internal/config"
	"formsevo/backend/internal/models"
	"formsevo/backend/internal/utils"
)

// webhookRecorder is an httptest receiver that captures the last JSON body.
type webhookRecorder struct {
	server *httptest.Server
	calls  int32
	last   map[string]interface{}
	status int
	body   string
}

func newWebhookRecorder(status int, body string) *webhookRecorder {
	rec := &webhookRecorder{status: status, body: body}
	rec.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&rec.calls, 1)
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		_ = json.Unmarshal(raw, &payload)
		rec.last = payload
		w.WriteHeader(rec.status)
		_, _ = w.Write([]byte(rec.body))
	}))
	return rec
}

func (r *webhookRecorder) callCount() int { return int(atomic.LoadInt32(&r.calls)) }

func testDispatchConfig() *config.Config {
	return &config.Config{
		LeadOrigin:          "formsevo",
		SheetWebhookTimeout: 5 * time.Second,
		CrmWebhookTimeout:   5 * time.Second,
	}
}

func submissionTrace() map[string]interface{} {
	return map[string]interface{}{
		"nome":       "Maria Silva",
		"whatsapp":   "55 (11) 98765-4321",
		"email":      "maria@example.com",
		"interesse":  "Consórcio",
		"utm_source": "google",
	}
}

func TestDispatchService_ParallelDelivery(t *testing.T) {
	sheet := newWebhookRecorder(http.StatusOK, "ok")
	defer sheet.server.Close()

	cfg := testDispatchConfig()
	db := utils.SetupTestDB(t, "testdb_dispatch_parallel",
		leadsCollection, settingsCollection, queueCollection, queueStateCollection, crmCollection)
	require.NoError(t, EnsureSettingsIndexes(context.Background(), db))
	settingsSvc := NewSettingsService(db, cfg)
	dispatch := NewDispatchService(db, cfg, NewRotationService(db), settingsSvc, NewCRMService(db, cfg), NewFieldValidator())
	ctx := context.Background()

	tenantSettings, err := settingsSvc.GetSettings(ctx, "acme")
	require.NoError(t, err)
	tenantSettings.SheetWebhookURL = sheet.server.URL
	tenantSettings.WhatsAppOnSubmit = true
	tenantSettings.WhatsAppNumber = "55 (11) 90000-0000"
	tenantSettings.WhatsAppTemplate = "Olá, sou {nome}"
	require.NoError(t, settingsSvc.UpdateSettings(ctx, tenantSettings))

	result, err := dispatch.Submit(ctx, "acme", submissionTrace(), SubmitOptions{})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.LeadID)
	assert.Equal(t, models.CRMNotConfigured, result.CRMStatus)
	assert.Contains(t, result.WhatsAppLink, "https://wa.me/5511900000000")
	assert.Contains(t, result.WhatsAppLink, "text=")

	// The spreadsheet payload carries the stamped fields
	require.Equal(t, 1, sheet.callCount())
	assert.Equal(t, "Maria Silva", sheet.last["nome"])
	assert.Equal(t, "formsevo", sheet.last["origem"])
	assert.NotEmpty(t, sheet.last["data_cadastro"])

	// The lead record is durable with the denormalized fixed fields
	var lead models.Lead
	err = db.Collection(leadsCollection).FindOne(ctx, bson.M{"tenant": "acme"}).Decode(&lead)
	require.NoError(t, err)
	assert.Equal(t, "Maria Silva", lead.Name)
	assert.Equal(t, int64(5511987654321), lead.Phone)
	assert.True(t, lead.HasEmail)
	assert.Equal(t, "Consórcio", lead.Trace["interesse"])
}

func TestDispatchService_SheetThrottled(t *testing.T) {
	sheet := newWebhookRecorder(http.StatusInternalServerError, `{"error":"Muitas solicitações simultâneas"}`)
	defer sheet.server.Close()

	cfg := testDispatchConfig()
	cfg.DefaultSheetWebhookURL = sheet.server.URL
	db := utils.SetupTestDB(t, "testdb_dispatch_throttled",
		leadsCollection, settingsCollection, queueCollection, queueStateCollection, crmCollection)
	settingsSvc := NewSettingsService(db, cfg)
	dispatch := NewDispatchService(db, cfg, NewRotationService(db), settingsSvc, NewCRMService(db, cfg), NewFieldValidator())
	ctx := context.Background()

	result, err := dispatch.Submit(ctx, "acme", submissionTrace(), SubmitOptions{})
	require.NoError(t, err)

	// A throttled spreadsheet never blocks the user: the lead is stored and
	// the failure degrades to a warning.
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.LeadID)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, strings.Join(result.Warnings, "; "), "spreadsheet delivery failed")

	count, err := db.Collection(leadsCollection).CountDocuments(ctx, bson.M{"tenant": "acme"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDispatchService_ExclusiveCRM(t *testing.T) {
	crm := newWebhookRecorder(http.StatusOK, "ok")
	defer crm.server.Close()
	sheet := newWebhookRecorder(http.StatusOK, "ok")
	defer sheet.server.Close()

	cfg := testDispatchConfig()
	cfg.DefaultSheetWebhookURL = sheet.server.URL
	db := utils.SetupTestDB(t, "testdb_dispatch_exclusive",
		leadsCollection, settingsCollection, queueCollection, queueStateCollection, crmCollection)
	settingsSvc := NewSettingsService(db, cfg)
	crmSvc := NewCRMService(db, cfg)
	dispatch := NewDispatchService(db, cfg, NewRotationService(db), settingsSvc, crmSvc, NewFieldValidator())
	ctx := context.Background()

	require.NoError(t, crmSvc.SaveIntegration(ctx, &models.CRMIntegration{
		Tenant:        "acme",
		WebhookURL:    crm.server.URL,
		BearerToken:   "secret",
		IsActive:      true,
		ExclusiveMode: true,
	}))

	result, err := dispatch.Submit(ctx, "acme", submissionTrace(), SubmitOptions{})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, models.CRMSent, result.CRMStatus)
	// Exclusive mode: no agent allocation, no spreadsheet delivery
	assert.Empty(t, result.AgentName)
	assert.Equal(t, 0, sheet.callCount())
	require.Equal(t, 1, crm.callCount())
	assert.Equal(t, "5511987654321", crm.last["telefone"])

	// The lead is still persisted locally even though the CRM owns it
	count, err := db.Collection(leadsCollection).CountDocuments(ctx, bson.M{"tenant": "acme"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDispatchService_ExclusiveCRMFailure(t *testing.T) {
	crm := newWebhookRecorder(http.StatusBadGateway, "upstream down")
	defer crm.server.Close()

	cfg := testDispatchConfig()
	db := utils.SetupTestDB(t, "testdb_dispatch_exclusive_fail",
		leadsCollection, settingsCollection, queueCollection, queueStateCollection, crmCollection)
	settingsSvc := NewSettingsService(db, cfg)
	crmSvc := NewCRMService(db, cfg)
	dispatch := NewDispatchService(db, cfg, NewRotationService(db), settingsSvc, crmSvc, NewFieldValidator())
	ctx := context.Background()

	require.NoError(t, crmSvc.SaveIntegration(ctx, &models.CRMIntegration{
		Tenant:        "acme",
		WebhookURL:    crm.server.URL,
		IsActive:      true,
		ExclusiveMode: true,
	}))

	result, err := dispatch.Submit(ctx, "acme", submissionTrace(), SubmitOptions{})
	require.NoError(t, err)

	// Exclusive mode surfaces the CRM failure to the caller
	assert.False(t, result.Success)
	assert.Equal(t, models.CRMError, result.CRMStatus)

	// But the lead record survives: a failed CRM call is never a lost lead
	count, err := db.Collection(leadsCollection).CountDocuments(ctx, bson.M{"tenant": "acme"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDispatchService_Suppressed(t *testing.T) {
	sheet := newWebhookRecorder(http.StatusOK, "ok")
	defer sheet.server.Close()

	cfg := testDispatchConfig()
	cfg.DefaultSheetWebhookURL = sheet.server.URL
	db := utils.SetupTestDB(t, "testdb_dispatch_suppressed",
		leadsCollection, settingsCollection, queueCollection, queueStateCollection, crmCollection)
	settingsSvc := NewSettingsService(db, cfg)
	dispatch := NewDispatchService(db, cfg, NewRotationService(db), settingsSvc, NewCRMService(db, cfg), NewFieldValidator())
	ctx := context.Background()

	result, err := dispatch.Submit(ctx, "acme", submissionTrace(), SubmitOptions{Suppress: true, VariantKey: "fora"})
	require.NoError(t, err)

	// Success screen, zero side effects
	assert.True(t, result.Success)
	assert.Empty(t, result.LeadID)
	assert.Equal(t, 0, sheet.callCount())

	count, err := db.Collection(leadsCollection).CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestDispatchService_RejectsOversizedPayload(t *testing.T) {
	sheet := newWebhookRecorder(http.StatusOK, "ok")
	defer sheet.server.Close()

	cfg := testDispatchConfig()
	cfg.DefaultSheetWebhookURL = sheet.server.URL
	db := utils.SetupTestDB(t, "testdb_dispatch_oversized",
		leadsCollection, settingsCollection, queueCollection, queueStateCollection, crmCollection)
	settingsSvc := NewSettingsService(db, cfg)
	dispatch := NewDispatchService(db, cfg, NewRotationService(db), settingsSvc, NewCRMService(db, cfg), NewFieldValidator())
	ctx := context.Background()

	trace := submissionTrace()
	trace["mensagem"] = strings.Repeat("a", MaxFieldValueLength+1)

	_, err := dispatch.Submit(ctx, "acme", trace, SubmitOptions{})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "mensagem", verr.Fields[0].Field)

	// Rejected before any side effect
	assert.Equal(t, 0, sheet.callCount())
	count, err := db.Collection(leadsCollection).CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestDispatchService_AllocatesAgent(t *testing.T) {
	sheet := newWebhookRecorder(http.StatusOK, "ok")
	defer sheet.server.Close()

	cfg := testDispatchConfig()
	cfg.DefaultSheetWebhookURL = sheet.server.URL
	db := utils.SetupTestDB(t, "testdb_dispatch_agent",
		leadsCollection, settingsCollection, queueCollection, queueStateCollection, crmCollection)
	settingsSvc := NewSettingsService(db, cfg)
	dispatch := NewDispatchService(db, cfg, NewRotationService(db), settingsSvc, NewCRMService(db, cfg), NewFieldValidator())
	ctx := context.Background()

	tenantSettings, err := settingsSvc.GetSettings(ctx, "acme")
	require.NoError(t, err)
	tenantSettings.WhatsAppOnSubmit = true
	require.NoError(t, settingsSvc.UpdateSettings(ctx, tenantSettings))

	_, err = db.Collection(queueCollection).InsertOne(ctx, models.WhatsAppAgent{
		Tenant: "acme", PhoneNumber: "5511912345678", DisplayName: "Ana", Position: 1, IsActive: true,
	})
	require.NoError(t, err)

	result, err := dispatch.Submit(ctx, "acme", submissionTrace(), SubmitOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Ana", result.AgentName)
	// The handoff link points at the allocated agent, not the fixed number
	assert.Contains(t, result.WhatsAppLink, "5511912345678")

	var lead models.Lead
	err = db.Collection(leadsCollection).FindOne(ctx, bson.M{"tenant": "acme"}).Decode(&lead)
	require.NoError(t, err)
	assert.Equal(t, "Ana", lead.AgentName)
}

func TestAggregateAttempts(t *testing.T) {
	// Parallel mode: every failure degrades to a warning
	result := &SubmitResult{Success: true, CRMStatus: models.CRMNotConfigured}
	aggregateAttempts(false, []DeliveryAttempt{
		{Channel: "storage"},
		{Channel: "sheet", Err: errors.New("boom")},
		{Channel: "crm", Skipped: true},
	}, result)
	assert.True(t, result.Success)
	assert.Len(t, result.Warnings, 1)
	assert.Equal(t, models.CRMNotConfigured, result.CRMStatus)

	// Parallel CRM failure: warning plus error status, still successful
	result = &SubmitResult{Success: true}
	aggregateAttempts(false, []DeliveryAttempt{
		{Channel: "storage"},
		{Channel: "sheet"},
		{Channel: "crm", Err: errors.New("boom")},
	}, result)
	assert.True(t, result.Success)
	assert.Equal(t, models.CRMError, result.CRMStatus)

	// Exclusive CRM failure decides the overall outcome
	result = &SubmitResult{Success: true}
	aggregateAttempts(true, []DeliveryAttempt{
		{Channel: "storage"},
		{Channel: "crm", Err: errors.New("boom")},
	}, result)
	assert.False(t, result.Success)
	assert.Equal(t, models.CRMError, result.CRMStatus)

	// Exclusive CRM success
	result = &SubmitResult{Success: true}
	aggregateAttempts(true, []DeliveryAttempt{
		{Channel: "storage"},
		{Channel: "crm"},
	}, result)
	assert.True(t, result.Success)
	assert.Equal(t, models.CRMSent, result.CRMStatus)
}
