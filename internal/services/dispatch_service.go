package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"formsevo/backend/internal/config"
	"formsevo/backend/internal/models"
	"formsevo/backend/internal/utils"
)

const leadsCollection = "leads"

// SubmitOptions carries the terminal branch decision into the dispatcher.
type SubmitOptions struct {
	// Suppress skips persistence and every delivery channel while still
	// producing a success result (disqualified-lead variants).
	Suppress   bool
	VariantKey string
}

// SubmitResult is the aggregate outcome of one submission. Success reflects
// what the end user should see; Warnings carry the admin-visible detail of
// degraded channels.
type SubmitResult struct {
	Success      bool             `json:"success"`
	Warnings     []string         `json:"warnings,omitempty"`
	LeadID       string           `json:"database_id,omitempty"`
	AgentName    string           `json:"agent,omitempty"`
	WhatsAppLink string           `json:"whatsapp_link,omitempty"`
	CRMStatus    models.CRMStatus `json:"crm_status"`
}

// DeliveryAttempt is the outcome of one independent delivery channel.
// The dispatcher runs attempts and a policy function aggregates them, so
// exclusive vs. parallel CRM mode is a different aggregation over the same
// primitives rather than nested branching.
type DeliveryAttempt struct {
	Channel string // "storage", "sheet", "crm"
	Skipped bool
	Err     error
}

// IDispatchService persists a lead and fans it out to the configured
// delivery channels.
type IDispatchService interface {
	Submit(ctx context.Context, tenant string, trace map[string]interface{}, opts SubmitOptions) (*SubmitResult, error)
}

type dispatchService struct {
	db        *mongo.Database
	cfg       *config.Config
	rotation  IRotationService
	settings  ISettingsService
	crm       ICRMService
	validator IFieldValidator
}

// NewDispatchService creates a new DispatchService.
func NewDispatchService(database *mongo.Database, cfg *config.Config, rotation IRotationService, settings ISettingsService, crm ICRMService, validator IFieldValidator) IDispatchService {
	return &dispatchService{
		db:        database,
		cfg:       cfg,
		rotation:  rotation,
		settings:  settings,
		crm:       crm,
		validator: validator,
	}
}

// Submit runs the delivery pipeline. Side effects: at most one lead record,
// at most one rotation cursor advance, zero or more single-attempt HTTP
// deliveries with bounded timeouts. A *ValidationError return means the
// payload was rejected before any side effect.
func (s *dispatchService) Submit(ctx context.Context, tenant string, trace map[string]interface{}, opts SubmitOptions) (*SubmitResult, error) {
	if opts.Suppress {
		// Terminal branch said: success screen, no record, no delivery.
		return &SubmitResult{Success: true, CRMStatus: models.CRMNotConfigured}, nil
	}

	if err := s.validator.ValidatePayload(trace); err != nil {
		return nil, err
	}

	result := &SubmitResult{Success: true, CRMStatus: models.CRMNotConfigured}

	settings, err := s.settings.GetSettings(ctx, tenant)
	if err != nil {
		// Missing settings never block the lead; fall back to defaults.
		log.Printf("Warning: failed to load settings for tenant %s: %v", tenant, err)
		result.Warnings = append(result.Warnings, "tenant settings unavailable, using defaults")
		settings = models.DefaultTenantSettings(tenant)
	}

	integration, err := s.crm.GetIntegration(ctx, tenant)
	if err != nil {
		log.Printf("Warning: failed to load CRM integration for tenant %s: %v", tenant, err)
		result.Warnings = append(result.Warnings, "CRM integration unavailable")
		integration = nil
	}

	exclusive := integration != nil && integration.IsActive && integration.ExclusiveMode

	// Rotation only applies outside exclusive mode: the CRM owns the lead there.
	var agent *models.WhatsAppAgent
	if !exclusive && settings.WhatsAppEnabled {
		allocation, err := s.rotation.Allocate(ctx, tenant)
		if err != nil {
			log.Printf("Warning: WhatsApp allocation failed for tenant %s: %v", tenant, err)
			result.Warnings = append(result.Warnings, "WhatsApp agent allocation failed")
		} else if allocation.Agent != nil {
			agent = allocation.Agent
			result.AgentName = agent.DisplayName
		}
	}

	// The lead is persisted in every mode, including CRM-exclusive: a failed
	// CRM call must never mean a lost lead.
	storage := s.persistLead(ctx, tenant, trace, agent, result)

	var attempts []DeliveryAttempt
	attempts = append(attempts, storage)

	if exclusive {
		attempts = append(attempts, s.deliverCRM(ctx, integration, trace))
	} else {
		attempts = append(attempts, s.deliverSheet(ctx, settings, trace, result))
		if integration != nil && integration.IsActive {
			attempts = append(attempts, s.deliverCRM(ctx, integration, trace))
		} else {
			attempts = append(attempts, DeliveryAttempt{Channel: "crm", Skipped: true})
		}
	}

	aggregateAttempts(exclusive, attempts, result)

	if settings.WhatsAppEnabled && settings.WhatsAppOnSubmit {
		number := settings.WhatsAppNumber
		if agent != nil {
			number = agent.PhoneNumber
		}
		result.WhatsAppLink = utils.WhatsAppLink(number, settings.WhatsAppTemplate, trace)
	}

	return result, nil
}

// persistLead writes the lead record. A persistence failure is a warning,
// not an abort: delivery still proceeds (documented best-effort trade-off).
func (s *dispatchService) persistLead(ctx context.Context, tenant string, trace map[string]interface{}, agent *models.WhatsAppAgent, result *SubmitResult) DeliveryAttempt {
	lead := &models.Lead{
		ID:        primitive.NewObjectID(),
		Tenant:    tenant,
		Name:      TraceName(trace),
		Phone:     utils.PhoneAsNumber(TracePhone(trace)),
		HasEmail:  TraceEmail(trace) != "",
		Trace:     trace,
		CreatedAt: time.Now().UTC(),
	}
	if agent != nil {
		lead.AgentName = agent.DisplayName
		lead.AgentID = agent.ID
	}

	if _, err := s.db.Collection(leadsCollection).InsertOne(ctx, lead); err != nil {
		log.Printf("ERROR: failed to persist lead for tenant %s: %v", tenant, err)
		return DeliveryAttempt{Channel: "storage", Err: err}
	}
	result.LeadID = lead.ID.Hex()
	return DeliveryAttempt{Channel: "storage"}
}

// deliverSheet posts the flattened trace to the tenant's spreadsheet
// webhook. Missing configuration is a warning, never a block.
func (s *dispatchService) deliverSheet(ctx context.Context, settings *models.TenantSettings, trace map[string]interface{}, result *SubmitResult) DeliveryAttempt {
	url := settings.SheetWebhookURL
	if url == "" {
		url = s.cfg.DefaultSheetWebhookURL
	}
	if url == "" {
		result.Warnings = append(result.Warnings, "no spreadsheet webhook configured; set one in the tenant settings")
		return DeliveryAttempt{Channel: "sheet", Skipped: true}
	}

	payload := make(map[string]interface{}, len(trace)+2)
	for key, value := range trace {
		payload[key] = value
	}
	payload["data_cadastro"] = time.Now().UTC().Format(time.RFC3339)
	payload["origem"] = s.cfg.LeadOrigin

	err := postJSON(ctx, url, payload, "", s.cfg.SheetWebhookTimeout)
	return DeliveryAttempt{Channel: "sheet", Err: err}
}

// deliverCRM posts the CRM payload with optional bearer auth.
func (s *dispatchService) deliverCRM(ctx context.Context, integration *models.CRMIntegration, trace map[string]interface{}) DeliveryAttempt {
	payload := s.crm.BuildPayload(integration, trace, s.cfg.LeadOrigin)
	err := postJSON(ctx, integration.WebhookURL, payload, integration.BearerToken, s.cfg.CrmWebhookTimeout)
	return DeliveryAttempt{Channel: "crm", Err: err}
}

// aggregateAttempts folds the channel outcomes into the result. Exclusive
// mode: the CRM call alone decides success. Parallel mode: the lead is
// already durable (or its loss already warned), so every delivery failure
// degrades to a warning; crm_status reports the parallel CRM outcome.
func aggregateAttempts(exclusive bool, attempts []DeliveryAttempt, result *SubmitResult) {
	for _, attempt := range attempts {
		switch attempt.Channel {
		case "storage":
			if attempt.Err != nil {
				result.Warnings = append(result.Warnings, "lead record could not be stored")
			}
		case "sheet":
			if attempt.Err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("spreadsheet delivery failed: %v", attempt.Err))
			}
		case "crm":
			switch {
			case attempt.Skipped:
				result.CRMStatus = models.CRMNotConfigured
			case attempt.Err != nil:
				result.CRMStatus = models.CRMError
				result.Warnings = append(result.Warnings, fmt.Sprintf("CRM delivery failed: %v", attempt.Err))
				if exclusive {
					// No fallback channel exists in exclusive mode; surface
					// the failure (lead stays persisted locally).
					result.Success = false
				}
			default:
				result.CRMStatus = models.CRMSent
			}
		}
	}
}

// rateLimitPhrasings are known throttle messages from spreadsheet webhook
// receivers; matched only to keep the classification explicit, the outcome
// is the same soft failure.
var rateLimitPhrasings = []string{"muitas solicitações", "too many requests", "rate limit"}

// postJSON delivers one payload: single attempt, bounded timeout, no retry.
// Any non-2xx status or transport error comes back as an error for the
// aggregation policy to classify.
func postJSON(ctx context.Context, url string, payload map[string]interface{}, bearerToken string, timeout time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	lower := strings.ToLower(string(respBody))
	for _, phrase := range rateLimitPhrasings {
		if strings.Contains(lower, phrase) {
			return fmt.Errorf("receiver throttled the request (status %d)", resp.StatusCode)
		}
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}
