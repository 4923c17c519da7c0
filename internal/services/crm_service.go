package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"formsevo/backend/internal/config"
	"formsevo/backend/internal/models"
	"formsevo/backend/internal/utils"
)

const crmCollection = "crm_integrations"

// ICRMService resolves a tenant's CRM integration and builds its webhook
// payloads.
type ICRMService interface {
	GetIntegration(ctx context.Context, tenant string) (*models.CRMIntegration, error)
	SaveIntegration(ctx context.Context, integration *models.CRMIntegration) error
	BuildPayload(integration *models.CRMIntegration, trace map[string]interface{}, origin string) map[string]interface{}
}

type crmService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewCRMService creates a new CRMService.
func NewCRMService(database *mongo.Database, cfg *config.Config) ICRMService {
	return &crmService{db: database, cfg: cfg}
}

// GetIntegration returns the tenant's CRM integration, or nil when none is
// configured. At most one exists per tenant.
func (s *crmService) GetIntegration(ctx context.Context, tenant string) (*models.CRMIntegration, error) {
	var integration models.CRMIntegration
	err := s.db.Collection(crmCollection).FindOne(ctx, bson.M{"tenant": tenant}).Decode(&integration)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load CRM integration for tenant %s: %w", tenant, err)
	}
	return &integration, nil
}

// SaveIntegration upserts the tenant's single CRM integration.
func (s *crmService) SaveIntegration(ctx context.Context, integration *models.CRMIntegration) error {
	if integration.Tenant == "" {
		return fmt.Errorf("tenant is required")
	}
	if integration.WebhookURL == "" {
		return fmt.Errorf("webhook_url is required")
	}
	if integration.ID.IsZero() {
		integration.ID = primitive.NewObjectID()
	}
	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(crmCollection).ReplaceOne(ctx,
		bson.M{"tenant": integration.Tenant}, integration, opts)
	if err != nil {
		return fmt.Errorf("failed to save CRM integration for tenant %s: %w", integration.Tenant, err)
	}
	return nil
}

// BuildPayload assembles the CRM webhook body: fixed fields with a
// digits-only phone, the manager/slug identifiers, optionally the remaining
// dynamic fields (tracking keys excluded), and the tracking keys themselves.
func (s *crmService) BuildPayload(integration *models.CRMIntegration, trace map[string]interface{}, origin string) map[string]interface{} {
	payload := map[string]interface{}{
		"nome":     TraceName(trace),
		"telefone": utils.DigitsOnly(TracePhone(trace)),
		"email":    TraceEmail(trace),
		"origem":   origin,
	}
	if integration.ManagerID != "" {
		payload["manager_id"] = integration.ManagerID
	}
	if integration.Slug != "" {
		payload["slug"] = integration.Slug
	}

	if integration.IncludeDynamicFields {
		for key, value := range trace {
			if IsTrackingKey(key) {
				continue
			}
			lower := strings.ToLower(key)
			if strings.Contains(lower, "nome") || strings.Contains(lower, "name") ||
				strings.Contains(lower, "whatsapp") || strings.Contains(lower, "telefone") ||
				strings.Contains(lower, "phone") || strings.Contains(lower, "email") {
				continue // already delivered as fixed fields
			}
			payload[key] = value
		}
	}

	for key, value := range trace {
		if IsTrackingKey(key) {
			payload[strings.ToLower(key)] = value
		}
	}

	return payload
}

// EnsureCRMIndexes creates the unique tenant index. Called once at startup.
func EnsureCRMIndexes(ctx context.Context, database *mongo.Database) error {
	_, err := database.Collection(crmCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tenant", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create CRM integration indexes: %w", err)
	}
	return nil
}
