package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"formsevo/backend/internal/config"
	"formsevo/backend/internal/db"
	"formsevo/backend/internal/models"
)

const settingsCollection = "tenant_settings"

// ISettingsService manages the per-tenant settings singleton.
type ISettingsService interface {
	GetSettings(ctx context.Context, tenant string) (*models.TenantSettings, error)
	UpdateSettings(ctx context.Context, settings *models.TenantSettings) error
}

type settingsService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(database *mongo.Database, cfg *config.Config) ISettingsService {
	return &settingsService{db: database, cfg: cfg}
}

// GetSettings returns the tenant's settings, creating the singleton with
// defaults on first access. Two concurrent first accesses race on the unique
// index; the loser retries and reads the winner's document.
func (s *settingsService) GetSettings(ctx context.Context, tenant string) (*models.TenantSettings, error) {
	coll := s.db.Collection(settingsCollection)

	var settings models.TenantSettings
	err := coll.FindOne(ctx, bson.M{"tenant": tenant}).Decode(&settings)
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to load settings for tenant %s: %w", tenant, err)
	}

	created := models.DefaultTenantSettings(tenant)
	created.ID = primitive.NewObjectID()
	err = db.Try(func() error {
		_, insertErr := coll.InsertOne(ctx, created)
		if db.IsMongoDuplicateKeyError(insertErr) {
			// Lost the lazy-create race; read the winner's document.
			return coll.FindOne(ctx, bson.M{"tenant": tenant}).Decode(created)
		}
		return insertErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create default settings for tenant %s: %w", tenant, err)
	}
	return created, nil
}

// UpdateSettings replaces the tenant's settings document.
func (s *settingsService) UpdateSettings(ctx context.Context, settings *models.TenantSettings) error {
	if settings.Tenant == "" {
		return fmt.Errorf("tenant is required")
	}
	settings.UpdatedAt = time.Now().UTC()

	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(settingsCollection).ReplaceOne(ctx,
		bson.M{"tenant": settings.Tenant}, settings, opts)
	if err != nil {
		return fmt.Errorf("failed to update settings for tenant %s: %w", settings.Tenant, err)
	}
	return nil
}

// EnsureSettingsIndexes creates the unique tenant index. Called once at startup.
func EnsureSettingsIndexes(ctx context.Context, database *mongo.Database) error {
	_, err := database.Collection(settingsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tenant", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create settings indexes: %w", err)
	}
	return nil
}
