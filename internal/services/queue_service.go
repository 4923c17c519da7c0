package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"formsevo/backend/internal/config"
	"formsevo/backend/internal/models"
)

// IQueueService maintains a tenant's WhatsApp agent queue (admin surface).
// Positions are kept dense (1..N) on every write.
type IQueueService interface {
	ListAgents(ctx context.Context, tenant string) ([]models.WhatsAppAgent, error)
	SaveAgent(ctx context.Context, agent *models.WhatsAppAgent) (*models.WhatsAppAgent, error)
	DeleteAgent(ctx context.Context, tenant string, id primitive.ObjectID) error
}

type queueService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewQueueService creates a new QueueService.
func NewQueueService(database *mongo.Database, cfg *config.Config) IQueueService {
	return &queueService{db: database, cfg: cfg}
}

// ListAgents returns all queue entries (active and inactive) ordered by position.
func (s *queueService) ListAgents(ctx context.Context, tenant string) ([]models.WhatsAppAgent, error) {
	cursor, err := s.db.Collection(queueCollection).Find(ctx,
		bson.M{"tenant": tenant},
		options.Find().SetSort(bson.D{{Key: "position", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue for tenant %s: %w", tenant, err)
	}
	var agents []models.WhatsAppAgent
	if err := cursor.All(ctx, &agents); err != nil {
		return nil, fmt.Errorf("failed to decode queue for tenant %s: %w", tenant, err)
	}
	return agents, nil
}

// SaveAgent inserts or updates a queue entry. New agents append at the end;
// the queue holds at most MaxQueueAgents entries.
func (s *queueService) SaveAgent(ctx context.Context, agent *models.WhatsAppAgent) (*models.WhatsAppAgent, error) {
	if agent.Tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}
	if agent.PhoneNumber == "" {
		return nil, fmt.Errorf("phone_number is required")
	}

	existing, err := s.ListAgents(ctx, agent.Tenant)
	if err != nil {
		return nil, err
	}

	if agent.ID.IsZero() {
		if len(existing) >= s.cfg.MaxQueueAgents {
			return nil, fmt.Errorf("queue for tenant %s is full (%d agents)", agent.Tenant, s.cfg.MaxQueueAgents)
		}
		agent.ID = primitive.NewObjectID()
		agent.Position = len(existing) + 1
		if _, err := s.db.Collection(queueCollection).InsertOne(ctx, agent); err != nil {
			return nil, fmt.Errorf("failed to insert queue agent: %w", err)
		}
		return agent, nil
	}

	result, err := s.db.Collection(queueCollection).ReplaceOne(ctx,
		bson.M{"_id": agent.ID, "tenant": agent.Tenant}, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to update queue agent %s: %w", agent.ID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return nil, fmt.Errorf("queue agent %s not found for tenant %s", agent.ID.Hex(), agent.Tenant)
	}
	return agent, nil
}

// DeleteAgent removes an entry and compacts the remaining positions so they
// stay dense.
func (s *queueService) DeleteAgent(ctx context.Context, tenant string, id primitive.ObjectID) error {
	result, err := s.db.Collection(queueCollection).DeleteOne(ctx, bson.M{"_id": id, "tenant": tenant})
	if err != nil {
		return fmt.Errorf("failed to delete queue agent %s: %w", id.Hex(), err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("queue agent %s not found for tenant %s", id.Hex(), tenant)
	}

	remaining, err := s.ListAgents(ctx, tenant)
	if err != nil {
		return err
	}
	for i, agent := range remaining {
		want := i + 1
		if agent.Position == want {
			continue
		}
		if _, err := s.db.Collection(queueCollection).UpdateOne(ctx,
			bson.M{"_id": agent.ID},
			bson.M{"$set": bson.M{"position": want}},
		); err != nil {
			return fmt.Errorf("failed to compact queue positions for tenant %s: %w", tenant, err)
		}
	}
	return nil
}
