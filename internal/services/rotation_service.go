package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"formsevo/backend/internal/db"
	"formsevo/backend/internal/models"
)

const (
	queueCollection      = "whatsapp_queue"
	queueStateCollection = "whatsapp_queue_state"
)

// Allocation is the result of one rotation step: the selected agent (nil
// when the queue has no active entries) and whether the cursor advanced.
type Allocation struct {
	Agent    *models.WhatsAppAgent
	Advanced bool
}

// IRotationService assigns WhatsApp agents round-robin over the active
// subset of a tenant's queue.
type IRotationService interface {
	Allocate(ctx context.Context, tenant string) (*Allocation, error)
	ResetCursor(ctx context.Context, tenant string) error
}

type rotationService struct {
	db *mongo.Database
}

// NewRotationService creates a new RotationService.
func NewRotationService(database *mongo.Database) IRotationService {
	return &rotationService{db: database}
}

// pickAgent selects from active entries (sorted by position ascending) given
// the cursor: the first entry at or past the cursor, wrapping to the first
// entry when the cursor is past the end. Returns the selected index and the
// cursor value for the next allocation (the following entry's position,
// wrapping). Pure; the index is -1 when entries is empty.
func pickAgent(entries []models.WhatsAppAgent, cursor int) (selected int, nextCursor int) {
	if len(entries) == 0 {
		return -1, cursor
	}
	selected = 0
	for i := range entries {
		if entries[i].Position >= cursor {
			selected = i
			break
		}
	}
	next := (selected + 1) % len(entries)
	return selected, entries[next].Position
}

// Allocate picks the next active agent and advances the cursor exactly once.
// The advance is a compare-and-set on the previously observed cursor value;
// when a concurrent allocation already moved it, the CAS is skipped and both
// requests keep their (identical) agent. That lost update is the documented,
// accepted anomaly of the rotation contract.
func (s *rotationService) Allocate(ctx context.Context, tenant string) (*Allocation, error) {
	cursor, err := s.db.Collection(queueCollection).Find(ctx,
		bson.M{"tenant": tenant, "is_active": true},
		options.Find().SetSort(bson.D{{Key: "position", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue for tenant %s: %w", tenant, err)
	}
	var entries []models.WhatsAppAgent
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode queue for tenant %s: %w", tenant, err)
	}

	if len(entries) == 0 {
		// No active agents: caller falls back to the fixed tenant number.
		return &Allocation{Agent: nil, Advanced: false}, nil
	}

	state, err := s.loadState(ctx, tenant)
	if err != nil {
		return nil, err
	}

	selected, nextCursor := pickAgent(entries, state.CurrentPosition)
	agent := entries[selected]

	advanced, err := s.advanceCursor(ctx, tenant, state.CurrentPosition, nextCursor)
	if err != nil {
		// The agent assignment itself is still good; losing the advance only
		// skews fairness, which the contract accepts.
		log.Printf("Warning: failed to advance rotation cursor for tenant %s: %v", tenant, err)
	}

	return &Allocation{Agent: &agent, Advanced: advanced}, nil
}

// loadState returns the tenant's cursor document, lazily creating it at
// position 1.
func (s *rotationService) loadState(ctx context.Context, tenant string) (*models.QueueState, error) {
	coll := s.db.Collection(queueStateCollection)

	var state models.QueueState
	err := coll.FindOne(ctx, bson.M{"tenant": tenant}).Decode(&state)
	if err == nil {
		return &state, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to load queue state for tenant %s: %w", tenant, err)
	}

	created := &models.QueueState{ID: primitive.NewObjectID(), Tenant: tenant, CurrentPosition: 1}
	err = db.Try(func() error {
		_, insertErr := coll.InsertOne(ctx, created)
		if db.IsMongoDuplicateKeyError(insertErr) {
			return coll.FindOne(ctx, bson.M{"tenant": tenant}).Decode(created)
		}
		return insertErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create queue state for tenant %s: %w", tenant, err)
	}
	return created, nil
}

// advanceCursor moves the cursor from the observed value to next. The filter
// on the observed value makes this a compare-and-set: a concurrent
// allocation that already advanced wins and this update matches nothing.
func (s *rotationService) advanceCursor(ctx context.Context, tenant string, observed, next int) (bool, error) {
	result, err := s.db.Collection(queueStateCollection).UpdateOne(ctx,
		bson.M{"tenant": tenant, "current_position": observed},
		bson.M{"$set": bson.M{"current_position": next}},
	)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

// ResetCursor puts the tenant's rotation back at position 1. Admin surface.
func (s *rotationService) ResetCursor(ctx context.Context, tenant string) error {
	opts := options.Update().SetUpsert(true)
	_, err := s.db.Collection(queueStateCollection).UpdateOne(ctx,
		bson.M{"tenant": tenant},
		bson.M{"$set": bson.M{"current_position": 1}},
		opts,
	)
	if err != nil {
		return fmt.Errorf("failed to reset queue state for tenant %s: %w", tenant, err)
	}
	return nil
}

// EnsureQueueIndexes creates the unique indexes for queue entries and the
// cursor singleton. Called once at startup.
func EnsureQueueIndexes(ctx context.Context, database *mongo.Database) error {
	_, err := database.Collection(queueCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tenant", Value: 1}, {Key: "position", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create queue indexes: %w", err)
	}
	_, err = database.Collection(queueStateCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tenant", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create queue state indexes: %w", err)
	}
	return nil
}
