package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"formsevo/backend/internal/db"
)

const partialCollection = "partial_progress"

// IPartialService snapshots in-progress answer state for abandonment
// analytics. Fire-and-forget from the caller's perspective: errors are
// returned for logging but nothing retries beyond the duplicate-key race.
type IPartialService interface {
	RecordPartial(ctx context.Context, sessionID, tenant string, stepReached int, partialData map[string]interface{}) error
}

type partialService struct {
	db *mongo.Database
}

// NewPartialService creates a new PartialService.
func NewPartialService(database *mongo.Database) IPartialService {
	return &partialService{db: database}
}

// RecordPartial upserts the snapshot keyed by (session, tenant). step_reached
// only moves forward ($max), so a late or replayed beacon never regresses
// the snapshot; the data blob always reflects the latest call.
func (s *partialService) RecordPartial(ctx context.Context, sessionID, tenant string, stepReached int, partialData map[string]interface{}) error {
	if sessionID == "" || tenant == "" {
		return fmt.Errorf("session id and tenant are required")
	}

	update := bson.M{
		"$set": bson.M{
			"partial_data": partialData,
			"abandoned":    true,
			"updated_at":   time.Now().UTC(),
		},
		"$max": bson.M{"step_reached": stepReached},
		"$setOnInsert": bson.M{
			"session_id": sessionID,
			"tenant":     tenant,
		},
	}
	opts := options.Update().SetUpsert(true)

	// Two concurrent upserts for a brand-new session can both insert; the
	// loser hits the unique index and retries as a plain update.
	return db.Try(func() error {
		_, err := s.db.Collection(partialCollection).UpdateOne(ctx,
			bson.M{"session_id": sessionID, "tenant": tenant}, update, opts)
		if err != nil {
			return fmt.Errorf("failed to record partial progress for session %s: %w", sessionID, err)
		}
		return nil
	})
}

// EnsurePartialIndexes creates the unique (session, tenant) index. Called
// once at startup.
func EnsurePartialIndexes(ctx context.Context, database *mongo.Database) error {
	_, err := database.Collection(partialCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "tenant", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create partial progress indexes: %w", err)
	}
	return nil
}
