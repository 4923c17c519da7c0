package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"formsevo/backend/internal/config"
	"formsevo/backend/internal/models"
)

const questionsCollection = "questions"

// questionCacheKey is the shared Redis key holding a tenant's resolved model.
func questionCacheKey(tenant string) string {
	return "questions:" + tenant
}

// questionInvalidateChannel notifies other processes that a tenant's model changed.
const questionInvalidateChannel = "question_model_updates"

// ErrModelConfig marks tenant form-model configuration errors (duplicate
// steps, duplicate field names). Surfaced to the admin, never silently fixed.
var ErrModelConfig = errors.New("form model configuration error")

// IQuestionService resolves and maintains tenant question models.
type IQuestionService interface {
	GetQuestions(ctx context.Context, tenant string) ([]models.Question, error)
	CreateQuestion(ctx context.Context, q *models.Question) (*models.Question, error)
	UpdateQuestion(ctx context.Context, q *models.Question) error
	DeleteQuestion(ctx context.Context, tenant string, id primitive.ObjectID) error
	SwapSteps(ctx context.Context, tenant string, stepA, stepB int) error
}

type questionService struct {
	db        *mongo.Database
	cfg       *config.Config
	rdb       *redis.Client
	evaluator IBranchEvaluator
}

// NewQuestionService creates a new QuestionService. rdb may be nil, in which
// case the resolved-model cache is disabled.
func NewQuestionService(db *mongo.Database, cfg *config.Config, rdb *redis.Client, evaluator IBranchEvaluator) IQuestionService {
	return &questionService{db: db, cfg: cfg, rdb: rdb, evaluator: evaluator}
}

// GetQuestions returns the tenant's ordered question model, sorted by step
// ascending. Steps must be strictly increasing and unique, and field names
// unique; violations come back as a configuration error.
func (s *questionService) GetQuestions(ctx context.Context, tenant string) ([]models.Question, error) {
	if cached := s.fromCache(ctx, tenant); cached != nil {
		return cached, nil
	}

	cursor, err := s.db.Collection(questionsCollection).Find(ctx,
		bson.M{"tenant": tenant},
		options.Find().SetSort(bson.D{{Key: "step", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions for tenant %s: %w", tenant, err)
	}
	defer cursor.Close(ctx)

	var questions []models.Question
	if err := cursor.All(ctx, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions for tenant %s: %w", tenant, err)
	}

	if err := checkModelIntegrity(questions); err != nil {
		return nil, err
	}

	s.toCache(ctx, tenant, questions)
	return questions, nil
}

// checkModelIntegrity enforces strictly increasing unique steps and unique
// field names over an already step-sorted model.
func checkModelIntegrity(questions []models.Question) error {
	seenFields := make(map[string]bool, len(questions))
	prevStep := 0
	for i, q := range questions {
		if i > 0 && q.Step <= prevStep {
			return fmt.Errorf("%w: duplicate or non-increasing step %d", ErrModelConfig, q.Step)
		}
		prevStep = q.Step
		if seenFields[q.FieldName] {
			return fmt.Errorf("%w: duplicate field name %q", ErrModelConfig, q.FieldName)
		}
		seenFields[q.FieldName] = true
	}
	return nil
}

func (s *questionService) fromCache(ctx context.Context, tenant string) []models.Question {
	if s.rdb == nil {
		return nil
	}
	data, err := s.rdb.Get(ctx, questionCacheKey(tenant)).Bytes()
	if err != nil {
		return nil // miss or Redis unavailable, fall through to Mongo
	}
	var questions []models.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		log.Printf("Warning: corrupt question cache for tenant %s: %v", tenant, err)
		return nil
	}
	return questions
}

func (s *questionService) toCache(ctx context.Context, tenant string, questions []models.Question) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(questions)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, questionCacheKey(tenant), data, s.cfg.QuestionCacheTTL).Err(); err != nil {
		log.Printf("Warning: failed to cache question model for tenant %s: %v", tenant, err)
	}
}

// invalidate drops the cached model and notifies other processes.
func (s *questionService) invalidate(ctx context.Context, tenant string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, questionCacheKey(tenant)).Err(); err != nil {
		log.Printf("Warning: failed to invalidate question cache for tenant %s: %v", tenant, err)
	}
	if err := s.rdb.Publish(ctx, questionInvalidateChannel, tenant).Err(); err != nil {
		log.Printf("Warning: failed to publish question model update for tenant %s: %v", tenant, err)
	}
}

// validateQuestionConfig runs the save-time checks: choice kinds need
// options, rule trigger values must be options and unique, jump targets must
// reference existing steps, variants need a key, expressions must compile.
// Validating here keeps evaluation time free of config errors.
func (s *questionService) validateQuestionConfig(q *models.Question, siblings []models.Question) error {
	if q.FieldName == "" {
		return fmt.Errorf("%w: field_name is required", ErrModelConfig)
	}
	if q.Step <= 0 {
		return fmt.Errorf("%w: step must be positive", ErrModelConfig)
	}
	if q.InputKind.IsChoice() && len(q.Options) == 0 {
		return fmt.Errorf("%w: kind %s requires options", ErrModelConfig, q.InputKind)
	}

	knownSteps := make(map[int]bool, len(siblings)+1)
	knownSteps[q.Step] = true
	for _, sibling := range siblings {
		if sibling.ID != q.ID {
			knownSteps[sibling.Step] = true
		}
	}

	seenTriggers := make(map[string]bool, len(q.Conditional))
	for i := range q.Conditional {
		rule := &q.Conditional[i]

		switch rule.Action {
		case models.ActionJumpToStep:
			if !knownSteps[rule.TargetStep] {
				return fmt.Errorf("%w: rule %d jumps to unknown step %d", ErrModelConfig, i, rule.TargetStep)
			}
		case models.ActionEndWithVariant:
			if rule.VariantKey == "" {
				return fmt.Errorf("%w: rule %d is missing a variant key", ErrModelConfig, i)
			}
		default:
			return fmt.Errorf("%w: rule %d has unknown action %q", ErrModelConfig, i, rule.Action)
		}

		if rule.TriggerExpr != "" {
			if err := s.evaluator.CompileRule(rule); err != nil {
				return fmt.Errorf("%w: rule %d: %v", ErrModelConfig, i, err)
			}
			continue
		}

		if rule.TriggerValue == "" {
			return fmt.Errorf("%w: rule %d has neither trigger value nor expression", ErrModelConfig, i)
		}
		if !q.HasOption(rule.TriggerValue) {
			return fmt.Errorf("%w: rule %d trigger %q is not one of the question's options", ErrModelConfig, i, rule.TriggerValue)
		}
		if seenTriggers[rule.TriggerValue] {
			return fmt.Errorf("%w: duplicate trigger value %q", ErrModelConfig, rule.TriggerValue)
		}
		seenTriggers[rule.TriggerValue] = true
	}

	return nil
}

// siblingQuestions loads the tenant's other questions for save-time checks,
// bypassing the cache so decisions are made on current data.
func (s *questionService) siblingQuestions(ctx context.Context, tenant string) ([]models.Question, error) {
	cursor, err := s.db.Collection(questionsCollection).Find(ctx,
		bson.M{"tenant": tenant},
		options.Find().SetSort(bson.D{{Key: "step", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions for tenant %s: %w", tenant, err)
	}
	defer cursor.Close(ctx)
	var questions []models.Question
	if err := cursor.All(ctx, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions for tenant %s: %w", tenant, err)
	}
	return questions, nil
}

// CreateQuestion validates and inserts a new question for the tenant.
func (s *questionService) CreateQuestion(ctx context.Context, q *models.Question) (*models.Question, error) {
	siblings, err := s.siblingQuestions(ctx, q.Tenant)
	if err != nil {
		return nil, err
	}
	for _, sibling := range siblings {
		if sibling.Step == q.Step {
			return nil, fmt.Errorf("%w: step %d already exists", ErrModelConfig, q.Step)
		}
		if sibling.FieldName == q.FieldName {
			return nil, fmt.Errorf("%w: field name %q already exists", ErrModelConfig, q.FieldName)
		}
	}
	if err := s.validateQuestionConfig(q, siblings); err != nil {
		return nil, err
	}

	q.ID = primitive.NewObjectID()
	if _, err := s.db.Collection(questionsCollection).InsertOne(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to insert question: %w", err)
	}
	s.invalidate(ctx, q.Tenant)
	return q, nil
}

// UpdateQuestion validates and replaces an existing question.
func (s *questionService) UpdateQuestion(ctx context.Context, q *models.Question) error {
	if q.ID.IsZero() {
		return fmt.Errorf("%w: question id is required", ErrModelConfig)
	}
	siblings, err := s.siblingQuestions(ctx, q.Tenant)
	if err != nil {
		return err
	}
	for _, sibling := range siblings {
		if sibling.ID == q.ID {
			continue
		}
		if sibling.Step == q.Step {
			return fmt.Errorf("%w: step %d already exists", ErrModelConfig, q.Step)
		}
		if sibling.FieldName == q.FieldName {
			return fmt.Errorf("%w: field name %q already exists", ErrModelConfig, q.FieldName)
		}
	}
	if err := s.validateQuestionConfig(q, siblings); err != nil {
		return err
	}

	result, err := s.db.Collection(questionsCollection).ReplaceOne(ctx,
		bson.M{"_id": q.ID, "tenant": q.Tenant}, q)
	if err != nil {
		return fmt.Errorf("failed to update question %s: %w", q.ID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("question %s not found for tenant %s", q.ID.Hex(), q.Tenant)
	}
	s.invalidate(ctx, q.Tenant)
	return nil
}

// DeleteQuestion removes a question. Rules on other questions that jump to
// the removed step become dangling; resolution surfaces nothing, but the
// admin save path will reject future edits referencing the gone step.
func (s *questionService) DeleteQuestion(ctx context.Context, tenant string, id primitive.ObjectID) error {
	result, err := s.db.Collection(questionsCollection).DeleteOne(ctx, bson.M{"_id": id, "tenant": tenant})
	if err != nil {
		return fmt.Errorf("failed to delete question %s: %w", id.Hex(), err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("question %s not found for tenant %s", id.Hex(), tenant)
	}
	s.invalidate(ctx, tenant)
	return nil
}

// SwapSteps exchanges the step values of two questions. The swap goes
// through a transient negative step so the (tenant, step) unique index never
// trips mid-swap. If a later write fails the model is left with the
// transient value: still totally ordered and unique, flagged to the admin
// via the returned error.
func (s *questionService) SwapSteps(ctx context.Context, tenant string, stepA, stepB int) error {
	coll := s.db.Collection(questionsCollection)

	var qa, qb models.Question
	if err := coll.FindOne(ctx, bson.M{"tenant": tenant, "step": stepA}).Decode(&qa); err != nil {
		return fmt.Errorf("step %d not found for tenant %s: %w", stepA, tenant, err)
	}
	if err := coll.FindOne(ctx, bson.M{"tenant": tenant, "step": stepB}).Decode(&qb); err != nil {
		return fmt.Errorf("step %d not found for tenant %s: %w", stepB, tenant, err)
	}

	steps := []struct {
		id   primitive.ObjectID
		step int
	}{
		{qa.ID, -stepA}, // park A out of the way
		{qb.ID, stepA},
		{qa.ID, stepB},
	}
	for _, u := range steps {
		if _, err := coll.UpdateOne(ctx,
			bson.M{"_id": u.id, "tenant": tenant},
			bson.M{"$set": bson.M{"step": u.step}},
		); err != nil {
			s.invalidate(ctx, tenant)
			return fmt.Errorf("reorder left step %d parked, retry the swap: %w", stepA, err)
		}
	}

	s.invalidate(ctx, tenant)
	return nil
}

// LastStep returns the highest step of an ordered model, or 0 when empty.
func LastStep(questions []models.Question) int {
	if len(questions) == 0 {
		return 0
	}
	return questions[len(questions)-1].Step
}

// EnsureQuestionIndexes creates the unique indexes backing the model
// invariants. Called once at startup.
func EnsureQuestionIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(questionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant", Value: 1}, {Key: "step", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "tenant", Value: 1}, {Key: "field_name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create question indexes: %w", err)
	}
	return nil
}
