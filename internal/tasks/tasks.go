package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"formsevo/backend/internal/config"
	"formsevo/backend/internal/email"
	"formsevo/backend/internal/services"
)

// Task types.
const (
	TypePartialRecord = "partial:record"
	TypeLeadNotify    = "lead:notify"
)

// --- Task Client (Enqueuing tasks) ---

// NewClient builds an asynq client sharing the Redis connection settings.
func NewClient(rdb *redis.Client) *asynq.Client {
	opts := rdb.Options()
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// PartialRecordPayload is the beacon snapshot forwarded to the worker.
type PartialRecordPayload struct {
	SessionID   string                 `json:"session_id"`
	Tenant      string                 `json:"tenant"`
	StepReached int                    `json:"step_reached"`
	PartialData map[string]interface{} `json:"partial_data"`
}

// NewPartialRecordTask builds the fire-and-forget abandonment snapshot task.
func NewPartialRecordTask(payload PartialRecordPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal partial record payload: %w", err)
	}
	// One attempt: the beacon contract is fire-and-forget, and a later
	// beacon supersedes this one anyway.
	return asynq.NewTask(TypePartialRecord, data, asynq.MaxRetry(0), asynq.Queue("low")), nil
}

// LeadNotifyPayload identifies a freshly stored lead for notification.
type LeadNotifyPayload struct {
	Tenant   string `json:"tenant"`
	LeadID   string `json:"lead_id"`
	LeadName string `json:"lead_name"`
	Agent    string `json:"agent,omitempty"`
}

// NewLeadNotifyTask builds the new-lead email notification task.
func NewLeadNotifyTask(payload LeadNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lead notify payload: %w", err)
	}
	return asynq.NewTask(TypeLeadNotify, data, asynq.MaxRetry(3), asynq.Queue("default")), nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg             *config.Config
	emailSender     email.Sender
	partialService  services.IPartialService
	settingsService services.ISettingsService
}

// NewTaskProcessor creates a new TaskProcessor.
func NewTaskProcessor(cfg *config.Config, emailSender email.Sender, partialService services.IPartialService, settingsService services.ISettingsService) *TaskProcessor {
	return &TaskProcessor{
		cfg:             cfg,
		emailSender:     emailSender,
		partialService:  partialService,
		settingsService: settingsService,
	}
}

// SetupServer configures and returns an Asynq server instance.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) *asynq.Server {
	opts := rdb.Options()
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: opts.Addr, Password: opts.Password, DB: opts.DB},
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task %s failed: %v", task.Type(), err)
			}),
		},
	)
	return srv
}

// SetupMux registers the task handlers.
func SetupMux(processor *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePartialRecord, processor.HandlePartialRecord)
	mux.HandleFunc(TypeLeadNotify, processor.HandleLeadNotify)
	return mux
}

// HandlePartialRecord upserts the abandonment snapshot for a session.
func (p *TaskProcessor) HandlePartialRecord(ctx context.Context, task *asynq.Task) error {
	var payload PartialRecordPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid partial record payload: %w", err)
	}
	if err := p.partialService.RecordPartial(ctx, payload.SessionID, payload.Tenant, payload.StepReached, payload.PartialData); err != nil {
		// Fire-and-forget: log and drop, the next beacon supersedes.
		log.Printf("Warning: partial record for session %s failed: %v", payload.SessionID, err)
	}
	return nil
}

// HandleLeadNotify emails the tenant's notification address about a new lead.
func (p *TaskProcessor) HandleLeadNotify(ctx context.Context, task *asynq.Task) error {
	var payload LeadNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid lead notify payload: %w", err)
	}

	settings, err := p.settingsService.GetSettings(ctx, payload.Tenant)
	if err != nil {
		return fmt.Errorf("failed to load settings for tenant %s: %w", payload.Tenant, err)
	}
	if settings.NotificationEmail == "" {
		return nil // nothing to notify
	}

	subject := fmt.Sprintf("[%s] Novo lead recebido", p.cfg.AppName)
	body := fmt.Sprintf("Novo lead para %s.\n\nNome: %s\nID: %s\n", payload.Tenant, payload.LeadName, payload.LeadID)
	if payload.Agent != "" {
		body += fmt.Sprintf("Atendente: %s\n", payload.Agent)
	}

	to := []string{settings.NotificationEmail}
	msg := email.ComposeMessage(p.cfg.SmtpFromAddress, to, subject, body)
	if err := p.emailSender.Send(ctx, to, subject, msg); err != nil {
		return fmt.Errorf("failed to send lead notification: %w", err)
	}
	return nil
}
