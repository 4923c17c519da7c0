package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"formsevo/backend/internal/services"
	"formsevo/backend/internal/tasks"
)

// IAsynqClient defines the interface for the Asynq client methods used by
// the handlers. This allows easier mocking than the concrete asynq.Client.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// SubmitHandler is the dispatcher entry point.
type SubmitHandler struct {
	questionService services.IQuestionService
	evaluator       services.IBranchEvaluator
	dispatch        services.IDispatchService
	taskClient      IAsynqClient
}

// NewSubmitHandler creates a new SubmitHandler. taskClient may be nil, in
// which case lead notifications are skipped.
func NewSubmitHandler(questionService services.IQuestionService, evaluator services.IBranchEvaluator, dispatch services.IDispatchService, taskClient IAsynqClient) *SubmitHandler {
	return &SubmitHandler{
		questionService: questionService,
		evaluator:       evaluator,
		dispatch:        dispatch,
		taskClient:      taskClient,
	}
}

// Submit handles POST /v1/:tenant/submit
//
// The body is the flat answer trace itself (field_name -> value) plus a
// "timestamp" key. The terminal branch decision is re-derived server-side
// from the trace, so a suppressed variant suppresses even when the client
// posts anyway.
func (h *SubmitHandler) Submit(c *gin.Context) {
	tenant := c.Param("tenant")

	var trace map[string]interface{}
	if err := c.ShouldBindJSON(&trace); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
		return
	}
	delete(trace, "timestamp") // transport metadata, not an answer

	opts := services.SubmitOptions{}
	questions, err := h.questionService.GetQuestions(c.Request.Context(), tenant)
	if err != nil {
		// A broken model must not block the lead: dispatch without a
		// terminal decision and let the admin fix the model.
		log.Printf("Warning: could not resolve model for tenant %s during submit: %v", tenant, err)
	} else {
		decision := h.evaluator.TerminalDecision(questions, trace)
		opts.Suppress = decision.Suppress
		opts.VariantKey = decision.VariantKey
	}

	result, err := h.dispatch.Submit(c.Request.Context(), tenant, trace, opts)
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "fields": verr.Fields})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Submission failed"})
		return
	}

	h.notifyLead(c, tenant, result)

	c.JSON(http.StatusOK, gin.H{
		"success":       result.Success,
		"warnings":      result.Warnings,
		"database_id":   result.LeadID,
		"agent":         result.AgentName,
		"whatsapp_link": result.WhatsAppLink,
		"crm_status":    result.CRMStatus,
		"variant":       opts.VariantKey,
	})
}

// notifyLead enqueues the new-lead email, best-effort.
func (h *SubmitHandler) notifyLead(c *gin.Context, tenant string, result *services.SubmitResult) {
	if h.taskClient == nil || result.LeadID == "" {
		return
	}
	task, err := tasks.NewLeadNotifyTask(tasks.LeadNotifyPayload{
		Tenant: tenant,
		LeadID: result.LeadID,
		Agent:  result.AgentName,
	})
	if err != nil {
		log.Printf("Warning: failed to build lead notify task: %v", err)
		return
	}
	if _, err := h.taskClient.EnqueueContext(c.Request.Context(), task); err != nil {
		log.Printf("Warning: failed to enqueue lead notify task: %v", err)
	}
}
