package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"formsevo/backend/internal/models"
	"formsevo/backend/internal/services"
)

// AdminHandler exposes the tenant configuration surface: questions,
// settings, WhatsApp queue and CRM integration.
type AdminHandler struct {
	questionService services.IQuestionService
	settingsService services.ISettingsService
	queueService    services.IQueueService
	rotationService services.IRotationService
	crmService      services.ICRMService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(questionService services.IQuestionService, settingsService services.ISettingsService, queueService services.IQueueService, rotationService services.IRotationService, crmService services.ICRMService) *AdminHandler {
	return &AdminHandler{
		questionService: questionService,
		settingsService: settingsService,
		queueService:    queueService,
		rotationService: rotationService,
		crmService:      crmService,
	}
}

// writeServiceError maps configuration errors to 422 and everything else to 500.
func writeServiceError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrModelConfig) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}

// --- Questions ---

// ListQuestions handles GET /v1/admin/:tenant/questions
func (h *AdminHandler) ListQuestions(c *gin.Context) {
	questions, err := h.questionService.GetQuestions(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": questions})
}

// CreateQuestion handles POST /v1/admin/:tenant/questions
func (h *AdminHandler) CreateQuestion(c *gin.Context) {
	var q models.Question
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	q.Tenant = c.Param("tenant")

	created, err := h.questionService.CreateQuestion(c.Request.Context(), &q)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// UpdateQuestion handles PUT /v1/admin/:tenant/questions/:id
func (h *AdminHandler) UpdateQuestion(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question id"})
		return
	}

	var q models.Question
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	q.ID = id
	q.Tenant = c.Param("tenant")

	if err := h.questionService.UpdateQuestion(c.Request.Context(), &q); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// DeleteQuestion handles DELETE /v1/admin/:tenant/questions/:id
func (h *AdminHandler) DeleteQuestion(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question id"})
		return
	}
	if err := h.questionService.DeleteQuestion(c.Request.Context(), c.Param("tenant"), id); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reorderRequest struct {
	StepA int `json:"step_a" binding:"required"`
	StepB int `json:"step_b" binding:"required"`
}

// ReorderQuestions handles POST /v1/admin/:tenant/questions/reorder
func (h *AdminHandler) ReorderQuestions(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if err := h.questionService.SwapSteps(c.Request.Context(), c.Param("tenant"), req.StepA, req.StepB); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Settings ---

// GetSettings handles GET /v1/admin/:tenant/settings
func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingsService.GetSettings(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings handles PUT /v1/admin/:tenant/settings
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var settings models.TenantSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	settings.Tenant = c.Param("tenant")

	if err := h.settingsService.UpdateSettings(c.Request.Context(), &settings); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// --- WhatsApp queue ---

// ListAgents handles GET /v1/admin/:tenant/queue
func (h *AdminHandler) ListAgents(c *gin.Context) {
	agents, err := h.queueService.ListAgents(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": agents})
}

// SaveAgent handles POST /v1/admin/:tenant/queue
func (h *AdminHandler) SaveAgent(c *gin.Context) {
	var agent models.WhatsAppAgent
	if err := c.ShouldBindJSON(&agent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	agent.Tenant = c.Param("tenant")

	saved, err := h.queueService.SaveAgent(c.Request.Context(), &agent)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// DeleteAgent handles DELETE /v1/admin/:tenant/queue/:id
func (h *AdminHandler) DeleteAgent(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid agent id"})
		return
	}
	if err := h.queueService.DeleteAgent(c.Request.Context(), c.Param("tenant"), id); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResetQueueCursor handles POST /v1/admin/:tenant/queue/reset
func (h *AdminHandler) ResetQueueCursor(c *gin.Context) {
	if err := h.rotationService.ResetCursor(c.Request.Context(), c.Param("tenant")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- CRM ---

// GetCRMIntegration handles GET /v1/admin/:tenant/crm
func (h *AdminHandler) GetCRMIntegration(c *gin.Context) {
	integration, err := h.crmService.GetIntegration(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if integration == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No CRM integration configured"})
		return
	}
	c.JSON(http.StatusOK, integration)
}

// SaveCRMIntegration handles PUT /v1/admin/:tenant/crm
func (h *AdminHandler) SaveCRMIntegration(c *gin.Context) {
	var integration models.CRMIntegration
	if err := c.ShouldBindJSON(&integration); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	integration.Tenant = c.Param("tenant")

	if err := h.crmService.SaveIntegration(c.Request.Context(), &integration); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, integration)
}
