package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"formsevo/backend/internal/models"
	"formsevo/backend/internal/services"
)

// FormHandler serves the public form model consumed by the rendering layer.
type FormHandler struct {
	questionService services.IQuestionService
	settingsService services.ISettingsService
}

// NewFormHandler creates a new FormHandler.
func NewFormHandler(questionService services.IQuestionService, settingsService services.ISettingsService) *FormHandler {
	return &FormHandler{
		questionService: questionService,
		settingsService: settingsService,
	}
}

// publicSettings is the subset of tenant settings the form client may see.
// Webhook URLs, tokens and notification addresses stay server-side.
type publicSettings struct {
	WhatsAppEnabled  bool                    `json:"whatsapp_enabled"`
	WhatsAppOnSubmit bool                    `json:"whatsapp_on_submit"`
	SuccessTitle     string                  `json:"success_title"`
	SuccessMessage   string                  `json:"success_message,omitempty"`
	SuccessVariants  []models.SuccessVariant `json:"success_variants,omitempty"`
}

// GetForm handles GET /v1/:tenant/form
func (h *FormHandler) GetForm(c *gin.Context) {
	tenant := c.Param("tenant")

	questions, err := h.questionService.GetQuestions(c.Request.Context(), tenant)
	if err != nil {
		if errors.Is(err, services.ErrModelConfig) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load form model"})
		return
	}

	settings, err := h.settingsService.GetSettings(c.Request.Context(), tenant)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load tenant settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"questions": questions,
		"settings": publicSettings{
			WhatsAppEnabled:  settings.WhatsAppEnabled,
			WhatsAppOnSubmit: settings.WhatsAppOnSubmit,
			SuccessTitle:     settings.SuccessTitle,
			SuccessMessage:   settings.SuccessMessage,
			SuccessVariants:  settings.SuccessVariants,
		},
	})
}
