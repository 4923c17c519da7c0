package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"formsevo/backend/internal/models"
	"formsevo/backend/internal/services"
)

// FlowHandler answers per-field validation and branch-evaluation requests
// made while the client walks the form.
type FlowHandler struct {
	questionService services.IQuestionService
	validator       services.IFieldValidator
	evaluator       services.IBranchEvaluator
}

// NewFlowHandler creates a new FlowHandler.
func NewFlowHandler(questionService services.IQuestionService, validator services.IFieldValidator, evaluator services.IBranchEvaluator) *FlowHandler {
	return &FlowHandler{
		questionService: questionService,
		validator:       validator,
		evaluator:       evaluator,
	}
}

type validateRequest struct {
	FieldName string `json:"field_name" binding:"required"`
	Value     string `json:"value"`
}

// ValidateField handles POST /v1/:tenant/validate
func (h *FlowHandler) ValidateField(c *gin.Context) {
	tenant := c.Param("tenant")

	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	question, err := h.findQuestion(c, tenant, req.FieldName)
	if err != nil {
		return // response already written
	}

	if err := h.validator.ValidateField(question, req.Value); err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusOK, gin.H{"ok": false, "field_errors": verr.Fields})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Validation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type nextStepRequest struct {
	FieldName string                 `json:"field_name" binding:"required"`
	Value     string                 `json:"value"`
	Trace     map[string]interface{} `json:"trace"`
}

// NextStep handles POST /v1/:tenant/next
func (h *FlowHandler) NextStep(c *gin.Context) {
	tenant := c.Param("tenant")

	var req nextStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	question, err := h.findQuestion(c, tenant, req.FieldName)
	if err != nil {
		return
	}

	questions, _ := h.questionService.GetQuestions(c.Request.Context(), tenant)
	action := h.evaluator.NextStep(question, req.Value, req.Trace, question.Step, services.LastStep(questions))
	c.JSON(http.StatusOK, action)
}

// findQuestion resolves the model and locates the field, writing the error
// response itself when something goes wrong.
func (h *FlowHandler) findQuestion(c *gin.Context, tenant, fieldName string) (*models.Question, error) {
	questions, err := h.questionService.GetQuestions(c.Request.Context(), tenant)
	if err != nil {
		if errors.Is(err, services.ErrModelConfig) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return nil, err
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load form model"})
		return nil, err
	}

	for i := range questions {
		if questions[i].FieldName == fieldName {
			return &questions[i], nil
		}
	}

	err = errors.New("unknown field")
	c.JSON(http.StatusNotFound, gin.H{"error": "Unknown field: " + fieldName})
	return nil, err
}
