package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"formsevo/backend/internal/services"
	"formsevo/backend/internal/tasks"
)

// PartialHandler receives page-unload beacons with in-progress answer state.
type PartialHandler struct {
	partialService services.IPartialService
	taskClient     IAsynqClient
}

// NewPartialHandler creates a new PartialHandler. With a task client the
// snapshot is queued and written by the worker; without one it is written
// inline.
func NewPartialHandler(partialService services.IPartialService, taskClient IAsynqClient) *PartialHandler {
	return &PartialHandler{
		partialService: partialService,
		taskClient:     taskClient,
	}
}

type partialRequest struct {
	SessionID   string                 `json:"sessionId"`
	Subdomain   string                 `json:"subdomain"`
	StepReached int                    `json:"stepReached"`
	PartialData map[string]interface{} `json:"partialData"`
}

// Record handles POST /v1/partial
//
// navigator.sendBeacon posts with content-type text/plain, so the body is
// read raw and parsed as JSON regardless of the declared type. The response
// is always 202: the sender is unloading the page and nobody is listening.
func (h *PartialHandler) Record(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.Status(http.StatusAccepted)
		return
	}

	var req partialRequest
	if err := json.Unmarshal(body, &req); err != nil || req.SessionID == "" || req.Subdomain == "" {
		c.Status(http.StatusAccepted)
		return
	}

	if h.taskClient != nil {
		task, err := tasks.NewPartialRecordTask(tasks.PartialRecordPayload{
			SessionID:   req.SessionID,
			Tenant:      req.Subdomain,
			StepReached: req.StepReached,
			PartialData: req.PartialData,
		})
		if err == nil {
			if _, err := h.taskClient.EnqueueContext(c.Request.Context(), task); err == nil {
				c.Status(http.StatusAccepted)
				return
			}
		}
		// Queue unavailable: fall through to the inline write.
	}

	if err := h.partialService.RecordPartial(c.Request.Context(), req.SessionID, req.Subdomain, req.StepReached, req.PartialData); err != nil {
		log.Printf("Warning: partial record for session %s failed: %v", req.SessionID, err)
	}
	c.Status(http.StatusAccepted)
}
