package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
	"github.com/yungbote/ragdesk-backend/internal/trigger"
)

type EventBridge interface {
	Handle(ctx context.Context, ev trigger.StorageEvent) trigger.Outcome
}

type TriggerHandler struct {
	log    *logger.Logger
	bridge EventBridge
}

func NewTriggerHandler(log *logger.Logger, bridge EventBridge) *TriggerHandler {
	return &TriggerHandler{log: log.With("handler", "TriggerHandler"), bridge: bridge}
}

// POST / on the trigger server. Events are always acknowledged; a failed
// forward is logged and not redelivered.
func (h *TriggerHandler) Receive(c *gin.Context) {
	ev, err := trigger.ParseCloudEvent(c.Request)
	if err != nil {
		h.log.Warn("discarding malformed event", "error", err)
		c.Status(http.StatusNoContent)
		return
	}
	out := h.bridge.Handle(c.Request.Context(), ev)
	c.Header("X-Trigger-Outcome", string(out))
	c.Status(http.StatusNoContent)
}
