package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ragdesk-backend/internal/conversation"
	"github.com/yungbote/ragdesk-backend/internal/http/response"
)

// Conversation is the slice of conversation.Service the handler needs.
type Conversation interface {
	Handle(ctx context.Context, sessionID, message string, rag bool) (string, error)
}

type MessageHandler struct {
	conv Conversation
}

func NewMessageHandler(conv Conversation) *MessageHandler {
	return &MessageHandler{conv: conv}
}

type messageReq struct {
	Text      string `json:"text"`
	RAG       bool   `json:"rag"`
	SessionID string `json:"sessionId"`
}

// POST /messages
func (h *MessageHandler) Post(c *gin.Context) {
	var req messageReq
	_ = c.ShouldBindJSON(&req)
	if strings.TrimSpace(req.Text) == "" {
		response.RespondMessage(c, http.StatusBadRequest, "invalid_request", "Message is required")
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(c.GetHeader("X-Session-Id"))
	}
	if sessionID == "" {
		sessionID = conversation.DefaultSessionID
	}

	text, err := h.conv.Handle(c.Request.Context(), sessionID, req.Text, req.RAG)
	if err != nil {
		_ = c.Error(err)
		response.RespondMessage(c, http.StatusInternalServerError, "model_invocation_failed", "Model invocation failed.")
		return
	}
	response.RespondOK(c, gin.H{"text": text, "sessionId": sessionID})
}
