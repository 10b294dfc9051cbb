package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ragdesk-backend/internal/http/response"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
	"github.com/yungbote/ragdesk-backend/internal/trigger"
)

type WebhookAuth struct {
	log      *logger.Logger
	verifier trigger.TokenVerifier
}

// NewWebhookAuth returns nil when verifier is nil; a nil *WebhookAuth lets
// every request through.
func NewWebhookAuth(log *logger.Logger, verifier trigger.TokenVerifier) *WebhookAuth {
	if verifier == nil {
		return nil
	}
	return &WebhookAuth{log: log.With("middleware", "WebhookAuth"), verifier: verifier}
}

func (w *WebhookAuth) Require() gin.HandlerFunc {
	if w == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		token, err := trigger.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.RespondMessage(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			c.Abort()
			return
		}
		if err := w.verifier.Verify(c.Request.Context(), token); err != nil {
			w.log.Warn("webhook token rejected", "path", c.Request.URL.Path, "error", err)
			response.RespondMessage(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			c.Abort()
			return
		}
		c.Next()
	}
}
