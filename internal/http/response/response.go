package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ragdesk-backend/internal/platform/apierr"
)

// ErrorBody is the flat error shape every endpoint returns.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorBody{Error: msg, Code: code})
}

// RespondMessage answers with a fixed client-facing message.
func RespondMessage(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorBody{Error: message, Code: code})
}

// RespondAPIError maps err through apierr; anything unclassified is a 500
// with no internal detail.
func RespondAPIError(c *gin.Context, err error) {
	if ae, ok := apierr.As(err); ok {
		status := ae.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		c.JSON(status, ErrorBody{Error: ae.Message(), Code: ae.Code})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorBody{Error: "internal error", Code: "internal"})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
