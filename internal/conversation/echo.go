package conversation

import (
	"context"
	"strings"

	"github.com/yungbote/ragdesk-backend/internal/domain"
)

// Echo answers with the prompt it was given. Used for offline development.
type Echo struct{}

func (Echo) Name() string { return "echo" }

func (Echo) Generate(ctx context.Context, history domain.History, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &domain.ModelInvocationError{Model: "echo", Err: err}
	}
	return "echo: " + strings.TrimSpace(prompt), nil
}
