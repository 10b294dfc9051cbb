package gemini

import (
	"context"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/observability"
)

// ChatModel replays the session history into a fresh genai chat session and
// sends the prompt as the next user message.
type ChatModel struct {
	client *Client
}

func (c *Client) ChatModel() *ChatModel { return &ChatModel{client: c} }

func (m *ChatModel) Name() string { return m.client.cfg.ChatModel }

func (m *ChatModel) Generate(ctx context.Context, history domain.History, prompt string) (string, error) {
	cfg := m.client.cfg
	ctx, span := otel.Tracer("ragdesk/gemini").Start(ctx, "model.generate")
	defer span.End()
	span.SetAttributes(attribute.String("model.name", cfg.ChatModel), attribute.Int("model.history_turns", len(history)))

	gm := m.client.gc.GenerativeModel(cfg.ChatModel)
	gm.SetTemperature(cfg.Temperature)
	gm.SetTopP(cfg.TopP)
	gm.SetTopK(cfg.TopK)
	gm.SetMaxOutputTokens(cfg.MaxOutputTok)
	if sys := history.SystemPrompt(); sys != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(sys)}}
	}
	cs := gm.StartChat()
	cs.History = toContents(history.Dialogue())

	start := time.Now()
	resp, err := cs.SendMessage(ctx, genai.Text(prompt))
	observability.Current().ObserveModel(cfg.ChatModel, statusLabel(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return "", &domain.ModelInvocationError{Model: cfg.ChatModel, Err: err}
	}
	text := responseText(resp)
	if text == "" {
		span.SetStatus(codes.Error, "empty response")
		return "", &domain.ModelInvocationError{Model: cfg.ChatModel}
	}
	return text, nil
}

func toContents(turns domain.History) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == domain.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Text)}})
	}
	return out
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				parts = append(parts, string(t))
			}
		}
		// Only the first candidate is used.
		break
	}
	return strings.TrimSpace(strings.Join(parts, ""))
}
