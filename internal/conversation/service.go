package conversation

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/observability"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

const (
	DefaultSessionID    = "default"
	DefaultSystemPrompt = "You are a helpful assistant that answers questions about insurance policies."
)

// ChatModel generates the assistant's next turn from a history and a prompt.
type ChatModel interface {
	Generate(ctx context.Context, history domain.History, prompt string) (string, error)
	Name() string
}

// Retriever finds context for a user message.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (domain.Retrieval, error)
}

type Service struct {
	log       *logger.Logger
	model     ChatModel
	retriever Retriever
	sessions  SessionStore
	locks     *keyedMutex
}

// NewService builds the conversation service. retriever may be nil, in which
// case rag requests answer without context.
func NewService(log *logger.Logger, model ChatModel, retriever Retriever, sessions SessionStore) (*Service, error) {
	if model == nil {
		return nil, &domain.ConfigError{Field: "chat.provider", Message: "a chat model is required"}
	}
	if sessions == nil {
		return nil, &domain.ConfigError{Field: "sessions.backend", Message: "a session store is required"}
	}
	return &Service{
		log:       log.With("service", "ConversationService", "model", model.Name()),
		model:     model,
		retriever: retriever,
		sessions:  sessions,
		locks:     newKeyedMutex(),
	}, nil
}

// Handle runs one exchange within a session. Exchanges in the same session are
// serialised; different sessions proceed concurrently.
func (s *Service) Handle(ctx context.Context, sessionID, message string, rag bool) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = DefaultSessionID
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	history, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	_, text, err := s.Exchange(ctx, history, message, rag)
	if err != nil {
		return "", err
	}
	if err := s.sessions.Append(ctx, sessionID,
		domain.Turn{Role: domain.RoleHuman, Text: message},
		domain.Turn{Role: domain.RoleAssistant, Text: text},
	); err != nil {
		return "", err
	}
	if c, ok := s.sessions.(interface{ Len() int }); ok {
		observability.Current().SetSessions(c.Len())
	}
	return text, nil
}

// Exchange is one turn over an explicit history. On success the returned
// history has the human message and the assistant reply appended; on failure
// the input history is returned unchanged.
func (s *Service) Exchange(ctx context.Context, history domain.History, message string, rag bool) (domain.History, string, error) {
	ctx, span := otel.Tracer("ragdesk/conversation").Start(ctx, "conversation.exchange")
	defer span.End()
	span.SetAttributes(attribute.Bool("conversation.rag", rag), attribute.Int("conversation.turns", len(history)))

	var contextTexts []string
	if rag {
		contextTexts = s.retrieve(ctx, message)
	}
	span.SetAttributes(attribute.Int("conversation.context_chunks", len(contextTexts)))
	prompt := BuildPrompt(message, contextTexts)

	text, err := s.model.Generate(ctx, history, prompt)
	if err != nil {
		span.RecordError(err)
		var merr *domain.ModelInvocationError
		if !errors.As(err, &merr) {
			err = &domain.ModelInvocationError{Model: s.model.Name(), Err: err}
		}
		s.log.Error("model invocation failed", "error", err)
		return history, "", err
	}
	if strings.TrimSpace(text) == "" {
		err := &domain.ModelInvocationError{Model: s.model.Name()}
		s.log.Error("model returned no text")
		return history, "", err
	}

	out := history.Clone()
	out = append(out,
		domain.Turn{Role: domain.RoleHuman, Text: message},
		domain.Turn{Role: domain.RoleAssistant, Text: text},
	)
	return out, text, nil
}

func (s *Service) retrieve(ctx context.Context, message string) []string {
	if s.retriever == nil {
		s.log.Warn("retrieval requested but no retriever configured")
		return nil
	}
	res, err := s.retriever.Retrieve(ctx, message)
	if err != nil {
		s.log.Warn("retrieval of context failed, answering without it", "error", err)
		return nil
	}
	if len(res) == 0 {
		s.log.Info("retrieval returned no context")
		return nil
	}
	return res.Texts()
}

// BuildPrompt formats the user turn sent to the model. The human turn stored
// in history is the bare message, not this prompt.
func BuildPrompt(message string, contextTexts []string) string {
	prompt := "User question: " + message + "."
	if len(contextTexts) > 0 {
		prompt += "\n\nContext:\n" + strings.Join(contextTexts, "\n")
	}
	return prompt
}
