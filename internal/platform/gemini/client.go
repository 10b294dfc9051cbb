package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/ragdesk-backend/internal/platform/envutil"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

const (
	DefaultEmbeddingModel = "text-embedding-004"
	DefaultChatModel      = "gemini-2.0-flash"
)

type Config struct {
	APIKey         string
	EmbeddingModel string
	ChatModel      string
	Temperature    float32
	TopP           float32
	TopK           int32
	MaxOutputTok   int32
}

// ConfigFromEnv reads GEMINI_* variables, falling back to GOOGLE_API_KEY.
func ConfigFromEnv() Config {
	key := envutil.String("GEMINI_API_KEY", "")
	if key == "" {
		key = envutil.String("GOOGLE_API_KEY", "")
	}
	return Config{
		APIKey:         key,
		EmbeddingModel: envutil.String("GEMINI_EMBEDDING_MODEL", DefaultEmbeddingModel),
		ChatModel:      envutil.String("GEMINI_CHAT_MODEL", DefaultChatModel),
		Temperature:    0.5,
		TopP:           0.9,
		TopK:           20,
		MaxOutputTok:   2048,
	}
}

// Client owns the genai connection shared by the embedder and chat model.
type Client struct {
	log *logger.Logger
	gc  *genai.Client
	cfg Config
}

func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	gc, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{log: log.With("client", "GeminiClient"), gc: gc, cfg: cfg}, nil
}

func (c *Client) Close() error {
	if c == nil || c.gc == nil {
		return nil
	}
	return c.gc.Close()
}

// statusLabel maps a provider error to a short metrics label.
func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return "rate_limited"
		case codes.Unavailable:
			return "unavailable"
		case codes.InvalidArgument:
			return "invalid_argument"
		case codes.PermissionDenied, codes.Unauthenticated:
			return "unauthorized"
		case codes.DeadlineExceeded:
			return "timeout"
		}
	}
	return "error"
}
