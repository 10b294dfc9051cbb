package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/ragdesk-backend/internal/config"
	"github.com/yungbote/ragdesk-backend/internal/conversation"
	"github.com/yungbote/ragdesk-backend/internal/embedding"
	"github.com/yungbote/ragdesk-backend/internal/loader"
	"github.com/yungbote/ragdesk-backend/internal/observability"
	"github.com/yungbote/ragdesk-backend/internal/platform/gcp"
	"github.com/yungbote/ragdesk-backend/internal/platform/gemini"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
	"github.com/yungbote/ragdesk-backend/internal/platform/openai"
)

var (
	newGeminiClient = gemini.NewClient
	newOpenAIClient = openai.NewClient
	newDocumentAI   = func(ctx context.Context, log *logger.Logger, cfg gcp.DocumentAIConfig) (loader.Extractor, error) {
		return gcp.NewDocumentAI(ctx, log, cfg)
	}
)

// models holds provider clients shared between the embedder and the chat
// model so each is dialed at most once.
type models struct {
	log     *logger.Logger
	cfg     *config.Config
	gemini  *gemini.Client
	openai  *openai.Client
	closers []func() error
}

func newModels(log *logger.Logger, cfg *config.Config) *models {
	return &models{log: log, cfg: cfg}
}

func (m *models) geminiClient(ctx context.Context) (*gemini.Client, error) {
	if m.gemini != nil {
		return m.gemini, nil
	}
	gcfg := gemini.ConfigFromEnv()
	if m.cfg.Embedding.Provider == "gemini" && m.cfg.Embedding.Model != "" {
		gcfg.EmbeddingModel = m.cfg.Embedding.Model
	}
	if m.cfg.Chat.Provider == "gemini" && m.cfg.Chat.Model != "" {
		gcfg.ChatModel = m.cfg.Chat.Model
	}
	c, err := newGeminiClient(ctx, m.log, gcfg)
	if err != nil {
		return nil, err
	}
	m.gemini = c
	m.closers = append(m.closers, c.Close)
	return c, nil
}

func (m *models) openaiClient() (*openai.Client, error) {
	if m.openai != nil {
		return m.openai, nil
	}
	ocfg := openai.ConfigFromEnv()
	if m.cfg.Embedding.Provider == "openai" && m.cfg.Embedding.Model != "" {
		ocfg.EmbedModel = m.cfg.Embedding.Model
	}
	if m.cfg.Chat.Provider == "openai" && m.cfg.Chat.Model != "" {
		ocfg.Model = m.cfg.Chat.Model
	}
	c, err := newOpenAIClient(m.log, ocfg)
	if err != nil {
		return nil, err
	}
	m.openai = c
	return c, nil
}

// Embedder returns the configured provider behind the batching gateway.
func (m *models) Embedder(ctx context.Context) (embedding.Embedder, error) {
	provider := strings.ToLower(m.cfg.Embedding.Provider)
	dim := m.cfg.EmbeddingDimension()
	m.log.Info("Selecting embedding provider", "provider", provider, "dimension", dim, "batch_size", m.cfg.Embedding.BatchSize)

	var (
		inner embedding.Embedder
		err   error
	)
	switch provider {
	case "hash":
		inner = embedding.NewHash(dim)
	case "gemini":
		var c *gemini.Client
		if c, err = m.geminiClient(ctx); err == nil {
			inner = c.Embedder()
		}
	case "openai":
		var c *openai.Client
		if c, err = m.openaiClient(); err == nil {
			inner = c
		}
	default:
		err = fmt.Errorf("unsupported embedding provider %q", provider)
	}
	if err != nil {
		observability.Current().ObserveBootstrap("embedding", provider, "error", "provider_init_failed")
		m.log.Error("Embedding provider bootstrap failed", "provider", provider, "error", err)
		return nil, err
	}
	observability.Current().ObserveBootstrap("embedding", provider, "success", "none")
	return embedding.NewGateway(m.log, inner, embedding.GatewayConfig{
		BatchSize:         m.cfg.Embedding.BatchSize,
		RequestsPerSecond: m.cfg.Embedding.RequestsPerSecond,
		Dimension:         dim,
	}), nil
}

func (m *models) ChatModel(ctx context.Context) (conversation.ChatModel, error) {
	provider := strings.ToLower(m.cfg.Chat.Provider)
	m.log.Info("Selecting chat model provider", "provider", provider, "model", m.cfg.Chat.Model)

	var (
		model conversation.ChatModel
		err   error
	)
	switch provider {
	case "echo":
		model = conversation.Echo{}
	case "gemini":
		var c *gemini.Client
		if c, err = m.geminiClient(ctx); err == nil {
			model = c.ChatModel()
		}
	case "openai":
		var c *openai.Client
		if c, err = m.openaiClient(); err == nil {
			model = c.ChatModel()
		}
	default:
		err = fmt.Errorf("unsupported chat provider %q", provider)
	}
	if err != nil {
		observability.Current().ObserveBootstrap("chat_model", provider, "error", "provider_init_failed")
		m.log.Error("Chat model bootstrap failed", "provider", provider, "error", err)
		return nil, err
	}
	observability.Current().ObserveBootstrap("chat_model", provider, "success", "none")
	return model, nil
}

// Extractor returns the PDF text extractor used by the directory loader.
func (m *models) Extractor(ctx context.Context) (loader.Extractor, error) {
	ecfg := m.cfg.Extractor
	switch ecfg.Kind {
	case "", "pdf":
		return loader.NewFallback(loader.PlainText{}, loader.NewPDFToText(ecfg.Timeout.D())), nil
	case "pdftotext":
		return loader.NewPDFToText(ecfg.Timeout.D()), nil
	case "documentai":
		ex, err := newDocumentAI(ctx, m.log, gcp.DocumentAIConfig{
			ProjectID:   ecfg.DocumentAIProject,
			Location:    ecfg.DocumentAILocation,
			ProcessorID: ecfg.DocumentAIProcessorID,
			Credentials: m.cfg.Storage.Credentials,
			Timeout:     ecfg.Timeout.D(),
		})
		if err != nil {
			return nil, fmt.Errorf("init document ai: %w", err)
		}
		if c, ok := ex.(interface{ Close() error }); ok {
			m.closers = append(m.closers, c.Close)
		}
		return ex, nil
	default:
		return nil, fmt.Errorf("unsupported extractor %q", ecfg.Kind)
	}
}

func (m *models) Close() {
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i](); err != nil {
			m.log.Warn("close model client failed", "error", err)
		}
	}
	m.closers = nil
}
