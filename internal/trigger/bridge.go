package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yungbote/ragdesk-backend/internal/observability"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

type Outcome string

const (
	OutcomeDelivered  Outcome = "delivered"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeAuthFailed Outcome = "auth_failed"
	OutcomeCallFailed Outcome = "call_failed"
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type BridgeConfig struct {
	WebhookURL string
	// Audience defaults to WebhookURL's origin when empty.
	Audience string
	Timeout  time.Duration
}

// Bridge forwards storage events to the ingestion webhook. It never retries;
// failures are logged and reported as an outcome.
type Bridge struct {
	log    *logger.Logger
	cfg    BridgeConfig
	tokens TokenProvider
	http   HTTPDoer
}

func NewBridge(log *logger.Logger, cfg BridgeConfig, tokens TokenProvider, doer HTTPDoer) (*Bridge, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("trigger webhook url is required")
	}
	if cfg.Audience == "" {
		cfg.Audience = Origin(cfg.WebhookURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if doer == nil {
		doer = &http.Client{Timeout: cfg.Timeout}
	}
	return &Bridge{
		log:    log.With("service", "TriggerBridge", "webhook", cfg.WebhookURL),
		cfg:    cfg,
		tokens: tokens,
		http:   doer,
	}, nil
}

func (b *Bridge) Handle(ctx context.Context, ev StorageEvent) Outcome {
	out := b.handle(ctx, ev)
	observability.Current().IncTriggerEvent(string(out))
	return out
}

func (b *Bridge) handle(ctx context.Context, ev StorageEvent) Outcome {
	log := b.log.With("event_id", ev.ID, "event_type", ev.Type, "bucket", ev.Bucket, "file", ev.Name, "updated", ev.Updated)
	if ev.Name == "" {
		log.Info("skipping event: file name is missing")
		return OutcomeSkipped
	}

	var token string
	if b.tokens != nil {
		t, err := b.tokens.Token(ctx, b.cfg.Audience)
		if err != nil {
			log.Error("mint webhook token failed", "audience", b.cfg.Audience, "error", err)
			return OutcomeAuthFailed
		}
		token = t
	}

	body, _ := json.Marshal(map[string]string{"fileName": ev.Name})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		log.Error("build webhook request failed", "error", err)
		return OutcomeCallFailed
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := b.http.Do(req)
	if err != nil {
		log.Error("webhook call failed", "error", err)
		return OutcomeCallFailed
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error("webhook returned an error", "status", resp.StatusCode, "body", string(snippet))
		return OutcomeCallFailed
	}
	log.Info("webhook call succeeded", "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	return OutcomeDelivered
}
