package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	c, err := NewClient(log, Config{APIKey: "sk-test", BaseURL: "http://openai.local/", Model: "gpt-test", EmbedModel: "embed-test", Temperature: 0.5, MaxRetries: 2})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.httpClient = &http.Client{Transport: rt}
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func jsonResponse(status int, body any) *http.Response {
	raw, _ := json.Marshal(body)
	return &http.Response{StatusCode: status, Header: make(http.Header), Body: io.NopCloser(bytes.NewReader(raw))}
}

func TestEmbedDocumentsOrdersByIndex(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.String() != "http://openai.local/v1/embeddings" {
			t.Fatalf("url: got=%q", r.URL.String())
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Fatalf("auth header missing")
		}
		var req embeddingsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Input[1] != " " {
			t.Fatalf("blank input: want=%q got=%q", " ", req.Input[1])
		}
		return jsonResponse(200, map[string]any{"data": []map[string]any{
			{"index": 1, "embedding": []float64{0, 1}},
			{"index": 0, "embedding": []float64{1, 0}},
		}}), nil
	})
	got, err := c.EmbedDocuments(context.Background(), []string{"a", "  "})
	if err != nil {
		t.Fatalf("EmbedDocuments: %v", err)
	}
	if got[0][0] != 1 || got[1][1] != 1 {
		t.Fatalf("order: got=%v", got)
	}
}

func TestRetriesOnServerError(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return jsonResponse(503, map[string]any{"error": "busy"}), nil
		}
		return jsonResponse(200, map[string]any{"data": []map[string]any{{"index": 0, "embedding": []float64{1}}}}), nil
	})
	if _, err := c.EmbedQuery(context.Background(), "q"); err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls: want=3 got=%d", calls)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(400, map[string]any{"error": "bad"}), nil
	})
	_, err := c.EmbedQuery(context.Background(), "q")
	var httpErr *openAIHTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 400 {
		t.Fatalf("want 400 error got=%v", err)
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

func TestChatModelReplaysHistory(t *testing.T) {
	var captured chatRequest
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		return jsonResponse(200, map[string]any{"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": " Yes. "}}}}), nil
	})
	h := domain.NewHistory("sys")
	h = append(h, domain.Turn{Role: domain.RoleHuman, Text: "q1"}, domain.Turn{Role: domain.RoleAssistant, Text: "a1"})
	got, err := c.ChatModel().Generate(context.Background(), h, "User question: q2.")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Yes." {
		t.Fatalf("text: want=%q got=%q", "Yes.", got)
	}
	roles := []string{"system", "user", "assistant", "user"}
	if len(captured.Messages) != len(roles) {
		t.Fatalf("messages: want=%d got=%d", len(roles), len(captured.Messages))
	}
	for i, r := range roles {
		if captured.Messages[i].Role != r {
			t.Fatalf("message %d role: want=%q got=%q", i, r, captured.Messages[i].Role)
		}
	}
	if captured.Messages[3].Content != "User question: q2." {
		t.Fatalf("prompt: got=%q", captured.Messages[3].Content)
	}
}

func TestChatModelEmptyIsInvocationError(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(200, map[string]any{"choices": []any{}}), nil
	})
	_, err := c.ChatModel().Generate(context.Background(), domain.NewHistory("sys"), "p")
	var mie *domain.ModelInvocationError
	if !errors.As(err, &mie) {
		t.Fatalf("want ModelInvocationError got=%v", err)
	}
}
