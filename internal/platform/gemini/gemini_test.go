package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/ragdesk-backend/internal/domain"
)

func TestToContentsMapsRoles(t *testing.T) {
	h := domain.NewHistory("be brief")
	h = append(h, domain.Turn{Role: domain.RoleHuman, Text: "hi"}, domain.Turn{Role: domain.RoleAssistant, Text: "hello"})
	got := toContents(h.Dialogue())
	if len(got) != 2 {
		t.Fatalf("contents: want=2 got=%d", len(got))
	}
	if got[0].Role != "user" || got[1].Role != "model" {
		t.Fatalf("roles: want=user,model got=%s,%s", got[0].Role, got[1].Role)
	}
	if txt, _ := got[1].Parts[0].(genai.Text); string(txt) != "hello" {
		t.Fatalf("text: want=%q got=%q", "hello", txt)
	}
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("Covered "), genai.Text("up to $500.")}}},
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
	}}
	if got := responseText(resp); got != "Covered up to $500." {
		t.Fatalf("responseText: want=%q got=%q", "Covered up to $500.", got)
	}
	if got := responseText(&genai.GenerateContentResponse{}); got != "" {
		t.Fatalf("empty response: got=%q", got)
	}
	if got := responseText(nil); got != "" {
		t.Fatalf("nil response: got=%q", got)
	}
}

func TestEmbeddingValues(t *testing.T) {
	resp := &genai.BatchEmbedContentsResponse{Embeddings: []*genai.ContentEmbedding{
		{Values: []float32{1, 2}},
		{Values: []float32{3, 4}},
	}}
	got, err := embeddingValues(resp, 2)
	if err != nil {
		t.Fatalf("embeddingValues: %v", err)
	}
	if got[1][0] != 3 {
		t.Fatalf("values: got=%v", got)
	}
	if _, err := embeddingValues(resp, 3); err == nil {
		t.Fatalf("count mismatch must fail")
	}
	bad := &genai.BatchEmbedContentsResponse{Embeddings: []*genai.ContentEmbedding{{}}}
	if _, err := embeddingValues(bad, 1); err == nil {
		t.Fatalf("empty embedding must fail")
	}
}

func TestStatusLabel(t *testing.T) {
	cases := map[string]error{
		"ok":           nil,
		"rate_limited": status.Error(codes.ResourceExhausted, "quota"),
		"unavailable":  status.Error(codes.Unavailable, "down"),
		"timeout":      context.DeadlineExceeded,
		"error":        errors.New("boom"),
	}
	for want, err := range cases {
		if got := statusLabel(err); got != want {
			t.Fatalf("statusLabel(%v): want=%q got=%q", err, want, got)
		}
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(context.Background(), nil, Config{}); err == nil {
		t.Fatalf("missing key must fail")
	}
}
