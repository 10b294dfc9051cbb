package domain

import (
	"errors"
	"testing"
)

func TestRecordIDIsStable(t *testing.T) {
	a := RecordID("policy.pdf", 3)
	b := RecordID("policy.pdf", 3)
	if a != b {
		t.Fatalf("RecordID: want stable id, got %q and %q", a, b)
	}
	if a == RecordID("policy.pdf", 4) {
		t.Fatalf("RecordID: ordinals must not collide")
	}
	if a == RecordID("other.pdf", 3) {
		t.Fatalf("RecordID: documents must not collide")
	}
}

func TestIngestionErrorUnwrapsCause(t *testing.T) {
	cause := &StoreUnavailableError{Backend: "memory", Operation: "upsert", Err: errors.New("down")}
	err := error(&IngestionError{Stage: StageEmbeddingAndUpserting, Cause: cause})
	if !IsStoreUnavailable(err) {
		t.Fatalf("expected StoreUnavailableError in chain: %v", err)
	}
	var ie *IngestionError
	if !errors.As(err, &ie) || ie.Stage != StageEmbeddingAndUpserting {
		t.Fatalf("stage: want=%q got=%v", StageEmbeddingAndUpserting, ie)
	}
}

func TestHistoryCloneDoesNotAlias(t *testing.T) {
	h := NewHistory("be helpful")
	c := h.Clone()
	c = append(c, Turn{Role: RoleHuman, Text: "hi"})
	if len(h) != 1 || len(c) != 2 {
		t.Fatalf("clone: want len 1/2 got %d/%d", len(h), len(c))
	}
	if h.SystemPrompt() != "be helpful" {
		t.Fatalf("SystemPrompt: want=%q got=%q", "be helpful", h.SystemPrompt())
	}
	if len(c.Dialogue()) != 1 {
		t.Fatalf("Dialogue: want=1 got=%d", len(c.Dialogue()))
	}
}
