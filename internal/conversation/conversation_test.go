package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/embedding"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
	"github.com/yungbote/ragdesk-backend/internal/vectorstore"
)

type fakeModel struct {
	mu       sync.Mutex
	reply    string
	err      error
	prompts  []string
	historys []domain.History
}

func (m *fakeModel) Name() string { return "fake" }

func (m *fakeModel) Generate(ctx context.Context, history domain.History, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	m.historys = append(m.historys, history.Clone())
	return m.reply, m.err
}

type fakeRetriever struct {
	res domain.Retrieval
	err error
}

func (r fakeRetriever) Retrieve(ctx context.Context, query string) (domain.Retrieval, error) {
	return r.res, r.err
}

func newService(t *testing.T, m ChatModel, r Retriever) *Service {
	t.Helper()
	svc, err := NewService(logger.Nop(), m, r, NewMemorySessions("sys", 8, time.Hour))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestBuildPrompt(t *testing.T) {
	if got := BuildPrompt("hi", nil); got != "User question: hi." {
		t.Fatalf("no context: got=%q", got)
	}
	want := "User question: what is covered?.\n\nContext:\nflood\nfire"
	if got := BuildPrompt("what is covered?", []string{"flood", "fire"}); got != want {
		t.Fatalf("with context: want=%q got=%q", want, got)
	}
}

func TestHandleAppendsTurnsAndReplaysHistory(t *testing.T) {
	m := &fakeModel{reply: "Hello!"}
	svc := newService(t, m, nil)
	ctx := context.Background()

	if _, err := svc.Handle(ctx, "s1", "hi", false); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	m.reply = "Sure."
	if _, err := svc.Handle(ctx, "s1", "again", false); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	second := m.historys[1]
	if len(second) != 3 {
		t.Fatalf("history replayed: want=3 turns got=%d", len(second))
	}
	if second[0].Role != domain.RoleSystem || second[1].Text != "hi" || second[2].Text != "Hello!" {
		t.Fatalf("history: %+v", second)
	}
	h, _ := svc.sessions.Get(ctx, "s1")
	if len(h) != 5 {
		t.Fatalf("stored history: want=5 got=%d", len(h))
	}
}

func TestHandleRetrievalDegrades(t *testing.T) {
	m := &fakeModel{reply: "ok"}
	svc := newService(t, m, fakeRetriever{err: &domain.StoreUnavailableError{Backend: "qdrant", Operation: "query", Err: errors.New("down")}})

	text, err := svc.Handle(context.Background(), "", "q", true)
	if err != nil || text != "ok" {
		t.Fatalf("Handle: text=%q err=%v", text, err)
	}
	if m.prompts[0] != "User question: q." {
		t.Fatalf("prompt: got=%q", m.prompts[0])
	}
}

func TestHandleRetrievalAddsContext(t *testing.T) {
	m := &fakeModel{reply: "ok"}
	svc := newService(t, m, fakeRetriever{res: domain.Retrieval{{Text: "a", Score: 0.9}, {Text: "b", Score: 0.5}}})

	if _, err := svc.Handle(context.Background(), "s", "q", true); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.HasSuffix(m.prompts[0], "Context:\na\nb") {
		t.Fatalf("prompt: got=%q", m.prompts[0])
	}
}

func TestHandleModelFailureLeavesHistory(t *testing.T) {
	for _, m := range []*fakeModel{{err: errors.New("boom")}, {reply: "  "}} {
		svc := newService(t, m, nil)
		_, err := svc.Handle(context.Background(), "s", "q", false)
		var merr *domain.ModelInvocationError
		if !errors.As(err, &merr) {
			t.Fatalf("want ModelInvocationError got %v", err)
		}
		h, _ := svc.sessions.Get(context.Background(), "s")
		if len(h) != 1 {
			t.Fatalf("history after failure: want=1 got=%d", len(h))
		}
	}
}

func TestExchangeDoesNotMutateInput(t *testing.T) {
	svc := newService(t, &fakeModel{reply: "r"}, nil)
	in := domain.NewHistory("sys")
	out, text, err := svc.Exchange(context.Background(), in, "m", false)
	if err != nil || text != "r" {
		t.Fatalf("Exchange: text=%q err=%v", text, err)
	}
	if len(in) != 1 || len(out) != 3 {
		t.Fatalf("lengths: in=%d out=%d", len(in), len(out))
	}
}

func TestMemorySessionsEvictLeastRecentlyUsed(t *testing.T) {
	s := NewMemorySessions("sys", 2, time.Hour)
	ctx := context.Background()
	turn := domain.Turn{Role: domain.RoleHuman, Text: "x"}
	_ = s.Append(ctx, "a", turn)
	_ = s.Append(ctx, "b", turn)
	_ = s.Append(ctx, "c", turn)

	if s.Len() != 2 {
		t.Fatalf("len: want=2 got=%d", s.Len())
	}
	h, _ := s.Get(ctx, "a")
	if len(h) != 1 {
		t.Fatalf("evicted session should restart: got %d turns", len(h))
	}
}

func TestVectorRetrieverUsesStore(t *testing.T) {
	ctx := context.Background()
	e := embedding.NewHash(16)
	store := vectorstore.NewMemory()
	vecs, _ := e.EmbedDocuments(ctx, []string{"flood cover", "fire cover"})
	_, err := store.Upsert(ctx, "idx", []domain.EmbeddingRecord{
		domain.NewRecord(domain.Chunk{DocumentID: "p.pdf", Ordinal: 0, Text: "flood cover"}, vecs[0], ""),
		domain.NewRecord(domain.Chunk{DocumentID: "p.pdf", Ordinal: 1, Text: "fire cover"}, vecs[1], ""),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	r := NewVectorRetriever(e, store, "idx", 1)
	res, err := r.Retrieve(ctx, "flood cover")
	if err != nil || len(res) != 1 || res[0].Text != "flood cover" {
		t.Fatalf("Retrieve: res=%+v err=%v", res, err)
	}
}

func TestRedisTurnCodec(t *testing.T) {
	turns := domain.History{{Role: domain.RoleSystem, Text: "sys"}, {Role: domain.RoleHuman, Text: "hi"}}
	enc, err := encodeTurns(turns)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw := make([]string, len(enc))
	for i, v := range enc {
		raw[i] = v.(string)
	}
	dec, err := decodeTurns(raw)
	if err != nil || len(dec) != 2 || dec[1].Role != domain.RoleHuman {
		t.Fatalf("decode: %+v err=%v", dec, err)
	}
	if _, err := NewRedisSessions(context.Background(), logger.Nop(), RedisConfig{}, "sys"); !domain.IsConfig(err) {
		t.Fatalf("missing addr: want config error got %v", err)
	}
}

func TestKeyedMutexReleasesKeys(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	unlock()
	if len(k.locks) != 0 {
		t.Fatalf("locks retained: %d", len(k.locks))
	}
}
