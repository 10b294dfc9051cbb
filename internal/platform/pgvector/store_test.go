package pgvector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yungbote/ragdesk-backend/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain", errors.New("syntax"), false},
	}
	for _, tc := range cases {
		got := classify("query", tc.err)
		if domain.IsStoreUnavailable(got) != tc.unavailable {
			t.Fatalf("%s: unavailable want=%v got=%v (%v)", tc.name, tc.unavailable, !tc.unavailable, got)
		}
		if !errors.Is(got, tc.err) {
			t.Fatalf("%s: cause lost: %v", tc.name, got)
		}
	}
	if classify("x", nil) != nil {
		t.Fatalf("classify(nil) must be nil")
	}
}

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements(`"rag_embedding"`, 768)
	if len(stmts) != 2 {
		t.Fatalf("statements: want=2 got=%d", len(stmts))
	}
	if !strings.Contains(stmts[0], "vector(768)") {
		t.Fatalf("table ddl missing dimension: %s", stmts[0])
	}
	if !strings.Contains(stmts[0], "PRIMARY KEY (index_name, id)") {
		t.Fatalf("table ddl missing key: %s", stmts[0])
	}
	if !strings.Contains(stmts[1], `"rag_embedding_doc_idx"`) {
		t.Fatalf("index ddl: %s", stmts[1])
	}
}

func TestNewRejectsMissingConfig(t *testing.T) {
	_, err := New(context.Background(), nil, Config{})
	if !domain.IsConfig(err) {
		t.Fatalf("want ConfigError got=%v", err)
	}
}
