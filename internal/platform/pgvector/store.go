package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
	"github.com/yungbote/ragdesk-backend/internal/vectorstore"
)

type Config struct {
	DSN       string
	Table     string
	Dimension int
	MaxConns  int32
}

// Store keeps records in a Postgres table with a pgvector column. The seq
// column is assigned on first insert and left alone by upserts, which gives
// query ties their first-insertion order.
type Store struct {
	log   *logger.Logger
	pool  *pgxpool.Pool
	table string
	dim   int
}

var _ vectorstore.Store = (*Store)(nil)

func New(ctx context.Context, log *logger.Logger, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, &domain.ConfigError{Field: "vector.pgvector.dsn", Message: "is required"}
	}
	if cfg.Dimension <= 0 {
		return nil, &domain.ConfigError{Field: "vector.dimension", Message: "must be positive for pgvector"}
	}
	if strings.TrimSpace(cfg.Table) == "" {
		cfg.Table = "rag_embedding"
	}

	// The extension must exist before pool connections register its types.
	bootstrap, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, classify("connect", err)
	}
	_, err = bootstrap.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	_ = bootstrap.Close(ctx)
	if err != nil {
		return nil, classify("create_extension", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, &domain.ConfigError{Field: "vector.pgvector.dsn", Message: err.Error()}
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, classify("pool", err)
	}
	s := &Store{
		log:   log.With("service", "PgvectorStore"),
		pool:  pool,
		table: pgx.Identifier{cfg.Table}.Sanitize(),
		dim:   cfg.Dimension,
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.log.Info("pgvector store selected", "table", cfg.Table, "dimension", cfg.Dimension)
	return s, nil
}

func schemaStatements(table string, dim int) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	index_name  text        NOT NULL,
	id          text        NOT NULL,
	document_id text        NOT NULL,
	ordinal     integer     NOT NULL,
	content     text        NOT NULL,
	metadata    jsonb       NOT NULL DEFAULT '{}'::jsonb,
	embedding   vector(%d)  NOT NULL,
	seq         bigserial,
	updated_at  timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (index_name, id)
)`, table, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (index_name, document_id, ordinal)`,
			pgx.Identifier{strings.Trim(table, `"`) + "_doc_idx"}.Sanitize(), table),
	}
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.table, s.dim) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return classify("migrate", err)
		}
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, index string, records []domain.EmbeddingRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	q := fmt.Sprintf(`INSERT INTO %s (index_name, id, document_id, ordinal, content, metadata, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (index_name, id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	ordinal     = EXCLUDED.ordinal,
	content     = EXCLUDED.content,
	metadata    = EXCLUDED.metadata,
	embedding   = EXCLUDED.embedding,
	updated_at  = now()`, s.table)

	batch := &pgx.Batch{}
	for _, rec := range records {
		if len(rec.Vector) != s.dim {
			return 0, fmt.Errorf("record %q dimension mismatch: expected=%d got=%d", rec.ID, s.dim, len(rec.Vector))
		}
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return 0, fmt.Errorf("encode metadata for %q: %w", rec.ID, err)
		}
		batch.Queue(q, index, rec.ID, rec.DocumentID, rec.Ordinal, rec.Text, meta, pgv.NewVector(rec.Vector))
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, classify("upsert", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, classify("upsert", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, classify("upsert", err)
	}
	return len(records), nil
}

func (s *Store) Query(ctx context.Context, index string, vector []float32, k int) (domain.Retrieval, error) {
	k = vectorstore.NormalizeK(k)
	q := fmt.Sprintf(`SELECT id, document_id, ordinal, content, 1 - (embedding <=> $1) AS score, seq
FROM %s
WHERE index_name = $2
ORDER BY embedding <=> $1, seq
LIMIT $3`, s.table)
	rows, err := s.pool.Query(ctx, q, pgv.NewVector(vector), index, k)
	if err != nil {
		return nil, classify("query", err)
	}
	defer rows.Close()
	candidates := make([]vectorstore.Ranked, 0, k)
	for rows.Next() {
		var r vectorstore.Ranked
		if err := rows.Scan(&r.Result.RecordID, &r.Result.DocumentID, &r.Result.Ordinal, &r.Result.Text, &r.Result.Score, &r.Seq); err != nil {
			return nil, fmt.Errorf("scan query row: %w", err)
		}
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query", err)
	}
	return vectorstore.Rank(candidates, k), nil
}

func (s *Store) Prune(ctx context.Context, index, documentID string, keep int) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE index_name = $1 AND document_id = $2 AND ordinal >= $3`, s.table)
	tag, err := s.pool.Exec(ctx, q, index, documentID, keep)
	if err != nil {
		return classify("prune", err)
	}
	if tag.RowsAffected() > 0 {
		s.log.Debug("pruned stale records", "index", index, "document_id", documentID, "count", tag.RowsAffected())
	}
	return nil
}

func (s *Store) Count(ctx context.Context, index string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE index_name = $1`, s.table), index).Scan(&n)
	if err != nil {
		return 0, classify("count", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// classify marks connectivity failures as StoreUnavailable and leaves
// statement errors as they are.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if unreachable(err) {
		return &domain.StoreUnavailableError{Backend: "pgvector", Operation: op, Err: err}
	}
	return fmt.Errorf("pgvector %s: %w", op, err)
}

func unreachable(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exception; 57P0x covers server shutdown.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	}
	return pgconn.SafeToRetry(err)
}
