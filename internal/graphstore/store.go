package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"resemantic/internal/llm"
)

// Store is the Postgres+pgvector-backed proposition graph. One Store
// instance is shared across the worker pool; every method is safe for
// concurrent use because it delegates to pgxpool's own connection pooling.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
}

// Open connects to Postgres and ensures the proposition/edge schema exists.
// Schema setup is idempotent: it is safe to call Open against an
// already-initialized database on every process start.
func Open(ctx context.Context, dsn string, dimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, llm.NewError(llm.KindStoreTransport, "graphstore.Open", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, llm.NewError(llm.KindStoreTransport, "graphstore.Open", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, llm.NewError(llm.KindStoreTransport, "graphstore.Open", err)
	}

	s := &Store{pool: pool, dimensions: dimensions}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// ensureSchema creates the proposition/edge tables and their indexes. Every
// statement is CREATE ... IF NOT EXISTS, so setup is idempotent.
func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS propositions (
  id TEXT PRIMARY KEY,
  content TEXT NOT NULL,
  embedding vector(%d) NOT NULL,
  speaker TEXT NOT NULL,
  ts TIMESTAMPTZ NOT NULL,
  block_metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  activation_count INT NOT NULL DEFAULT 0,
  coherence_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
  is_weak BOOLEAN NOT NULL DEFAULT false,
  weakness_reason TEXT NOT NULL DEFAULT '',
  last_accessed TIMESTAMPTZ
);`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS propositions_ts_idx ON propositions(ts)`,
		`CREATE INDEX IF NOT EXISTS propositions_speaker_idx ON propositions(speaker)`,
		`CREATE INDEX IF NOT EXISTS propositions_coherence_idx ON propositions(coherence_score)`,
		`CREATE INDEX IF NOT EXISTS propositions_weak_idx ON propositions(is_weak)`,
		`CREATE INDEX IF NOT EXISTS propositions_embedding_idx ON propositions USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		`CREATE TABLE IF NOT EXISTS proposition_edges (
  id BIGSERIAL PRIMARY KEY,
  rel TEXT NOT NULL,
  source TEXT NOT NULL REFERENCES propositions(id),
  target TEXT NOT NULL REFERENCES propositions(id),
  weight DOUBLE PRECISION,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  created_by TEXT NOT NULL DEFAULT 'extraction',
  coactivation_count INT NOT NULL DEFAULT 0,
  last_strengthened TIMESTAMPTZ,
  UNIQUE(rel, source, target)
)`,
		`CREATE INDEX IF NOT EXISTS proposition_edges_src_idx ON proposition_edges(source, rel)`,
		`CREATE INDEX IF NOT EXISTS proposition_edges_dst_idx ON proposition_edges(target, rel)`,
	}
	for _, stmt := range stmts {
		if _, err := s.execWithRetry(ctx, stmt); err != nil {
			return llm.NewError(llm.KindStoreTransport, "graphstore.ensureSchema", err)
		}
	}
	return nil
}

// execWithRetry runs a statement up to three times with linear backoff
// (1s, 2s, 3s after each failed attempt). Any Exec error is retried, not only
// connection failures; the last error is returned once attempts run out.
func (s *Store) execWithRetry(ctx context.Context, sql string, args ...any) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		tag, err := s.pool.Exec(ctx, sql, args...)
		if err == nil {
			return tag.RowsAffected(), nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * time.Second):
		}
	}
	return 0, lastErr
}

// CreateProposition inserts a new proposition with its lifecycle fields at
// their documented defaults (coherence_score 0.5, is_weak false,
// activation_count 0). Content and embedding are immutable once written.
func (s *Store) CreateProposition(ctx context.Context, p Proposition) error {
	if len(p.Embedding) != s.dimensions {
		return llm.NewError(llm.KindSchemaValidation, "graphstore.CreateProposition",
			fmt.Errorf("embedding has %d dimensions, store expects %d", len(p.Embedding), s.dimensions))
	}
	meta := p.BlockMetadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return llm.NewError(llm.KindInvariant, "graphstore.CreateProposition", err)
	}
	_, err = s.execWithRetry(ctx, `
INSERT INTO propositions(id, content, embedding, speaker, ts, block_metadata, activation_count, coherence_score, is_weak, weakness_reason)
VALUES ($1, $2, $3::vector, $4, $5, $6, 0, 0.5, false, '')
ON CONFLICT (id) DO NOTHING
`, p.ID, p.Content, toVectorLiteral(p.Embedding), p.Speaker, p.Timestamp, metaJSON)
	if err != nil {
		return llm.NewError(llm.KindStoreTransport, "graphstore.CreateProposition", err)
	}
	return nil
}

// GetProposition fetches a proposition by id.
func (s *Store) GetProposition(ctx context.Context, id string) (Proposition, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, content, speaker, ts, block_metadata, activation_count, coherence_score, is_weak, weakness_reason, last_accessed
FROM propositions WHERE id=$1`, id)
	var p Proposition
	var metaJSON []byte
	if err := row.Scan(&p.ID, &p.Content, &p.Speaker, &p.Timestamp, &metaJSON, &p.ActivationCount, &p.CoherenceScore, &p.IsWeak, &p.WeaknessReason, &p.LastAccessed); err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return Proposition{}, false, nil
		}
		return Proposition{}, false, llm.NewError(llm.KindStoreTransport, "graphstore.GetProposition", err)
	}
	_ = json.Unmarshal(metaJSON, &p.BlockMetadata)
	return p, true, nil
}

// CreateTemporalEdge records a NEXT edge between two propositions in the
// same invocation, in commit order. NEXT edges never span invocations.
func (s *Store) CreateTemporalEdge(ctx context.Context, fromID, toID string) error {
	_, err := s.execWithRetry(ctx, `
INSERT INTO proposition_edges(rel, source, target, created_by) VALUES ('NEXT', $1, $2, 'extraction')
ON CONFLICT (rel, source, target) DO NOTHING
`, fromID, toID)
	if err != nil {
		return llm.NewError(llm.KindStoreTransport, "graphstore.CreateTemporalEdge", err)
	}
	return nil
}

// CreateSemanticEdge records a COHERENT edge. It refuses to create a
// self-edge: a proposition is never its own neighbor.
func (s *Store) CreateSemanticEdge(ctx context.Context, aID, bID string, weight float64, createdBy EdgeCreatedBy) error {
	if aID == bID {
		return llm.NewError(llm.KindInvariant, "graphstore.CreateSemanticEdge", fmt.Errorf("refusing self-edge for proposition %s", aID))
	}
	// COHERENT is undirected; store it once with a canonical ordering so the
	// same pair is never inserted twice under swapped source/target.
	src, dst := aID, bID
	if dst < src {
		src, dst = dst, src
	}
	// MERGE-semantics on the undirected pair: a replay refreshes weight and
	// last_strengthened but leaves coactivation_count untouched.
	_, err := s.execWithRetry(ctx, `
INSERT INTO proposition_edges(rel, source, target, weight, created_by, last_strengthened) VALUES ('COHERENT', $1, $2, $3, $4, now())
ON CONFLICT (rel, source, target) DO UPDATE SET weight = EXCLUDED.weight, last_strengthened = now()
`, src, dst, weight, string(createdBy))
	if err != nil {
		return llm.NewError(llm.KindStoreTransport, "graphstore.CreateSemanticEdge", err)
	}
	return nil
}

// VectorSearch returns the top-k propositions by cosine similarity to
// query, each with similarity >= minSimilarity, ordered by descending
// similarity.
func (s *Store) VectorSearch(ctx context.Context, query []float32, k int, minSimilarity float64) ([]NeighborMatch, error) {
	if k <= 0 {
		k = 10
	}
	vecLit := toVectorLiteral(query)
	rows, err := s.pool.Query(ctx, `
SELECT id, content, 1 - (embedding <=> $1::vector) AS similarity
FROM propositions
WHERE 1 - (embedding <=> $1::vector) >= $2
ORDER BY embedding <=> $1::vector
LIMIT $3
`, vecLit, minSimilarity, k)
	if err != nil {
		return nil, llm.NewError(llm.KindStoreTransport, "graphstore.VectorSearch", err)
	}
	defer rows.Close()
	out := make([]NeighborMatch, 0, k)
	for rows.Next() {
		var m NeighborMatch
		if err := rows.Scan(&m.ID, &m.Content, &m.Similarity); err != nil {
			return nil, llm.NewError(llm.KindStoreTransport, "graphstore.VectorSearch", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}
