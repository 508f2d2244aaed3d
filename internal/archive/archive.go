// Package archive is the relational record of every raw message, semantic
// unit, and proposition the pipeline has produced. It exists purely for
// traceability. Every write is an upsert keyed by primary key: storing a row
// again under the same id replaces it rather than adding a second row.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"resemantic/internal/llm"
)

// Message is a raw, unmodified chat turn.
type Message struct {
	ID        string
	Role      string // "user" | "assistant" | "assistant_reasoning"
	Content   string
	Timestamp time.Time
}

// SemanticUnit is a Stage 1 (extraction) output.
type SemanticUnit struct {
	ID                  string
	MessageID           string
	Content             string
	Type                string
	NarrativeRole       string
	Concepts            []string
	Entities            []string
	Decisions           []string
	Certainty           string
	ContextDependencies []string
	Impact              string
	Relevance           string
	BlockMetadata       map[string]any
}

// PropositionArchive is a Stage 2 (propositionalization) output.
type PropositionArchive struct {
	ID             string
	SemanticUnitID string
	Content        string
	Type           string
	Certainty      string
	Concepts       []string
	BlockMetadata  map[string]any
}

// Lineage is the joined record produced by following
// proposition_id -> semantic_unit_id -> message_id.
type Lineage struct {
	Proposition PropositionArchive
	Unit        SemanticUnit
	Message     Message
}

// DB is the SQLite-backed archive. A single file holds the full history; modernc.org/sqlite is a pure-Go driver so no cgo toolchain is
// required to build or deploy this service.
type DB struct {
	db *sql.DB
}

// Open opens (and if necessary creates) the archive database at path and
// ensures its schema.
func Open(ctx context.Context, path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, llm.NewError(llm.KindStoreTransport, "archive.Open", err)
	}
	sqlDB.SetMaxOpenConns(1) // modernc.org/sqlite does not support concurrent writers
	d := &DB{db: sqlDB}
	if err := d.ensureSchema(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS semantic_units (
			unit_id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			content TEXT NOT NULL,
			type TEXT,
			narrative_role TEXT,
			concepts TEXT,
			entities TEXT,
			decisions TEXT,
			certainty TEXT,
			context_dependencies TEXT,
			impact TEXT,
			relevance TEXT,
			block_metadata TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY (message_id) REFERENCES messages(id)
		)`,
		`CREATE TABLE IF NOT EXISTS propositions_archive (
			proposition_id TEXT PRIMARY KEY,
			semantic_unit_id TEXT NOT NULL,
			content TEXT NOT NULL,
			type TEXT,
			certainty TEXT,
			concepts TEXT,
			block_metadata TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY (semantic_unit_id) REFERENCES semantic_units(unit_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_semantic_units_message ON semantic_units(message_id)`,
		`CREATE INDEX IF NOT EXISTS idx_propositions_semantic_unit ON propositions_archive(semantic_unit_id)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return llm.NewError(llm.KindStoreTransport, "archive.ensureSchema", err)
		}
	}
	return nil
}

// StoreMessage archives one raw chat turn. Re-archiving the same id replaces
// its row; the pipeline never does this in practice since message ids are
// generated fresh per turn, but it keeps writes idempotent under retry.
func (d *DB) StoreMessage(ctx context.Context, m Message) error {
	_, err := d.db.ExecContext(ctx, `
INSERT OR REPLACE INTO messages (id, role, content, timestamp, created_at) VALUES (?, ?, ?, ?, ?)
`, m.ID, m.Role, m.Content, m.Timestamp.Format(time.RFC3339Nano), time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return llm.NewError(llm.KindStoreTransport, "archive.StoreMessage", err)
	}
	return nil
}

// StoreSemanticUnit archives a Stage 1 output.
func (d *DB) StoreSemanticUnit(ctx context.Context, u SemanticUnit) error {
	concepts, _ := json.Marshal(orEmpty(u.Concepts))
	entities, _ := json.Marshal(orEmpty(u.Entities))
	decisions, _ := json.Marshal(orEmpty(u.Decisions))
	contextDeps, _ := json.Marshal(orEmpty(u.ContextDependencies))
	meta, err := json.Marshal(orEmptyMap(u.BlockMetadata))
	if err != nil {
		return llm.NewError(llm.KindInvariant, "archive.StoreSemanticUnit", err)
	}
	_, err = d.db.ExecContext(ctx, `
INSERT OR REPLACE INTO semantic_units (
	unit_id, message_id, content, type, narrative_role, concepts, entities,
	decisions, certainty, context_dependencies, impact, relevance, block_metadata, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, u.ID, u.MessageID, u.Content, u.Type, u.NarrativeRole, string(concepts), string(entities),
		string(decisions), u.Certainty, string(contextDeps), u.Impact, u.Relevance, string(meta), time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return llm.NewError(llm.KindStoreTransport, "archive.StoreSemanticUnit", err)
	}
	return nil
}

// StoreProposition archives a Stage 2 output.
func (d *DB) StoreProposition(ctx context.Context, p PropositionArchive) error {
	concepts, _ := json.Marshal(orEmpty(p.Concepts))
	meta, err := json.Marshal(orEmptyMap(p.BlockMetadata))
	if err != nil {
		return llm.NewError(llm.KindInvariant, "archive.StoreProposition", err)
	}
	_, err = d.db.ExecContext(ctx, `
INSERT OR REPLACE INTO propositions_archive (
	proposition_id, semantic_unit_id, content, type, certainty, concepts, block_metadata, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, p.ID, p.SemanticUnitID, p.Content, p.Type, p.Certainty, string(concepts), string(meta), time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return llm.NewError(llm.KindStoreTransport, "archive.StoreProposition", err)
	}
	return nil
}

// GetFullLineage follows proposition_id -> semantic_unit_id -> message_id
// and returns exactly one joined row, satisfying the lineage-join invariant
// named in the specification.
func (d *DB) GetFullLineage(ctx context.Context, propositionID string) (Lineage, bool, error) {
	row := d.db.QueryRowContext(ctx, `
SELECT
	p.proposition_id, p.semantic_unit_id, p.content, p.type, p.certainty, p.concepts, p.block_metadata,
	u.unit_id, u.message_id, u.content, u.type, u.narrative_role, u.concepts, u.entities, u.decisions,
	u.certainty, u.context_dependencies, u.impact, u.relevance, u.block_metadata,
	m.id, m.role, m.content, m.timestamp
FROM propositions_archive p
JOIN semantic_units u ON p.semantic_unit_id = u.unit_id
JOIN messages m ON u.message_id = m.id
WHERE p.proposition_id = ?
`, propositionID)

	var (
		l                                                        Lineage
		pConcepts, uConcepts, uEntities, uDecisions, uContextDeps string
		pMeta, uMeta                                              string
		msgTimestamp                                              string
	)
	err := row.Scan(
		&l.Proposition.ID, &l.Proposition.SemanticUnitID, &l.Proposition.Content, &l.Proposition.Type, &l.Proposition.Certainty, &pConcepts, &pMeta,
		&l.Unit.ID, &l.Unit.MessageID, &l.Unit.Content, &l.Unit.Type, &l.Unit.NarrativeRole, &uConcepts, &uEntities, &uDecisions,
		&l.Unit.Certainty, &uContextDeps, &l.Unit.Impact, &l.Unit.Relevance, &uMeta,
		&l.Message.ID, &l.Message.Role, &l.Message.Content, &msgTimestamp,
	)
	if err == sql.ErrNoRows {
		return Lineage{}, false, nil
	}
	if err != nil {
		return Lineage{}, false, llm.NewError(llm.KindStoreTransport, "archive.GetFullLineage", err)
	}
	_ = json.Unmarshal([]byte(pConcepts), &l.Proposition.Concepts)
	_ = json.Unmarshal([]byte(pMeta), &l.Proposition.BlockMetadata)
	_ = json.Unmarshal([]byte(uConcepts), &l.Unit.Concepts)
	_ = json.Unmarshal([]byte(uEntities), &l.Unit.Entities)
	_ = json.Unmarshal([]byte(uDecisions), &l.Unit.Decisions)
	_ = json.Unmarshal([]byte(uContextDeps), &l.Unit.ContextDependencies)
	_ = json.Unmarshal([]byte(uMeta), &l.Unit.BlockMetadata)
	if ts, perr := time.Parse(time.RFC3339Nano, msgTimestamp); perr == nil {
		l.Message.Timestamp = ts
	}
	return l, true, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
