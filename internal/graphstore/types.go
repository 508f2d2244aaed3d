// Package graphstore is the Postgres+pgvector-backed implementation of the
// proposition graph: Proposition nodes, NEXT temporal edges, and COHERENT
// similarity edges, plus the vector kNN search used to build the latter.
package graphstore

import "time"

// Proposition is a single atomic, embedding-indexed fact extracted from one
// side of a chat turn.
type Proposition struct {
	ID              string
	Content         string
	Embedding       []float32
	Speaker         string // "user" | "assistant"
	Timestamp       time.Time
	BlockMetadata   map[string]any
	ActivationCount int
	CoherenceScore  float64
	IsWeak          bool
	WeaknessReason  string
	LastAccessed    *time.Time
}

// NeighborMatch is a single vector kNN hit used to decide COHERENT edges.
type NeighborMatch struct {
	ID         string
	Content    string
	Similarity float64
}

// EdgeCreatedBy distinguishes extraction-time edges from ones added later by
// a sleep-cycle/consolidation process (named in the specification's edge
// attributes but not itself implemented by this pipeline).
type EdgeCreatedBy string

const (
	CreatedByExtraction EdgeCreatedBy = "extraction"
	CreatedBySleepCycle EdgeCreatedBy = "sleep_cycle"
)
