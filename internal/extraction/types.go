// Package extraction implements Stage 1 of the pipeline: turning one raw
// chat message into a semantic unit enriched with a type, concepts, and an
// optional resource/decision/document metadata block.
package extraction

import "time"

// BlockMetadata carries the type-specific fields a semantic unit extracts.
// Only the fields relevant to the unit's Type are expected to be non-empty;
// the rest are left at their zero value. Decisions store it as a structured
// map end-to-end, never as a pre-serialized string.
type BlockMetadata map[string]any

// SemanticUnit is the Stage 1 output for one message.
type SemanticUnit struct {
	UnitID              string        `json:"unit_id"`
	Content             string        `json:"content"`
	Speaker             string        `json:"speaker"`
	Timestamp           string        `json:"timestamp"`
	Type                string        `json:"type"`
	Certainty           string        `json:"certainty"`
	NarrativeRole       string        `json:"narrative_role"`
	Concepts            []string      `json:"concepts"`
	Entities            []string      `json:"entities,omitempty"`
	Decisions           []string      `json:"decisions,omitempty"`
	ContextDependencies []string      `json:"context_dependencies,omitempty"`
	Impact              string        `json:"impact,omitempty"`
	Relevance           string        `json:"relevance,omitempty"`
	BlockMetadata       BlockMetadata `json:"block_metadata"`
}

// Input is the data a Stage 1 call needs: the message being analyzed, the
// rolling context window already rendered to a string, and the id/timestamp
// to stamp onto the resulting unit.
type Input struct {
	MessageID string
	Content   string
	Timestamp time.Time
	Context   string
}
