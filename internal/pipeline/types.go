// Package pipeline sequences the fixed extraction -> propositionalization ->
// embedding -> dual-store commit -> edge-construction DAG for one chat turn,
// and runs batches of turns through a bounded worker pool so a chat response
// is never blocked on pipeline completion.
package pipeline

import (
	"time"

	"resemantic/internal/extraction"
	"resemantic/internal/propositionalize"
)

// Turn is one user/assistant exchange to run through the pipeline.
type Turn struct {
	UserMessageID      string
	AssistantMessageID string
	UserMessage        string
	AssistantMessage   string
	AssistantReasoning string
	History            []HistoryMessage
	Timestamp          time.Time
}

// HistoryMessage is one prior turn's message, used to build the rolling
// context window.
type HistoryMessage struct {
	Role    string
	Content string
}

// Result is the outcome of running one Turn through the pipeline. It is
// always returned, even on failure: a result with a non-empty Error still
// carries whatever partial output earlier stages produced. Nothing in this
// package ever panics or propagates a bare error past Run.
type Result struct {
	Turn                  Turn
	UserSemanticUnit      extraction.SemanticUnit
	AssistantSemanticUnit extraction.SemanticUnit
	UserPropositions      []propositionalize.Proposition
	AssistantPropositions []propositionalize.Proposition
	StoredPropositionIDs  []string
	StageTimings          map[string]time.Duration
	Error                 string
}
