package extraction

import (
	"encoding/json"
	"fmt"
)

// userPrompt builds the Stage 1a prompt for a user-authored message.
func userPrompt(in Input) string {
	contentJSON, _ := json.Marshal(in.Content)
	ts := in.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	return fmt.Sprintf(`You are a conversation analyzer. Extract semantic unit with blocks.

CONTEXT:
%s

MESSAGE:
Speaker: user
Time: %s
Content: %s

TASK:
1. Reformulate with context (resolve references: "yes" -> "User confirms X")
2. Detect type and extract relevant blocks
3. Return ONLY JSON (no markdown):

{
    "unit_id": "%s",
    "content": "clear reformulation with resolved context",
    "speaker": "user",
    "timestamp": "%s",
    "type": "decision|resource|document|question|statement|confirmation",
    "certainty": "high|medium|low",
    "narrative_role": "core|supportive|peripheral",
    "concepts": ["specific_concept1", "concept2"],
    "block_metadata": {
        "resource_url": "exact URL if present",
        "resource_type": "docs|api|guide|tool",
        "resource_title": "title from context",
        "discussed_context": "why relevant",

        "decision_choice": "what was decided",
        "decision_reason": "WHY (REQUIRED for decisions)",
        "decision_alternatives": ["rejected options"],
        "decision_confidence": "high|medium|low",

        "doc_filename": "file name",
        "doc_location": "full path",
        "doc_purpose": "what it's for",
        "doc_key_settings": ["settings if config"]
    }
}

BLOCKS RULES (set only relevant fields for type):
- resource: url (required), type, title, context
- decision: choice, reason/WHY (REQUIRED), alternatives, confidence
- document: filename, location, purpose, settings

CONCEPTS: Specific compound terms (webhook_retry, API_auth), not generic words.
`, in.Context, ts, contentJSON, in.MessageID, ts)
}

// assistantPrompt builds the Stage 1b prompt for an assistant-authored
// message. reasoning is appended as a note when non-empty (V1's
// three-extraction variant folds reasoning into this prompt rather than
// running a dedicated extractor for it).
func assistantPrompt(in Input, reasoning string) string {
	contentJSON, _ := json.Marshal(in.Content)
	ts := in.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	reasoningNote := ""
	if reasoning != "" {
		reasoningNote = fmt.Sprintf("\n\nReasoning: %s", reasoning)
	}
	return fmt.Sprintf(`You are a conversation analyzer. Extract semantic unit with blocks.

CONTEXT:
%s

MESSAGE:
Speaker: assistant
Time: %s
Content: %s%s

TASK:
Return ONLY JSON (no markdown):

{
    "unit_id": "%s",
    "content": "description of assistant response",
    "speaker": "assistant",
    "timestamp": "%s",
    "type": "response|explanation|suggestion|implementation",
    "certainty": "high|medium|low",
    "narrative_role": "core|supportive|peripheral",
    "concepts": ["specific_concept1", "concept2"],
    "block_metadata": {
        "resource_url": "...",
        "resource_type": "...",
        "decision_choice": "...",
        "decision_reason": "...",
        "doc_filename": "...",
        "doc_location": "..."
    }
}

Set only relevant block fields for message type.
`, in.Context, ts, contentJSON, reasoningNote, in.MessageID, ts)
}

// reasoningPrompt builds the V2 prompt for the extract_reasoning_SU stage,
// which replaces the assistant-message extractor when EXTRACTION_VERSION=v2.
// It analyzes the model's internal reasoning rather than its visible reply.
func reasoningPrompt(in Input, reasoning string) string {
	content := reasoning
	if content == "" {
		content = "No reasoning provided"
	}
	contentJSON, _ := json.Marshal(content)
	ts := in.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	return fmt.Sprintf(`You are a conversation analyzer. Extract semantic unit with blocks.

CONTEXT:
%s

MESSAGE:
Speaker: assistant (reasoning)
Time: %s
Content: %s

TASK:
Return ONLY JSON (no markdown):

{
    "unit_id": "%s",
    "content": "description of the reasoning logic",
    "speaker": "assistant",
    "timestamp": "%s",
    "type": "reasoning",
    "certainty": "high|medium|low",
    "narrative_role": "core|supportive|peripheral",
    "concepts": ["specific_concept1", "concept2"],
    "block_metadata": {}
}
`, in.Context, ts, contentJSON, in.MessageID, ts)
}
