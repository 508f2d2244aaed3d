package extraction

import (
	"context"
	"encoding/json"
	"fmt"

	"resemantic/internal/llm"
)

// rawSemanticUnit mirrors SemanticUnit but keeps block_metadata as raw JSON
// so we can detect a string-valued block_metadata (a model mistake) and
// report it as a schema violation instead of a generic parse failure.
type rawSemanticUnit struct {
	UnitID              string          `json:"unit_id"`
	Content             string          `json:"content"`
	Speaker             string          `json:"speaker"`
	Timestamp           string          `json:"timestamp"`
	Type                string          `json:"type"`
	Certainty           string          `json:"certainty"`
	NarrativeRole       string          `json:"narrative_role"`
	Concepts            []string        `json:"concepts"`
	Entities            []string        `json:"entities,omitempty"`
	Decisions           []string        `json:"decisions,omitempty"`
	ContextDependencies []string        `json:"context_dependencies,omitempty"`
	Impact              string          `json:"impact,omitempty"`
	Relevance           string          `json:"relevance,omitempty"`
	BlockMetadata       json.RawMessage `json:"block_metadata"`
}

// Extractor runs Stage 1 against a chat completion provider.
type Extractor struct {
	provider  llm.Provider
	maxTokens int
	temp      float64
}

// New builds an Extractor bound to the given provider and sampling
// parameters, which come from configuration rather than call sites.
func New(provider llm.Provider, maxTokens int, temperature float64) *Extractor {
	return &Extractor{provider: provider, maxTokens: maxTokens, temp: temperature}
}

// ExtractUser runs extract_user_SU.
func (e *Extractor) ExtractUser(ctx context.Context, in Input) (SemanticUnit, error) {
	return e.run(ctx, "extract_user_SU", in, userPrompt(in))
}

// ExtractAssistant runs extract_assistant_SU (the V1 three-extraction
// variant, where reasoning if present is folded into this same prompt).
func (e *Extractor) ExtractAssistant(ctx context.Context, in Input, reasoning string) (SemanticUnit, error) {
	return e.run(ctx, "extract_assistant_SU", in, assistantPrompt(in, reasoning))
}

// ExtractReasoning runs extract_reasoning_SU (the V2 two-extraction variant,
// replacing ExtractAssistant). When reasoning is empty the unit's content is
// "No reasoning provided", with an empty block_metadata.
func (e *Extractor) ExtractReasoning(ctx context.Context, in Input, reasoning string) (SemanticUnit, error) {
	su, err := e.run(ctx, "extract_reasoning_SU", in, reasoningPrompt(in, reasoning))
	if err != nil {
		return su, err
	}
	if reasoning == "" {
		su.Content = "No reasoning provided"
		su.BlockMetadata = BlockMetadata{}
	}
	return su, nil
}

func (e *Extractor) run(ctx context.Context, stage string, in Input, prompt string) (SemanticUnit, error) {
	text, err := e.provider.Complete(ctx, prompt, e.maxTokens, e.temp)
	if err != nil {
		return SemanticUnit{}, llm.NewError(llm.KindLLMTransport, stage, err)
	}
	var raw rawSemanticUnit
	if err := llm.RecoverJSON(stage, text, &raw); err != nil {
		return SemanticUnit{}, err
	}

	meta, err := decodeBlockMetadata(stage, raw.BlockMetadata)
	if err != nil {
		return SemanticUnit{}, err
	}

	su := SemanticUnit{
		// unit_id is always the caller-supplied message id, never whatever
		// the model happened to echo back.
		UnitID:              in.MessageID,
		Content:             raw.Content,
		Speaker:             raw.Speaker,
		Timestamp:           raw.Timestamp,
		Type:                raw.Type,
		Certainty:           raw.Certainty,
		NarrativeRole:       raw.NarrativeRole,
		Concepts:            raw.Concepts,
		Entities:            raw.Entities,
		Decisions:           raw.Decisions,
		ContextDependencies: raw.ContextDependencies,
		Impact:              raw.Impact,
		Relevance:           raw.Relevance,
		BlockMetadata:       meta,
	}
	if err := Validate(stage, su); err != nil {
		return SemanticUnit{}, err
	}
	return su, nil
}

// decodeBlockMetadata rejects a string-valued block_metadata field at the
// boundary: models occasionally double-encode it (returning a JSON string
// that itself contains JSON) instead of a structured object.
func decodeBlockMetadata(stage string, raw json.RawMessage) (BlockMetadata, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return BlockMetadata{}, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return nil, llm.NewError(llm.KindSchemaValidation, stage, fmt.Errorf("block_metadata arrived as a string, expected an object"))
	}
	var meta BlockMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, llm.NewError(llm.KindSchemaValidation, stage, fmt.Errorf("block_metadata is not a JSON object: %w", err))
	}
	if meta == nil {
		meta = BlockMetadata{}
	}
	return meta, nil
}

// Validate enforces the structural rules the specification calls out
// explicitly: a decision type must carry a non-empty decision_reason.
func Validate(stage string, su SemanticUnit) error {
	if su.Type == "decision" {
		reason, _ := su.BlockMetadata["decision_reason"].(string)
		if reason == "" {
			return llm.NewError(llm.KindSchemaValidation, stage, fmt.Errorf("decision semantic unit missing decision_reason"))
		}
	}
	return nil
}
