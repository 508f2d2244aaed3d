package propositionalize

import (
	"context"
	"encoding/json"
	"fmt"

	"resemantic/internal/extraction"
	"resemantic/internal/llm"
)

// Propositionalizer runs Stage 2 against a chat completion provider.
type Propositionalizer struct {
	provider  llm.Provider
	maxTokens int
	temp      float64
}

// New builds a Propositionalizer bound to the given provider and sampling
// parameters.
func New(provider llm.Provider, maxTokens int, temperature float64) *Propositionalizer {
	return &Propositionalizer{provider: provider, maxTokens: maxTokens, temp: temperature}
}

// Run breaks one semantic unit into atomic propositions. stage names the
// caller ("propositionalize_user", "propositionalize_assistant", or
// "propositionalize_reasoning" in the V2 variant) purely for error context.
func (p *Propositionalizer) Run(ctx context.Context, stage string, su extraction.SemanticUnit) ([]Proposition, error) {
	prompt := buildPrompt(su)
	text, err := p.provider.Complete(ctx, prompt, p.maxTokens, p.temp)
	if err != nil {
		return nil, llm.NewError(llm.KindLLMTransport, stage, err)
	}
	var props []Proposition
	if err := llm.RecoverJSON(stage, text, &props); err != nil {
		return nil, err
	}
	if len(props) > 10 {
		return nil, llm.NewError(llm.KindSchemaValidation, stage, fmt.Errorf("propositionalization produced %d propositions, max 10", len(props)))
	}
	for i := range props {
		// su_id is an identity-linking field: always the caller-known unit id,
		// never whatever the model happened to echo back.
		props[i].SemanticUnitID = su.UnitID
		props[i].Type = su.Type
		props[i].Certainty = su.Certainty
		if props[i].BlockMetadata == nil {
			props[i].BlockMetadata = su.BlockMetadata
		}
		if !equalMetadata(props[i].BlockMetadata, su.BlockMetadata) {
			return nil, llm.NewError(llm.KindInvariant, stage, fmt.Errorf("proposition block_metadata does not match its semantic unit"))
		}
	}
	return props, nil
}

func buildPrompt(su extraction.SemanticUnit) string {
	suJSON, _ := json.MarshalIndent(su, "", "  ")
	metaJSON, _ := json.Marshal(su.BlockMetadata)
	defaultType := su.Type
	if defaultType == "" {
		defaultType = "statement"
	}
	defaultCertainty := su.Certainty
	if defaultCertainty == "" {
		defaultCertainty = "medium"
	}
	return fmt.Sprintf(`Break semantic unit into atomic propositions.

SEMANTIC UNIT:
%s

Return ONLY JSON array (no markdown):

[
    {
        "su_id": "%s",
        "content": "atomic self-contained proposition",
        "type": "%s",
        "certainty": "%s",
        "block_metadata": %s,
        "concepts": ["concept1", "concept2"]
    }
]

RULES:
- 1 proposition = 1 verifiable statement
- Self-contained (understandable without external context)
- 1-2 core concepts per proposition
- 0-10 propositions (a unit with nothing verifiable in it yields zero)
- NO hallucination - only decompose what's in the unit
- Props INHERIT all metadata (type, certainty, blocks) from SU via su_id

CONCEPTS: Specific compound terms (webhook_retry_mechanism), not isolated generic words.
`, suJSON, su.UnitID, defaultType, defaultCertainty, metaJSON)
}

// equalMetadata compares two block_metadata maps for the SU<->proposition
// equality invariant. Comparing marshaled JSON sidesteps map key-ordering
// noise while still catching any real divergence.
func equalMetadata(a, b extraction.BlockMetadata) bool {
	aj, _ := json.Marshal(normalizeMeta(a))
	bj, _ := json.Marshal(normalizeMeta(b))
	return string(aj) == string(bj)
}

func normalizeMeta(m extraction.BlockMetadata) extraction.BlockMetadata {
	if m == nil {
		return extraction.BlockMetadata{}
	}
	return m
}
