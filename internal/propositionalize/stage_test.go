package propositionalize

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resemantic/internal/extraction"
	"resemantic/internal/llm"
)

type stubProvider struct {
	response string
	err      error
}

func (s stubProvider) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	return s.response, s.err
}

func baseSU() extraction.SemanticUnit {
	return extraction.SemanticUnit{
		UnitID:        "su-1",
		Content:       "User decides to use webhook retry",
		Type:          "decision",
		Certainty:     "high",
		BlockMetadata: extraction.BlockMetadata{"decision_choice": "retry", "decision_reason": "rate limits"},
	}
}

func TestRun_HappyPath(t *testing.T) {
	p := New(stubProvider{response: `[
		{"su_id":"su-1","content":"User decides to retry webhooks","type":"decision","certainty":"high","block_metadata":{"decision_choice":"retry","decision_reason":"rate limits"},"concepts":["webhook_retry"]}
	]`}, 1500, 0.3)

	props, err := p.Run(context.Background(), "propositionalize_user", baseSU())
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "su-1", props[0].SemanticUnitID)
	assert.Equal(t, "retry", props[0].BlockMetadata["decision_choice"])
}

func TestRun_ZeroPropositionsIsSuccessfulNoOp(t *testing.T) {
	p := New(stubProvider{response: `[]`}, 1500, 0.3)
	props, err := p.Run(context.Background(), "propositionalize_user", baseSU())
	require.NoError(t, err)
	assert.Empty(t, props)
}

func TestRun_OverTenPropositionsIsSchemaError(t *testing.T) {
	var items []string
	for i := 0; i < 11; i++ {
		items = append(items, fmt.Sprintf(`{"su_id":"su-1","content":"p%d","type":"decision","certainty":"high","block_metadata":{"decision_choice":"retry","decision_reason":"rate limits"},"concepts":["c"]}`, i))
	}
	p := New(stubProvider{response: "[" + strings.Join(items, ",") + "]"}, 1500, 0.3)

	_, err := p.Run(context.Background(), "propositionalize_user", baseSU())
	require.Error(t, err)
	ce, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, llm.KindSchemaValidation, ce.Kind)
}

func TestRun_SemanticUnitIDAlwaysOverwrittenFromCaller(t *testing.T) {
	p := New(stubProvider{response: `[
		{"su_id":"some-other-unit","content":"x","type":"decision","certainty":"high","block_metadata":{"decision_choice":"retry","decision_reason":"rate limits"},"concepts":["c"]}
	]`}, 1500, 0.3)

	props, err := p.Run(context.Background(), "propositionalize_user", baseSU())
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "su-1", props[0].SemanticUnitID)
}

func TestRun_MismatchedBlockMetadataIsInvariantViolation(t *testing.T) {
	p := New(stubProvider{response: `[
		{"su_id":"su-1","content":"x","type":"decision","certainty":"high","block_metadata":{"decision_choice":"different"},"concepts":["c"]}
	]`}, 1500, 0.3)

	_, err := p.Run(context.Background(), "propositionalize_user", baseSU())
	require.Error(t, err)
	ce, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, llm.KindInvariant, ce.Kind)
}

func TestRun_InheritsMetadataWhenOmitted(t *testing.T) {
	p := New(stubProvider{response: `[
		{"su_id":"su-1","content":"x","type":"decision","certainty":"high","concepts":["c"]}
	]`}, 1500, 0.3)

	props, err := p.Run(context.Background(), "propositionalize_user", baseSU())
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "retry", props[0].BlockMetadata["decision_choice"])
}

func TestEqualMetadata_OrderInsensitive(t *testing.T) {
	a := extraction.BlockMetadata{"x": 1, "y": 2}
	b := extraction.BlockMetadata{"y": 2, "x": 1}
	assert.True(t, equalMetadata(a, b))

	c := extraction.BlockMetadata{"x": 1}
	assert.False(t, equalMetadata(a, c))

	assert.True(t, equalMetadata(nil, extraction.BlockMetadata{}))
}
