package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_Retryable(t *testing.T) {
	assert.True(t, KindLLMTransport.Retryable())
	assert.True(t, KindStoreTransport.Retryable())
	assert.False(t, KindLLMOutput.Retryable())
	assert.False(t, KindSchemaValidation.Retryable())
	assert.False(t, KindInvariant.Retryable())
}

func TestError_UnwrapAndAs(t *testing.T) {
	inner := errors.New("boom")
	wrapped := NewError(KindStoreTransport, "store_propositions", inner)

	assert.ErrorIs(t, wrapped, inner)

	ce, ok := AsError(wrapped)
	assert.True(t, ok)
	assert.Same(t, wrapped, ce)

	_, ok = AsError(inner)
	assert.False(t, ok)

	_, ok = AsError(nil)
	assert.False(t, ok)
}

func TestError_MessageIncludesStageAndKind(t *testing.T) {
	err := NewError(KindInvariant, "create_edges", errors.New("refusing self-edge"))
	msg := err.Error()
	assert.Contains(t, msg, "create_edges")
	assert.Contains(t, msg, string(KindInvariant))
	assert.Contains(t, msg, "refusing self-edge")
}
