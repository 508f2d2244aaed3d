package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recoveryTarget struct {
	Name string `json:"name"`
}

func TestRecoverJSON_PlainJSON(t *testing.T) {
	var out recoveryTarget
	err := RecoverJSON("stage", `{"name":"ok"}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Name)
}

func TestRecoverJSON_ClosureUnderFencesAndWhitespace(t *testing.T) {
	variants := []string{
		"  \n\t {\"name\":\"fenced\"}  \n",
		"```json\n{\"name\":\"fenced\"}\n```",
		"```\n{\"name\":\"fenced\"}\n```",
		"  ```json\n{\"name\":\"fenced\"}\n```  ",
	}
	for _, raw := range variants {
		var out recoveryTarget
		err := RecoverJSON("stage", raw, &out)
		require.NoError(t, err, "input: %q", raw)
		assert.Equal(t, "fenced", out.Name)
	}
}

func TestRecoverJSON_UnparseableYieldsLLMOutputError(t *testing.T) {
	var out recoveryTarget
	err := RecoverJSON("extract_user_SU", "not json at all", &out)
	require.Error(t, err)
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindLLMOutput, ce.Kind)
	assert.Equal(t, "extract_user_SU", ce.Stage)
	assert.False(t, ce.Kind.Retryable())
}
