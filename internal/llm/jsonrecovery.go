package llm

import (
	"encoding/json"
	"strings"
)

// RecoverJSON strips common markdown code-fence wrapping from a model
// response and unmarshals the result into v. Models routinely wrap JSON
// output in ```json ... ``` or bare ``` ... ``` fences despite being asked
// not to; stripping them here keeps every extraction stage's prompt-parsing
// code identical instead of duplicating this cleanup per call site.
//
// On failure this returns the raw *Error with KindLLMOutput so callers never
// need to re-classify a json.Unmarshal error themselves.
func RecoverJSON(stage string, raw string, v any) error {
	cleaned := stripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return NewError(KindLLMOutput, stage, err)
	}
	return nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
