package llm

import "strings"

// Turn is a single prior conversational turn used to build the rolling
// context window handed to every extraction prompt.
type Turn struct {
	Speaker string // "user" | "assistant"
	Content string
}

// BuildContext renders the last k turns of history into the flat string the
// extraction prompts embed as "recent conversation". It is a pure function
// of its inputs: no global state, no clock, no I/O, so it can be property
// tested directly. An empty history renders as "Start of conversation"
// rather than an empty string so prompts never have to special-case it.
func BuildContext(history []Turn, k int) string {
	if len(history) == 0 {
		return "Start of conversation"
	}
	if k <= 0 {
		return "Start of conversation"
	}
	start := 0
	if len(history) > k {
		start = len(history) - k
	}
	window := history[start:]
	var b strings.Builder
	for i, t := range window {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t.Speaker)
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}
