package llm

import "context"

// Message is a single turn in a chat-style prompt.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Provider is a single-shot text completion client. Every extraction stage
// sends one prompt and waits for one text response; there is no tool calling
// and no streaming in this pipeline.
type Provider interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}
