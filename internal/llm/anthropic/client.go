// Package anthropic adapts the Anthropic Messages API to the pipeline's
// single-shot completion contract.
package anthropic

import (
	"context"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"resemantic/internal/config"
	"resemantic/internal/observability"
)

// Client is a chat-completion provider backed by the Anthropic Messages API.
// It implements llm.Provider.
type Client struct {
	sdk         anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

// New builds a Client from the resolved Anthropic configuration.
func New(cfg config.AnthropicConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_5HaikuLatest)
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1500
	}

	return &Client{
		sdk:         anthropic.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

// Complete sends a single user-role prompt and returns the model's text
// response. It has no retry loop of its own, and the orchestrator does not
// retry a failed stage either.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	mt := c.maxTokens
	if maxTokens > 0 {
		mt = int64(maxTokens)
	}
	temp := c.temperature
	if temperature > 0 {
		temp = temperature
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   mt,
		Temperature: anthropic.Float(temp),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	log := observability.LoggerWithTrace(ctx)
	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("anthropic_complete_error")
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}

	log.Debug().
		Str("model", c.model).
		Dur("duration", dur).
		Int64("input_tokens", resp.Usage.InputTokens).
		Int64("output_tokens", resp.Usage.OutputTokens).
		Msg("anthropic_complete_ok")

	return sb.String(), nil
}
