// Package embedding is a small, batch-oriented embedding client backed by
// the OpenAI embeddings API.
package embedding

import (
	"context"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"resemantic/internal/config"
	"resemantic/internal/llm"
)

// Client generates fixed-dimension embeddings for batches of text.
type Client struct {
	sdk        openai.Client
	model      string
	dimensions int
	batchSize  int
}

// New builds a Client from the resolved embedding configuration.
func New(cfg config.EmbeddingConfig) *Client {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Client{
		sdk:        openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  batchSize,
	}
}

// Dimensions returns the fixed vector dimension this client was constructed
// with.
func (c *Client) Dimensions() int { return c.dimensions }

// Embed returns one embedding per input text, in the same order as texts,
// regardless of the order the provider returns results in. The OpenAI
// embeddings response carries an Index field per item; we re-sort on it so
// callers never have to reason about provider ordering.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		vecs, err := c.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		copy(out[start:end], vecs)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: c.model,
	}
	if c.dimensions > 0 {
		params.Dimensions = openai.Int(int64(c.dimensions))
	}

	resp, err := c.sdk.Embeddings.New(ctx, params)
	if err != nil {
		return nil, llm.NewError(llm.KindLLMTransport, "embedding.embedBatch", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, llm.NewError(llm.KindSchemaValidation, "embedding.embedBatch",
			errCount(len(texts), len(resp.Data)))
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(out) {
			continue
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		out[idx] = vec
	}
	for i, v := range out {
		if v == nil {
			return nil, llm.NewError(llm.KindSchemaValidation, "embedding.embedBatch", errMissingIndex(i))
		}
	}
	return out, nil
}
