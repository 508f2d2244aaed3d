package embedding

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resemantic/internal/config"
	"resemantic/internal/llm"
)

// embeddingItem mirrors the OpenAI embeddings response shape closely enough
// to drive the client without pulling in the real API.
type embeddingItem struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingResponse struct {
	Object string           `json:"object"`
	Data   []embeddingItem  `json:"data"`
	Model  string           `json:"model"`
	Usage  map[string]int64 `json:"usage"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc, batchSize, dimensions int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Model:      "text-embedding-3-small",
		Dimensions: dimensions,
		BatchSize:  batchSize,
	})
}

func TestEmbed_OutOfOrderResponseIsReSorted(t *testing.T) {
	var requestBodies []map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		requestBodies = append(requestBodies, body)

		resp := embeddingResponse{
			Object: "list",
			Model:  "text-embedding-3-small",
			Data: []embeddingItem{
				{Object: "embedding", Index: 2, Embedding: []float64{2, 2}},
				{Object: "embedding", Index: 0, Embedding: []float64{0, 0}},
				{Object: "embedding", Index: 1, Embedding: []float64{1, 1}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}, 16, 2)

	vecs, err := client.Embed(t.Context(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{0, 0}, vecs[0])
	assert.Equal(t, []float32{1, 1}, vecs[1])
	assert.Equal(t, []float32{2, 2}, vecs[2])
	require.Len(t, requestBodies, 1)
}

func TestEmbed_ChunksAcrossMultipleBatches(t *testing.T) {
	var batchSizes []int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		batchSizes = append(batchSizes, len(body.Input))

		data := make([]embeddingItem, len(body.Input))
		for i := range body.Input {
			data[i] = embeddingItem{Object: "embedding", Index: i, Embedding: []float64{float64(i)}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(embeddingResponse{Object: "list", Data: data})
	}, 2, 1)

	vecs, err := client.Embed(t.Context(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	assert.Equal(t, []int{2, 2, 1}, batchSizes)
}

func TestEmbed_CountMismatchIsSchemaError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(embeddingResponse{
			Object: "list",
			Data:   []embeddingItem{{Object: "embedding", Index: 0, Embedding: []float64{0}}},
		})
	}, 16, 1)

	_, err := client.Embed(t.Context(), []string{"a", "b"})
	require.Error(t, err)
	ce, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, llm.KindSchemaValidation, ce.Kind)
}

func TestEmbed_MissingIndexIsSchemaError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(embeddingResponse{
			Object: "list",
			Data: []embeddingItem{
				{Object: "embedding", Index: 0, Embedding: []float64{0}},
				{Object: "embedding", Index: 0, Embedding: []float64{0}},
			},
		})
	}, 16, 1)

	_, err := client.Embed(t.Context(), []string{"a", "b"})
	require.Error(t, err)
	ce, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, llm.KindSchemaValidation, ce.Kind)
	assert.Contains(t, fmt.Sprint(ce), "embedBatch")
}

func TestEmbed_TransportErrorWrapped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, 16, 1)

	_, err := client.Embed(t.Context(), []string{"a"})
	require.Error(t, err)
	ce, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, llm.KindLLMTransport, ce.Kind)
	assert.True(t, ce.Kind.Retryable())
}
