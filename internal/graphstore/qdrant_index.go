package graphstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"resemantic/internal/llm"
)

// QdrantIndex is an alternate vector index for proposition embeddings. The
// specification's graph store wire protocol only requires "a cosine
// similarity vector index of the configured dimension"; Postgres/pgvector
// satisfies that inside the graph database itself, and QdrantIndex is a
// standalone alternative for vector search in a dedicated service. It holds
// only the vectors passed to its own Upsert: Store does not write to it, and
// neither cmd/pipelined nor the orchestrator constructs or queries it. It
// does not carry NEXT/COHERENT edges, since Qdrant has no graph primitives —
// edge storage always stays in Store.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// OpenQdrantIndex connects to a Qdrant instance over its gRPC API (default
// port 6334) and ensures the proposition collection exists.
func OpenQdrantIndex(ctx context.Context, dsn, collection string, dimensions int) (*QdrantIndex, error) {
	if collection == "" {
		return nil, fmt.Errorf("graphstore: qdrant collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, llm.NewError(llm.KindStoreTransport, "graphstore.OpenQdrantIndex", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, llm.NewError(llm.KindStoreTransport, "graphstore.OpenQdrantIndex", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, llm.NewError(llm.KindStoreTransport, "graphstore.OpenQdrantIndex", err)
	}
	q := &QdrantIndex{client: client, collection: collection, dimension: dimensions}
	if err := q.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return llm.NewError(llm.KindStoreTransport, "graphstore.ensureCollection", err)
	}
	if exists {
		return nil
	}
	if q.dimension <= 0 {
		return fmt.Errorf("graphstore: qdrant requires dimensions > 0")
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return llm.NewError(llm.KindStoreTransport, "graphstore.ensureCollection", err)
	}
	return nil
}

// pointID turns an arbitrary proposition id into the UUID Qdrant requires,
// preserving the original id in the payload.
func pointID(id string) (qdrant.PointId, bool) {
	if _, err := uuid.Parse(id); err == nil {
		return *qdrant.NewIDUUID(id), false
	}
	return *qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()), true
}

const originalIDField = "_original_id"

// Upsert mirrors a proposition's embedding into the Qdrant collection.
func (q *QdrantIndex) Upsert(ctx context.Context, id string, vector []float32) error {
	pid, remapped := pointID(id)
	payload := map[string]any{}
	if remapped {
		payload[originalIDField] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      &pid,
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return llm.NewError(llm.KindStoreTransport, "graphstore.QdrantIndex.Upsert", err)
	}
	return nil
}

// Search returns the top-k neighbors by cosine similarity. Results whose
// similarity falls below minSimilarity are dropped so callers see the same
// thresholded contract as Store.VectorSearch.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, k int, minSimilarity float64) ([]NeighborMatch, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, llm.NewError(llm.KindStoreTransport, "graphstore.QdrantIndex.Search", err)
	}
	out := make([]NeighborMatch, 0, len(hits))
	for _, hit := range hits {
		if float64(hit.Score) < minSimilarity {
			continue
		}
		id := hit.Id.GetUuid()
		if hit.Payload != nil {
			if v, ok := hit.Payload[originalIDField]; ok {
				id = v.GetStringValue()
			}
		}
		out = append(out, NeighborMatch{ID: id, Similarity: float64(hit.Score)})
	}
	return out, nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
