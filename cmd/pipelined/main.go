// Command pipelined runs the semantic memory extraction pipeline as a
// long-lived worker: it owns the graph store, archive, LLM and embedding
// clients, and the bounded worker pool that turns take flight on.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"resemantic/internal/archive"
	"resemantic/internal/config"
	"resemantic/internal/embedding"
	"resemantic/internal/extraction"
	"resemantic/internal/graphstore"
	"resemantic/internal/llm/anthropic"
	"resemantic/internal/observability"
	"resemantic/internal/pipeline"
	"resemantic/internal/propositionalize"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config_load_failed")
	}
	observability.InitLogger(cfg.Obs.LogPath, cfg.Obs.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Obs.OTLP != "" {
		shutdown, err := observability.InitOTel(ctx, cfg.Obs)
		if err != nil {
			log.Fatal().Err(err).Msg("otel_init_failed")
		}
		defer shutdown(context.Background())
	}

	graph, err := graphstore.Open(ctx, cfg.Graph.DSN, cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatal().Err(err).Msg("graphstore_open_failed")
	}
	defer graph.Close()

	arc, err := archive.Open(ctx, cfg.Archive.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("archive_open_failed")
	}
	defer arc.Close()

	chatClient := anthropic.New(cfg.Anthropic, nil)
	embedClient := embedding.New(cfg.Embedding)
	extractor := extraction.New(chatClient, cfg.Anthropic.MaxTokens, cfg.Anthropic.Temperature)
	propositionalizer := propositionalize.New(chatClient, cfg.Anthropic.MaxTokens, cfg.Anthropic.Temperature)

	orch := pipeline.New(extractor, propositionalizer, embedClient, graph, arc, resultLogger{}, pipeline.Config{
		Version:             pipeline.ExtractionVersion(cfg.Pipeline.ExtractionVersion),
		ContextMaxMessages:  cfg.Pipeline.ContextMaxMessages,
		TopKNeighbors:       cfg.Pipeline.TopKNeighbors,
		SimilarityThreshold: cfg.Pipeline.SimilarityThreshold,
	})

	queue := pipeline.NewQueue(orch, resultSink{}, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize)
	queue.Start(ctx)
	defer queue.Stop()

	log.Info().
		Int("workers", cfg.Pipeline.Workers).
		Str("extraction_version", string(cfg.Pipeline.ExtractionVersion)).
		Msg("pipeline_started")

	<-ctx.Done()
	log.Info().Msg("pipeline_shutting_down")
}

// resultLogger adapts zerolog to pipeline.Logger for per-stage error
// reporting during Run.
type resultLogger struct{}

func (resultLogger) Error(stage string, err error) {
	log.Error().Str("stage", stage).Err(err).Msg("pipeline_stage_error")
}

// resultSink logs the outcome of every completed turn. Nothing downstream
// currently consumes results synchronously; a future sink could forward
// Result to a metrics counter or a message broker.
type resultSink struct{}

func (resultSink) Accept(r pipeline.Result) {
	evt := log.Info()
	if r.Error != "" {
		evt = log.Error().Str("error", r.Error)
	}
	evt.
		Int("stored_propositions", len(r.StoredPropositionIDs)).
		Interface("stage_timings", r.StageTimings).
		Msg("pipeline_turn_complete")
}
