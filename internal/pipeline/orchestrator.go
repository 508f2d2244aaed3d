package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"resemantic/internal/archive"
	"resemantic/internal/embedding"
	"resemantic/internal/extraction"
	"resemantic/internal/graphstore"
	"resemantic/internal/llm"
	"resemantic/internal/propositionalize"
)

// ExtractionVersion selects between the three-extraction (V1) and
// two-extraction (V2) variants described in the specification.
type ExtractionVersion string

const (
	V1 ExtractionVersion = "v1"
	V2 ExtractionVersion = "v2"
)

// Orchestrator sequences the seven fixed stages for one turn:
// extract_user_SU -> extract_assistant_SU (or extract_reasoning_SU in V2) ->
// propositionalize_user -> propositionalize_assistant (or _reasoning) ->
// generate_embeddings -> store_propositions -> create_edges.
//
// Every stage catches its own errors; the orchestrator never re-raises. It
// short-circuits any stage whose required input is missing because an
// earlier stage failed, and always returns a Result, never a bare error.
type Orchestrator struct {
	extractor         *extraction.Extractor
	propositionalizer *propositionalize.Propositionalizer
	embedder          *embedding.Client
	graph             *graphstore.Store
	archive           *archive.DB
	log               Logger

	version             ExtractionVersion
	contextMaxMessages  int
	topKNeighbors       int
	similarityThreshold float64
}

// Logger is the minimal structured-logging contract the orchestrator needs.
// A zerolog-backed implementation satisfies this trivially.
type Logger interface {
	Error(stage string, err error)
}

// Config bundles the tunables an Orchestrator needs beyond its collaborators.
type Config struct {
	Version             ExtractionVersion
	ContextMaxMessages  int
	TopKNeighbors       int
	SimilarityThreshold float64
}

// New builds an Orchestrator from its stage collaborators and tunables.
func New(extractor *extraction.Extractor, prop *propositionalize.Propositionalizer, embedder *embedding.Client, graph *graphstore.Store, arc *archive.DB, log Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		extractor:           extractor,
		propositionalizer:   prop,
		embedder:            embedder,
		graph:               graph,
		archive:             arc,
		log:                 log,
		version:             cfg.Version,
		contextMaxMessages:  cfg.ContextMaxMessages,
		topKNeighbors:       cfg.TopKNeighbors,
		similarityThreshold: cfg.SimilarityThreshold,
	}
}

// Run executes all seven stages for one turn. It never returns an error:
// failures are captured in Result.Error and in StageTimings for whichever
// stages did complete. A stage that fails never aborts the whole run:
// every later stage whose required input does not depend on the failed one
// still executes, so a user-side failure never prevents the assistant side
// (or vice versa) from being extracted, propositionalized, embedded, and
// stored. Result.Error reports the first stage that failed.
func (o *Orchestrator) Run(ctx context.Context, turn Turn) Result {
	res := Result{Turn: turn, StageTimings: map[string]time.Duration{}}

	var firstErr string
	recordErr := func(err error) {
		if firstErr == "" {
			firstErr = err.Error()
		}
	}

	history := toLLMTurns(turn.History)
	userCtx := llm.BuildContext(history, o.contextMaxMessages)

	// Stage 1a: extract_user_SU
	userSU, err := o.timed(&res, "extract_user_SU", func() (extraction.SemanticUnit, error) {
		return o.extractor.ExtractUser(ctx, extraction.Input{
			MessageID: turn.UserMessageID,
			Content:   turn.UserMessage,
			Timestamp: turn.Timestamp,
			Context:   userCtx,
		})
	})
	userSUOK := err == nil
	if err != nil {
		recordErr(err)
	} else {
		res.UserSemanticUnit = userSU
	}

	// Stage 1b: extract_assistant_SU (V1) or extract_reasoning_SU (V2). Its
	// input is the raw assistant message, not the user SU, so it runs
	// whether or not stage 1a succeeded.
	assistantHistory := append(append([]llm.Turn{}, history...), llm.Turn{Speaker: "user", Content: turn.UserMessage})
	assistantCtx := llm.BuildContext(assistantHistory, o.contextMaxMessages)
	assistantInput := extraction.Input{
		MessageID: turn.AssistantMessageID,
		Content:   turn.AssistantMessage,
		Timestamp: turn.Timestamp,
		Context:   assistantCtx,
	}
	var assistantSU extraction.SemanticUnit
	if o.version == V2 {
		assistantSU, err = o.timed(&res, "extract_reasoning_SU", func() (extraction.SemanticUnit, error) {
			return o.extractor.ExtractReasoning(ctx, assistantInput, turn.AssistantReasoning)
		})
	} else {
		assistantSU, err = o.timed(&res, "extract_assistant_SU", func() (extraction.SemanticUnit, error) {
			return o.extractor.ExtractAssistant(ctx, assistantInput, turn.AssistantReasoning)
		})
	}
	assistantSUOK := err == nil
	if err != nil {
		recordErr(err)
	} else {
		res.AssistantSemanticUnit = assistantSU
	}

	// Stage 2a: propositionalize_user. Short-circuits if stage 1a produced
	// no user SU to propositionalize.
	var userProps []propositionalize.Proposition
	if userSUOK {
		userProps, err = o.timedSlice(&res, "propositionalize_user", func() ([]propositionalize.Proposition, error) {
			return o.propositionalizer.Run(ctx, "propositionalize_user", userSU)
		})
		if err != nil {
			recordErr(err)
		}
	}
	res.UserPropositions = userProps

	// Stage 2b: propositionalize_assistant (or _reasoning in V2).
	// Short-circuits if stage 1b produced no assistant SU.
	assistantStage := "propositionalize_assistant"
	if o.version == V2 {
		assistantStage = "propositionalize_reasoning"
	}
	var assistantProps []propositionalize.Proposition
	if assistantSUOK {
		assistantProps, err = o.timedSlice(&res, assistantStage, func() ([]propositionalize.Proposition, error) {
			return o.propositionalizer.Run(ctx, assistantStage, assistantSU)
		})
		if err != nil {
			recordErr(err)
		}
	}
	res.AssistantPropositions = assistantProps

	// Stage 3: generate_embeddings. Runs on whatever propositions landed,
	// including zero, one, or both sides. User propositions come before
	// assistant propositions so the eventual NEXT chain and stored-id
	// ordering reflect commit order, not extraction order.
	allProps := append(append([]propositionalize.Proposition{}, userProps...), assistantProps...)
	start := time.Now()
	texts := make([]string, len(allProps))
	for i, p := range allProps {
		texts[i] = p.Content
	}
	embeddings, err := o.embedder.Embed(ctx, texts)
	res.StageTimings["generate_embeddings"] = time.Since(start)
	if err != nil {
		recordErr(classify("generate_embeddings", err))
		res.Error = firstErr
		return res
	}

	// Stage 4: store_propositions. Commit order is archive-message ->
	// archive-SU -> graph-prop -> archive-prop per proposition. A failure
	// before a proposition's graph write leaves archived messages and SUs
	// with no graph node; a failure between a proposition's graph write and
	// its archive write leaves that one graph node without its archive
	// proposition row. Messages are always archived
	// since they're known-good inputs regardless of extraction outcome; an
	// SU is archived only for the side that actually succeeded.
	start = time.Now()
	storedIDs, storeErr := o.storePropositions(ctx, turn, userSU, userSUOK, assistantSU, assistantSUOK, allProps, embeddings)
	res.StageTimings["store_propositions"] = time.Since(start)
	res.StoredPropositionIDs = storedIDs
	if storeErr != nil {
		recordErr(storeErr)
	}

	// Stage 5: create_edges. A zero- or partial-length id list still runs
	// through here; it just produces fewer (or no) edges.
	start = time.Now()
	edgeErr := o.createEdges(ctx, storedIDs, embeddings[:len(storedIDs)])
	res.StageTimings["create_edges"] = time.Since(start)
	if edgeErr != nil {
		recordErr(edgeErr)
	}

	res.Error = firstErr
	return res
}

func (o *Orchestrator) storePropositions(ctx context.Context, turn Turn, userSU extraction.SemanticUnit, userSUOK bool, assistantSU extraction.SemanticUnit, assistantSUOK bool, props []propositionalize.Proposition, embeddings [][]float32) ([]string, error) {
	if err := o.archive.StoreMessage(ctx, archive.Message{ID: turn.UserMessageID, Role: "user", Content: turn.UserMessage, Timestamp: turn.Timestamp}); err != nil {
		return nil, err
	}
	if err := o.archive.StoreMessage(ctx, archive.Message{ID: turn.AssistantMessageID, Role: "assistant", Content: turn.AssistantMessage, Timestamp: turn.Timestamp}); err != nil {
		return nil, err
	}
	if turn.AssistantReasoning != "" {
		if err := o.archive.StoreMessage(ctx, archive.Message{
			ID:        turn.AssistantMessageID + "_reasoning",
			Role:      "assistant_reasoning",
			Content:   turn.AssistantReasoning,
			Timestamp: turn.Timestamp,
		}); err != nil {
			return nil, err
		}
	}
	// An SU is archived only for the side whose extraction actually
	// succeeded; messages above are archived unconditionally since they
	// never depend on extraction succeeding.
	if userSUOK {
		if err := o.archive.StoreSemanticUnit(ctx, toArchiveUnit(userSU, turn.UserMessageID)); err != nil {
			return nil, err
		}
	}
	if assistantSUOK {
		if err := o.archive.StoreSemanticUnit(ctx, toArchiveUnit(assistantSU, turn.AssistantMessageID)); err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(props))
	for i, p := range props {
		id := uuid.NewString()
		speaker := "user"
		if p.SemanticUnitID == turn.AssistantMessageID {
			speaker = "assistant"
		}
		gp := graphstore.Proposition{
			ID:            id,
			Content:       p.Content,
			Embedding:     embeddings[i],
			Speaker:       speaker,
			Timestamp:     turn.Timestamp,
			BlockMetadata: p.BlockMetadata,
		}
		if err := o.graph.CreateProposition(ctx, gp); err != nil {
			return ids, err
		}
		if err := o.archive.StoreProposition(ctx, archive.PropositionArchive{
			ID:             id,
			SemanticUnitID: p.SemanticUnitID,
			Content:        p.Content,
			Type:           p.Type,
			Certainty:      p.Certainty,
			Concepts:       p.Concepts,
			BlockMetadata:  p.BlockMetadata,
		}); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// createEdges builds the NEXT temporal chain over stored proposition ids in
// commit order, then the COHERENT similarity edges via vector kNN. The "+1"
// on TopKNeighbors compensates for a proposition always matching itself in
// its own neighborhood search; self-matches are filtered out explicitly.
func (o *Orchestrator) createEdges(ctx context.Context, ids []string, embeddings [][]float32) error {
	for i := 0; i+1 < len(ids); i++ {
		if err := o.graph.CreateTemporalEdge(ctx, ids[i], ids[i+1]); err != nil {
			return err
		}
	}
	for i, id := range ids {
		neighbors, err := o.graph.VectorSearch(ctx, embeddings[i], o.topKNeighbors+1, o.similarityThreshold)
		if err != nil {
			return err
		}
		for _, n := range neighbors {
			if n.ID == id {
				continue
			}
			if err := o.graph.CreateSemanticEdge(ctx, id, n.ID, n.Similarity, graphstore.CreatedByExtraction); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) timed(res *Result, stage string, fn func() (extraction.SemanticUnit, error)) (extraction.SemanticUnit, error) {
	start := time.Now()
	su, err := fn()
	res.StageTimings[stage] = time.Since(start)
	if err != nil {
		o.logError(stage, err)
		return extraction.SemanticUnit{}, classify(stage, err)
	}
	return su, nil
}

func (o *Orchestrator) timedSlice(res *Result, stage string, fn func() ([]propositionalize.Proposition, error)) ([]propositionalize.Proposition, error) {
	start := time.Now()
	props, err := fn()
	res.StageTimings[stage] = time.Since(start)
	if err != nil {
		o.logError(stage, err)
		return nil, classify(stage, err)
	}
	return props, nil
}

func (o *Orchestrator) logError(stage string, err error) {
	if o.log != nil {
		o.log.Error(stage, err)
	}
}

func classify(stage string, err error) error {
	if _, ok := llm.AsError(err); ok {
		return err
	}
	return llm.NewError(llm.KindStoreTransport, stage, err)
}

func toLLMTurns(history []HistoryMessage) []llm.Turn {
	out := make([]llm.Turn, len(history))
	for i, h := range history {
		out[i] = llm.Turn{Speaker: h.Role, Content: h.Content}
	}
	return out
}

func toArchiveUnit(su extraction.SemanticUnit, messageID string) archive.SemanticUnit {
	return archive.SemanticUnit{
		ID:                  su.UnitID,
		MessageID:           messageID,
		Content:             su.Content,
		Type:                su.Type,
		NarrativeRole:       su.NarrativeRole,
		Concepts:            su.Concepts,
		Entities:            su.Entities,
		Decisions:           su.Decisions,
		Certainty:           su.Certainty,
		ContextDependencies: su.ContextDependencies,
		Impact:              su.Impact,
		Relevance:           su.Relevance,
		BlockMetadata:       su.BlockMetadata,
	}
}
