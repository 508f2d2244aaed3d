package llm

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures; Retryable reports which kinds are
// candidates for a retry.
type Kind string

const (
	// KindLLMOutput marks a model response that could not be parsed into the
	// expected JSON shape after fence stripping. Never retried: if the model
	// produced garbage once, asking it again with the same prompt rarely
	// helps, and the original spec treats this as a terminal stage failure.
	KindLLMOutput Kind = "llm_output"
	// KindLLMTransport marks a network/API failure talking to the model
	// provider (timeout, 5xx, connection reset). Retryable reports true; the
	// orchestrator itself does not retry a failed stage.
	KindLLMTransport Kind = "llm_transport"
	// KindStoreTransport marks a network/connection failure talking to the
	// graph store or the archive. Retryable reports true; only the graph
	// store's statement execution retries (see Store.execWithRetry).
	KindStoreTransport Kind = "store_transport"
	// KindSchemaValidation marks output that parsed as JSON but violates a
	// structural rule (e.g. a decision block missing its reason). Never
	// retried.
	KindSchemaValidation Kind = "schema_validation"
	// KindInvariant marks a violation of an internal invariant the pipeline
	// itself is responsible for upholding (e.g. mismatched block_metadata
	// between a semantic unit and its propositions). Never retried.
	KindInvariant Kind = "invariant_violation"
)

// Retryable reports whether a failure of this kind should be retried with
// bounded exponential backoff.
func (k Kind) Retryable() bool {
	switch k {
	case KindLLMTransport, KindStoreTransport:
		return true
	default:
		return false
	}
}

// Error is a classified pipeline error. Stages never panic and never return a
// bare error; every failure that can reach a caller is wrapped in Error so
// the orchestrator can log it, record it, and move on.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with the given kind and stage name.
func NewError(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// AsError extracts a *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
