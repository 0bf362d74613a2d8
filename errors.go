package swarm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoBackends indicates that Initialize was called without any backend configuration.
	// An orchestrator cannot run tasks without at least one registered backend.
	ErrNoBackends = errors.New("no backends configured")

	// ErrEmptyCatalog indicates that the strategy catalog has no entries.
	// This is a fatal startup condition, never a per-task error.
	ErrEmptyCatalog = errors.New("strategy catalog is empty")

	// ErrAlreadyInitialized indicates a second call to Initialize.
	ErrAlreadyInitialized = errors.New("orchestrator already initialized")

	// ErrNotInitialized indicates task submission before Initialize.
	ErrNotInitialized = errors.New("orchestrator not initialized")

	// ErrBackendNotFound indicates that a task names a backend identifier
	// that is not present in the registry.
	ErrBackendNotFound = errors.New("backend not found")

	// ErrUnknownProvider indicates a BackendConfig with an unrecognized provider.
	ErrUnknownProvider = errors.New("unknown backend provider")

	// ErrMissingAPIKey indicates a backend configuration without credentials.
	ErrMissingAPIKey = errors.New("api key is required")
)

// GenerationError wraps a failure reported by a backend during Generate.
// The backend identifier is kept so attempt histories can attribute failures.
type GenerationError struct {
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("backend %s: generation failed: %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// classifyFailure distinguishes per-attempt timeout failures from ordinary
// generation failures. Caller-initiated cancellation is detected separately
// by the engine from the outer context, so it never reaches this path.
func classifyFailure(err error) FailureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureGeneration
}
