package domain

import (
	"errors"
	"fmt"
)

// ConfigError rejects invalid parameters before any I/O happens.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}

// LoadError means the document source could not be read.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// EmbeddingError wraps an embedding provider failure.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	if e == nil {
		return ""
	}
	if e.Provider == "" {
		return fmt.Sprintf("embedding failed: %v", e.Err)
	}
	return fmt.Sprintf("embedding failed (%s): %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// StoreUnavailableError means the vector index could not be reached.
type StoreUnavailableError struct {
	Backend   string
	Operation string
	Err       error
}

func (e *StoreUnavailableError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("vector store %s unavailable during %s: %v", e.Backend, e.Operation, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// ModelInvocationError is a failed or empty language model call.
type ModelInvocationError struct {
	Model string
	Err   error
}

func (e *ModelInvocationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("model %s returned an empty response", e.Model)
	}
	return fmt.Sprintf("model %s invocation failed: %v", e.Model, e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// AuthError is a failure to obtain an identity token.
type AuthError struct {
	Audience string
	Err      error
}

func (e *AuthError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("identity token for %q: %v", e.Audience, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

type Stage string

const (
	StageLoading               Stage = "loading"
	StageSplitting             Stage = "splitting"
	StageEmbeddingAndUpserting Stage = "embedding_and_upserting"
	StageDone                  Stage = "done"
	StageFailed                Stage = "failed"
)

// IngestionError aborts a run and names the stage it failed in.
type IngestionError struct {
	Stage Stage
	Cause error
}

func (e *IngestionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("ingestion failed at %s: %v", e.Stage, e.Cause)
}

func (e *IngestionError) Unwrap() error { return e.Cause }

func IsStoreUnavailable(err error) bool {
	var target *StoreUnavailableError
	return errors.As(err, &target)
}

func IsConfig(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}
