package model

import "fmt"

// ProviderErrorKind classifies a failure from an LLM or embedding provider.
type ProviderErrorKind string

const (
	ProviderRateLimited ProviderErrorKind = "rate_limited"
	ProviderTimeout     ProviderErrorKind = "timeout"
	ProviderInvalidKey  ProviderErrorKind = "invalid_key"
	ProviderParseError  ProviderErrorKind = "parse_error"
	ProviderAPIError    ProviderErrorKind = "api_error"
)

// ProviderError wraps a failure from an external LLM/embedding provider.
type ProviderError struct {
	Kind ProviderErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error [%s]: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StorageErrorKind classifies a failure from the relational or vector store.
type StorageErrorKind string

const (
	StorageConstraintViolation StorageErrorKind = "constraint_violation"
	StorageNotFound            StorageErrorKind = "not_found"
	StorageConnection          StorageErrorKind = "connection"
	StorageMigration           StorageErrorKind = "migration"
)

// StorageError wraps a failure from a storage capability.
type StorageError struct {
	Kind StorageErrorKind
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [%s]: %v", e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineErrorKind classifies a failure in the message pipeline.
type PipelineErrorKind string

const (
	PipelineAnalysisParse        PipelineErrorKind = "analysis_parse"
	PipelineEmbeddingDimMismatch PipelineErrorKind = "embedding_dim_mismatch"
	PipelineUnsupportedLanguage  PipelineErrorKind = "unsupported_language"
)

// PipelineError is non-fatal: the affected message is left unanalyzed for
// later retry by the task manager's backlog task.
type PipelineError struct {
	Kind PipelineErrorKind
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error [%s]: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// OperationErrorKind classifies why an Operation terminated abnormally.
type OperationErrorKind string

const (
	OperationCancelledKind      OperationErrorKind = "cancelled"
	OperationTimedOut           OperationErrorKind = "timed_out"
	OperationDependencyFailed   OperationErrorKind = "dependency_failed"
	OperationInvalidTransition  OperationErrorKind = "invalid_transition"
)

// OperationError is recorded on the operation and surfaced as a Failed or
// Cancelled event; it is never panicked on.
type OperationError struct {
	Kind OperationErrorKind
	Err  error
}

func (e *OperationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("operation error [%s]", e.Kind)
	}
	return fmt.Sprintf("operation error [%s]: %v", e.Kind, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// HookErrorKind classifies why a hook invocation failed.
type HookErrorKind string

const (
	HookTimeout     HookErrorKind = "timeout"
	HookNonzeroExit HookErrorKind = "nonzero_exit"
	HookSpawnFailed HookErrorKind = "spawn_failed"
)

// HookError is respected per the hook's on_failure policy by the caller.
type HookError struct {
	Kind HookErrorKind
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook error [%s]: %v", e.Kind, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// DocDriftErrorKind classifies a failure applying a documentation draft.
type DocDriftErrorKind string

const (
	DocDriftChecksumMismatch DocDriftErrorKind = "checksum_mismatch"
)

// DocDriftError means the draft was rejected at apply time and the task
// was re-queued.
type DocDriftError struct {
	Kind DocDriftErrorKind
	Err  error
}

func (e *DocDriftError) Error() string {
	return fmt.Sprintf("doc drift error [%s]: %v", e.Kind, e.Err)
}

func (e *DocDriftError) Unwrap() error { return e.Err }

// UserError is the stable, user-visible failure shape: a message plus one
// of the codes below. No code in this module constructs or emits one.
type UserError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *UserError) Error() string { return fmt.Sprintf("%s (%s)", e.Message, e.Code) }

// Stable error codes referenced by §7/§8.
const (
	CodeOperationFailed     = "operation_failed"
	CodeToolBlockedByHook   = "tool_blocked_by_hook"
	CodeAnalysisUnavailable = "analysis_unavailable"
)
