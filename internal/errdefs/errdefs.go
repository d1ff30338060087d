// Package errdefs defines the error taxonomy shared by the retrieval core.
//
// Every failure surfaced by the chunker, embedder, vector store, loader and
// generator is one of the types below, so callers (pipelines, workflow
// activities, trigger handlers) can decide retryability and build
// structured results without string matching.
//
// Retry policy:
//
//	ConfigurationError      fatal, never retried
//	SourceReadError         fatal for that document
//	SchemaMismatchError     fatal, operator must re-index
//	EmbeddingServiceError   transient, safe to retry
//	StorageError            transient, safe to retry
//	GenerationServiceError  transient, safe to retry
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind values are stable identifiers used in results, metrics labels and as
// Temporal application error types.
const (
	KindConfiguration     = "ConfigurationError"
	KindSourceRead        = "SourceReadError"
	KindEmbeddingService  = "EmbeddingServiceError"
	KindStorage           = "StorageError"
	KindGenerationService = "GenerationServiceError"
	KindSchemaMismatch    = "SchemaMismatchError"
	KindUnknown           = "InternalError"
)

// ConfigurationError reports bad parameters or a dimension mismatch between
// configured components.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Configf builds a ConfigurationError for field with a formatted reason.
func Configf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SourceReadError reports a missing, unreadable or corrupt source document.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("reading source %q: %v", e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// EmbeddingServiceError reports a failure of the embedding backend.
type EmbeddingServiceError struct {
	Model string
	Err   error
}

func (e *EmbeddingServiceError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("embedding service: %v", e.Err)
	}
	return fmt.Sprintf("embedding service (%s): %v", e.Model, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// StorageError reports a vector store failure. FailedIDs names the point ids
// that were not written when the store can tell; an empty slice on an upsert
// means the whole batch must be considered failed.
type StorageError struct {
	Op         string
	Collection string
	FailedIDs  []string
	Err        error
}

func (e *StorageError) Error() string {
	var b strings.Builder
	b.WriteString("storage")
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	if e.Collection != "" {
		fmt.Fprintf(&b, " on %q", e.Collection)
	}
	if n := len(e.FailedIDs); n > 0 {
		fmt.Fprintf(&b, " (%d ids failed)", n)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *StorageError) Unwrap() error { return e.Err }

// GenerationServiceError reports a failure of the answer generation backend.
type GenerationServiceError struct {
	Model string
	Err   error
}

func (e *GenerationServiceError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("generation service: %v", e.Err)
	}
	return fmt.Sprintf("generation service (%s): %v", e.Model, e.Err)
}

func (e *GenerationServiceError) Unwrap() error { return e.Err }

// SchemaMismatchError reports an existing collection whose vector schema
// differs from the configured one.
type SchemaMismatchError struct {
	Collection    string
	WantDimension int
	GotDimension  int
	Detail        string
}

func (e *SchemaMismatchError) Error() string {
	msg := fmt.Sprintf("collection %q schema mismatch: want dimension %d, have %d",
		e.Collection, e.WantDimension, e.GotDimension)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// RemoteError carries a kind decoded from across a process boundary, such as
// a workflow failure or a bus reply, where the original type is lost.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// FromKind rebuilds an error that KindOf maps back to kind.
func FromKind(kind, message string) error {
	if kind == "" {
		kind = KindUnknown
	}
	return &RemoteError{Kind: kind, Message: message}
}

// KindOf returns the taxonomy kind of the first typed error in err's chain.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var (
		cfgErr    *ConfigurationError
		srcErr    *SourceReadError
		embErr    *EmbeddingServiceError
		storeErr  *StorageError
		genErr    *GenerationServiceError
		schemaErr *SchemaMismatchError
		remoteErr *RemoteError
	)
	switch {
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &srcErr):
		return KindSourceRead
	case errors.As(err, &schemaErr):
		return KindSchemaMismatch
	case errors.As(err, &embErr):
		return KindEmbeddingService
	case errors.As(err, &storeErr):
		return KindStorage
	case errors.As(err, &genErr):
		return KindGenerationService
	case errors.As(err, &remoteErr):
		return remoteErr.Kind
	default:
		return KindUnknown
	}
}

// Retryable reports whether repeating the failed operation with the same
// input may succeed. Untyped errors are treated as transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return RetryableKind(KindOf(err))
}

// RetryableKind is Retryable for an already extracted kind.
func RetryableKind(kind string) bool {
	switch kind {
	case KindConfiguration, KindSourceRead, KindSchemaMismatch:
		return false
	default:
		return true
	}
}

// NonRetryableKinds lists the kinds an orchestrator must not retry.
func NonRetryableKinds() []string {
	return []string{KindConfiguration, KindSourceRead, KindSchemaMismatch}
}
