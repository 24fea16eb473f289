// Package apperrors defines the stable machine-readable error kinds used
// across the ingestion pipeline and the conversational engine.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is a stable machine-readable error tag. Kinds are part of the
// external contract: the conversational engine surfaces them verbatim in
// the `error` field of a ChatResponse.
type Kind string

const (
	KindConfigMissing  Kind = "config_missing"
	KindDBUnavailable  Kind = "db_unavailable"
	KindDBQueryFailed  Kind = "db_query_failed"
	KindLLMUnavailable Kind = "llm_unavailable"
	KindLLMMalformed   Kind = "llm_malformed"
	KindSQLUnsafe      Kind = "sql_unsafe"
	KindSQLExecFailed  Kind = "sql_exec_failed"
	KindCacheDown      Kind = "cache_unavailable"
	KindGraphStoreDown Kind = "graph_store_unavailable"
)

// Error carries a kind alongside a wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given kind and message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates an Error wrapping a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind carried by err, or the empty string when err is
// not an *Error anywhere in its chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
