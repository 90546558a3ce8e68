// Package knowledge answers informational queries for UltimateBot.
//
// It provides a typed local knowledge base loaded from static JSON, a Wikipedia summary
// client, and a Chain that consults several sources in order. Every source implements
// Lookup and reports failures as *LookupError so callers can treat them uniformly.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Lookup answers a free-text query with a short summary.
type Lookup interface {
	Lookup(ctx context.Context, query string) (string, error)
}

// LookupFunc adapts a plain function to the Lookup interface.
type LookupFunc func(ctx context.Context, query string) (string, error)

// Lookup calls f(ctx, query).
func (f LookupFunc) Lookup(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// ErrorKind classifies why a lookup could not answer.
type ErrorKind string

const (
	// KindNotFound means no source had an answer for the query.
	KindNotFound ErrorKind = "not_found"
	// KindTimeout means the source did not answer before the deadline.
	KindTimeout ErrorKind = "timeout"
	// KindMalformed means the query or the source's answer could not be used.
	KindMalformed ErrorKind = "malformed"
	// KindUnavailable means the source could not be reached or returned a server error.
	KindUnavailable ErrorKind = "unavailable"
)

// Sentinel causes wrapped by LookupError.
var (
	ErrNoAnswer       = errors.New("no answer found")
	ErrEmptyQuery     = errors.New("query is empty")
	ErrAmbiguousQuery = errors.New("query matches a disambiguation page")
)

// LookupError reports a failed lookup. It is the only error kind a Lookup is expected to return;
// anything else is treated as an internal failure by callers.
type LookupError struct {
	Kind   ErrorKind
	Source string
	Query  string
	Err    error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s lookup %s for %q: %v", e.Source, e.Kind, e.Query, e.Err)
	}
	return fmt.Sprintf("%s lookup %s for %q", e.Source, e.Kind, e.Query)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// NewLookupError builds a LookupError, inferring KindTimeout from deadline and network timeout causes.
func NewLookupError(kind ErrorKind, source, query string, err error) *LookupError {
	if isTimeout(err) {
		kind = KindTimeout
	}
	return &LookupError{Kind: kind, Source: source, Query: query, Err: err}
}

// KindOf returns the ErrorKind of err if it wraps a *LookupError.
func KindOf(err error) (ErrorKind, bool) {
	var lerr *LookupError
	if errors.As(err, &lerr) {
		return lerr.Kind, true
	}
	return "", false
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
