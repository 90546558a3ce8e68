package knowledge

import (
	"context"
	"errors"
	"log/slog"
)

// Chain consults lookups in order and returns the first answer.
type Chain []Lookup

// NewChain drops nil lookups.
func NewChain(lookups ...Lookup) Chain {
	var c Chain
	for _, l := range lookups {
		if l != nil {
			c = append(c, l)
		}
	}
	return c
}

// Lookup returns the first successful answer. A *LookupError moves on to the next source;
// any other error is returned immediately. When every source fails, the last LookupError
// is returned.
func (c Chain) Lookup(ctx context.Context, query string) (string, error) {
	if len(c) == 0 {
		return "", NewLookupError(KindNotFound, "chain", query, ErrNoAnswer)
	}
	var last error
	for i, l := range c {
		answer, err := l.Lookup(ctx, query)
		if err == nil {
			return answer, nil
		}
		var lerr *LookupError
		if !errors.As(err, &lerr) {
			return "", err
		}
		slog.Debug("Chain.Lookup: source could not answer", "index", i, "source", lerr.Source, "kind", lerr.Kind)
		last = err
		if lerr.Kind == KindTimeout && ctx.Err() != nil {
			break
		}
	}
	return "", last
}
