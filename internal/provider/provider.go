// Package provider defines the pluggable explanation backend for the
// explain_command operation. The daemon never talks to a model directly;
// anything satisfying Explainer can be registered, and the bundled rule
// explainer keeps the operation useful with no external process at all.
package provider

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds a single explanation call.
const DefaultTimeout = 10 * time.Second

// ErrNoExplainer is returned when no explainer is configured or available.
var ErrNoExplainer = errors.New("no explainer configured")

// Explainer turns a shell command line into a human-readable explanation.
type Explainer interface {
	// Name identifies the backend, e.g. "rules".
	Name() string

	// Available reports whether the backend can serve requests right now.
	Available() bool

	// Explain describes what the command does. Implementations should
	// honor ctx cancellation.
	Explain(ctx context.Context, command string) (string, error)
}

// Registry holds the configured explainers in preference order.
type Registry struct {
	explainers []Explainer
}

// NewRegistry creates a Registry. With no arguments the registry is empty
// and Explain returns ErrNoExplainer.
func NewRegistry(explainers ...Explainer) *Registry {
	return &Registry{explainers: explainers}
}

// Register appends an explainer with lowest preference.
func (r *Registry) Register(e Explainer) {
	r.explainers = append(r.explainers, e)
}

// Explain asks the first available explainer. Unavailable backends are
// skipped; an empty or fully-unavailable registry yields ErrNoExplainer.
func (r *Registry) Explain(ctx context.Context, command string) (string, error) {
	for _, e := range r.explainers {
		if !e.Available() {
			continue
		}
		return e.Explain(ctx, command)
	}
	return "", ErrNoExplainer
}
