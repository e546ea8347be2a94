package server

import (
	"context"
	"fmt"
)

// Pinger is the interface implemented by any dependency that can report its
// own reachability. Each implementation must return nil when the dependency
// is healthy and a descriptive error otherwise.
// Implementations must be safe to call from multiple goroutines.
//
// index.Client and *provider.Pinger satisfy it directly.
type Pinger interface {
	// Ping checks whether the dependency is reachable within the given context.
	// Returns nil on success, a descriptive error on failure.
	Ping(ctx context.Context) error

	// Name returns a short human-readable label used in readiness responses
	// (e.g. "ollama", "qdrant").
	Name() string
}

// funcPinger adapts a probe function to the Pinger interface.
type funcPinger struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncPinger returns a Pinger labelled name that runs fn. It is used for
// dependencies without a Name method, such as the session store.
func NewFuncPinger(name string, fn func(ctx context.Context) error) Pinger {
	return &funcPinger{name: name, fn: fn}
}

// Name returns the dependency label used in readiness responses.
func (p *funcPinger) Name() string { return p.name }

// Ping runs the probe function.
func (p *funcPinger) Ping(ctx context.Context) error {
	if p.fn == nil {
		return fmt.Errorf("%s: no probe configured", p.name)
	}
	return p.fn(ctx)
}
