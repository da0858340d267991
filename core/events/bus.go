// Package events provides the publish/subscribe bus that carries build
// lifecycle notifications from the pipeline to the watcher and the preview
// server.
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Event names published by the build pipeline and the config holder.
const (
	BuildStarted    = "build.started"
	BuildFinished   = "build.finished"
	ModuleGenerated = "module.generated"
	ModuleSkipped   = "module.skipped"
	ModuleFailed    = "module.failed"
	ConfigReloaded  = "config.reloaded"
)

// Event represents a published event.
type Event struct {
	// Name is the event name (e.g., "module.generated").
	Name string

	// RunID identifies the build run the event belongs to, if any.
	RunID string

	// Module is the dotted output module the event concerns, if any.
	Module string

	// Err is set for failure events.
	Err error

	// Data carries an event specific payload, e.g. the build result.
	Data any
}

// Handler is a function that processes an event.
type Handler func(ctx context.Context, event Event) error

// Bus is a simple publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event.
// Supports wildcard subscriptions:
//   - "module.failed" - exact match
//   - "module.*" - all module events
//   - "*" - all events
func (b *Bus) Subscribe(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Publish delivers an event to all matching handlers, synchronously and in
// registration order (exact, then group wildcard, then global wildcard).
// Handler errors are logged and do not stop delivery.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	matched := b.match(event.Name)
	b.mu.RUnlock()

	b.logger.Debug().
		Str("event", event.Name).
		Str("module", event.Module).
		Str("run_id", event.RunID).
		Int("handlers", len(matched)).
		Msg("event emitted")

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler error")
		}
	}
}

// HasSubscribers checks if any handlers are registered for an event.
func (b *Bus) HasSubscribers(event string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.match(event)) > 0
}

func (b *Bus) match(name string) []Handler {
	var matched []Handler
	matched = append(matched, b.handlers[name]...)

	if name != "" {
		group, _, _ := strings.Cut(name, ".")
		matched = append(matched, b.handlers[group+".*"]...)
	}

	return append(matched, b.handlers["*"]...)
}
