package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// HandlerFunc is a function that handles an event.
type HandlerFunc func(ctx context.Context, event Event) error

// EventBus is an asynchronous publish-subscribe bus. Handlers run on
// their own goroutines; a panicking handler is logged and does not take
// down the publisher.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]handlerEntry
	stopped  bool
	wg       sync.WaitGroup
}

type handlerEntry struct {
	name    string
	handler HandlerFunc
}

// NewEventBus creates a new EventBus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]handlerEntry),
	}
}

// Subscribe registers a handler for one event type under name.
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handlerEntry{
		name:    name,
		handler: handler,
	})

	log.Debug().
		Str("event", string(eventType)).
		Str("handler", name).
		Msg("subscribed to event")
}

// SubscribeAll registers the same handler for several event types.
func (eb *EventBus) SubscribeAll(eventTypes []EventType, name string, handler HandlerFunc) {
	for _, t := range eventTypes {
		eb.Subscribe(t, name, handler)
	}
}

// Unsubscribe removes a named handler from a specific event type.
func (eb *EventBus) Unsubscribe(eventType EventType, name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	handlers, exists := eb.handlers[eventType]
	if !exists {
		return
	}

	filtered := make([]handlerEntry, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	eb.handlers[eventType] = filtered
}

// Emit publishes an event to all subscribed handlers asynchronously.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.stopped {
		return
	}

	handlers := eb.handlers[event.Type]
	if len(handlers) == 0 {
		return
	}

	log.Trace().
		Str("event", string(event.Type)).
		Str("source", event.Source).
		Int("handlers", len(handlers)).
		Msg("emitting event")

	for _, h := range handlers {
		h := h
		eb.wg.Add(1)
		go func() {
			defer eb.wg.Done()
			eb.invoke(ctx, h, event)
		}()
	}
}

// EmitSync publishes an event and waits for all handlers to complete.
// Returns the first error encountered, if any.
func (eb *EventBus) EmitSync(ctx context.Context, event Event) error {
	eb.mu.RLock()
	if eb.stopped {
		eb.mu.RUnlock()
		return nil
	}
	handlers := append([]handlerEntry(nil), eb.handlers[event.Type]...)
	eb.mu.RUnlock()

	var (
		firstErr error
		errOnce  sync.Once
		wg       sync.WaitGroup
	)
	for _, h := range handlers {
		h := h
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := eb.invoke(ctx, h, event); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}()
	}

	wg.Wait()
	return firstErr
}

func (eb *EventBus) invoke(ctx context.Context, h handlerEntry, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", string(event.Type)).
				Str("handler", h.name).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	if err = h.handler(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event", string(event.Type)).
			Str("handler", h.name).
			Msg("handler returned error")
	}
	return err
}

// Stop stops accepting new events and waits for in-flight handlers.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	if eb.stopped {
		eb.mu.Unlock()
		return
	}
	eb.stopped = true
	eb.mu.Unlock()

	eb.wg.Wait()
	log.Info().Msg("event bus stopped")
}

// HandlerCount returns the number of handlers registered for a specific event type.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}
