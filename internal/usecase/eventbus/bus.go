// Package eventbus delivers run progress events to in-process subscribers.
package eventbus

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"tutor-ai/internal/domain"
)

type subscription struct {
	id      uint64
	runID   string // empty matches every run
	handler domain.EventHandler
}

func (s subscription) matches(e domain.Event) bool {
	return s.runID == "" || s.runID == e.RunID
}

// Bus is an in-process, goroutine-safe event bus.
type Bus struct {
	mu      sync.RWMutex
	typed   map[domain.EventType][]subscription
	allSubs []subscription
	nextID  atomic.Uint64
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		typed:  make(map[domain.EventType][]subscription),
		logger: logger,
	}
}

// Publish fans an event out to matching typed, run-scoped and all-event
// subscribers. Each handler runs in its own goroutine; a panicking handler
// is recovered and logged.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	targets := make([]subscription, 0, len(b.typed[event.Type])+len(b.allSubs))
	targets = append(targets, b.typed[event.Type]...)
	targets = append(targets, b.allSubs...)
	b.mu.RUnlock()

	for _, sub := range targets {
		if sub.matches(event) {
			b.dispatch(ctx, event, sub)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, event domain.Event, sub subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked",
					"event", string(event.Type),
					"run_id", event.RunID,
					"panic", r,
				)
			}
		}()
		sub.handler(ctx, event)
	}()
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := subscription{id: b.nextID.Add(1), handler: handler}

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.typed[eventType] = remove(b.typed[eventType], sub.id)
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.subscribeAll(subscription{id: b.nextID.Add(1), handler: handler})
}

// SubscribeRun registers a handler that receives every event of one run.
// Returns an unsubscribe function.
func (b *Bus) SubscribeRun(runID string, handler domain.EventHandler) func() {
	return b.subscribeAll(subscription{id: b.nextID.Add(1), runID: runID, handler: handler})
}

func (b *Bus) subscribeAll(sub subscription) func() {
	b.mu.Lock()
	b.allSubs = append(b.allSubs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.allSubs = remove(b.allSubs, sub.id)
	}
}

func remove(subs []subscription, id uint64) []subscription {
	return slices.DeleteFunc(slices.Clone(subs), func(s subscription) bool { return s.id == id })
}

// Close prevents new publishes and waits for all in-flight handlers to finish.
// Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}
