// Package listener keeps generated triggers in sync with schema
// changes. Migration tooling publishes an Event after altering a
// table's structure; the Regenerator looks the table up in the
// configuration store and reinstalls its trigger from a fresh
// introspection.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pgchrono/pgchrono/pkg/catalog"
	"github.com/pgchrono/pgchrono/pkg/generator"
	"github.com/pgchrono/pgchrono/pkg/temporal"
)

// Event announces a structural change to a relation: a column added,
// dropped, renamed, or retyped. Publishers fire it after the change is
// committed.
type Event struct {
	Relation catalog.Relation
}

// Handler reacts to one schema-change event.
type Handler func(ctx context.Context, ev Event) error

// Bus is an in-process schema-change dispatcher. Handlers run
// synchronously in subscription order; the first error aborts the
// publish and is returned to the publisher.
type Bus struct {
	mu       sync.Mutex
	handlers map[uuid.UUID]Handler
	order    []uuid.UUID
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[uuid.UUID]Handler)}
}

// Subscribe registers a handler and returns its subscription token.
func (b *Bus) Subscribe(h Handler) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	token := uuid.New()
	b.handlers[token] = h
	b.order = append(b.order, token)
	return token
}

// Unsubscribe removes a subscription. Unknown tokens are ignored.
func (b *Bus) Unsubscribe(token uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[token]; !ok {
		return
	}
	delete(b.handlers, token)
	for i, t := range b.order {
		if t == token {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers ev to every subscribed handler, in subscription
// order, on the caller's goroutine.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.order))
	for _, t := range b.order {
		handlers = append(handlers, b.handlers[t])
	}
	b.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Regenerator reinstalls a table's generated trigger whenever its
// schema changes. Tables with no stored configuration are ignored.
type Regenerator struct {
	db    catalog.Execer
	store *temporal.Store
	log   *slog.Logger
}

// NewRegenerator returns a Regenerator reading configuration from
// store and installing through db. A nil log means slog.Default.
func NewRegenerator(db catalog.Execer, store *temporal.Store, log *slog.Logger) *Regenerator {
	if log == nil {
		log = slog.Default()
	}
	return &Regenerator{db: db, store: store, log: log}
}

// Attach subscribes the regenerator to a bus and returns the
// subscription token.
func (r *Regenerator) Attach(bus *Bus) uuid.UUID {
	return bus.Subscribe(r.Handle)
}

// Handle regenerates the trigger for the event's relation. Compilation
// is deterministic, so republishing the same event reinstalls
// byte-identical SQL.
func (r *Regenerator) Handle(ctx context.Context, ev Event) error {
	cfg, err := r.store.Get(ctx, ev.Relation)
	if err != nil {
		return err
	}
	if cfg == nil {
		r.log.DebugContext(ctx, "schema change on unconfigured relation, nothing to regenerate",
			"relation", ev.Relation.String())
		return nil
	}
	if err := generator.Install(ctx, r.db, cfg.Request()); err != nil {
		return fmt.Errorf("regenerating trigger for %s: %w", ev.Relation, err)
	}
	r.log.InfoContext(ctx, "regenerated versioning trigger", "relation", ev.Relation.String())
	return nil
}
