// Package aggregate provides the event-sourced aggregate base every domain
// aggregate embeds: typed event routing, event raising, and replay from
// history. Grounded on the teacher's internal/eventstore.BaseAggregate
// (id/version/uncommittedEvents bookkeeping, RaiseEvent), generalized from
// BaseAggregate's untyped map[string]any event data to the messaging
// package's typed Event values routed by reflect.Type instead of by a
// switch over EventType strings.
package aggregate

import (
	"reflect"

	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/rderrors"
)

// Version sentinels matching the stream store's ExpectedVersion
// conventions (streamstore.NoStream, streamstore.Any): NoStreamVersion
// marks an aggregate that has never been saved. EmptyStreamVersion has the
// same value as streamstore.Any and nothing in this module sets it; a
// repository saving an aggregate at that version passes it to the store as
// Any, so no concurrency check is made.
const (
	NoStreamVersion    int64 = -1
	EmptyStreamVersion int64 = -2
)

// Aggregate is the contract a repository operates on: identity, the version
// to use as the optimistic-concurrency check on save, and the pending
// events raised since it was loaded.
type Aggregate interface {
	AggregateID() string
	ExpectedVersion() int64
	TakeEvents() []messaging.Event
	RestoreFromEvents(events []messaging.Event)
	SetVersion(v int64)
}

// SnapshotSource is optionally implemented by an aggregate whose state is
// large enough that replaying its full history on every load is wasteful.
// A repository that knows about this interface may use it to skip ahead
// from a stored snapshot instead of reading from the start of the stream.
type SnapshotSource interface {
	TakeSnapshot() (any, error)
	RestoreFromSnapshot(snapshot any, version int64) error
}

func eventType(e messaging.Event) reflect.Type {
	t := reflect.TypeOf(e)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// Base is embedded by every event-sourced aggregate. It owns the routing
// table from concrete event type to apply function, the version at load
// time, and the list of events raised but not yet taken by a repository.
type Base struct {
	id      string
	version int64
	routes  map[reflect.Type]func(messaging.Event)
	pending []messaging.Event
}

// NewBase returns a Base for a brand-new aggregate identified by id.
func NewBase(id string) Base {
	return Base{
		id:      id,
		version: NoStreamVersion,
		routes:  make(map[reflect.Type]func(messaging.Event)),
	}
}

func (b *Base) AggregateID() string      { return b.id }
func (b *Base) ExpectedVersion() int64   { return b.version }

// SetVersion is called by the repository after a successful save to record
// the stream's new version as this aggregate's load-time baseline.
func (b *Base) SetVersion(v int64) { b.version = v }

// Register installs apply as the handler for event type E. Registering the
// same concrete type twice is a bug in the aggregate's constructor and
// fails loudly rather than silently overwriting the first route.
func Register[E messaging.Event](b *Base, apply func(E)) error {
	if b.routes == nil {
		b.routes = make(map[reflect.Type]func(messaging.Event))
	}
	var zero E
	t := reflect.TypeOf(zero)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if _, exists := b.routes[t]; exists {
		return rderrors.DuplicateRoute("aggregate.Register: " + t.Name())
	}
	b.routes[t] = func(e messaging.Event) {
		typed, ok := e.(E)
		if !ok {
			return
		}
		apply(typed)
	}
	return nil
}

// Raise applies event to the aggregate's state via its registered route
// (if any — an unrouted event is still recorded, matching the source's
// tolerance for "write-only" events with no state projection) and appends
// it to the pending list a repository will persist.
func (b *Base) Raise(event messaging.Event) {
	if route, ok := b.routes[eventType(event)]; ok {
		route(event)
	}
	b.pending = append(b.pending, event)
}

// RestoreFromEvents replays history events in order, applying each through
// its registered route and advancing the aggregate's version, without
// adding them to the pending list: this is how a repository rebuilds an
// aggregate's state from a stream read, as opposed to Raise which is how a
// command handler changes state going forward.
func (b *Base) RestoreFromEvents(events []messaging.Event) {
	for _, event := range events {
		if route, ok := b.routes[eventType(event)]; ok {
			route(event)
		}
		b.version++
	}
}

// TakeEvents returns the events raised since the last TakeEvents call (or
// since construction) and clears the pending list.
func (b *Base) TakeEvents() []messaging.Event {
	events := b.pending
	b.pending = nil
	return events
}

// PeekEvents returns a copy of the pending event list without clearing it,
// for callers (tests, CorrelatedRepository) that need to inspect what a
// command raised without consuming it.
func (b *Base) PeekEvents() []messaging.Event {
	return append([]messaging.Event(nil), b.pending...)
}
