package repository

import (
	"context"

	"github.com/reactivedomain/reactivedomain/aggregate"
	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/rderrors"
)

// EventPeeker is implemented by aggregate.Base (via PeekEvents) and lets
// CorrelatedRepository inspect what a command raised without consuming the
// pending list the way TakeEvents does.
type EventPeeker interface {
	PeekEvents() []messaging.Event
}

// CorrelatedRepository wraps an inner Repository to stamp the causal source
// onto an aggregate as it loads, the way a command handler must before it
// can raise correctly-correlated events (aggregate.CorrelatedBase.Raise
// rejects anything raised with no source set to validate against). Save
// asserts the aggregate has at least one pending event
// correlated with correlationId before delegating, so a handler can't save
// events it never actually raised against the command it claims caused them.
type CorrelatedRepository struct {
	Inner Repository
}

// NewCorrelatedRepository wraps inner.
func NewCorrelatedRepository(inner Repository) *CorrelatedRepository {
	return &CorrelatedRepository{Inner: inner}
}

// Save asserts correlation via PeekEvents, then delegates to the inner
// repository. An aggregate with no pending events, or one that does not
// implement EventPeeker, has nothing to match and fails the assertion.
func (r *CorrelatedRepository) Save(ctx context.Context, agg aggregate.Aggregate, causationId, correlationId messaging.MsgId, meta messaging.Metadata) error {
	events := PeekEvents(agg)
	matched := false
	for _, e := range events {
		if e.CorrelationId() == correlationId {
			matched = true
			break
		}
	}
	if !matched {
		return rderrors.InvalidOperation("CorrelatedRepository.Save: no pending event matches correlationId")
	}
	return r.Inner.Save(ctx, agg, causationId, correlationId, meta)
}

// GetByID loads agg via the inner repository, then stamps source onto it so
// whatever command handler called GetByID can go on to call Raise without
// first calling SetSource itself. Aggregates that don't implement
// aggregate.SourceSetter (plain, uncorrelated aggregates) are loaded as
// normal with source silently ignored.
func (r *CorrelatedRepository) GetByID(ctx context.Context, id string, agg aggregate.Aggregate, source messaging.CorrelatedMessage) error {
	if err := r.Inner.GetByID(ctx, id, agg); err != nil {
		return err
	}
	if setter, ok := agg.(aggregate.SourceSetter); ok {
		setter.SetSource(source)
	}
	return nil
}

// TryGetByID behaves like GetByID but reports a missing stream as
// (false, nil) instead of an error, matching Repository.TryGetByID.
func (r *CorrelatedRepository) TryGetByID(ctx context.Context, id string, agg aggregate.Aggregate, source messaging.CorrelatedMessage) (bool, error) {
	found, err := r.Inner.TryGetByID(ctx, id, agg)
	if err != nil || !found {
		return found, err
	}
	if setter, ok := agg.(aggregate.SourceSetter); ok {
		setter.SetSource(source)
	}
	return true, nil
}

// PeekEvents returns the events agg has raised since its last save, without
// consuming them, for callers that want to inspect or assert on them (tests,
// outbound bridging) before the eventual Save call takes them. Aggregates
// that don't implement EventPeeker return nil.
func PeekEvents(agg aggregate.Aggregate) []messaging.Event {
	if peeker, ok := agg.(EventPeeker); ok {
		return peeker.PeekEvents()
	}
	return nil
}
