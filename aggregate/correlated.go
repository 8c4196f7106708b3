package aggregate

import (
	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/rderrors"
)

// CorrelatedBase extends Base with the causal-chain tracking a command
// handler needs: every event raised while handling a command must carry
// that command's CorrelationId and be caused by it. Go has no implicit
// ambient context to carry this the way the source's thread-local command
// context does, so the source command is set explicitly via SetSource
// before the handler raises anything.
type CorrelatedBase struct {
	Base
	source messaging.CorrelatedMessage
}

// NewCorrelatedBase returns a CorrelatedBase for a brand-new aggregate.
func NewCorrelatedBase(id string) CorrelatedBase {
	return CorrelatedBase{Base: NewBase(id)}
}

// SourceSetter is implemented by CorrelatedBase so a generic repository
// wrapper (repository.CorrelatedRepository) can stamp the command that
// triggered a load without depending on the concrete aggregate type.
type SourceSetter interface {
	SetSource(source messaging.CorrelatedMessage)
}

// SetSource records the command or event that will cause every subsequently
// raised event, until the next TakeEvents call clears it.
func (b *CorrelatedBase) SetSource(source messaging.CorrelatedMessage) {
	b.source = source
}

// Source returns the currently set causal source, if any.
func (b *CorrelatedBase) Source() (messaging.CorrelatedMessage, bool) {
	return b.source, b.source != nil
}

// Raise validates that event is correctly correlated to the current source
// before delegating to Base.Raise. Raise does not stamp the ids itself: the
// event must already carry the source's CorrelationId and the source's
// MsgId as its CausationId (as messaging.NewCorrelatedMessage(source)
// produces), and any other event is rejected. Raising without a source set
// (no SetSource call since the last TakeEvents) is an error: there is
// nothing to validate the event's causation against. One source stays set
// for any number of Raise calls until TakeEvents clears it.
func (b *CorrelatedBase) Raise(event messaging.Event) error {
	if b.source == nil {
		return rderrors.InvalidOperation("CorrelatedBase.Raise: no source set")
	}
	if event.CorrelationId() != b.source.CorrelationId() {
		return rderrors.InvalidOperation("CorrelatedBase.Raise: event correlation id does not match source")
	}
	if event.CausationId() != b.source.MsgId() {
		return rderrors.InvalidOperation("CorrelatedBase.Raise: event causation id does not match source")
	}
	b.Base.Raise(event)
	return nil
}

// TakeEvents returns pending events and clears the source, so a fresh
// command must call SetSource again before raising further events.
func (b *CorrelatedBase) TakeEvents() []messaging.Event {
	events := b.Base.TakeEvents()
	b.source = nil
	return events
}
