// Package bus provides the in-process publish/subscribe and
// request/response messaging used to wire aggregates, repositories and read
// models together. Grounded on the teacher's internal/shared/events.Bus
// (subscriber bookkeeping, goroutine-per-delivery dispatch) and
// http_client.go's ack/response-over-a-transport pattern, generalized from a
// single KurrentDB-backed event stream into a general command/event bus.
package bus

import (
	"context"
	"reflect"

	"github.com/reactivedomain/reactivedomain/messaging"
)

// EventHandler receives a published event.
type EventHandler func(messaging.Event)

// CommandHandler handles a command and returns the result.
type CommandHandler func(messaging.Command) messaging.CommandResponse

// Unsubscribe removes a previously registered event handler.
type Unsubscribe func()

// Bus is the core messaging contract. Subscribe and SubscribeCommand are
// type-erased here because Go methods cannot be generic; the package-level
// Subscribe and SubscribeCommand functions below provide the typed surface
// every caller actually uses.
type Bus interface {
	// SubscribeType registers handler for events of exactly type t. If
	// includeDerived is true, handler also receives events whose concrete
	// type's embedding chain (per messaging.Registry.AncestorsAndSelf)
	// includes t as a proper ancestor, not just t itself. Multiple handlers
	// may subscribe to the same type.
	SubscribeType(t reflect.Type, includeDerived bool, handler EventHandler) Unsubscribe

	// Publish delivers event to every handler subscribed to its exact type,
	// plus every includeDerived=true handler subscribed to one of its
	// ancestor types, each in its own goroutine, without blocking on the
	// handlers returning.
	Publish(event messaging.Event)

	// SubscribeCommandType registers the single handler for commands of
	// type t. A second registration for the same t fails with
	// rderrors.KindDuplicateCommand.
	SubscribeCommandType(t reflect.Type, handler CommandHandler) error

	// Send dispatches cmd to its registered handler and blocks until the
	// handler acknowledges receipt and then returns a response, or either
	// phase times out. It fails with rderrors.KindUnsubscribedCommand if no
	// handler is registered.
	Send(ctx context.Context, cmd messaging.Command) (messaging.CommandResponse, error)

	// TrySend behaves like Send but reports a missing handler via the
	// boolean return instead of an error, for callers that treat "nobody is
	// listening" as a normal outcome rather than a failure.
	TrySend(ctx context.Context, cmd messaging.Command) (resp messaging.CommandResponse, handled bool)

	// TrySendAsync dispatches cmd without blocking the caller; the result
	// arrives on the returned channel, which is closed after one send. If
	// no handler is registered the channel immediately receives a Fail
	// response carrying rderrors.KindUnsubscribedCommand.
	TrySendAsync(cmd messaging.Command) <-chan messaging.CommandResponse

	// SubscribeAll registers handler for every event published on the bus,
	// regardless of type. The bridge package uses this for outbound
	// forwarding, where the set of message types crossing the wire isn't
	// known ahead of time the way a single projection's event set is.
	SubscribeAll(handler EventHandler) Unsubscribe
}

func concreteType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// Subscribe registers a typed handler for events of type T. includeDerived
// mirrors SubscribeType: false (the usual case) delivers only exactly-T
// events, true also delivers events of types that embed T. It returns a
// function that cancels the subscription.
func Subscribe[T messaging.Event](b Bus, includeDerived bool, handler func(T)) Unsubscribe {
	var zero T
	t := concreteType(zero)
	return b.SubscribeType(t, includeDerived, func(e messaging.Event) {
		typed, ok := e.(T)
		if !ok {
			return
		}
		handler(typed)
	})
}

// SubscribeCommand registers the single handler for commands of type T.
func SubscribeCommand[T messaging.Command](b Bus, handler func(T) messaging.CommandResponse) error {
	var zero T
	t := concreteType(zero)
	return b.SubscribeCommandType(t, func(c messaging.Command) messaging.CommandResponse {
		typed, ok := c.(T)
		if !ok {
			return messaging.Fail(c.MsgId(), "", nil)
		}
		return handler(typed)
	})
}
