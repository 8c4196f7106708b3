package bus

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/metrics"
	"github.com/reactivedomain/reactivedomain/rderrors"
	"github.com/reactivedomain/reactivedomain/telemetry"
)

// DefaultAckTimeout and DefaultResponseTimeout seed InProcessBus when its
// Options leave them zero. config.Default carries its own, longer values.
const (
	DefaultAckTimeout      = 2 * time.Second
	DefaultResponseTimeout = 10 * time.Second
)

// Options configures an InProcessBus.
type Options struct {
	Registry        *messaging.Registry
	AckTimeout      time.Duration
	ResponseTimeout time.Duration
}

type eventSubscriber struct {
	id             uint64
	handler        EventHandler
	includeDerived bool
}

// InProcessBus is the default Bus implementation: goroutine-per-delivery
// fan-out for events, and a two-phase ack/response protocol for commands
// modeled on the ack handshake the teacher's HTTP client performs against
// EventStoreDB (request sent, acknowledged, then a result arrives).
type InProcessBus struct {
	mu sync.RWMutex

	registry        *messaging.Registry
	ackTimeout      time.Duration
	responseTimeout time.Duration

	subscribers     map[reflect.Type][]eventSubscriber
	wildcard        []eventSubscriber
	nextSubscriber  uint64
	commandHandlers map[reflect.Type]CommandHandler
}

// NewInProcessBus returns a ready-to-use bus. A nil opts.Registry is
// replaced with a fresh, empty Registry.
func NewInProcessBus(opts Options) *InProcessBus {
	reg := opts.Registry
	if reg == nil {
		reg = messaging.NewRegistry()
	}
	ackTimeout := opts.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	responseTimeout := opts.ResponseTimeout
	if responseTimeout <= 0 {
		responseTimeout = DefaultResponseTimeout
	}
	return &InProcessBus{
		registry:        reg,
		ackTimeout:      ackTimeout,
		responseTimeout: responseTimeout,
		subscribers:     make(map[reflect.Type][]eventSubscriber),
		commandHandlers: make(map[reflect.Type]CommandHandler),
	}
}

func (b *InProcessBus) SubscribeType(t reflect.Type, includeDerived bool, handler EventHandler) Unsubscribe {
	b.mu.Lock()
	id := b.nextSubscriber
	b.nextSubscriber++
	b.subscribers[t] = append(b.subscribers[t], eventSubscriber{id: id, handler: handler, includeDerived: includeDerived})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[t]
		for i, s := range subs {
			if s.id == id {
				b.subscribers[t] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers handler for every event published on this bus.
func (b *InProcessBus) SubscribeAll(handler EventHandler) Unsubscribe {
	b.mu.Lock()
	id := b.nextSubscriber
	b.nextSubscriber++
	b.wildcard = append(b.wildcard, eventSubscriber{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.wildcard {
			if s.id == id {
				b.wildcard = append(b.wildcard[:i], b.wildcard[i+1:]...)
				return
			}
		}
	}
}

func (b *InProcessBus) Publish(event messaging.Event) {
	concrete := concreteType(event)
	_ = b.registry.Register(concrete) // best-effort: ancestor walk works even if this fails on a true duplicate

	ancestors := b.registry.AncestorsAndSelf(concrete)
	metrics.RecordEventPublished(concrete.Name())

	b.mu.RLock()
	var targets []EventHandler
	for _, t := range ancestors {
		for _, s := range b.subscribers[t] {
			if t != concrete && !s.includeDerived {
				continue
			}
			targets = append(targets, s.handler)
		}
	}
	for _, s := range b.wildcard {
		targets = append(targets, s.handler)
	}
	b.mu.RUnlock()

	for _, handler := range targets {
		h := handler
		go func() {
			defer func() {
				if r := recover(); r != nil {
					telemetry.WithComponent("bus").Error().
						Interface("panic", r).
						Str("event", concrete.Name()).
						Msg("event handler panicked")
				}
			}()
			h(event)
		}()
	}
}

func (b *InProcessBus) SubscribeCommandType(t reflect.Type, handler CommandHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.commandHandlers[t]; exists {
		return rderrors.DuplicateCommandHandler("InProcessBus.SubscribeCommandType: " + t.Name())
	}
	b.commandHandlers[t] = handler
	return nil
}

func (b *InProcessBus) handlerFor(cmd messaging.Command) (CommandHandler, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.commandHandlers[concreteType(cmd)]
	return h, ok
}

// dispatch runs the two-phase ack/response handshake against handler in its
// own goroutine: a buffered, size-1 ack channel is signaled the instant the
// goroutine starts running, before the handler itself is invoked, so a
// blocked scheduler rather than a slow handler is what AckTimeout actually
// bounds. The response channel carries the handler's return value once it
// completes.
func dispatch(handler CommandHandler, cmd messaging.Command) (ackCh chan struct{}, respCh chan messaging.CommandResponse) {
	ackCh = make(chan struct{}, 1)
	respCh = make(chan messaging.CommandResponse, 1)
	go func() {
		ackCh <- struct{}{}
		var resp messaging.CommandResponse
		func() {
			defer func() {
				if r := recover(); r != nil {
					resp = messaging.Fail(cmd.MsgId(), rderrors.KindCommandException, panicToError(r))
				}
			}()
			resp = handler(cmd)
		}()
		respCh <- resp
	}()
	return ackCh, respCh
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return rderrors.InvalidOperation("command handler panic")
}

// Send fails with rderrors.KindUnsubscribedCommand if no handler is
// registered. A Fail response is returned together with a
// *rderrors.CommandError wrapping its cause (CommandResponse.AsError).
func (b *InProcessBus) Send(ctx context.Context, cmd messaging.Command) (messaging.CommandResponse, error) {
	start := time.Now()
	name := concreteType(cmd).Name()

	handler, ok := b.handlerFor(cmd)
	if !ok {
		metrics.RecordCommand(name, "no_route", time.Since(start))
		return messaging.CommandResponse{}, rderrors.UnsubscribedCommand("InProcessBus.Send: " + name)
	}

	ackCh, respCh := dispatch(handler, cmd)

	ackTimer := time.NewTimer(b.ackTimeout)
	defer ackTimer.Stop()
	select {
	case <-ackCh:
	case <-ackTimer.C:
		metrics.RecordCommand(name, "ack_timeout", time.Since(start))
		return messaging.CommandResponse{}, rderrors.AckTimeout("InProcessBus.Send: " + name)
	case <-ctx.Done():
		metrics.RecordCommand(name, "canceled", time.Since(start))
		return messaging.CommandResponse{}, ctx.Err()
	}

	respTimer := time.NewTimer(b.responseTimeout)
	defer respTimer.Stop()
	select {
	case resp := <-respCh:
		outcome := "ok"
		if !resp.Success() {
			outcome = "failed"
		}
		metrics.RecordCommand(name, outcome, time.Since(start))
		if !resp.Success() {
			return resp, resp.AsError(cmd)
		}
		return resp, nil
	case <-respTimer.C:
		metrics.RecordCommand(name, "response_timeout", time.Since(start))
		return messaging.CommandResponse{}, rderrors.ResponseTimeout("InProcessBus.Send: " + name)
	case <-ctx.Done():
		metrics.RecordCommand(name, "canceled", time.Since(start))
		return messaging.CommandResponse{}, ctx.Err()
	}
}

func (b *InProcessBus) TrySend(ctx context.Context, cmd messaging.Command) (messaging.CommandResponse, bool) {
	if _, ok := b.handlerFor(cmd); !ok {
		return messaging.CommandResponse{}, false
	}
	resp, err := b.Send(ctx, cmd)
	var cmdErr *rderrors.CommandError
	if errors.As(err, &cmdErr) {
		return resp, true
	}
	if err != nil {
		return messaging.Fail(cmd.MsgId(), rderrors.KindCommandException, err), true
	}
	return resp, true
}

func (b *InProcessBus) TrySendAsync(cmd messaging.Command) <-chan messaging.CommandResponse {
	out := make(chan messaging.CommandResponse, 1)
	handler, ok := b.handlerFor(cmd)
	if !ok {
		out <- messaging.Fail(cmd.MsgId(), rderrors.KindUnsubscribedCommand, rderrors.UnsubscribedCommand("InProcessBus.TrySendAsync: "+concreteType(cmd).Name()))
		close(out)
		return out
	}
	go func() {
		_, respCh := dispatch(handler, cmd)
		out <- <-respCh
		close(out)
	}()
	return out
}
