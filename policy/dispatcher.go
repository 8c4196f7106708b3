package policy

import (
	"context"
	"reflect"

	"github.com/reactivedomain/reactivedomain/bus"
	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/rderrors"
)

// Dispatcher wraps a bus.Bus with a permission check on every Send/TrySend,
// grounded on internal/shared/policy/opa.go's check-before-proceed shape
// but evaluated in-process against a UserPolicy instead of calling out to
// OPA over HTTP. Publish, SubscribeType, SubscribeAll and
// SubscribeCommandType pass straight through; events are not subject to
// send-side authorization.
type Dispatcher struct {
	inner         bus.Bus
	currentPolicy func() *UserPolicy
}

// NewDispatcher returns a Dispatcher delegating to inner, consulting
// currentPolicy on every Send/TrySend. currentPolicy is called fresh each
// time rather than captured once, so a caller whose policy changes
// mid-session (a role added, a token refreshed) is evaluated against its
// current state, not whatever was true when the Dispatcher was built.
func NewDispatcher(inner bus.Bus, currentPolicy func() *UserPolicy) *Dispatcher {
	return &Dispatcher{inner: inner, currentPolicy: currentPolicy}
}

func (d *Dispatcher) SubscribeType(t reflect.Type, includeDerived bool, handler bus.EventHandler) bus.Unsubscribe {
	return d.inner.SubscribeType(t, includeDerived, handler)
}

func (d *Dispatcher) SubscribeAll(handler bus.EventHandler) bus.Unsubscribe {
	return d.inner.SubscribeAll(handler)
}

func (d *Dispatcher) Publish(event messaging.Event) {
	d.inner.Publish(event)
}

func (d *Dispatcher) SubscribeCommandType(t reflect.Type, handler bus.CommandHandler) error {
	return d.inner.SubscribeCommandType(t, handler)
}

func (d *Dispatcher) TrySendAsync(cmd messaging.Command) <-chan messaging.CommandResponse {
	return d.inner.TrySendAsync(cmd)
}

func (d *Dispatcher) authorize(cmd messaging.Command) bool {
	policy := d.currentPolicy()
	if policy == nil {
		return false
	}
	return policy.CanSend(reflect.TypeOf(cmd))
}

func denyResponse(cmd messaging.Command) messaging.CommandResponse {
	name := elemType(reflect.TypeOf(cmd)).Name()
	return messaging.Fail(cmd.MsgId(), rderrors.KindAuthorization, rderrors.Authorization("policy.Dispatcher: "+name))
}

// Send authorizes cmd against the current policy before delegating, failing
// closed with rderrors.KindAuthorization without ever invoking the wrapped
// bus on denial.
func (d *Dispatcher) Send(ctx context.Context, cmd messaging.Command) (messaging.CommandResponse, error) {
	if !d.authorize(cmd) {
		return denyResponse(cmd), nil
	}
	return d.inner.Send(ctx, cmd)
}

// TrySend behaves like Send but reports the wrapped bus's "no handler"
// outcome via the boolean return, matching bus.Bus.TrySend. A denial is
// reported as handled=true with a Fail response, since the command was in
// fact routed to this Dispatcher and rejected by policy, not left unhandled.
func (d *Dispatcher) TrySend(ctx context.Context, cmd messaging.Command) (messaging.CommandResponse, bool) {
	if !d.authorize(cmd) {
		return denyResponse(cmd), true
	}
	return d.inner.TrySend(ctx, cmd)
}
