package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/rderrors"
)

type testPing struct {
	messaging.CorrelatedMessageBase
	N int
}

type testPong struct {
	messaging.CorrelatedMessageBase
}

// testPingDerived embeds testPing so AncestorsAndSelf(testPingDerived)
// includes testPing, for exercising SubscribeType's includeDerived flag.
type testPingDerived struct {
	testPing
}

func newTestPing() *testPing {
	base := messaging.NewRootCorrelatedMessage()
	return &testPing{CorrelatedMessageBase: base}
}

func TestInProcessBusPublishDeliversToSubscribers(t *testing.T) {
	b := NewInProcessBus(Options{})

	var mu sync.Mutex
	received := 0
	done := make(chan struct{})

	Subscribe[*testPing](b, false, func(e *testPing) {
		mu.Lock()
		received++
		mu.Unlock()
		close(done)
	})

	b.Publish(newTestPing())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if received != 1 {
		t.Fatalf("received = %d, want 1", received)
	}
}

func TestInProcessBusSendSuccess(t *testing.T) {
	b := NewInProcessBus(Options{})

	if err := SubscribeCommand[*testPing](b, func(c *testPing) messaging.CommandResponse {
		return messaging.Succeed(c.MsgId())
	}); err != nil {
		t.Fatalf("SubscribeCommand: %v", err)
	}

	cmd := newTestPing()
	resp, err := b.Send(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !resp.Success() {
		t.Fatalf("expected success response")
	}
	if resp.SourceCommandId != cmd.MsgId() {
		t.Fatalf("SourceCommandId mismatch")
	}
}

func TestInProcessBusSendUnsubscribedCommand(t *testing.T) {
	b := NewInProcessBus(Options{})
	_, err := b.Send(context.Background(), newTestPing())
	if err == nil {
		t.Fatalf("expected UnsubscribedCommand error")
	}
	rdErr, ok := err.(*rderrors.Error)
	if !ok || rdErr.Kind != rderrors.KindUnsubscribedCommand {
		t.Fatalf("expected KindUnsubscribedCommand, got %#v", err)
	}
}

func TestInProcessBusSendDuplicateHandler(t *testing.T) {
	b := NewInProcessBus(Options{})
	handler := func(c *testPing) messaging.CommandResponse { return messaging.Succeed(c.MsgId()) }

	if err := SubscribeCommand[*testPing](b, handler); err != nil {
		t.Fatalf("first SubscribeCommand: %v", err)
	}
	err := SubscribeCommand[*testPing](b, handler)
	if err == nil {
		t.Fatalf("expected duplicate handler error")
	}
	rdErr, ok := err.(*rderrors.Error)
	if !ok || rdErr.Kind != rderrors.KindDuplicateCommand {
		t.Fatalf("expected KindDuplicateCommand, got %#v", err)
	}
}

func TestInProcessBusSendResponseTimeout(t *testing.T) {
	b := NewInProcessBus(Options{AckTimeout: 10 * time.Millisecond, ResponseTimeout: time.Second})
	block := make(chan struct{})
	defer close(block)

	if err := SubscribeCommand[*testPing](b, func(c *testPing) messaging.CommandResponse {
		<-block
		return messaging.Succeed(c.MsgId())
	}); err != nil {
		t.Fatalf("SubscribeCommand: %v", err)
	}

	// The ack phase only waits on the handler goroutine starting, which
	// happens immediately; this test instead exercises the response
	// timeout by bounding ResponseTimeout tightly.
	b2 := NewInProcessBus(Options{AckTimeout: time.Second, ResponseTimeout: 10 * time.Millisecond})
	if err := SubscribeCommand[*testPing](b2, func(c *testPing) messaging.CommandResponse {
		<-block
		return messaging.Succeed(c.MsgId())
	}); err != nil {
		t.Fatalf("SubscribeCommand: %v", err)
	}
	_, err := b2.Send(context.Background(), newTestPing())
	if err == nil {
		t.Fatalf("expected response timeout error")
	}
	rdErr, ok := err.(*rderrors.Error)
	if !ok || rdErr.Kind != rderrors.KindResponseTimeout {
		t.Fatalf("expected KindResponseTimeout, got %#v", err)
	}
}

func TestInProcessBusTrySend(t *testing.T) {
	b := NewInProcessBus(Options{})
	_, handled := b.TrySend(context.Background(), newTestPing())
	if handled {
		t.Fatalf("expected TrySend to report unhandled when no handler is registered")
	}

	if err := SubscribeCommand[*testPing](b, func(c *testPing) messaging.CommandResponse {
		return messaging.Succeed(c.MsgId())
	}); err != nil {
		t.Fatalf("SubscribeCommand: %v", err)
	}
	resp, handled := b.TrySend(context.Background(), newTestPing())
	if !handled || !resp.Success() {
		t.Fatalf("expected TrySend to succeed once a handler is registered")
	}
}

func TestInProcessBusTrySendAsyncUnsubscribedCommand(t *testing.T) {
	b := NewInProcessBus(Options{})
	ch := b.TrySendAsync(newTestPing())
	select {
	case resp := <-ch:
		if resp.Success() {
			t.Fatalf("expected a failure response for an unrouted command")
		}
		if resp.FailureKind != rderrors.KindUnsubscribedCommand {
			t.Fatalf("expected KindUnsubscribedCommand, got %v", resp.FailureKind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for TrySendAsync result")
	}
}

func TestSubscribeTypeIncludeDerivedGatesAncestorDelivery(t *testing.T) {
	b := NewInProcessBus(Options{})

	exactOnly := make(chan struct{}, 1)
	derived := make(chan struct{}, 1)
	b.SubscribeType(concreteType(testPing{}), false, func(e messaging.Event) { exactOnly <- struct{}{} })
	b.SubscribeType(concreteType(testPing{}), true, func(e messaging.Event) { derived <- struct{}{} })

	b.Publish(&testPingDerived{testPing: *newTestPing()})

	select {
	case <-derived:
	case <-time.After(time.Second):
		t.Fatalf("includeDerived=true subscriber did not receive a derived event")
	}
	select {
	case <-exactOnly:
		t.Fatalf("includeDerived=false subscriber must not receive a derived event")
	case <-time.After(20 * time.Millisecond):
	}

	b.Publish(newTestPing())
	select {
	case <-exactOnly:
	case <-time.After(time.Second):
		t.Fatalf("includeDerived=false subscriber did not receive an exact-type event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewInProcessBus(Options{})
	var count int
	var mu sync.Mutex

	unsub := Subscribe[*testPing](b, false, func(e *testPing) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	unsub()

	b.Publish(newTestPing())
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", count)
	}
}
