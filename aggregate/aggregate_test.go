package aggregate

import (
	"testing"

	"github.com/reactivedomain/reactivedomain/messaging"
)

type groupStarted struct {
	messaging.CorrelatedMessageBase
	GroupID string
}

type groupStopped struct {
	messaging.CorrelatedMessageBase
	GroupID string
}

type testGroup struct {
	Base
	id      string
	started bool
}

func newTestGroup(id string) *testGroup {
	g := &testGroup{Base: NewBase(id), id: id}
	_ = Register[*groupStarted](&g.Base, func(e *groupStarted) { g.started = true; g.id = e.GroupID })
	_ = Register[*groupStopped](&g.Base, func(e *groupStopped) { g.started = false })
	return g
}

func TestAggregateRaiseAppliesAndTracks(t *testing.T) {
	g := newTestGroup("g-1")
	root := messaging.NewRootCorrelatedMessage()
	g.Raise(&groupStarted{CorrelatedMessageBase: root, GroupID: "g-1"})

	if !g.started {
		t.Fatalf("expected Raise to apply the route and set started=true")
	}
	if g.ExpectedVersion() != NoStreamVersion {
		t.Fatalf("raising does not advance version, got %d", g.ExpectedVersion())
	}

	events := g.TakeEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(events))
	}
	if again := g.TakeEvents(); len(again) != 0 {
		t.Fatalf("TakeEvents should clear the pending list")
	}
}

func TestAggregateRestoreFromEvents(t *testing.T) {
	g := newTestGroup("g-1")
	root := messaging.NewRootCorrelatedMessage()
	started := &groupStarted{CorrelatedMessageBase: root, GroupID: "g-1"}
	stopped := &groupStopped{CorrelatedMessageBase: messaging.NewCorrelatedMessage(started)}

	g.RestoreFromEvents([]messaging.Event{started, stopped})

	if g.started {
		t.Fatalf("expected replay to leave the group stopped")
	}
	if g.ExpectedVersion() != 1 {
		t.Fatalf("ExpectedVersion after replaying 2 events = %d, want 1", g.ExpectedVersion())
	}
	if events := g.TakeEvents(); len(events) != 0 {
		t.Fatalf("RestoreFromEvents should not populate the pending list")
	}
}

func TestAggregateDuplicateRegister(t *testing.T) {
	g := &testGroup{Base: NewBase("g-1")}
	if err := Register[*groupStarted](&g.Base, func(e *groupStarted) {}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := Register[*groupStarted](&g.Base, func(e *groupStarted) {}); err == nil {
		t.Fatalf("expected duplicate route error")
	}
}
