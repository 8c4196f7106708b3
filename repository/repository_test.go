package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/reactivedomain/reactivedomain/aggregate"
	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/rderrors"
	"github.com/reactivedomain/reactivedomain/streamstore"
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
	aggregate.Base
	name    string
	started bool
}

func newTestGroup(id string) *testGroup {
	g := &testGroup{Base: aggregate.NewBase(id)}
	_ = aggregate.Register[*groupStarted](&g.Base, func(e *groupStarted) { g.started = true; g.name = e.GroupID })
	_ = aggregate.Register[*groupStopped](&g.Base, func(e *groupStopped) { g.started = false })
	return g
}

func newRepo() (*StreamRepository, *messaging.Registry) {
	reg := messaging.NewRegistry()
	_ = reg.RegisterMessage(&groupStarted{})
	_ = reg.RegisterMessage(&groupStopped{})
	store := streamstore.NewMemoryStreamStore()
	ser := messaging.NewJSONSerializer(reg)
	names := streamstore.NameBuilder{}
	return NewStreamRepository(store, ser, names, "group"), reg
}

func TestStreamRepositorySaveAndGetByID(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo()

	g := newTestGroup("g-1")
	root := messaging.NewRootCorrelatedMessage()
	g.Raise(&groupStarted{CorrelatedMessageBase: root, GroupID: "g-1"})

	if err := repo.Save(ctx, g, root.MsgId(), root.CorrelationId(), messaging.NewMetadata()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if g.ExpectedVersion() != 0 {
		t.Fatalf("ExpectedVersion after first save = %d, want 0", g.ExpectedVersion())
	}

	loaded := newTestGroup("g-1")
	if err := repo.GetByID(ctx, "g-1", loaded); err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !loaded.started {
		t.Fatalf("expected replayed aggregate to be started")
	}
	if loaded.ExpectedVersion() != 0 {
		t.Fatalf("loaded ExpectedVersion = %d, want 0", loaded.ExpectedVersion())
	}

	stopSource := &groupStarted{CorrelatedMessageBase: root}
	loaded.Raise(&groupStopped{CorrelatedMessageBase: messaging.NewCorrelatedMessage(stopSource)})
	if err := repo.Save(ctx, loaded, stopSource.MsgId(), stopSource.CorrelationId(), messaging.NewMetadata()); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if loaded.ExpectedVersion() != 1 {
		t.Fatalf("ExpectedVersion after second save = %d, want 1", loaded.ExpectedVersion())
	}

	final := newTestGroup("g-1")
	if err := repo.GetByID(ctx, "g-1", final); err != nil {
		t.Fatalf("final GetByID: %v", err)
	}
	if final.started {
		t.Fatalf("expected final replay to be stopped")
	}
}

func TestStreamRepositorySaveNoEventsIsNoop(t *testing.T) {
	repo, _ := newRepo()
	g := newTestGroup("g-1")
	if err := repo.Save(context.Background(), g, messaging.MsgId{}, messaging.MsgId{}, messaging.NewMetadata()); err != nil {
		t.Fatalf("Save with no pending events: %v", err)
	}
}

func TestStreamRepositoryGetByIDNotFound(t *testing.T) {
	repo, _ := newRepo()
	g := newTestGroup("missing")
	err := repo.GetByID(context.Background(), "missing", g)
	var notFound *rderrors.StreamNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected StreamNotFoundError, got %v", err)
	}
}

func TestStreamRepositoryTryGetByID(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo()

	missing := newTestGroup("missing")
	ok, err := repo.TryGetByID(ctx, "missing", missing)
	if err != nil {
		t.Fatalf("TryGetByID on missing stream: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for missing stream")
	}

	g := newTestGroup("g-1")
	root := messaging.NewRootCorrelatedMessage()
	g.Raise(&groupStarted{CorrelatedMessageBase: root, GroupID: "g-1"})
	if err := repo.Save(ctx, g, root.MsgId(), root.CorrelationId(), messaging.NewMetadata()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := newTestGroup("g-1")
	ok, err = repo.TryGetByID(ctx, "g-1", loaded)
	if err != nil {
		t.Fatalf("TryGetByID: %v", err)
	}
	if !ok || !loaded.started {
		t.Fatalf("expected ok=true and started=true, got ok=%v started=%v", ok, loaded.started)
	}
}

func TestStreamRepositoryWrongExpectedVersion(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo()

	g := newTestGroup("g-1")
	root := messaging.NewRootCorrelatedMessage()
	g.Raise(&groupStarted{CorrelatedMessageBase: root, GroupID: "g-1"})
	if err := repo.Save(ctx, g, root.MsgId(), root.CorrelationId(), messaging.NewMetadata()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	stale := newTestGroup("g-1")
	staleRoot := messaging.NewRootCorrelatedMessage()
	stale.Raise(&groupStopped{CorrelatedMessageBase: staleRoot})
	err := repo.Save(ctx, stale, staleRoot.MsgId(), staleRoot.CorrelationId(), messaging.NewMetadata())
	var wrongVersion *rderrors.WrongExpectedVersionError
	if !errors.As(err, &wrongVersion) {
		t.Fatalf("expected WrongExpectedVersionError, got %v", err)
	}
}
