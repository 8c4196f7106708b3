package examplesvc

import (
	"context"
	"testing"
	"time"

	"github.com/reactivedomain/reactivedomain/bus"
	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/readmodel"
	"github.com/reactivedomain/reactivedomain/repository"
	"github.com/reactivedomain/reactivedomain/streamstore"
)

func newServiceForTest(t *testing.T) (*Service, bus.Bus) {
	t.Helper()
	reg := messaging.NewRegistry()
	for _, m := range []messaging.Message{&GroupStarted{}, &GroupStopped{}} {
		if err := reg.RegisterMessage(m); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	store := streamstore.NewMemoryStreamStore()
	serializer := messaging.NewJSONSerializer(reg)
	repo := repository.NewStreamRepository(store, serializer, streamstore.NameBuilder{}, groupCategory)

	b := bus.NewInProcessBus(bus.Options{Registry: reg})
	svc, err := NewService(b, repo)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, b
}

// TestStartGroupCommandSucceeds exercises scenario S1 end to end through
// the bus: sending StartGroup appends a GroupStarted event.
func TestStartGroupCommandSucceeds(t *testing.T) {
	_, b := newServiceForTest(t)
	ctx := context.Background()

	cmd := StartGroup{
		CorrelatedMessageBase: messaging.NewRootCorrelatedMessage(),
		GroupId:               messaging.NewMsgId(),
		Name:                  "Elvis",
		AdminId:               messaging.NewMsgId(),
	}
	resp, err := b.Send(ctx, &cmd)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !resp.Success() {
		t.Fatalf("response = %+v, want success", resp)
	}
}

// TestStartGroupCommandIsIdempotent exercises scenario S2 end to end
// through the bus: sending StartGroup twice for the same group, name and
// admin succeeds both times without raising a second event.
func TestStartGroupCommandIsIdempotent(t *testing.T) {
	_, b := newServiceForTest(t)
	ctx := context.Background()

	groupId, adminId := messaging.NewMsgId(), messaging.NewMsgId()
	for i := 0; i < 2; i++ {
		cmd := StartGroup{
			CorrelatedMessageBase: messaging.NewRootCorrelatedMessage(),
			GroupId:               groupId,
			Name:                  "Elvis",
			AdminId:               adminId,
		}
		resp, err := b.Send(ctx, &cmd)
		if err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		if !resp.Success() {
			t.Fatalf("Send %d response = %+v, want success", i, resp)
		}
	}
}

// TestStartThenStopCommandsSucceed exercises the remainder of S1: stopping
// a started group through the bus succeeds.
func TestStartThenStopCommandsSucceed(t *testing.T) {
	_, b := newServiceForTest(t)
	ctx := context.Background()

	groupId, adminId := messaging.NewMsgId(), messaging.NewMsgId()
	startResp, err := b.Send(ctx, &StartGroup{
		CorrelatedMessageBase: messaging.NewRootCorrelatedMessage(),
		GroupId:               groupId,
		Name:                  "Elvis",
		AdminId:               adminId,
	})
	if err != nil || !startResp.Success() {
		t.Fatalf("StartGroup: resp=%+v err=%v", startResp, err)
	}

	stopResp, err := b.Send(ctx, &StopGroup{
		CorrelatedMessageBase: messaging.NewRootCorrelatedMessage(),
		GroupId:               groupId,
		AdminId:               adminId,
	})
	if err != nil || !stopResp.Success() {
		t.Fatalf("StopGroup: resp=%+v err=%v", stopResp, err)
	}
}

// TestReadModelCatchesUpOnGroupStartedWithoutGaps is scenario S6 applied to
// the Group example: events appended before a listener starts are replayed
// in order during catch-up, and an event appended mid-catch-up is neither
// dropped nor delivered twice once the listener goes live.
func TestReadModelCatchesUpOnGroupStartedWithoutGaps(t *testing.T) {
	store := streamstore.NewMemoryStreamStore()
	names := streamstore.NameBuilder{}
	reg := messaging.NewRegistry()
	if err := reg.RegisterMessage(&GroupStarted{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	serializer := messaging.NewJSONSerializer(reg)

	appendStarted := func(name string, expected streamstore.ExpectedVersion) {
		event := &GroupStarted{
			CorrelatedMessageBase: messaging.NewRootCorrelatedMessage(),
			GroupId:               messaging.NewMsgId(),
			Name:                  name,
			AdminId:               messaging.NewMsgId(),
		}
		data, common, err := serializer.Serialize(event)
		if err != nil {
			t.Fatalf("serialize: %v", err)
		}
		md := messaging.NewMetadata()
		if err := md.Set(messaging.CommonMetadataKey, common); err != nil {
			t.Fatalf("set metadata: %v", err)
		}
		rec := streamstore.EventRecord{
			EventID:   event.MsgId(),
			EventType: common.EventClrType,
			Data:      data,
			Metadata:  md,
		}
		stream := names.CategoryStreamName("GroupStarted")
		if _, err := store.Append(context.Background(), stream, expected, []streamstore.EventRecord{rec}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	appendStarted("Elvis", streamstore.NoStream)
	appendStarted("Priscilla", streamstore.ExpectedVersion(0))

	received := make(chan *GroupStarted, 8)
	projectionBus := bus.NewInProcessBus(bus.Options{})
	bus.Subscribe[*GroupStarted](projectionBus, false, func(e *GroupStarted) { received <- e })

	listener := readmodel.NewListener("groupNames", func() bus.Bus { return projectionBus }, store, names)
	listener.Serializer = serializer

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var checkpoint int64
	if err := readmodel.Start[*GroupStarted](listener, ctx, &checkpoint, true); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if listener.State() != readmodel.Live {
		t.Fatalf("expected Live after blockUntilLive returns, got %v", listener.State())
	}

	var seen []string
	for i := 0; i < 2; i++ {
		select {
		case e := <-received:
			seen = append(seen, e.Name)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for catch-up event %d", i)
		}
	}
	if seen[0] != "Elvis" || seen[1] != "Priscilla" {
		t.Fatalf("unexpected catch-up order: %v", seen)
	}

	appendStarted("Lisa Marie", streamstore.ExpectedVersion(1))
	select {
	case e := <-received:
		if e.Name != "Lisa Marie" {
			t.Fatalf("expected live event Lisa Marie, got %s", e.Name)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for live event")
	}

	if checkpoint != 3 {
		t.Fatalf("expected checkpoint to advance to 3, got %d", checkpoint)
	}
	select {
	case extra := <-received:
		t.Fatalf("received unexpected extra event: %+v", extra)
	default:
	}
}
