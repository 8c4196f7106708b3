package streamstore

import (
	"context"
	"sync"
	"time"

	"github.com/reactivedomain/reactivedomain/rderrors"
)

// MemoryStreamStore is an in-memory StreamStore, used by package tests
// across this module (aggregate/repository round trips, read model
// catch-up) in place of a real KurrentDB instance.
type MemoryStreamStore struct {
	mu      sync.Mutex
	streams map[string][]EventRecord
	live    map[string][]*liveSub
}

// NewMemoryStreamStore returns an empty store.
func NewMemoryStreamStore() *MemoryStreamStore {
	return &MemoryStreamStore{
		streams: make(map[string][]EventRecord),
		live:    make(map[string][]*liveSub),
	}
}

// liveSub tracks one subscriber's delivery watermark. While buffering is
// true (during a catch-up replay) newly appended events are queued rather
// than delivered, so the replay goroutine can hand off to live delivery
// without either dropping or double-delivering an event that arrives in the
// window between the historical snapshot and the live hand-off.
type liveSub struct {
	mu        sync.Mutex
	sub       *subscription
	after     int64
	buffering bool
	buffer    []EventRecord
}

func (ls *liveSub) deliver(e EventRecord) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if e.EventNumber <= ls.after {
		return
	}
	if ls.buffering {
		ls.buffer = append(ls.buffer, e)
		return
	}
	select {
	case ls.sub.eventsCh <- e:
		ls.after = e.EventNumber
	case <-ls.sub.closeCh:
	}
}

type subscription struct {
	eventsCh  chan EventRecord
	errCh     chan error
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newSubscription() *subscription {
	return &subscription{
		eventsCh: make(chan EventRecord, 64),
		errCh:    make(chan error, 1),
		closeCh:  make(chan struct{}),
	}
}

func (s *subscription) Events() <-chan EventRecord { return s.eventsCh }
func (s *subscription) Err() <-chan error          { return s.errCh }
func (s *subscription) Close() {
	s.closeOnce.Do(func() { close(s.closeCh) })
}

func (m *MemoryStreamStore) Append(_ context.Context, streamName string, expected ExpectedVersion, events []EventRecord) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	m.mu.Lock()
	current := m.streams[streamName]
	currentVersion := int64(len(current)) - 1

	switch expected {
	case Any:
	case NoStream:
		if len(current) != 0 {
			m.mu.Unlock()
			return 0, &rderrors.WrongExpectedVersionError{Stream: streamName, Expected: int64(NoStream), Actual: currentVersion}
		}
	default:
		if int64(expected) != currentVersion {
			m.mu.Unlock()
			return 0, &rderrors.WrongExpectedVersionError{Stream: streamName, Expected: int64(expected), Actual: currentVersion}
		}
	}

	now := time.Now().UTC()
	written := make([]EventRecord, len(events))
	for i, e := range events {
		e.EventNumber = currentVersion + 1 + int64(i)
		if e.Created.IsZero() {
			e.Created = now
		}
		written[i] = e
	}
	m.streams[streamName] = append(current, written...)
	newVersion := currentVersion + int64(len(written))

	subs := append([]*liveSub(nil), m.live[streamName]...)
	m.mu.Unlock()

	for _, ls := range subs {
		for _, e := range written {
			ls.deliver(e)
		}
	}

	return newVersion, nil
}

func (m *MemoryStreamStore) ReadStreamForward(_ context.Context, streamName string, fromVersion int64, maxCount int) (ReadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.streams[streamName]
	var out []EventRecord
	for _, e := range all {
		if e.EventNumber < fromVersion {
			continue
		}
		out = append(out, e)
		if maxCount > 0 && len(out) >= maxCount {
			break
		}
	}
	endOfStream := len(out) == 0 || (len(all) > 0 && out[len(out)-1].EventNumber == all[len(all)-1].EventNumber)
	next := fromVersion + int64(len(out))
	return ReadResult{Events: out, NextVersion: next, IsEndOfStream: endOfStream}, nil
}

func (m *MemoryStreamStore) SubscribeToStream(ctx context.Context, streamName string, fromVersion int64) (Subscription, error) {
	ls := &liveSub{sub: newSubscription(), after: fromVersion}

	m.mu.Lock()
	m.live[streamName] = append(m.live[streamName], ls)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.removeLive(streamName, ls)
		ls.sub.Close()
	}()

	return ls.sub, nil
}

func (m *MemoryStreamStore) CatchUpSubscribe(ctx context.Context, streamName string, fromVersion int64) (Subscription, error) {
	m.mu.Lock()
	snapshot := append([]EventRecord(nil), m.streams[streamName]...)
	ls := &liveSub{sub: newSubscription(), after: fromVersion - 1, buffering: true}
	m.live[streamName] = append(m.live[streamName], ls)
	m.mu.Unlock()

	go func() {
		for _, e := range snapshot {
			if e.EventNumber < fromVersion {
				continue
			}
			select {
			case ls.sub.eventsCh <- e:
				ls.mu.Lock()
				ls.after = e.EventNumber
				ls.mu.Unlock()
			case <-ls.sub.closeCh:
				return
			}
		}

		ls.mu.Lock()
		buffered := ls.buffer
		ls.buffer = nil
		ls.buffering = false
		ls.mu.Unlock()

		for _, e := range buffered {
			ls.mu.Lock()
			skip := e.EventNumber <= ls.after
			ls.mu.Unlock()
			if skip {
				continue
			}
			select {
			case ls.sub.eventsCh <- e:
				ls.mu.Lock()
				ls.after = e.EventNumber
				ls.mu.Unlock()
			case <-ls.sub.closeCh:
				return
			}
		}

		<-ctx.Done()
		m.removeLive(streamName, ls)
		ls.sub.Close()
	}()

	return ls.sub, nil
}

func (m *MemoryStreamStore) removeLive(streamName string, target *liveSub) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.live[streamName]
	for i, ls := range subs {
		if ls == target {
			m.live[streamName] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (m *MemoryStreamStore) StreamState(_ context.Context, streamName string) (StreamState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.streams[streamName]; !ok {
		return StreamStateNotFound, nil
	}
	return StreamStateNormal, nil
}
