// Package readmodel drives a projection's private bus from a category
// stream: replay from a checkpoint, then a gap-free handoff to live
// delivery. Grounded on the teacher's internal/audit.Subscriber (the
// subscribe-and-project idiom) and internal/audit/checkpoint.go (a
// checkpoint position gating where a restart resumes from), generalized
// from a single fixed audit stream and a hardcoded event-to-entry mapping
// into a reusable listener over any category stream and any projection's
// own bus.Bus.
package readmodel

import (
	"context"
	"reflect"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/reactivedomain/reactivedomain/bus"
	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/metrics"
	"github.com/reactivedomain/reactivedomain/streamstore"
	"github.com/reactivedomain/reactivedomain/telemetry"
)

// State is a Listener's lifecycle stage.
type State int

const (
	Starting State = iota
	CatchingUp
	Live
	Idle
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case CatchingUp:
		return "catching_up"
	case Live:
		return "live"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}

func (s State) metricValue() int {
	switch s {
	case Starting:
		return metrics.ReadModelStarting
	case CatchingUp:
		return metrics.ReadModelCatchingUp
	case Live:
		return metrics.ReadModelLive
	case Idle:
		return metrics.ReadModelIdle
	default:
		return metrics.ReadModelStarting
	}
}

const readBatchSize = 500

// Listener replays a category stream onto a projection's own bus.Bus and
// keeps it live afterward. A projection registers its event handlers on the
// bus returned by getHandlerBus before calling Start, the same way a
// command handler registers on the shared application bus. Serializer must
// be set before Start is called; it is exported rather than threaded
// through the constructor so a caller can share one messaging.Registry
// across a repository and every readmodel.Listener built on top of it, the
// same shape repository.StreamRepository uses for its own Serializer field.
type Listener struct {
	Serializer messaging.Serializer

	name          string
	getHandlerBus func() bus.Bus
	store         streamstore.StreamStore
	names         streamstore.NameBuilder

	state   atomic.Value // State
	healthy atomic.Bool
	pending atomic.Int64 // events enqueued and not yet handled
	queue   *bus.QueuedHandler
	live    chan struct{}
}

// NewListener returns a Listener named name (used in metrics and logs),
// publishing onto whatever bus getHandlerBus() returns at Start time.
func NewListener(name string, getHandlerBus func() bus.Bus, store streamstore.StreamStore, names streamstore.NameBuilder) *Listener {
	l := &Listener{
		name:          name,
		getHandlerBus: getHandlerBus,
		store:         store,
		names:         names,
		live:          make(chan struct{}),
	}
	l.healthy.Store(true)
	l.setState(Starting)
	return l
}

// State returns the listener's current lifecycle stage.
func (l *Listener) State() State {
	return l.state.Load().(State)
}

// Healthy reports false once the underlying subscription has dropped.
// Start never auto-restarts a dropped subscription; a caller that wants
// that behavior must call Start again.
func (l *Listener) Healthy() bool {
	return l.healthy.Load()
}

func (l *Listener) setState(s State) {
	l.state.Store(s)
	metrics.SetReadModelState(l.name, s.metricValue())
}

func categoryName[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Start replays names.CategoryStreamName(categoryName[T]()) from
// *checkpoint (or the start of the stream, if *checkpoint is 0) onto the
// projection bus, then hands off to a live subscription without a gap.
// *checkpoint is advanced as events are decoded, so a caller backed by
// checkpoint.PostgresStore can persist it across restarts. If
// blockUntilLive is true, Start blocks the calling goroutine until the
// listener first reaches Live.
func Start[T any](l *Listener, ctx context.Context, checkpoint *int64, blockUntilLive bool) error {
	stream := l.names.CategoryStreamName(categoryName[T]())
	b := l.getHandlerBus()
	logger := telemetry.WithComponent("readmodel").With().Str("listener", l.name).Logger()

	l.queue = bus.NewQueuedHandler(l.name, func(msg bus.QueuedMessage) {
		if event, ok := msg.(messaging.Event); ok {
			b.Publish(event)
		}
		if l.pending.Add(-1) == 0 && l.State() == Live {
			l.setState(Idle)
		}
	})
	l.queue.Start()

	go l.run(ctx, stream, checkpoint, logger)

	if blockUntilLive {
		select {
		case <-l.live:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (l *Listener) decode(rec streamstore.EventRecord, logger zerolog.Logger) {
	var common messaging.CommonMetadata
	if _, err := rec.Metadata.Get(messaging.CommonMetadataKey, &common); err != nil {
		logger.Error().Err(err).Msg("decode metadata failed")
		return
	}
	event, err := l.Serializer.Deserialize(rec.Data, common)
	if err != nil {
		logger.Error().Err(err).Str("type", common.EventClrType).Msg("deserialize event failed")
		return
	}
	l.pending.Add(1)
	l.queue.Enqueue(event)
}

func (l *Listener) run(ctx context.Context, stream string, checkpoint *int64, logger zerolog.Logger) {
	l.setState(CatchingUp)

	from := *checkpoint
	for {
		result, err := l.store.ReadStreamForward(ctx, stream, from, readBatchSize)
		if err != nil {
			logger.Error().Err(err).Msg("catch-up read failed")
			l.healthy.Store(false)
			return
		}
		for _, rec := range result.Events {
			l.decode(rec, logger)
			from = rec.EventNumber + 1
			*checkpoint = from
		}
		if result.IsEndOfStream {
			break
		}
	}

	sub, err := l.store.CatchUpSubscribe(ctx, stream, from)
	if err != nil {
		logger.Error().Err(err).Msg("catch-up subscribe failed")
		l.healthy.Store(false)
		return
	}
	defer sub.Close()

	l.setState(Live)
	l.signalLive()

	for {
		select {
		case rec, ok := <-sub.Events():
			if !ok {
				return
			}
			l.decode(rec, logger)
			*checkpoint = rec.EventNumber + 1
		case err, ok := <-sub.Err():
			if ok {
				logger.Warn().Err(err).Msg("subscription dropped")
			}
			l.healthy.Store(false)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) signalLive() {
	select {
	case <-l.live:
	default:
		close(l.live)
	}
}
