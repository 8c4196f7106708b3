// Package repository bridges event-sourced aggregates to stream storage:
// Save appends an aggregate's pending events under an optimistic-concurrency
// check, GetByID/TryGetByID rebuild one from its stream. Grounded on the
// teacher's audit.KurrentDBRepository (append with a running sequence,
// initialize-from-last-event-on-read) and internal/eventstore.BaseAggregate
// (uncommitted-events/version bookkeeping this package now persists),
// generalized from a single hardcoded audit stream to any aggregate
// category.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/reactivedomain/reactivedomain/aggregate"
	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/rderrors"
	"github.com/reactivedomain/reactivedomain/streamstore"
)

// readBatchSize bounds a single ReadStreamForward call; GetByID loops until
// the stream store reports end of stream.
const readBatchSize = 500

// Repository is the storage contract a command handler uses to load and
// persist one category of aggregate.
type Repository interface {
	Save(ctx context.Context, agg aggregate.Aggregate, causationId, correlationId messaging.MsgId, meta messaging.Metadata) error
	GetByID(ctx context.Context, id string, agg aggregate.Aggregate) error
	TryGetByID(ctx context.Context, id string, agg aggregate.Aggregate) (bool, error)
}

// PolicyUserIDProvider supplies the acting policy user's id for the
// AuditRecord metadata stamped onto every saved event (§6). A nil provider
// (the default) omits the audit record entirely.
type PolicyUserIDProvider func(ctx context.Context) (messaging.MsgId, bool)

// StreamRepository is the default Repository, backed directly by a
// streamstore.StreamStore.
type StreamRepository struct {
	Store                streamstore.StreamStore
	Serializer           messaging.Serializer
	Names                streamstore.NameBuilder
	Category             string
	PolicyUserIDProvider PolicyUserIDProvider
}

// NewStreamRepository returns a StreamRepository for the given aggregate
// category (the stream-name segment identifying the aggregate type, e.g.
// "policyUser").
func NewStreamRepository(store streamstore.StreamStore, serializer messaging.Serializer, names streamstore.NameBuilder, category string) *StreamRepository {
	return &StreamRepository{Store: store, Serializer: serializer, Names: names, Category: category}
}

func expectedVersionToStream(v int64) streamstore.ExpectedVersion {
	if v == aggregate.NoStreamVersion {
		return streamstore.NoStream
	}
	return streamstore.ExpectedVersion(v)
}

func (r *StreamRepository) streamName(id string) string {
	return r.Names.StreamName(r.Category, id)
}

// Save appends agg's pending events to its stream, stamping CommonMetadata,
// (when a PolicyUserIDProvider is set) an AuditRecord, and the caller's own
// meta on each, then clears them and advances agg's version to match the
// stream. causationId and correlationId identify the command or event that
// triggered this Save; StreamRepository itself doesn't assert against them
// (repository.CorrelatedRepository does), but they flow through so a wrapper
// can.
func (r *StreamRepository) Save(ctx context.Context, agg aggregate.Aggregate, causationId, correlationId messaging.MsgId, meta messaging.Metadata) error {
	events := agg.TakeEvents()
	if len(events) == 0 {
		return nil
	}

	records := make([]streamstore.EventRecord, len(events))
	for i, event := range events {
		data, common, err := r.Serializer.Serialize(event)
		if err != nil {
			return err
		}

		md := messaging.NewMetadata()
		if err := md.Set(messaging.CommonMetadataKey, common); err != nil {
			return err
		}
		if r.PolicyUserIDProvider != nil {
			if id, ok := r.PolicyUserIDProvider(ctx); ok {
				audit := messaging.AuditRecord{PolicyUserId: id, EventDateUTC: time.Now().UTC()}
				if err := md.Set(messaging.AuditRecordKey, audit); err != nil {
					return err
				}
			}
		}
		md.Merge(meta)

		records[i] = streamstore.EventRecord{
			EventID:       event.MsgId(),
			EventType:     common.EventClrType,
			Data:          data,
			Metadata:      md,
			CorrelationID: event.CorrelationId(),
			CausationID:   event.CausationId(),
		}
	}

	newVersion, err := r.Store.Append(ctx, r.streamName(agg.AggregateID()), expectedVersionToStream(agg.ExpectedVersion()), records)
	if err != nil {
		return err
	}
	agg.SetVersion(newVersion)
	return nil
}

// GetByID reads agg's full stream and replays it via RestoreFromEvents.
// Fails with *rderrors.StreamNotFoundError if the stream has never been
// written.
func (r *StreamRepository) GetByID(ctx context.Context, id string, agg aggregate.Aggregate) error {
	stream := r.streamName(id)

	state, err := r.Store.StreamState(ctx, stream)
	if err != nil {
		return err
	}
	switch state {
	case streamstore.StreamStateNotFound:
		return &rderrors.StreamNotFoundError{Stream: stream}
	case streamstore.StreamStateDeleted:
		return &rderrors.StreamDeletedError{Stream: stream}
	}

	var events []messaging.Event
	from := int64(0)
	for {
		result, err := r.Store.ReadStreamForward(ctx, stream, from, readBatchSize)
		if err != nil {
			return err
		}
		for _, rec := range result.Events {
			var common messaging.CommonMetadata
			if _, err := rec.Metadata.Get(messaging.CommonMetadataKey, &common); err != nil {
				return err
			}
			event, err := r.Serializer.Deserialize(rec.Data, common)
			if err != nil {
				return err
			}
			events = append(events, event)
		}
		from = result.NextVersion
		if result.IsEndOfStream {
			break
		}
	}

	agg.RestoreFromEvents(events)
	return nil
}

// TryGetByID behaves like GetByID but reports a missing stream as
// (false, nil) instead of an error.
func (r *StreamRepository) TryGetByID(ctx context.Context, id string, agg aggregate.Aggregate) (bool, error) {
	err := r.GetByID(ctx, id, agg)
	if err == nil {
		return true, nil
	}
	var notFound *rderrors.StreamNotFoundError
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, err
}
