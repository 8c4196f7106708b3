// Package streamstore defines the append-only stream storage contract that
// backs every repository and read model in this module, plus a reference
// in-memory implementation used by tests. The production backend lives in
// streamstore/kurrentdb, wrapping the same EventStore-Client-Go/v4 client
// the teacher's internal/kurrentdb package wraps.
package streamstore

import (
	"context"
	"time"

	"github.com/reactivedomain/reactivedomain/messaging"
)

// ExpectedVersion is the optimistic-concurrency precondition for an Append
// call: either a specific prior event number, or one of the two sentinels
// below.
type ExpectedVersion int64

const (
	// NoStream asserts the target stream must not already exist.
	NoStream ExpectedVersion = -1
	// Any skips the optimistic concurrency check entirely.
	Any ExpectedVersion = -2
)

// EventRecord is a single event as stored in (or read from) a stream: an
// opaque body plus the CommonMetadata header identifying its type, keyed to
// a causal identity.
type EventRecord struct {
	EventID       messaging.MsgId
	EventType     string
	Data          []byte
	Metadata      messaging.Metadata
	CorrelationID messaging.MsgId
	CausationID   messaging.MsgId
	Created       time.Time
	EventNumber   int64
}

// ReadResult is the outcome of a forward read.
type ReadResult struct {
	Events        []EventRecord
	NextVersion   int64
	IsEndOfStream bool
}

// StreamState classifies the status of a stream independent of its content.
type StreamState int

const (
	StreamStateNormal StreamState = iota
	StreamStateNotFound
	StreamStateDeleted
)

// Subscription delivers events appended to a stream after a subscribe call,
// live or as part of a catch-up read.
type Subscription interface {
	// Events yields records in stream order.
	Events() <-chan EventRecord
	// Err yields at most one error (a dropped-connection cause, for
	// example) before the subscription's lifetime ends. The stream store
	// never auto-restarts a dropped subscription; a caller that wants that
	// must resubscribe.
	Err() <-chan error
	// Close releases the subscription's resources.
	Close()
}

// StreamStore is the append-only storage contract every repository and read
// model depends on.
type StreamStore interface {
	// Append writes events to streamName, enforcing expected as an
	// optimistic-concurrency precondition. Returns the stream's version
	// after the write (the number of the last event written).
	Append(ctx context.Context, streamName string, expected ExpectedVersion, events []EventRecord) (int64, error)

	// ReadStreamForward reads up to maxCount events starting at fromVersion
	// (inclusive).
	ReadStreamForward(ctx context.Context, streamName string, fromVersion int64, maxCount int) (ReadResult, error)

	// SubscribeToStream opens a live subscription starting strictly after
	// fromVersion; it does not replay history before that point.
	SubscribeToStream(ctx context.Context, streamName string, fromVersion int64) (Subscription, error)

	// CatchUpSubscribe replays every event from fromVersion forward and
	// then, without a gap, hands off to a live subscription for everything
	// appended afterward.
	CatchUpSubscribe(ctx context.Context, streamName string, fromVersion int64) (Subscription, error)

	// StreamState reports whether streamName exists, is absent, or has been
	// tombstoned.
	StreamState(ctx context.Context, streamName string) (StreamState, error)
}

// NameBuilder derives stream names the way every component in this module
// names them, so a repository, a read model and an operator's debug tool
// all agree on the same string for the same logical stream.
type NameBuilder struct {
	// Prefix is prepended to every stream name, mirroring
	// config.ConfiguredConnection.StreamNamePrefix (§11). Empty by default.
	Prefix string
}

// StreamName returns the name of the stream holding category's aggregate
// identified by id, e.g. "policyUser-3f2a...".
func (n NameBuilder) StreamName(category, id string) string {
	if n.Prefix == "" {
		return category + "-" + id
	}
	return n.Prefix + "-" + category + "-" + id
}

// CategoryStreamName returns the system projection stream name aggregating
// every stream in category, following KurrentDB/EventStoreDB's "$ce-"
// category-stream convention.
func (n NameBuilder) CategoryStreamName(category string) string {
	if n.Prefix == "" {
		return "$ce-" + category
	}
	return "$ce-" + n.Prefix + "-" + category
}
