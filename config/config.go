// Package config gathers the connection-level options every other package
// in this module takes as constructor arguments instead of reading for
// itself, mirroring the teacher's shared/config.Config grouped-struct style
// generalized from a single service's settings into the handful of options
// an embedding application must supply to wire up messaging, storage and
// serialization. Apart from kurrentdb.ConfigFromEnv, which FromEnv calls, no
// package outside this one reads an environment variable, and none parses a
// flag; FromEnv is an opt-in convenience a host process may call, kept out
// of the bus/aggregate/repository/bridge critical path.
package config

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/streamstore"
	"github.com/reactivedomain/reactivedomain/streamstore/kurrentdb"
)

// ConfiguredConnection groups the options a StreamRepository/NameBuilder/
// Serializer trio is built from.
type ConfiguredConnection struct {
	// StreamNamePrefix is prepended to every stream and category-stream
	// name this module derives, letting several logical systems share one
	// KurrentDB cluster without colliding on stream names.
	StreamNamePrefix string

	// SliceSize bounds a single ReadStreamForward batch when a repository
	// or read model replays a stream.
	SliceSize int

	// AckTimeout bounds how long bus.Send waits for a command handler to
	// acknowledge receipt before failing with rderrors.KindAckTimeout.
	AckTimeout time.Duration

	// ResponseTimeout bounds how long bus.Send waits for the handler's
	// final response after acknowledgement, failing with
	// rderrors.KindResponseTimeout.
	ResponseTimeout time.Duration

	// FullyQualifyTypeNames is carried in the options (and read by FromEnv)
	// but Build does not pass it on: CommonMetadata.EventClrType always
	// carries the event's short name, whatever this field says.
	FullyQualifyTypeNames bool

	// ThrowOnTypeNotFound is carried in the options (and read by FromEnv)
	// but nothing in Build reads it; Registry.MustGetByFullName takes its
	// own throwOnNotFound argument from each caller.
	ThrowOnTypeNotFound bool

	// AssemblyOverride, when set, replaces the package-path portion of
	// every serialized event's qualified type name, for a reader consuming
	// a stream written by a differently-packaged producer of the same
	// event shapes.
	AssemblyOverride string

	// KurrentDB is the production stream store backend's connection
	// parameters. Zero-value means "use streamstore.MemoryStreamStore" —
	// Build never dials out unless a Host is set.
	KurrentDB kurrentdb.Config
}

// Default returns the options this module's own tests and the worked
// example build against: no stream prefix, a 100-event read slice (the
// teacher's KurrentDB client reads pages in this neighborhood), a
// five-second ack timeout and a thirty-second response timeout. These are
// longer than bus.DefaultAckTimeout/DefaultResponseTimeout (2s/10s), which
// apply only to a bus whose Options leave the timeouts zero.
func Default() ConfiguredConnection {
	return ConfiguredConnection{
		SliceSize:           100,
		AckTimeout:          5 * time.Second,
		ResponseTimeout:     30 * time.Second,
		ThrowOnTypeNotFound: true,
	}
}

// Build constructs the StreamStore, NameBuilder and Serializer this
// connection describes. A zero-value KurrentDB.Host selects
// streamstore.MemoryStreamStore; otherwise it dials the configured
// KurrentDB/EventStoreDB cluster.
func (c ConfiguredConnection) Build(ctx context.Context, registry *messaging.Registry) (streamstore.StreamStore, streamstore.NameBuilder, messaging.Serializer, error) {
	names := streamstore.NameBuilder{Prefix: c.StreamNamePrefix}
	serializer := &messaging.JSONSerializer{Registry: registry, AssemblyOverride: c.AssemblyOverride}

	if c.KurrentDB.Host == "" {
		return streamstore.NewMemoryStreamStore(), names, serializer, nil
	}

	store, err := kurrentdb.NewClient(c.KurrentDB)
	if err != nil {
		return nil, names, nil, err
	}
	return store, names, serializer, nil
}

// FromEnv layers environment variables over Default, mirroring the
// teacher's config.Load: STREAM_NAME_PREFIX, SLICE_SIZE, ACK_TIMEOUT_MS,
// RESPONSE_TIMEOUT_MS, FULLY_QUALIFY_TYPE_NAMES, THROW_ON_TYPE_NOT_FOUND,
// ASSEMBLY_OVERRIDE, and the KURRENTDB_* variables kurrentdb.ConfigFromEnv
// already recognizes. Never called by any package in this module itself.
func FromEnv() ConfiguredConnection {
	c := Default()
	c.StreamNamePrefix = getEnv("STREAM_NAME_PREFIX", c.StreamNamePrefix)
	c.SliceSize = getEnvInt("SLICE_SIZE", c.SliceSize)
	c.AckTimeout = getEnvMillis("ACK_TIMEOUT_MS", c.AckTimeout)
	c.ResponseTimeout = getEnvMillis("RESPONSE_TIMEOUT_MS", c.ResponseTimeout)
	c.FullyQualifyTypeNames = getEnvBool("FULLY_QUALIFY_TYPE_NAMES", c.FullyQualifyTypeNames)
	c.ThrowOnTypeNotFound = getEnvBool("THROW_ON_TYPE_NOT_FOUND", c.ThrowOnTypeNotFound)
	c.AssemblyOverride = getEnv("ASSEMBLY_OVERRIDE", c.AssemblyOverride)
	c.KurrentDB = kurrentdb.ConfigFromEnv()
	return c
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Millisecond
		}
	}
	return fallback
}
