// Package messaging defines the typed message model every other package in
// this module builds on: identity, correlation/causation, commands,
// events, and command responses. It is grounded on the teacher's
// internal/eventstore.Event (identity, timestamp, metadata shape) and on
// the EventMetadata causation/correlation fields retrieved from
// plaenen-eventstore's pkg/eventsourcing package.
package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MsgId is a 128-bit message identity.
type MsgId uuid.UUID

// NilMsgId is the zero value, used where the source spec calls for "no
// causation" (a root message has no cause).
var NilMsgId = MsgId(uuid.Nil)

// NewMsgId generates a new random v4 message id.
func NewMsgId() MsgId { return MsgId(uuid.New()) }

// ParseMsgId parses the canonical string form of a MsgId, as found in a JWT
// subject claim or a stream event's recorded id.
func ParseMsgId(s string) (MsgId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NilMsgId, err
	}
	return MsgId(id), nil
}

func (id MsgId) String() string { return uuid.UUID(id).String() }

// MarshalJSON renders a MsgId as its canonical UUID string, matching the
// header format readers expect from CorrelationId/CausationId/EventId
// fields written by the original .NET runtime.
func (id MsgId) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id).String())
}

// UnmarshalJSON parses a MsgId from its canonical UUID string form.
func (id *MsgId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	*id = MsgId(parsed)
	return nil
}

// IsNil reports whether id is the zero value.
func (id MsgId) IsNil() bool { return id == NilMsgId }

// Message is the base contract every command and event satisfies.
type Message interface {
	MsgId() MsgId
	TimeStamp() time.Time
}

// MessageBase is embedded by every concrete message type to satisfy Message.
type MessageBase struct {
	id        MsgId
	timeStamp time.Time
}

// NewMessageBase stamps a new identity and creation time.
func NewMessageBase() MessageBase {
	return MessageBase{id: NewMsgId(), timeStamp: time.Now().UTC()}
}

func (m MessageBase) MsgId() MsgId          { return m.id }
func (m MessageBase) TimeStamp() time.Time  { return m.timeStamp }

// CorrelatedMessage additionally carries the process-scope CorrelationId and
// the MsgId of its direct cause.
type CorrelatedMessage interface {
	Message
	CorrelationId() MsgId
	CausationId() MsgId
}

// CorrelatedMessageBase is embedded by commands and events that participate
// in causation/correlation tracking.
type CorrelatedMessageBase struct {
	MessageBase
	correlationId MsgId
	causationId   MsgId
}

// NewRootCorrelatedMessage starts a new causal chain: the message correlates
// with itself and has no causation.
func NewRootCorrelatedMessage() CorrelatedMessageBase {
	base := NewMessageBase()
	return CorrelatedMessageBase{
		MessageBase:   base,
		correlationId: base.MsgId(),
		causationId:   NilMsgId,
	}
}

// NewCorrelatedMessage derives a message caused by source: it inherits
// source's CorrelationId and is caused by source's MsgId.
func NewCorrelatedMessage(source CorrelatedMessage) CorrelatedMessageBase {
	return CorrelatedMessageBase{
		MessageBase:   NewMessageBase(),
		correlationId: source.CorrelationId(),
		causationId:   source.MsgId(),
	}
}

func (m CorrelatedMessageBase) CorrelationId() MsgId { return m.correlationId }
func (m CorrelatedMessageBase) CausationId() MsgId   { return m.causationId }

// Command is a message expecting exactly one handled response.
type Command interface {
	CorrelatedMessage
}

// Event is a message broadcast to zero or more subscribers.
type Event interface {
	CorrelatedMessage
}
