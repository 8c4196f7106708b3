package policy

import "github.com/reactivedomain/reactivedomain/messaging"

// Envelope carries a command alongside the correlation and principal data
// needed to authorize and trace it, independent of how the command arrived
// (in-process call, bridge frame, HTTP request). Every "setter" returns a
// modified copy, never mutating the receiver, since a single Envelope may
// be read from multiple goroutines once built.
type Envelope struct {
	CommandId     messaging.MsgId
	CorrelationId messaging.MsgId
	SourceId      *messaging.MsgId
	Command       messaging.Command
	Metadata      messaging.Metadata
	Principal     Principal
}

// NewEnvelope starts an Envelope from cmd, taking its id and correlation id
// as the envelope's own.
func NewEnvelope(cmd messaging.Command) Envelope {
	return Envelope{
		CommandId:     cmd.MsgId(),
		CorrelationId: cmd.CorrelationId(),
		Command:       cmd,
	}
}

// WithMetadata returns a copy of e carrying meta.
func (e Envelope) WithMetadata(meta messaging.Metadata) Envelope {
	e.Metadata = meta
	return e
}

// WithSourceId returns a copy of e recording id as the message that caused
// the enclosed command.
func (e Envelope) WithSourceId(id messaging.MsgId) Envelope {
	e.SourceId = &id
	return e
}

// WithPrincipal returns a copy of e attributing it to principal.
func (e Envelope) WithPrincipal(principal Principal) Envelope {
	e.Principal = principal
	return e
}
