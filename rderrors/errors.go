// Package rderrors defines the typed error kinds shared across the
// messaging, aggregate, repository, stream store and bridge packages.
//
// The source this module is distilled from surfaces most of these as
// thrown exceptions; Go has no exception hierarchy, so every kind below is
// represented as a value implementing error, and callers branch on Kind
// (or use errors.As on the handful of kinds that carry extra fields)
// instead of catching a typed exception. This mirrors the struct-per-kind
// shape of the teacher's shared/errors.AppError while matching the sum-type
// result model the source spec calls for.
package rderrors

import (
	"errors"
	"fmt"
)

// Kind classifies an Error into one of the recoverable/fatal classes.
type Kind string

const (
	KindArgumentNil          Kind = "argument_nil"
	KindArgumentOutOfRange   Kind = "argument_out_of_range"
	KindDuplicateRoute       Kind = "duplicate_route"
	KindDuplicateCommand     Kind = "duplicate_command_handler"
	KindDuplicateRole        Kind = "duplicate_role"
	KindDuplicateType        Kind = "duplicate_type"
	KindInvalidFrame         Kind = "invalid_frame"
	KindInvalidOperation     Kind = "invalid_operation"
	KindObjectDisposed       Kind = "object_disposed"
	KindWrongExpectedVersion Kind = "wrong_expected_version"
	KindStreamNotFound       Kind = "stream_not_found"
	KindStreamDeleted        Kind = "stream_deleted"
	KindUnsubscribedCommand  Kind = "unsubscribed_command"
	KindAckTimeout           Kind = "ack_timeout"
	KindResponseTimeout      Kind = "response_timeout"
	KindCommandException     Kind = "command_exception"
	KindAuthorization        Kind = "authorization"
	KindUnknownMessageType   Kind = "unknown_message_type"
	KindDeserialization      Kind = "deserialization_failure"
	KindDisconnected         Kind = "disconnected"
	KindFraming              Kind = "framing_error"
)

// Error is the common error value for every kind above.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target carries the same Kind, so callers can use
// errors.Is(err, rderrors.New(rderrors.KindStreamNotFound, "", nil)) style
// checks if they prefer that over inspecting Kind directly.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func ArgumentNil(op string) *Error        { return New(KindArgumentNil, op, nil) }
func ArgumentOutOfRange(op string) *Error { return New(KindArgumentOutOfRange, op, nil) }
func DuplicateRoute(op string) *Error     { return New(KindDuplicateRoute, op, nil) }
func DuplicateCommandHandler(op string) *Error {
	return New(KindDuplicateCommand, op, nil)
}
func DuplicateRole(op string) *Error   { return New(KindDuplicateRole, op, nil) }
func DuplicateType(op string) *Error   { return New(KindDuplicateType, op, nil) }
func InvalidFrame(op string, err error) *Error {
	return New(KindInvalidFrame, op, err)
}
func InvalidOperation(op string) *Error { return New(KindInvalidOperation, op, nil) }
func ObjectDisposed(op string) *Error   { return New(KindObjectDisposed, op, nil) }
func Authorization(op string) *Error    { return New(KindAuthorization, op, nil) }
func UnknownMessageType(op string) *Error {
	return New(KindUnknownMessageType, op, nil)
}
func DeserializationFailure(op string, err error) *Error {
	return New(KindDeserialization, op, err)
}
func Disconnected(op string) *Error { return New(KindDisconnected, op, nil) }
func Framing(op string, err error) *Error {
	return New(KindFraming, op, err)
}
func UnsubscribedCommand(op string) *Error { return New(KindUnsubscribedCommand, op, nil) }
func AckTimeout(op string) *Error          { return New(KindAckTimeout, op, nil) }
func ResponseTimeout(op string) *Error     { return New(KindResponseTimeout, op, nil) }

// WrongExpectedVersionError reports an optimistic concurrency conflict,
// carrying both the caller's expected version and the store's actual one.
type WrongExpectedVersionError struct {
	Stream   string
	Expected int64
	Actual   int64
}

func (e *WrongExpectedVersionError) Error() string {
	return fmt.Sprintf("wrong expected version on %q: expected %d, actual %d", e.Stream, e.Expected, e.Actual)
}

// StreamNotFoundError reports a read against a stream that has never been written.
type StreamNotFoundError struct{ Stream string }

func (e *StreamNotFoundError) Error() string { return fmt.Sprintf("stream not found: %s", e.Stream) }

// StreamDeletedError reports a read against a tombstoned stream.
type StreamDeletedError struct{ Stream string }

func (e *StreamDeletedError) Error() string { return fmt.Sprintf("stream deleted: %s", e.Stream) }

// ErrInvalidFrame is the sentinel a caller can match with errors.Is against
// any frame-length violation FrameReader.Next returns; Error.Is compares by
// Kind, so every *Error{Kind: KindInvalidFrame} value (regardless of Op/Err)
// matches it.
var ErrInvalidFrame = New(KindInvalidFrame, "", nil)

// ErrDuplicateRole is the sentinel for errors.Is against a PolicyUser.AddRole
// call naming a role that already exists under a different id.
var ErrDuplicateRole = New(KindDuplicateRole, "", nil)

// CommandError wraps a handler-thrown cause together with the command that
// caused it, for the throwing variant of Send (§7: CommandException).
type CommandError struct {
	Command any
	Cause   error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed: %v", e.Cause)
}

func (e *CommandError) Unwrap() error { return e.Cause }
