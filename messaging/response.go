package messaging

import "github.com/reactivedomain/reactivedomain/rderrors"

// ResponseKind distinguishes a successful command response from a failed one.
type ResponseKind int

const (
	ResponseSuccess ResponseKind = iota
	ResponseFail
)

// CommandResponse is the sum-type result of dispatching a command: either
// Success or Fail(kind, cause), both referencing the originating command id.
type CommandResponse struct {
	Kind            ResponseKind
	SourceCommandId MsgId
	FailureKind     rderrors.Kind
	Err             error
}

// Succeed builds a successful response for sourceId.
func Succeed(sourceId MsgId) CommandResponse {
	return CommandResponse{Kind: ResponseSuccess, SourceCommandId: sourceId}
}

// Fail builds a failed response for sourceId, carrying the failure kind and
// its underlying cause.
func Fail(sourceId MsgId, kind rderrors.Kind, err error) CommandResponse {
	return CommandResponse{
		Kind:            ResponseFail,
		SourceCommandId: sourceId,
		FailureKind:     kind,
		Err:             err,
	}
}

// Success reports whether the response represents success.
func (r CommandResponse) Success() bool { return r.Kind == ResponseSuccess }

// AsError collapses a Fail response into an error, or nil on Success.
// bus.InProcessBus.Send uses it to return a Fail response's error alongside
// the response itself.
func (r CommandResponse) AsError(command any) error {
	if r.Success() {
		return nil
	}
	return &rderrors.CommandError{Command: command, Cause: r.Err}
}
