package tools

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is returned when the model requests a tool that is not in
// the registry.
var ErrUnknownTool = errors.New("unknown tool")

// InvalidArgumentsError reports malformed or missing tool arguments. This is
// a model error: it should not occur when the model respects declared schemas.
type InvalidArgumentsError struct {
	Tool   string
	Reason string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}

// UpstreamError reports a failed call to an external service, including
// timeouts. Status is 0 for transport-level failures.
type UpstreamError struct {
	Service string
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %d %s", e.Service, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func invalidArgs(tool, format string, args ...any) *InvalidArgumentsError {
	return &InvalidArgumentsError{Tool: tool, Reason: fmt.Sprintf(format, args...)}
}

func upstreamErr(service string, err error) *UpstreamError {
	return &UpstreamError{Service: service, Message: err.Error(), Err: err}
}
