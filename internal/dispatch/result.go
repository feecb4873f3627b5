package dispatch

import (
	"fmt"
)

// FailureClass partitions tool invocation outcomes for the trace and for
// retry decisions at the agent executor boundary.
type FailureClass string

const (
	FailureNone           FailureClass = ""
	FailureResolution     FailureClass = "resolution"
	FailureTransport      FailureClass = "transport"
	FailureTimeout        FailureClass = "timeout"
	FailureAuthentication FailureClass = "authentication"
	FailureProtocol       FailureClass = "protocol"

	// FailureTool covers a well-formed backend response with success=false.
	FailureTool FailureClass = "tool"
)

// Result is the normalized outcome of one tool invocation. A transport
// failure is always represented as a failed Result, never as fabricated
// success data.
type Result struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Class   FailureClass           `json:"error_class,omitempty"`

	// Status carries the HTTP status code of the backend response, when one
	// was received.
	Status int `json:"status,omitempty"`

	// Synthetic marks an explicitly degraded placeholder result produced
	// when a deployment opts into local-testing fallbacks. Callers and
	// tests use it to distinguish placeholders from genuine backend data.
	Synthetic bool `json:"synthetic,omitempty"`
}

// Failed builds a failed result with the given classification.
func Failed(class FailureClass, format string, args ...interface{}) *Result {
	return &Result{
		Success: false,
		Error:   fmt.Sprintf(format, args...),
		Class:   class,
	}
}

// FailedStatus builds a failed result carrying an HTTP status code.
func FailedStatus(class FailureClass, status int, format string, args ...interface{}) *Result {
	r := Failed(class, format, args...)
	r.Status = status
	return r
}
