package errors

import (
	"errors"
	"fmt"
)

// Domain error types for the workflow engine and bridge

var (
	// ErrToolNotFound indicates a tool could not be resolved in the registry
	ErrToolNotFound = errors.New("tool not found")

	// ErrAgentNotFound indicates a workflow_order role has no matching agent
	ErrAgentNotFound = errors.New("agent not found")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransport indicates a failed call to a tool backend (timeout, refused, non-2xx)
	ErrTransport = errors.New("transport failure")

	// ErrAuthentication indicates a bad or missing signature or API key
	ErrAuthentication = errors.New("authentication failed")

	// ErrProtocol indicates a backend response that does not match the tool wire format
	ErrProtocol = errors.New("protocol error")

	// ErrValidation indicates schema violations on bridge-side data
	ErrValidation = errors.New("validation failed")

	// ErrIntegrity indicates a database constraint violation on insert
	ErrIntegrity = errors.New("integrity violation")

	// ErrPolicyHalt indicates a department run halted on a failed agent
	ErrPolicyHalt = errors.New("halted on agent failure")

	// ErrRunTimeout indicates the whole-run deadline was exceeded
	ErrRunTimeout = errors.New("department run timeout")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrUnavailable indicates a backing service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
