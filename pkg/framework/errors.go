package framework

import (
	"fmt"
	"strings"
)

// DeviceError is a failure reported by a named device during one of
// its lifecycle calls.
type DeviceError struct {
	Device string
	Op     string
	Err    error
}

// Error implements error
func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s %s: %v", e.Device, e.Op, e.Err)
}

// Unwrap returns the device's own error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// AggregatedError collects failures from steps which keep going after
// the first one, like initializing all devices.
type AggregatedError struct {
	Errors []error
}

// Error implements error
func (e *AggregatedError) Error() string {
	switch len(e.Errors) {
	case 0:
		return ""
	case 1:
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for n, err := range e.Errors {
		msgs[n] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *AggregatedError) Unwrap() []error {
	return e.Errors
}

// Add appends non-nil errors.
func (e *AggregatedError) Add(errs ...error) *AggregatedError {
	for _, err := range errs {
		if err != nil {
			e.Errors = append(e.Errors, err)
		}
	}
	return e
}

// Aggregate returns nil if nothing failed.
func (e *AggregatedError) Aggregate() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}
