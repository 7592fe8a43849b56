package monitor

import (
	"errors"
	"fmt"
	"strings"
)

// SinkError wraps a delivery failure with the position of the sink that
// produced it inside a MultiSink.
type SinkError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *SinkError) Unwrap() error {
	return e.Err
}

// DeliveryError aggregates the sink failures of one fan-out delivery.
type DeliveryError struct {
	Errors []*SinkError
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return fmt.Sprintf("delivery error: %v", e.Errors[0])
	}
	msgs := make([]string, len(e.Errors))
	for i, se := range e.Errors {
		msgs[i] = se.Error()
	}
	return fmt.Sprintf("delivery errors (%d): %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes every sink error so errors.Is matches any of them.
func (e *DeliveryError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, se := range e.Errors {
		errs[i] = se
	}
	return errs
}

// AsDeliveryError extracts a DeliveryError from err, or returns nil.
func AsDeliveryError(err error) *DeliveryError {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de
	}
	return nil
}
