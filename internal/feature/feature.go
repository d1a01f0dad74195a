package feature

import (
	"errors"
	"fmt"
)

// Status tracks progress of an async operation
type Status struct {
	InProgress bool `json:"inProgress"`
	Loaded     bool `json:"loaded"`
}

// Error carries the last failure of an async operation
type Error struct {
	IsError bool  `json:"isError"`
	Err     error `json:"-"`
}

// Message returns the error text for views, empty when there is no error
func (e Error) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Feature is the status envelope shared by every async view model
type Feature struct {
	Status Status `json:"status"`
	Error  Error  `json:"error"`
}

// Patch is a partial update; nil parts keep their current value
type Patch struct {
	Status *Status
	Error  *Error
}

// Apply merges p over f and returns the result.
func (f Feature) Apply(p Patch) Feature {
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.Error != nil {
		f.Error = *p.Error
	}
	return f
}

// InProgress marks the start of an operation and keeps the loaded flag.
func (f Feature) InProgress() Feature {
	f.Status.InProgress = true
	return f
}

// Succeeded marks a finished operation with no error.
func (f Feature) Succeeded() Feature {
	return f.Apply(Patch{
		Status: &Status{InProgress: false, Loaded: true},
		Error:  &Error{},
	})
}

// Failed marks a finished operation that ended with err.
func (f Feature) Failed(err error) Feature {
	return f.Apply(Patch{
		Status: &Status{InProgress: false, Loaded: true},
		Error:  &Error{IsError: true, Err: ToError(err)},
	})
}

// View is the JSON shape of a Feature with the error rendered as text.
type View struct {
	Status Status `json:"status"`
	Error  struct {
		IsError bool   `json:"isError"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// View renders f for transport.
func (f Feature) View() View {
	var v View
	v.Status = f.Status
	v.Error.IsError = f.Error.IsError
	v.Error.Message = f.Error.Message()
	return v
}

// ErrUnknown is used when a failure carries no usable message.
var ErrUnknown = errors.New("unknown error")

// ToError normalizes any recovered value into an error. Errors pass through
// unchanged; strings and fmt.Stringer values become the message; everything
// else maps to ErrUnknown. The input value stays reachable as Cause.
func ToError(v any) error {
	switch t := v.(type) {
	case nil:
		return ErrUnknown
	case error:
		return t
	case string:
		return &CauseError{Message: t, Cause: v}
	case fmt.Stringer:
		return &CauseError{Message: t.String(), Cause: v}
	default:
		return &CauseError{Message: ErrUnknown.Error(), Cause: v}
	}
}

// CauseError is a normalized error that remembers the raw value it came from.
type CauseError struct {
	Message string
	Cause   any
}

func (e *CauseError) Error() string { return e.Message }

// Unwrap exposes the cause when it is itself an error.
func (e *CauseError) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	if e.Message == ErrUnknown.Error() {
		return ErrUnknown
	}
	return nil
}
