// Package errs provides structured error types shared across spreadwatch components.
package errs

import (
	"sort"
	"strconv"
	"strings"
)

// Code identifies the taxonomy of errors the core can produce.
type Code string

const (
	// CodeConfig marks a fatal configuration error (unknown venue, malformed
	// canonical id, missing anchor venue).
	CodeConfig Code = "config"
	// CodeMapping marks a Symbol Registry lookup miss (NotFound / NotListed).
	// Non-fatal: the caller drops the event and increments a counter.
	CodeMapping Code = "mapping"
	// CodeTransient marks a network-layer failure: handshake timeout, dropped
	// stream, REST timeout. Drives a venue state machine or poller backoff.
	CodeTransient Code = "transient"
	// CodeProtocol marks a venue event with inconsistent fields (e.g. bid >
	// ask after normalization). The event is rejected, the stream continues.
	CodeProtocol Code = "protocol"
	// CodeInvariant marks an internal bug, e.g. a seq regression without a
	// reset. Callers are expected to crash the process after logging this.
	CodeInvariant Code = "invariant"
	// CodeConflict marks a compare-and-swap version mismatch in the Book Store.
	CodeConflict Code = "conflict"
	// CodeNotFound marks a missing key in a lookup (Book Store, Registry).
	CodeNotFound Code = "not_found"
	// CodeUnavailable marks a component that cannot currently serve requests
	// (bus closed, subscriber buffer full and non-blocking delivery impossible).
	CodeUnavailable Code = "unavailable"
)

// E is a structured error envelope carrying a Code plus context fields.
type E struct {
	Component   string
	Code        Code
	Message     string
	Fields      map[string]string
	Remediation string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the given component and code.
func New(component string, code Code, opts ...Option) *E {
	e := &E{
		Component: strings.TrimSpace(component),
		Code:      code,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) { e.Message = trimmed }
}

// WithRemediation attaches remediation guidance.
func WithRemediation(remediation string) Option {
	trimmed := strings.TrimSpace(remediation)
	return func(e *E) { e.Remediation = trimmed }
}

// WithField appends a single structured context field.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Fields == nil {
			e.Fields = make(map[string]string, 1)
		}
		e.Fields[trimmedKey] = value
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) { e.cause = err }
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	component := e.Component
	if component == "" {
		component = "spreadwatch"
	}
	parts = append(parts, "component="+component)
	parts = append(parts, "code="+string(e.Code))

	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.Remediation != "" {
		parts = append(parts, "remediation="+strconv.Quote(e.Remediation))
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Fields[k]))
		}
		parts = append(parts, "fields="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is reports whether err carries the given Code, unwrapping as needed.
func Is(err error, code Code) bool {
	for err != nil {
		e, ok := err.(*E)
		if !ok {
			u, ok := err.(interface{ Unwrap() error })
			if !ok {
				return false
			}
			err = u.Unwrap()
			continue
		}
		if e.Code == code {
			return true
		}
		err = e.cause
	}
	return false
}
