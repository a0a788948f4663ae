// Package errors defines the error kinds exchanged across the envelope
// boundary (spec §7) and the helpers to mark, test, and reconstruct them.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind identifies one of the error kinds a response envelope can carry.
type Kind string

const (
	Timeout               Kind = "Timeout"
	Canceled              Kind = "Canceled"
	UnknownActorType      Kind = "UnknownActorType"
	UnknownMethod         Kind = "UnknownMethod"
	MalformedPayload      Kind = "MalformedPayload"
	ConcurrencyConflict   Kind = "ConcurrencyConflict"
	RateLimited           Kind = "RateLimited"
	CircuitOpen           Kind = "CircuitOpen"
	ActorFailure          Kind = "ActorFailure"
	SupervisorEscalation  Kind = "SupervisorEscalation"
)

// sentinel is the marker error registered per Kind so that errors.Is works
// after a round trip through errors.Mark / Is.
type sentinel struct{ kind Kind }

func (s *sentinel) Error() string { return string(s.kind) }

var sentinels = map[Kind]*sentinel{
	Timeout:              {Timeout},
	Canceled:             {Canceled},
	UnknownActorType:     {UnknownActorType},
	UnknownMethod:        {UnknownMethod},
	MalformedPayload:     {MalformedPayload},
	ConcurrencyConflict:  {ConcurrencyConflict},
	RateLimited:          {RateLimited},
	CircuitOpen:          {CircuitOpen},
	ActorFailure:         {ActorFailure},
	SupervisorEscalation: {SupervisorEscalation},
}

// New wraps msg as a typed error of the given kind, capturing a stack trace
// via cockroachdb/errors so DLQ entries can optionally record it.
func New(kind Kind, msg string) error {
	return errors.Mark(errors.NewWithDepth(1, msg), sentinels[kind])
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap marks an existing error with kind, preserving its cause chain and
// stack trace.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, sentinels[kind])
}

// Is reports whether err is (or wraps) an error of the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sentinels[kind])
}

// ConcurrencyConflictErr carries the expected/actual versions for a
// failed compare-and-set (spec §4.9).
type ConcurrencyConflictErr struct {
	Expected, Actual int64
}

func (e *ConcurrencyConflictErr) Error() string {
	return fmt.Sprintf("concurrency conflict: expected version %d, actual %d", e.Expected, e.Actual)
}

// NewConcurrencyConflict builds the ConcurrencyConflict kind carrying the
// expected/actual versions, matching §3's invariant.
func NewConcurrencyConflict(expected, actual int64) error {
	return Wrap(ConcurrencyConflict, &ConcurrencyConflictErr{Expected: expected, Actual: actual})
}

// StackTrace renders the captured stack trace, if any, for DLQ capture
// (spec §4.11 captureStackTraces).
func StackTrace(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%+v", err)
}
