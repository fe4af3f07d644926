package verify

import (
	"context"
	"errors"
	"fmt"

	"dev/bravebird/page-verifier/pkg/models"
)

// ErrorKind classifies why a run failed
type ErrorKind string

const (
	KindConfig          ErrorKind = "ConfigError"
	KindSession         ErrorKind = "SessionError"
	KindNavigation      ErrorKind = "NavigationError"
	KindElementNotFound ErrorKind = "ElementNotFoundError"
	KindTimeout         ErrorKind = "TimeoutError"
	KindIO              ErrorKind = "IOError"
	KindExpansion       ErrorKind = "ExpansionError"
)

// Sentinels matched by errors.Is against an *Error of the same kind
var (
	ErrConfig          = errors.New("invalid configuration")
	ErrSession         = errors.New("browser session unavailable")
	ErrNavigation      = errors.New("navigation failed")
	ErrElementNotFound = errors.New("element not found")
	ErrTimeout         = errors.New("timed out")
	ErrIO              = errors.New("artifact write failed")
	ErrNotExpanded     = errors.New("disclosure did not expand")
)

var kindSentinels = map[ErrorKind]error{
	KindConfig:          ErrConfig,
	KindSession:         ErrSession,
	KindNavigation:      ErrNavigation,
	KindElementNotFound: ErrElementNotFound,
	KindTimeout:         ErrTimeout,
	KindIO:              ErrIO,
	KindExpansion:       ErrNotExpanded,
}

// Error is returned by Runner.Run for every failure
type Error struct {
	Kind   ErrorKind
	Step   models.StepType // empty for failures outside a step
	Target string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Step != "" {
		msg += fmt.Sprintf(" during %s", e.Step)
	}
	if e.Target != "" {
		msg += fmt.Sprintf(" %q", e.Target)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of err, or "" when err is not an *Error
func KindOf(err error) ErrorKind {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return ""
}

func newError(kind ErrorKind, step models.Step, err error) *Error {
	return &Error{Kind: kind, Step: step.Type, Target: step.Target, Err: err}
}

// classify turns a driver error into an *Error. Deadline errors win over the
// fallback kind so a slow click reads as a timeout, not a missing element.
func classify(ctx context.Context, fallback ErrorKind, step models.Step, err error) *Error {
	var verr *Error
	if errors.As(err, &verr) {
		if verr.Step == "" {
			verr.Step = step.Type
			verr.Target = step.Target
		}
		return verr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(KindTimeout, step, err)
	}
	return newError(fallback, step, err)
}
