// Package apperr defines the error kinds shared by the registry, the ledger client and the
// coordinator. Callers decide to retry, poll or abort from the Kind alone.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	// Validation errors will never succeed if retried unchanged.
	Validation
	Conflict
	NotFound
	Forbidden
	// Ledger errors come from the chain: reverts, funds, gas, transport.
	Ledger
	// Unconfirmed means a transaction was broadcast but no receipt was seen in time.
	Unconfirmed
	Storage
	// Upstream errors come from external collaborators other than the ledger.
	Upstream
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Ledger:
		return "ledger"
	case Unconfirmed:
		return "unconfirmed"
	case Storage:
		return "storage"
	case Upstream:
		return "upstream"
	}
	return "unknown"
}

// Error is a classified error. Two Errors match under errors.Is when their codes are equal, so
// a copy carrying a reason still matches its sentinel.
type Error struct {
	Kind   Kind
	Code   string
	Msg    string
	Reason string
	Err    error
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func (e *Error) Error() string {
	s := e.Msg
	if e.Reason != "" {
		s += ": " + e.Reason
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithReason returns a copy of e annotated with a diagnostic reason.
func (e *Error) WithReason(format string, args ...any) *Error {
	c := *e
	c.Reason = fmt.Sprintf(format, args...)
	return &c
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

// KindOf reports the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// CodeOf reports the code of the first classified error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ReasonOf reports the first non-empty reason found in err's chain.
func ReasonOf(err error) string {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Reason != "" {
			return e.Reason
		}
		if j, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range j.Unwrap() {
				if r := ReasonOf(inner); r != "" {
					return r
				}
			}
			return ""
		}
		err = errors.Unwrap(err)
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
