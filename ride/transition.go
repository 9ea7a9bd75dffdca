package ride

import (
	"fmt"
	"strings"

	"github.com/semanticallynull/rideledger-backend/internal/apperr"
)

var (
	ErrNotFound          = apperr.New(apperr.NotFound, "RIDE_NOT_FOUND", "ride not found")
	ErrAlreadyAccepted   = apperr.New(apperr.Conflict, "ALREADY_ACCEPTED", "ride already accepted")
	ErrAlreadyCancelled  = apperr.New(apperr.Conflict, "ALREADY_CANCELLED", "ride already cancelled")
	ErrAlreadyTerminal   = apperr.New(apperr.Conflict, "ALREADY_TERMINAL", "ride already completed or cancelled")
	ErrNotAccepted       = apperr.New(apperr.Conflict, "NOT_ACCEPTED", "ride not accepted")
	ErrNotOwner          = apperr.New(apperr.Forbidden, "NOT_OWNER", "sender does not own the ride")
	ErrInvalidTransition = apperr.New(apperr.Conflict, "INVALID_TRANSITION", "invalid ride transition")
)

type Action int

const (
	Accept Action = iota
	Complete
	Cancel
	Delete
)

func (a Action) String() string {
	return [...]string{"accept", "complete", "cancel", "delete"}[a]
}

// Target is the status a successful action leaves the ride in.
func (a Action) Target() Status {
	return [...]Status{Accepted, Completed, Cancelled, Deleted}[a]
}

// CheckTransition reports whether action may be applied to r. Transitions out of a terminal
// state fail with ErrInvalidTransition joined with the specific reason, so callers can match
// either.
//
//	accept:   Pending  -> Accepted
//	complete: Accepted -> Completed
//	cancel:   Pending  -> Cancelled
//	delete:   Pending  -> Deleted
func CheckTransition(r Ride, action Action) error {
	from := r.Status()
	if from.Terminal() {
		return fmt.Errorf("%w: %w", ErrInvalidTransition.WithReason("%s from %s", action, from), terminalReason(from))
	}

	switch action {
	case Accept, Cancel, Delete:
		if from == Accepted {
			return ErrAlreadyAccepted
		}
	case Complete:
		if from == Pending {
			return ErrNotAccepted
		}
	}
	return nil
}

func terminalReason(s Status) error {
	if s == Cancelled {
		return ErrAlreadyCancelled
	}
	return ErrAlreadyTerminal
}

func sameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
