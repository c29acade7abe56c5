package servicerequest

import (
	"errors"
	"fmt"

	"fundiplus/rating"
)

var (
	ErrNotFound          = errors.New("servicerequest: not found")
	ErrForbidden         = errors.New("servicerequest: forbidden")
	ErrInvalidTransition = errors.New("servicerequest: invalid status transition")
	ErrDuplicatePending  = errors.New("servicerequest: a pending request with this professional already exists")
	ErrNotApproved       = errors.New("servicerequest: professional is not yet approved")
	ErrInvalidInput      = errors.New("servicerequest: invalid input")

	ErrAlreadyRated = rating.ErrAlreadyRated
	ErrNotEligible  = rating.ErrNotEligible
)

// TransitionError reports a transition attempted from the wrong state.
type TransitionError struct {
	RequestID string
	Action    string
	Current   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("servicerequest: cannot %s request %s: current status is %s", e.Action, e.RequestID, e.Current)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// action names the operation that moves a request into to, for messages.
func action(to Status) string {
	switch to {
	case StatusAccepted:
		return "accept"
	case StatusDenied:
		return "deny"
	case StatusCompleted:
		return "complete"
	case StatusCancelled:
		return "cancel"
	}
	return "update"
}
