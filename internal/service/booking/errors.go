package booking

import (
	"errors"
	"fmt"
)

// Error kinds. Every error below wraps exactly one of them.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
)

var (
	ErrBookingNotFound = fmt.Errorf("%w: user has no booking", ErrNotFound)
	ErrRoomNotFound    = fmt.Errorf("%w: room does not exist", ErrNotFound)

	ErrAlreadyBooked     = fmt.Errorf("%w: user already has a booking", ErrForbidden)
	ErrRoomFull          = fmt.Errorf("%w: room is fully booked", ErrForbidden)
	ErrNoEnrollment      = fmt.Errorf("%w: user has no enrollment", ErrForbidden)
	ErrTicketNotEligible = fmt.Errorf("%w: ticket does not grant a hotel room", ErrForbidden)
	ErrNotBookingOwner   = fmt.Errorf("%w: booking does not belong to user", ErrForbidden)

	ErrBookingConflict = fmt.Errorf("%w: booking changed concurrently", ErrConflict)
)

var known = []error{
	ErrBookingNotFound,
	ErrRoomNotFound,
	ErrAlreadyBooked,
	ErrRoomFull,
	ErrNoEnrollment,
	ErrTicketNotEligible,
	ErrNotBookingOwner,
	ErrBookingConflict,
}

// Cause returns the specific booking error wrapped in err, without the
// operation prefixes added on the way up, or nil if there is none.
func Cause(err error) error {
	for _, e := range known {
		if errors.Is(err, e) {
			return e
		}
	}

	return nil
}
