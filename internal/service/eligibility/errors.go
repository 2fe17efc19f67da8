package eligibility

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/staygo/internal/repository"
)

var (
	ErrEnrollmentNotFound = fmt.Errorf("enrollment %w", repository.ErrNotFound)
	ErrTicketNotFound     = fmt.Errorf("ticket %w", repository.ErrNotFound)
)

// IsNotFound reports whether err means the user has no enrollment or no ticket.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEnrollmentNotFound) || errors.Is(err, ErrTicketNotFound)
}
