// Package eligibility decides whether a user's ticket entitles them to a
// hotel room.
package eligibility

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirinyoku/staygo/internal/domain"
	"github.com/kirinyoku/staygo/internal/repository"
)

type Oracle struct {
	facts repository.Facts
}

func New(facts repository.Facts) *Oracle {
	return &Oracle{facts: facts}
}

// With returns a copy of the oracle that reads through facts, typically the
// transaction-bound Facts handed out by repository.Store.InTx.
func (o *Oracle) With(facts repository.Facts) *Oracle {
	cp := *o
	cp.facts = facts
	return &cp
}

// IsHotelEligible reports whether the user's first ticket is hotel-eligible.
// A ticket that exists but does not qualify yields false and a nil error.
//
// Returns:
//   - bool: true if the ticket is PAID, paid for, in person and includes a hotel.
//   - error: eligibility.ErrEnrollmentNotFound if the user has no enrollment.
//   - error: eligibility.ErrTicketNotFound if the enrollment has no ticket.
func (o *Oracle) IsHotelEligible(ctx context.Context, userID int64) (bool, error) {
	const op = "service.eligibility.IsHotelEligible"

	enrollment, err := o.facts.FindEnrollmentByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, fmt.Errorf("%s:%w", op, ErrEnrollmentNotFound)
		}

		return false, fmt.Errorf("%s:%w", op, err)
	}

	ticket, err := o.facts.FindTicketByEnrollment(ctx, enrollment.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, fmt.Errorf("%s:%w", op, ErrTicketNotFound)
		}

		return false, fmt.Errorf("%s:%w", op, err)
	}

	// the remaining gates need no payment lookup
	if !HotelEligible(*ticket, 1) {
		return false, nil
	}

	payments, err := o.facts.FindPaymentCount(ctx, ticket.ID)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	return HotelEligible(*ticket, payments), nil
}

// HotelEligible is the eligibility rule over already loaded facts.
func HotelEligible(ticket domain.Ticket, payments int) bool {
	return ticket.Status == domain.TicketPaid &&
		payments >= 1 &&
		!ticket.Type.IsRemote &&
		ticket.Type.IncludesHotel
}
