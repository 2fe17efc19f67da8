package repository

import (
	"context"

	"github.com/kirinyoku/staygo/internal/domain"
)

// Facts is the read/write surface the booking core works against.
// Lookups report a missing record as ErrNotFound.
type Facts interface {
	FindEnrollmentByUser(ctx context.Context, userID int64) (*domain.Enrollment, error)
	// FindTicketByEnrollment returns the first ticket of the enrollment
	// together with its ticket type.
	FindTicketByEnrollment(ctx context.Context, enrollmentID int64) (*domain.Ticket, error)
	FindPaymentCount(ctx context.Context, ticketID int64) (int, error)
	FindRoomWithActiveBookings(ctx context.Context, roomID int64) (*domain.RoomWithBookings, error)
	FindBookingByUser(ctx context.Context, userID int64) (*domain.BookingWithRoom, error)
	InsertBooking(ctx context.Context, userID, roomID int64) (*domain.Booking, error)
	UpdateBookingRoom(ctx context.Context, bookingID, roomID int64) (*domain.Booking, error)
}

// Store hands out Facts and runs functions atomically.
//
// Everything fn reads and writes through the Facts it receives happens in a
// single isolated unit: a room read there stays valid until fn returns.
type Store interface {
	Facts() Facts
	InTx(ctx context.Context, fn func(ctx context.Context, facts Facts) error) error
}
