package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingEventType string

const (
	BookingCreated BookingEventType = "booking.created"
	BookingUpdated BookingEventType = "booking.updated"
)

// BookingEvent is emitted after a booking change has been committed.
// PreviousRoomID is set only for BookingUpdated.
type BookingEvent struct {
	ID             uuid.UUID        `json:"id"`
	Type           BookingEventType `json:"type"`
	BookingID      int64            `json:"booking_id"`
	UserID         int64            `json:"user_id"`
	RoomID         int64            `json:"room_id"`
	PreviousRoomID int64            `json:"previous_room_id,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

func NewBookingEvent(t BookingEventType, b Booking, previousRoomID int64) BookingEvent {
	return BookingEvent{
		ID:             uuid.New(),
		Type:           t,
		BookingID:      b.ID,
		UserID:         b.UserID,
		RoomID:         b.RoomID,
		PreviousRoomID: previousRoomID,
		OccurredAt:     time.Now().UTC(),
	}
}
