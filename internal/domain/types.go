package domain

import (
	"time"
)

type TicketStatus string

const (
	TicketReserved TicketStatus = "RESERVED"
	TicketPaid     TicketStatus = "PAID"
)

type Enrollment struct {
	ID        int64
	UserID    int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TicketType struct {
	ID            int64
	Name          string
	Price         int
	IsRemote      bool
	IncludesHotel bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Ticket is loaded together with its type; the eligibility rules need both.
type Ticket struct {
	ID           int64
	EnrollmentID int64
	TicketTypeID int64
	Status       TicketStatus
	Type         TicketType
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Hotel struct {
	ID        int64
	Name      string
	Image     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Room struct {
	ID        int64
	Name      string
	Capacity  int
	HotelID   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Booking struct {
	ID        int64
	UserID    int64
	RoomID    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type RoomWithBookings struct {
	Room
	Bookings []Booking
}

// HasFreeCapacity reports whether one more booking fits into the room.
func (r RoomWithBookings) HasFreeCapacity() bool {
	return len(r.Bookings) < r.Capacity
}

type BookingWithRoom struct {
	Booking
	Room Room
}

// BookingView is what a user sees of their own booking.
type BookingView struct {
	ID   int64
	Room Room
}
