package memory

import (
	"github.com/kirinyoku/staygo/internal/domain"
)

// The Add* helpers seed records that the booking core only reads.
// They return the stored value with its assigned ID.

func (s *Store) AddEnrollment(userID int64, name string) domain.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := domain.Enrollment{ID: s.nextID(), UserID: userID, Name: name, CreatedAt: now, UpdatedAt: now}
	s.enrollments[e.ID] = e

	return e
}

func (s *Store) AddTicketType(name string, price int, isRemote, includesHotel bool) domain.TicketType {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	tt := domain.TicketType{
		ID:            s.nextID(),
		Name:          name,
		Price:         price,
		IsRemote:      isRemote,
		IncludesHotel: includesHotel,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.ticketTypes[tt.ID] = tt

	return tt
}

func (s *Store) AddTicket(enrollmentID, ticketTypeID int64, status domain.TicketStatus) domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	t := domain.Ticket{
		ID:           s.nextID(),
		EnrollmentID: enrollmentID,
		TicketTypeID: ticketTypeID,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.tickets[t.ID] = t
	t.Type = s.ticketTypes[ticketTypeID]

	return t
}

func (s *Store) AddPayment(ticketID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payments[ticketID]++
}

func (s *Store) AddHotel(name, image string) domain.Hotel {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	h := domain.Hotel{ID: s.nextID(), Name: name, Image: image, CreatedAt: now, UpdatedAt: now}
	s.hotels[h.ID] = h

	return h
}

func (s *Store) AddRoom(hotelID int64, name string, capacity int) domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	r := domain.Room{ID: s.nextID(), Name: name, Capacity: capacity, HotelID: hotelID, CreatedAt: now, UpdatedAt: now}
	s.rooms[r.ID] = r

	return r
}

// AddBooking stores a booking without any eligibility or capacity checks.
func (s *Store) AddBooking(userID, roomID int64) domain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b := domain.Booking{ID: s.nextID(), UserID: userID, RoomID: roomID, CreatedAt: now, UpdatedAt: now}
	s.bookings[b.ID] = b

	return b
}

// CountBookings returns how many bookings reference the room.
func (s *Store) CountBookings(roomID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, b := range s.bookings {
		if b.RoomID == roomID {
			n++
		}
	}

	return n
}
