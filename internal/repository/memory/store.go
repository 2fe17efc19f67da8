// Package memory keeps booking facts in process memory.
//
// A single mutex guards the data. InTx holds it for the whole function, so
// a check-then-insert inside InTx can not interleave with another one.
// Writes made inside InTx are visible to later reads in the same function
// and are undone when it returns an error.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kirinyoku/staygo/internal/domain"
	"github.com/kirinyoku/staygo/internal/repository"
)

type Store struct {
	mu sync.Mutex

	seq         int64
	enrollments map[int64]domain.Enrollment
	ticketTypes map[int64]domain.TicketType
	tickets     map[int64]domain.Ticket
	payments    map[int64]int
	hotels      map[int64]domain.Hotel
	rooms       map[int64]domain.Room
	bookings    map[int64]domain.Booking

	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		enrollments: make(map[int64]domain.Enrollment),
		ticketTypes: make(map[int64]domain.TicketType),
		tickets:     make(map[int64]domain.Ticket),
		payments:    make(map[int64]int),
		hotels:      make(map[int64]domain.Hotel),
		rooms:       make(map[int64]domain.Room),
		bookings:    make(map[int64]domain.Booking),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Facts() repository.Facts { return lockedFacts{s: s} }

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, facts repository.Facts) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txFacts{s: s}
	if err := fn(ctx, tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}

	return nil
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// lockedFacts serves single calls made outside InTx.
type lockedFacts struct {
	s *Store
}

func (f lockedFacts) FindEnrollmentByUser(ctx context.Context, userID int64) (*domain.Enrollment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.findEnrollmentByUser(userID)
}

func (f lockedFacts) FindTicketByEnrollment(ctx context.Context, enrollmentID int64) (*domain.Ticket, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.findTicketByEnrollment(enrollmentID)
}

func (f lockedFacts) FindPaymentCount(ctx context.Context, ticketID int64) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.payments[ticketID], nil
}

func (f lockedFacts) FindRoomWithActiveBookings(ctx context.Context, roomID int64) (*domain.RoomWithBookings, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.findRoomWithActiveBookings(roomID)
}

func (f lockedFacts) FindBookingByUser(ctx context.Context, userID int64) (*domain.BookingWithRoom, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.findBookingByUser(userID)
}

func (f lockedFacts) InsertBooking(ctx context.Context, userID, roomID int64) (*domain.Booking, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	b, err := f.s.newBooking(userID, roomID)
	if err != nil {
		return nil, err
	}
	f.s.bookings[b.ID] = *b

	return b, nil
}

func (f lockedFacts) UpdateBookingRoom(ctx context.Context, bookingID, roomID int64) (*domain.Booking, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	b, err := f.s.movedBooking(bookingID, roomID)
	if err != nil {
		return nil, err
	}
	f.s.bookings[b.ID] = *b

	return b, nil
}

// txFacts runs with Store.mu already held by InTx.
type txFacts struct {
	s    *Store
	undo []func()
}

func (f *txFacts) FindEnrollmentByUser(ctx context.Context, userID int64) (*domain.Enrollment, error) {
	return f.s.findEnrollmentByUser(userID)
}

func (f *txFacts) FindTicketByEnrollment(ctx context.Context, enrollmentID int64) (*domain.Ticket, error) {
	return f.s.findTicketByEnrollment(enrollmentID)
}

func (f *txFacts) FindPaymentCount(ctx context.Context, ticketID int64) (int, error) {
	return f.s.payments[ticketID], nil
}

func (f *txFacts) FindRoomWithActiveBookings(ctx context.Context, roomID int64) (*domain.RoomWithBookings, error) {
	return f.s.findRoomWithActiveBookings(roomID)
}

func (f *txFacts) FindBookingByUser(ctx context.Context, userID int64) (*domain.BookingWithRoom, error) {
	return f.s.findBookingByUser(userID)
}

func (f *txFacts) InsertBooking(ctx context.Context, userID, roomID int64) (*domain.Booking, error) {
	b, err := f.s.newBooking(userID, roomID)
	if err != nil {
		return nil, err
	}

	f.s.bookings[b.ID] = *b
	f.undo = append(f.undo, func() { delete(f.s.bookings, b.ID) })

	return b, nil
}

func (f *txFacts) UpdateBookingRoom(ctx context.Context, bookingID, roomID int64) (*domain.Booking, error) {
	b, err := f.s.movedBooking(bookingID, roomID)
	if err != nil {
		return nil, err
	}

	prev := f.s.bookings[b.ID]
	f.s.bookings[b.ID] = *b
	f.undo = append(f.undo, func() { f.s.bookings[prev.ID] = prev })

	return b, nil
}

func (s *Store) findEnrollmentByUser(userID int64) (*domain.Enrollment, error) {
	var found *domain.Enrollment
	for _, e := range s.enrollments {
		if e.UserID != userID {
			continue
		}
		if found == nil || e.ID < found.ID {
			e := e
			found = &e
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}

	return found, nil
}

func (s *Store) findTicketByEnrollment(enrollmentID int64) (*domain.Ticket, error) {
	var found *domain.Ticket
	for _, t := range s.tickets {
		if t.EnrollmentID != enrollmentID {
			continue
		}
		if found == nil || t.ID < found.ID {
			t := t
			found = &t
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}

	found.Type = s.ticketTypes[found.TicketTypeID]

	return found, nil
}

func (s *Store) findRoomWithActiveBookings(roomID int64) (*domain.RoomWithBookings, error) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	out := domain.RoomWithBookings{Room: room}
	for _, b := range s.bookings {
		if b.RoomID == roomID {
			out.Bookings = append(out.Bookings, b)
		}
	}
	sort.Slice(out.Bookings, func(i, j int) bool { return out.Bookings[i].ID < out.Bookings[j].ID })

	return &out, nil
}

func (s *Store) findBookingByUser(userID int64) (*domain.BookingWithRoom, error) {
	for _, b := range s.bookings {
		if b.UserID == userID {
			return &domain.BookingWithRoom{Booking: b, Room: s.rooms[b.RoomID]}, nil
		}
	}

	return nil, repository.ErrNotFound
}

// newBooking enforces the same constraints as the bookings table.
func (s *Store) newBooking(userID, roomID int64) (*domain.Booking, error) {
	if _, ok := s.rooms[roomID]; !ok {
		return nil, repository.ErrNotFound
	}
	for _, b := range s.bookings {
		if b.UserID == userID {
			return nil, repository.ErrConflict
		}
	}

	now := s.now()
	return &domain.Booking{
		ID:        s.nextID(),
		UserID:    userID,
		RoomID:    roomID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Store) movedBooking(bookingID, roomID int64) (*domain.Booking, error) {
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if _, ok := s.rooms[roomID]; !ok {
		return nil, repository.ErrNotFound
	}

	b.RoomID = roomID
	b.UpdatedAt = s.now()

	return &b, nil
}
