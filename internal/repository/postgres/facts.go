package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/staygo/internal/domain"
	"github.com/kirinyoku/staygo/internal/repository"
)

type FactRepo struct {
	pool *pgxpool.Pool
	db   DB
}

var _ repository.Facts = (*FactRepo)(nil)

func (r *FactRepo) With(db DB) *FactRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *FactRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// FindEnrollmentByUser retrieves the enrollment of a user.
//
// Returns:
//   - *domain.Enrollment: the enrollment when found.
//   - error: repository.ErrNotFound if the user never enrolled.
func (r *FactRepo) FindEnrollmentByUser(ctx context.Context, userID int64) (*domain.Enrollment, error) {
	const op = "postgres.FactRepo.FindEnrollmentByUser"

	db := r.handle()

	var e domain.Enrollment
	err := db.QueryRow(ctx,
		`SELECT id, user_id, name, created_at, updated_at
		 FROM enrollments
		 WHERE user_id = $1
		 ORDER BY id
		 LIMIT 1`,
		userID,
	).Scan(&e.ID, &e.UserID, &e.Name, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

// FindTicketByEnrollment retrieves the first ticket of an enrollment with
// its ticket type.
//
// Returns:
//   - *domain.Ticket: the ticket when found.
//   - error: repository.ErrNotFound if the enrollment holds no ticket.
func (r *FactRepo) FindTicketByEnrollment(ctx context.Context, enrollmentID int64) (*domain.Ticket, error) {
	const op = "postgres.FactRepo.FindTicketByEnrollment"

	db := r.handle()

	var t domain.Ticket
	var status string

	err := db.QueryRow(ctx,
		`SELECT t.id, t.enrollment_id, t.ticket_type_id, t.status, t.created_at, t.updated_at,
		        tt.id, tt.name, tt.price, tt.is_remote, tt.includes_hotel, tt.created_at, tt.updated_at
		 FROM tickets t
		 JOIN ticket_types tt ON tt.id = t.ticket_type_id
		 WHERE t.enrollment_id = $1
		 ORDER BY t.id
		 LIMIT 1`,
		enrollmentID,
	).Scan(
		&t.ID,
		&t.EnrollmentID,
		&t.TicketTypeID,
		&status,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.Type.ID,
		&t.Type.Name,
		&t.Type.Price,
		&t.Type.IsRemote,
		&t.Type.IncludesHotel,
		&t.Type.CreatedAt,
		&t.Type.UpdatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	t.Status = domain.TicketStatus(status)

	return &t, nil
}

func (r *FactRepo) FindPaymentCount(ctx context.Context, ticketID int64) (int, error) {
	const op = "postgres.FactRepo.FindPaymentCount"

	db := r.handle()

	var n int64
	if err := db.QueryRow(ctx,
		`SELECT count(*) FROM payments WHERE ticket_id = $1`,
		ticketID,
	).Scan(&n); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return int(n), nil
}

// FindRoomWithActiveBookings retrieves a room and every booking on it.
// The room row is locked FOR UPDATE. Inside a serializable transaction a
// concurrent allocator waits for the lock and is then aborted with 40001
// (repository.ErrConflict) instead of seeing the committed booking.
//
// Returns:
//   - *domain.RoomWithBookings: the room when found.
//   - error: repository.ErrNotFound if the room does not exist.
func (r *FactRepo) FindRoomWithActiveBookings(ctx context.Context, roomID int64) (*domain.RoomWithBookings, error) {
	const op = "postgres.FactRepo.FindRoomWithActiveBookings"

	db := r.handle()

	var out domain.RoomWithBookings
	err := db.QueryRow(ctx,
		`SELECT id, name, capacity, hotel_id, created_at, updated_at
		 FROM rooms
		 WHERE id = $1
		 FOR UPDATE`,
		roomID,
	).Scan(
		&out.ID,
		&out.Name,
		&out.Capacity,
		&out.HotelID,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	rows, err := db.Query(ctx,
		`SELECT id, user_id, room_id, created_at, updated_at
		 FROM bookings
		 WHERE room_id = $1
		 ORDER BY id`,
		roomID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	for rows.Next() {
		var b domain.Booking
		if err := scanBooking(rows, &b); err != nil {
			return nil, wrapDBErr(op, err)
		}

		out.Bookings = append(out.Bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &out, nil
}

// FindBookingByUser retrieves the booking of a user with its room.
//
// Returns:
//   - *domain.BookingWithRoom: the booking when found.
//   - error: repository.ErrNotFound if the user has no booking.
func (r *FactRepo) FindBookingByUser(ctx context.Context, userID int64) (*domain.BookingWithRoom, error) {
	const op = "postgres.FactRepo.FindBookingByUser"

	db := r.handle()

	var out domain.BookingWithRoom
	err := db.QueryRow(ctx,
		`SELECT b.id, b.user_id, b.room_id, b.created_at, b.updated_at,
		        r.id, r.name, r.capacity, r.hotel_id, r.created_at, r.updated_at
		 FROM bookings b
		 JOIN rooms r ON r.id = b.room_id
		 WHERE b.user_id = $1`,
		userID,
	).Scan(
		&out.ID,
		&out.UserID,
		&out.RoomID,
		&out.CreatedAt,
		&out.UpdatedAt,
		&out.Room.ID,
		&out.Room.Name,
		&out.Room.Capacity,
		&out.Room.HotelID,
		&out.Room.CreatedAt,
		&out.Room.UpdatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &out, nil
}

// InsertBooking creates a booking for a user.
//
// Returns:
//   - *domain.Booking: the created booking.
//   - error: repository.ErrConflict if the user already holds a booking.
//   - error: repository.ErrNotFound if the room does not exist.
func (r *FactRepo) InsertBooking(ctx context.Context, userID, roomID int64) (*domain.Booking, error) {
	const op = "postgres.FactRepo.InsertBooking"

	db := r.handle()

	var b domain.Booking
	err := scanBooking(db.QueryRow(ctx,
		`INSERT INTO bookings(user_id, room_id)
		 VALUES ($1, $2)
		 RETURNING id, user_id, room_id, created_at, updated_at`,
		userID, roomID,
	), &b)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &b, nil
}

// UpdateBookingRoom moves a booking to another room.
//
// Returns:
//   - *domain.Booking: the booking after the move.
//   - error: repository.ErrNotFound if the booking or the room does not exist.
func (r *FactRepo) UpdateBookingRoom(ctx context.Context, bookingID, roomID int64) (*domain.Booking, error) {
	const op = "postgres.FactRepo.UpdateBookingRoom"

	db := r.handle()

	var b domain.Booking
	err := scanBooking(db.QueryRow(ctx,
		`UPDATE bookings
		 SET room_id = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING id, user_id, room_id, created_at, updated_at`,
		bookingID, roomID,
	), &b)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &b, nil
}

func scanBooking(row pgx.Row, b *domain.Booking) error {
	return row.Scan(&b.ID, &b.UserID, &b.RoomID, &b.CreatedAt, &b.UpdatedAt)
}
