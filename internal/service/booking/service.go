// Package booking allocates hotel rooms to eligible users. A user holds at
// most one booking, which can be moved to another room but not cancelled.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/staygo/internal/domain"
	"github.com/kirinyoku/staygo/internal/repository"
	redisrepo "github.com/kirinyoku/staygo/internal/repository/redis"
	"github.com/kirinyoku/staygo/internal/service/capacity"
	"github.com/kirinyoku/staygo/internal/service/eligibility"
	"github.com/kirinyoku/staygo/internal/uow"
)

const afterCommitTimeout = 5 * time.Second

// Publisher receives booking events after the change is committed.
type Publisher interface {
	Publish(ctx context.Context, ev domain.BookingEvent) error
}

type Config struct {
	BookingViewTTL time.Duration
}

type Service struct {
	store      repository.Store
	cache      *redisrepo.Cache
	publishers []Publisher
	oracle     *eligibility.Oracle
	capacity   *capacity.Checker
	uow        *uow.UoW
	logger     *slog.Logger
	cfg        Config
}

// New builds the service. cache may be nil, in which case every read goes
// to the store.
func New(
	store repository.Store,
	cache *redisrepo.Cache,
	publishers []Publisher,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.BookingViewTTL <= 0 {
		cfg.BookingViewTTL = 30 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:      store,
		cache:      cache,
		publishers: publishers,
		oracle:     eligibility.New(store.Facts()),
		capacity:   capacity.New(store.Facts()),
		uow:        uow.NewUoW(store),
		logger:     logger,
		cfg:        cfg,
	}
}

// GetBooking retrieves the booking of a user together with its room.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: ID of the authenticated user.
//
// Returns:
//   - *domain.BookingView: the booking id and its room.
//   - error: booking.ErrBookingNotFound if the user has no booking.
func (s *Service) GetBooking(ctx context.Context, userID int64) (*domain.BookingView, error) {
	const op = "service.booking.GetBooking"

	load := func(ctx context.Context) (domain.BookingView, error) {
		b, err := s.store.Facts().FindBookingByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.BookingView{}, ErrBookingNotFound
			}

			return domain.BookingView{}, err
		}

		return domain.BookingView{ID: b.ID, Room: b.Room}, nil
	}

	var (
		view domain.BookingView
		err  error
	)

	if s.cache != nil {
		view, err = redisrepo.GetOrSetJSON(
			ctx,
			s.cache,
			redisrepo.KeyUserBooking(userID),
			redisrepo.KeyUserBookingGen(userID),
			s.cfg.BookingViewTTL,
			load,
		)
	} else {
		view, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &view, nil
}

// CreateBooking books a room for a user. The checks run in a fixed order
// and the first failing one decides the error.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: ID of the authenticated user.
//   - roomID: ID of the room to book.
//
// Returns:
//   - *domain.Booking: the created booking.
//   - error: booking.ErrAlreadyBooked if the user already has a booking.
//   - error: booking.ErrRoomNotFound if the room does not exist.
//   - error: booking.ErrRoomFull if the room has no free place.
//   - error: booking.ErrNoEnrollment if the user is not enrolled.
//   - error: booking.ErrTicketNotEligible if the ticket does not grant a room.
//   - error: booking.ErrBookingConflict if a concurrent change won the race.
func (s *Service) CreateBooking(ctx context.Context, userID, roomID int64) (*domain.Booking, error) {
	const op = "service.booking.CreateBooking"

	var created *domain.Booking

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		facts repository.Facts,
		after func(uow.AfterCommit),
	) error {
		_, err := facts.FindBookingByUser(ctx, userID)
		switch {
		case err == nil:
			return ErrAlreadyBooked
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		if err := s.checkRoom(ctx, facts, roomID); err != nil {
			return err
		}

		eligible, err := s.oracle.With(facts).IsHotelEligible(ctx, userID)
		if err != nil {
			switch {
			case errors.Is(err, eligibility.ErrEnrollmentNotFound):
				return ErrNoEnrollment
			case errors.Is(err, eligibility.ErrTicketNotFound):
				return ErrTicketNotEligible
			}

			return err
		}

		if !eligible {
			return ErrTicketNotEligible
		}

		b, err := facts.InsertBooking(ctx, userID, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRoomNotFound
			}

			return err
		}

		created = b

		after(func(ctx context.Context) {
			s.afterChange(ctx, domain.NewBookingEvent(domain.BookingCreated, *b, 0))
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateStoreErr(err))
	}

	return created, nil
}

// UpdateBooking moves the user's booking to another room. Ticket
// eligibility is not checked again.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: ID of the authenticated user.
//   - bookingID: ID of the booking to move, must be the user's own.
//   - roomID: ID of the target room.
//
// Returns:
//   - *domain.Booking: the booking after the move, with the same ID.
//   - error: booking.ErrNotBookingOwner if the user does not own bookingID.
//   - error: booking.ErrRoomNotFound if the room does not exist.
//   - error: booking.ErrRoomFull if the room has no free place.
//   - error: booking.ErrBookingConflict if a concurrent change won the race.
func (s *Service) UpdateBooking(ctx context.Context, userID, bookingID, roomID int64) (*domain.Booking, error) {
	const op = "service.booking.UpdateBooking"

	var updated *domain.Booking

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		facts repository.Facts,
		after func(uow.AfterCommit),
	) error {
		current, err := facts.FindBookingByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotBookingOwner
			}

			return err
		}

		if current.ID != bookingID {
			return ErrNotBookingOwner
		}

		if err := s.checkRoom(ctx, facts, roomID); err != nil {
			return err
		}

		b, err := facts.UpdateBookingRoom(ctx, bookingID, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRoomNotFound
			}

			return err
		}

		updated = b
		previousRoomID := current.RoomID

		after(func(ctx context.Context) {
			s.afterChange(ctx, domain.NewBookingEvent(domain.BookingUpdated, *b, previousRoomID))
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateStoreErr(err))
	}

	return updated, nil
}

// checkRoom fails with ErrRoomNotFound or ErrRoomFull.
func (s *Service) checkRoom(ctx context.Context, facts repository.Facts, roomID int64) error {
	free, err := s.capacity.With(facts).HasFreeCapacity(ctx, roomID)
	if err != nil {
		if errors.Is(err, capacity.ErrRoomNotFound) {
			return ErrRoomNotFound
		}

		return err
	}

	if !free {
		return ErrRoomFull
	}

	return nil
}

// afterChange runs once the change is committed. It must finish even if
// the request is cancelled meanwhile.
func (s *Service) afterChange(ctx context.Context, ev domain.BookingEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), afterCommitTimeout)
	defer cancel()

	if s.cache != nil {
		if err := s.cache.InvalidateBooking(ctx, ev.UserID); err != nil {
			s.logger.Warn("invalidate booking view",
				slog.Int64("user_id", ev.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, p := range s.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			s.logger.Warn("publish booking event",
				slog.String("type", string(ev.Type)),
				slog.Int64("booking_id", ev.BookingID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// translateStoreErr turns races lost at the store into ErrBookingConflict.
// Errors that already carry a booking kind pass through.
func translateStoreErr(err error) error {
	if Cause(err) != nil {
		return err
	}

	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("%w: %w", ErrBookingConflict, err)
	}

	return err
}
