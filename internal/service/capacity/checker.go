// Package capacity answers whether a room can take one more booking.
package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirinyoku/staygo/internal/repository"
)

var ErrRoomNotFound = fmt.Errorf("room %w", repository.ErrNotFound)

type Checker struct {
	facts repository.Facts
}

func New(facts repository.Facts) *Checker {
	return &Checker{facts: facts}
}

func (c *Checker) With(facts repository.Facts) *Checker {
	cp := *c
	cp.facts = facts
	return &cp
}

// HasFreeCapacity compares the bookings on a room with its capacity.
// The answer only holds while the caller stays inside the transaction
// that produced the Facts.
//
// Returns:
//   - bool: true if fewer bookings than capacity reference the room.
//   - error: capacity.ErrRoomNotFound if the room does not exist.
func (c *Checker) HasFreeCapacity(ctx context.Context, roomID int64) (bool, error) {
	const op = "service.capacity.HasFreeCapacity"

	room, err := c.facts.FindRoomWithActiveBookings(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, fmt.Errorf("%s:%w", op, ErrRoomNotFound)
		}

		return false, fmt.Errorf("%s:%w", op, err)
	}

	return room.HasFreeCapacity(), nil
}
