package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kirinyoku/staygo/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RoomsPubSub announces booking changes so that listeners can refresh room
// occupancy. Delivery is best effort.
type RoomsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewRoomsPubSub(rdb *redis.Client) *RoomsPubSub {
	return &RoomsPubSub{
		rdb:     rdb,
		channel: ChannelRoomsChanged(),
	}
}

func (p *RoomsPubSub) Publish(ctx context.Context, ev domain.BookingEvent) error {
	const op = "redis.RoomsPubSub.Publish"

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := p.rdb.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
