package service

import (
	"log/slog"

	"github.com/kirinyoku/staygo/internal/repository"
	redisrepo "github.com/kirinyoku/staygo/internal/repository/redis"
	"github.com/kirinyoku/staygo/internal/service/booking"
)

type Services struct {
	Booking *booking.Service
}

type Config struct {
	Booking booking.Config
}

func NewServices(
	store repository.Store,
	cache *redisrepo.Cache,
	publishers []booking.Publisher,
	logger *slog.Logger,
	cfg Config,
) *Services {
	return &Services{
		Booking: booking.New(store, cache, publishers, logger, cfg.Booking),
	}
}
