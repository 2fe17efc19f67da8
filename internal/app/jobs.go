package app

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	reconnectEvery = 30 * time.Second
	poolStatsEvery = time.Minute
)

type reconnecter interface {
	Reconnect() (bool, error)
}

type poolStater interface {
	Stat() *pgxpool.Stat
}

// newScheduler registers the background jobs. Nil dependencies skip their
// job. The scheduler is returned stopped.
func newScheduler(logger *slog.Logger, pool poolStater, broker reconnecter) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	if broker != nil {
		if _, err := sched.NewJob(
			gocron.DurationJob(reconnectEvery),
			gocron.NewTask(reconnectTask(logger, broker)),
			gocron.WithName("rabbitmq-reconnect"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			_ = sched.Shutdown()
			return nil, err
		}
	}

	if pool != nil {
		if _, err := sched.NewJob(
			gocron.DurationJob(poolStatsEvery),
			gocron.NewTask(poolStatsTask(logger, pool)),
			gocron.WithName("postgres-pool-stats"),
		); err != nil {
			_ = sched.Shutdown()
			return nil, err
		}
	}

	return sched, nil
}

func reconnectTask(logger *slog.Logger, broker reconnecter) func() {
	log := logger.With(slog.String("job", "rabbitmq-reconnect"))

	return func() {
		reconnected, err := broker.Reconnect()
		if err != nil {
			log.Warn("broker unreachable", slog.String("error", err.Error()))
			return
		}
		if reconnected {
			log.Info("broker connection restored")
		}
	}
}

func poolStatsTask(logger *slog.Logger, pool poolStater) func() {
	log := logger.With(slog.String("job", "postgres-pool-stats"))

	return func() {
		st := pool.Stat()
		log.Info("pool",
			slog.Int("total", int(st.TotalConns())),
			slog.Int("idle", int(st.IdleConns())),
			slog.Int("acquired", int(st.AcquiredConns())),
			slog.Int("max", int(st.MaxConns())),
			slog.Int64("empty_acquire", st.EmptyAcquireCount()),
			slog.Duration("acquire_duration", st.AcquireDuration()),
		)
	}
}
