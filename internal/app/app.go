package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/staygo/internal/config"
	"github.com/kirinyoku/staygo/internal/postgres"
	"github.com/kirinyoku/staygo/internal/rabbitmq"
	"github.com/kirinyoku/staygo/internal/redis"
	postgresrepo "github.com/kirinyoku/staygo/internal/repository/postgres"
	rabbitrepo "github.com/kirinyoku/staygo/internal/repository/rabbitmq"
	redisrepo "github.com/kirinyoku/staygo/internal/repository/redis"
	"github.com/kirinyoku/staygo/internal/service"
	"github.com/kirinyoku/staygo/internal/service/booking"
	httpgin "github.com/kirinyoku/staygo/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	scheduler  gocron.Scheduler

	pool   *pgxpool.Pool
	rdb    *goredis.Client
	events *rabbitrepo.EventsPublisher
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg

	// Initialize dependencies
	pool, err := postgres.New(ctx, postgres.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DB:       cfg.Postgres.Name,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize postgres: %w", err)
	}
	a.pool = pool

	rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	a.rdb = rdb

	// Initialize repositories
	store := postgresrepo.NewStore(pool)
	if cfg.Postgres.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
		a.logger.Info("schema applied")
	}

	cache := redisrepo.New(rdb)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, cfg.Booking.IdempotencyTTL)

	var limiter *redisrepo.SlidingWindowLimiter
	if cfg.RateLimit.PerMinute > 0 {
		limiter = redisrepo.NewSlidingWindowLimiter(rdb, redisrepo.KeyRateLimit("booking"), cfg.RateLimit.PerMinute, time.Minute)
	}

	publishers := []booking.Publisher{redisrepo.NewRoomsPubSub(rdb)}

	// the broker is optional and may come up after the service
	var broker reconnecter
	if cfg.RabbitMQ.URL != "" {
		a.events = rabbitrepo.NewEventsPublisher(func() (*amqp.Connection, error) {
			return rabbitmq.New(rabbitmq.Config{URL: cfg.RabbitMQ.URL})
		}, cfg.RabbitMQ.Queue)

		if _, err := a.events.Reconnect(); err != nil {
			a.logger.Warn("rabbitmq unavailable, will retry", slog.String("error", err.Error()))
		}

		publishers = append(publishers, a.events)
		broker = a.events
	}

	// Initialize services
	services := service.NewServices(store, cache, publishers, a.logger, service.Config{
		Booking: booking.Config{BookingViewTTL: cfg.Booking.CacheTTL},
	})

	// Initialize Gin router
	router := httpgin.NewRouter(services, httpgin.Config{
		JWTSecret:   []byte(cfg.Auth.JWTSecret),
		Idempotency: idempotencyStore,
		Limiter:     limiter,
	}, a.logger)

	a.scheduler, err = newScheduler(a.logger, pool, broker)
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer a.close()

	a.scheduler.Start()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// close releases everything New managed to open.
func (a *App) close() {
	if a.scheduler != nil {
		if err := a.scheduler.Shutdown(); err != nil {
			a.logger.Warn("scheduler shutdown", slog.String("error", err.Error()))
		}
	}

	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.logger.Warn("rabbitmq close", slog.String("error", err.Error()))
		}
	}

	if a.rdb != nil {
		_ = a.rdb.Close()
	}

	if a.pool != nil {
		a.pool.Close()
	}
}
