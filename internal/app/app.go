package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/avstrong/pension/internal/booking"
	"github.com/avstrong/pension/internal/broker/rabbitmq"
	"github.com/avstrong/pension/internal/config"
	"github.com/avstrong/pension/internal/idgen/random"
	"github.com/avstrong/pension/internal/logger"
	"github.com/avstrong/pension/internal/migration"
	"github.com/avstrong/pension/internal/storage/cache"
	"github.com/avstrong/pension/internal/storage/memory"
	"github.com/avstrong/pension/internal/storage/postgres"
	"github.com/avstrong/pension/internal/transport/web"
)

// Store is what both storage backends provide.
type Store interface {
	booking.Catalog
	booking.ReservationLookup
	BeginTransaction(ctx context.Context, level string) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	SaveRooms(ctx context.Context, rooms []booking.Room) error
	SavePrograms(ctx context.Context, programs []booking.Program) error
	SaveReservation(ctx context.Context, reservation *booking.Reservation) error
	SaveEvent(ctx context.Context, event *booking.Event) error
	GetReservationByIdempotencyKey(ctx context.Context) (*booking.Reservation, error)
}

// OpenStore returns the configured store and a function releasing it.
func OpenStore(ctx context.Context, l *logger.Logger, cfg *config.Config) (Store, func(), error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		db, err := postgres.Open(ctx, postgres.Config{L: l, DSN: cfg.Storage.PostgresDSN})
		if err != nil {
			return nil, nil, err
		}

		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()

			return nil, nil, fmt.Errorf("migrate postgres schema: %w", err)
		}

		return db, func() {
			if err := db.Close(); err != nil {
				l.LogErrorf("Failed to close postgres: %v", err.Error())
			}
		}, nil
	default:
		db := memory.New(memory.Config{L: l})

		if cfg.Storage.Seed {
			if err := migration.Up(ctx, l, db); err != nil {
				return nil, nil, fmt.Errorf("up seed migration: %w", err)
			}

			l.LogInfo("Seed migration has been applied")
		}

		return db, func() {}, nil
	}
}

// NewManager wires the checker and manager, adding the Redis cache and the
// RabbitMQ publisher when they are enabled.
func NewManager(ctx context.Context, l *logger.Logger, cfg *config.Config, store Store) (*booking.Manager, func(), error) {
	var (
		catalog  booking.Catalog = store
		cleanups []func()
	)

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.Cache.Enabled {
		cacheConf := cache.Config{
			L:        l.With("component", "catalog_cache"),
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
		}

		client, err := cache.NewClient(ctx, cacheConf)
		if err != nil {
			return nil, nil, fmt.Errorf("connect catalog cache: %w", err)
		}

		cleanups = append(cleanups, func() { _ = client.Close() })
		catalog = cache.NewCatalog(store, client, cacheConf)
	}

	conf := booking.Conf{
		Rates:     cfg.RateTable(),
		Limits:    cfg.BookingLimits(),
		Publisher: nil,
		Now:       time.Now,
	}

	if cfg.Broker.Enabled {
		publisher, err := rabbitmq.Dial(rabbitmq.Config{
			L:        l.With("component", "publisher"),
			URL:      cfg.Broker.URL,
			Exchange: cfg.Broker.Exchange,
		})
		if err != nil {
			cleanup()

			return nil, nil, fmt.Errorf("connect event broker: %w", err)
		}

		cleanups = append(cleanups, func() {
			if err := publisher.Close(); err != nil {
				l.LogErrorf("Failed to close rabbitmq publisher: %v", err.Error())
			}
		})
		conf.Publisher = publisher
	}

	checker := booking.NewChecker(catalog, store, cfg.Checker.ProgramConcurrency)

	return booking.New(l.With("component", "booking"), store, random.New(), checker, conf), cleanup, nil
}

func Run(l *logger.Logger, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGHUP,
	)
	defer cancel()

	store, closeStore, err := OpenStore(ctx, l, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStore()

	reservationManager, closeManager, err := NewManager(ctx, l, cfg, store)
	if err != nil {
		return fmt.Errorf("init reservation manager: %w", err)
	}
	defer closeManager()

	webConf := web.Conf{
		L:                 l,
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		LivenessEndpoint:  cfg.Server.LivenessEndpoint,
		RateLimit:         web.RateLimit{RPS: cfg.Server.RateLimit.RPS, Burst: cfg.Server.RateLimit.Burst},
	}

	srv, err := web.New(ctx, webConf, reservationManager)
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	//nolint:contextcheck
	go func() {
		<-ctx.Done()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Srv().Shutdown(ctx); err != nil {
			l.LogErrorf("Failed to stop http server: %v", err.Error())
		}
	}()

	l.LogInfo("Application is running on %v:%v...", webConf.Host, webConf.Port)

	if err := srv.Srv().ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		l.LogErrorf("Failed to run http server: %v", err.Error())

		cancel()
	}

	l.LogInfo("Application stopped gracefully")

	return nil
}
