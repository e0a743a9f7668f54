package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/example/ride-hailing/internal/auth"
	"github.com/example/ride-hailing/internal/config"
	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/fare"
	"github.com/example/ride-hailing/internal/geo"
	httpapi "github.com/example/ride-hailing/internal/http"
	"github.com/example/ride-hailing/internal/ingest"
	"github.com/example/ride-hailing/internal/logging"
	"github.com/example/ride-hailing/internal/matcher"
	"github.com/example/ride-hailing/internal/otp"
	"github.com/example/ride-hailing/internal/payments"
	"github.com/example/ride-hailing/internal/queue"
	"github.com/example/ride-hailing/internal/ride"
	"github.com/example/ride-hailing/internal/route"
	"github.com/example/ride-hailing/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	flags := pflag.NewFlagSet("ride-api", pflag.ExitOnError)
	addr := flags.String("http-addr", cfg.HTTPAddr, "listen address")
	level := flags.String("log-level", cfg.LogLevel, "debug, info, warn or error")
	migrate := flags.Bool("migrate", cfg.RunMigrations, "apply postgres migrations on start")
	workers := flags.Int("broadcast-workers", cfg.BroadcastWorkers, "new-ride broadcast workers")
	fareTable := flags.String("fare-table", cfg.FareTablePath, "YAML fare table overriding the defaults")
	_ = flags.Parse(os.Args[1:])
	cfg.HTTPAddr, cfg.LogLevel, cfg.RunMigrations = *addr, *level, *migrate
	cfg.BroadcastWorkers, cfg.FareTablePath = *workers, *fareTable
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := logging.NewLogger(cfg.LogLevel, "ride-api")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// closers run in reverse order on shutdown.
type closers []func()

func (c *closers) add(f func()) { *c = append(*c, f) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func run(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) error {
	var cleanup closers
	defer cleanup.run()
	var readiness []func(context.Context) error

	table := fare.DefaultTable()
	if cfg.FareTablePath != "" {
		t, err := fare.LoadTable(cfg.FareTablePath)
		if err != nil {
			return err
		}
		table = t
		logger.Info("fare table loaded", "path", cfg.FareTablePath)
	}
	codes, err := otp.NewGenerator(cfg.OTPLength)
	if err != nil {
		return err
	}

	repo, parties, err := openStorage(ctx, cfg, logger, &cleanup, &readiness)
	if err != nil {
		return err
	}

	var (
		drivers  geo.DriverIndex       = geo.NewIndex()
		sessions dispatch.SessionStore = dispatch.NewMemorySessions()
	)
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		cleanup.add(func() { _ = rc.Close() })
		readiness = append(readiness, func(ctx context.Context) error { return rc.Ping(ctx).Err() })
		drivers = geo.NewRedisGeo(rc, cfg.RedisGeoKey)
		sessions = dispatch.NewRedisSessions(rc, "")
		logger.Info("using redis geo index and sessions", "addr", cfg.RedisAddr)
	}

	var router route.Router = route.Estimator{SpeedMps: cfg.DefaultSpeedMps}
	if cfg.OSRMEndpoint != "" {
		router = &route.Cached{Router: route.NewOSRMClient(cfg.OSRMEndpoint), Cache: route.NewCache(10 * time.Minute)}
	}
	var geocoder geo.Geocoder = geo.LiteralGeocoder{}
	if cfg.GeocoderEndpoint != "" {
		geocoder = geo.NewNominatimGeocoder(cfg.GeocoderEndpoint)
	}
	adapter := &geo.Adapter{Geocoder: geocoder, Router: router, Drivers: drivers}

	registry := dispatch.NewWSRegistry()
	var mirrors []dispatch.Sender
	if cfg.PushEndpoint != "" {
		mirrors = append(mirrors, dispatch.NewPushSink(cfg.PushEndpoint, cfg.PushKey))
	}
	notifier := dispatch.NewNotifier(sessions, registry, logger, mirrors...)

	jobs, consumer, err := openQueue(cfg, logger, &cleanup)
	if err != nil {
		return err
	}

	tracker := &ingest.Tracker{Index: drivers, Logger: logger}
	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaLocationTopic)
		cleanup.add(func() { _ = producer.Close() })
		tracker.Publisher = producer
	}

	svc := &ride.Service{
		Repo:      repo,
		Directory: parties,
		Geo:       adapter,
		Fares:     fare.NewCalculator(table),
		OTP:       codes,
		Notifier:  notifier,
		Queue:     jobs,
		Logger:    logger,
	}
	broadcaster := &matcher.Broadcaster{
		Geo:      adapter,
		Rides:    repo,
		Notifier: notifier,
		RadiusKm: cfg.MatchRadiusKm,
		Logger:   logger,
	}

	deps := httpapi.Deps{
		Rides:     svc,
		Parties:   parties,
		Notifier:  notifier,
		Sessions:  registry,
		Locations: tracker,
		Logger:    logger,
		Ready: func(ctx context.Context) error {
			var errs []error
			for _, check := range readiness {
				errs = append(errs, check(ctx))
			}
			return errors.Join(errs...)
		},
	}
	if cfg.JWTSecret != "" {
		deps.Auth = auth.NewVerifier(cfg.JWTSecret, 0)
	}
	if cfg.StripeWebhookSecret != "" {
		deps.Payments = payments.NewWebhook(cfg.StripeWebhookSecret)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := broadcaster.Run(workerCtx, consumer, cfg.BroadcastWorkers); err != nil {
			logger.Error("broadcast workers stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ride-hailing listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		stopWorkers()
		wg.Wait()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	stopWorkers()
	wg.Wait()
	return err
}

func openStorage(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger, cleanup *closers, readiness *[]func(context.Context) error) (storage.RideRepository, storage.Directory, error) {
	switch {
	case cfg.MongoURI != "":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		ms, err := storage.NewMongoStore(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		cleanup.add(func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Close(closeCtx)
		})
		*readiness = append(*readiness, ms.Ping)
		logger.Info("using mongo storage", "database", cfg.MongoDatabase)
		return ms, ms.Directory(), nil

	case cfg.PGDSN != "":
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		cleanup.add(func() { _ = ps.Close() })
		*readiness = append(*readiness, ps.DB().PingContext)
		if cfg.RunMigrations {
			applied, err := ps.Migrate(ctx)
			if err != nil {
				return nil, nil, err
			}
			logger.Info("migrations applied", "files", applied)
		}
		logger.Info("using postgres storage")
		return ps, storage.NewPostgresDirectory(ps.DB()), nil
	}
	logger.Warn("no database configured, rides are kept in memory")
	return storage.NewMemoryStore(), storage.NewMemoryDirectory(), nil
}

type jobQueue interface {
	queue.Queue
	queue.Consumer
}

func openQueue(cfg config.ServerConfig, logger *slog.Logger, cleanup *closers) (queue.Queue, queue.Consumer, error) {
	var q jobQueue
	switch {
	case len(cfg.KafkaBrokers) > 0:
		kq := queue.NewKafkaQueue(cfg.KafkaBrokers, cfg.KafkaBroadcastTopic, cfg.KafkaGroup, logger)
		cleanup.add(func() { _ = kq.Close() })
		q = kq
		logger.Info("broadcast queue on kafka", "topic", cfg.KafkaBroadcastTopic)
	case cfg.AMQPURL != "":
		aq, err := queue.NewAMQPQueue(cfg.AMQPURL, cfg.AMQPQueue, logger)
		if err != nil {
			return nil, nil, err
		}
		cleanup.add(func() { _ = aq.Close() })
		q = aq
		logger.Info("broadcast queue on rabbitmq", "queue", cfg.AMQPQueue)
	default:
		q = queue.NewMemoryQueue(0)
	}
	return q, q, nil
}
