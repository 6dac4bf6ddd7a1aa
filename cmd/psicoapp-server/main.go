package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/psicoapp/psicoapp/internal/config"
	"github.com/psicoapp/psicoapp/internal/domain/appointments"
	"github.com/psicoapp/psicoapp/internal/domain/availability"
	"github.com/psicoapp/psicoapp/internal/domain/requests"
	"github.com/psicoapp/psicoapp/internal/platform/auth"
	"github.com/psicoapp/psicoapp/internal/platform/db"
	"github.com/psicoapp/psicoapp/internal/platform/metrics"
	"github.com/psicoapp/psicoapp/internal/platform/middleware"
	"github.com/psicoapp/psicoapp/internal/platform/notification"
	"github.com/psicoapp/psicoapp/internal/platform/reminder"
	"github.com/psicoapp/psicoapp/internal/platform/validate"
	"github.com/psicoapp/psicoapp/internal/platform/websocket"
	"github.com/psicoapp/psicoapp/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "psicoapp-server",
		Short: "Appointment coordination API for the psicoapp platform",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(workerCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Hour,
	})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	run := func(op func(ctx context.Context, m *db.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator, err := db.NewMigrator(pool, migrations.FS, ".")
			if err != nil {
				return err
			}
			defer migrator.Close()
			return op(ctx, migrator)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: run(func(ctx context.Context, m *db.Migrator) error {
			if err := m.Up(ctx); err != nil {
				return err
			}
			v, err := m.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Database at version %d.\n", v)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: run(func(ctx context.Context, m *db.Migrator) error {
			return m.Status(ctx)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: run(func(ctx context.Context, m *db.Migrator) error {
			return m.Down(ctx)
		}),
	})
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver appointment reminders from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

// services is everything the HTTP layer and the worker share.
type services struct {
	requests     *requests.Service
	availability *availability.Service
	appointments *appointments.Service
	notifier     *notification.Notifier
	hub          *websocket.Hub
}

// buildServices wires the domain graph. Live notifications go through Redis
// when rdb is set, otherwise straight to hub; either may be nil.
func buildServices(pool *pgxpool.Pool, rdb *redis.Client, hub *websocket.Hub, enq reminder.Enqueuer, cfg *config.Config, loc *time.Location, logger zerolog.Logger, m *metrics.Metrics) *services {
	sink := notification.MultiSink{notification.NewPGSink(pool)}
	switch {
	case rdb != nil:
		sink = append(sink, notification.NewRedisSink(rdb))
	case hub != nil:
		sink = append(sink, hub)
	}
	notifier := notification.NewNotifier(sink, logger, m)
	tx := db.NewTxRunner(pool)

	reqRepo := requests.NewRepoPG(pool)
	reqSvc := requests.NewService(reqRepo, notifier, m, logger, requests.Config{
		MinReasonLength: cfg.MinReasonLength,
	})

	availSvc := availability.NewService(
		availability.NewSlotRepoPG(pool),
		availability.NewBreakRepoPG(pool),
		availability.NewHoursRepoPG(pool),
		tx, logger,
		availability.Config{MaxDurationMinutes: cfg.MaxDurationMinutes, Location: loc, Horizon: cfg.BookingHorizon()},
	)

	apptSvc := appointments.NewService(appointments.Deps{
		Repo:      appointments.NewRepoPG(pool),
		Requests:  reqRepo,
		Avail:     availSvc,
		Tx:        tx,
		Notifier:  notifier,
		Reminders: enq,
		Metrics:   m,
		Logger:    logger,
	}, appointments.Config{
		Horizon:            cfg.BookingHorizon(),
		MaxDurationMinutes: cfg.MaxDurationMinutes,
		MinReasonLength:    cfg.MinReasonLength,
	})

	return &services{requests: reqSvc, availability: availSvc, appointments: apptSvc, notifier: notifier, hub: hub}
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		return auth.DevAuthMiddleware()
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		SigningKey: []byte(cfg.AuthSigningKey),
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
	})
}

// newRouter builds the echo instance. pinger and stats back /health/db.
func newRouter(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics, svc *services, pinger db.Pinger, stats func() db.PoolStats) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	v := validate.New()
	e.Validator = v
	e.HTTPErrorHandler = middleware.NewHTTPErrorHandler(logger, v)

	// Logger renders errors itself, so Recovery and metrics sit inside it.
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{
			echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader,
			auth.HeaderUserID, auth.HeaderUserRole, auth.HeaderInstitutionID,
		},
	}))
	e.Use(echomw.BodyLimit("1M"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pinger, stats))
	e.GET("/metrics", m.Handler())

	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}

	api := e.Group("/api/v1",
		middleware.RateLimit(rl, logger),
		middleware.RequestTimeout(cfg.RequestTimeout),
		authMiddleware(cfg),
		auth.InstitutionScope(),
	)
	requests.NewHandler(svc.requests).RegisterRoutes(api)
	availability.NewHandler(svc.availability).RegisterRoutes(api)
	appointments.NewHandler(svc.appointments).RegisterRoutes(api)

	if svc.hub != nil {
		live := e.Group("/api/v1/notifications", authMiddleware(cfg))
		websocket.NewHandler(svc.hub, cfg.CORSOrigins).RegisterRoutes(live)
	}

	return e
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	loc, _ := cfg.Location() // checked by Validate

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	m := metrics.New()

	var (
		rdb *redis.Client
		enq reminder.Enqueuer = reminder.Noop{}
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()

		connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL for asynq: %w", err)
		}
		client := asynq.NewClient(connOpt)
		defer client.Close()
		enq = reminder.NewAsynqEnqueuer(client, cfg.ReminderLead, m)
		logger.Info().Msg("redis notifications and reminders enabled")
	} else {
		logger.Warn().Msg("REDIS_URL not set, reminders and pub/sub fan-out disabled")
	}

	hub := websocket.NewHub(logger)
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	if rdb != nil {
		go func() {
			if err := hub.Relay(relayCtx, rdb); err != nil {
				logger.Error().Err(err).Msg("live notification relay stopped")
			}
		}()
	}

	svc := buildServices(pool, rdb, hub, enq, cfg, loc, logger, m)
	e := newRouter(cfg, logger, m, svc, pool, func() db.PoolStats { return db.GetPoolStats(pool) })

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runWorker() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if cfg.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for the worker")
	}
	loc, _ := cfg.Location()

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL for asynq: %w", err)
	}

	m := metrics.New()
	svc := buildServices(pool, rdb, nil, reminder.Noop{}, cfg, loc, logger, m)

	srv := reminder.NewServer(connOpt, cfg.WorkerConcurrency, logger)
	mux := reminder.NewMux(reminder.Handler(svc.appointments, svc.notifier, loc, logger, m))

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("starting reminder worker")
	// Run blocks until SIGTERM or SIGINT.
	if err := srv.Run(mux); err != nil {
		return fmt.Errorf("reminder worker: %w", err)
	}
	return nil
}
