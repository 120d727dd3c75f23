package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/clinicapi/libs/auth"
	"github.com/md-rashed-zaman/clinicapi/libs/config"
	"github.com/md-rashed-zaman/clinicapi/libs/db"
	"github.com/md-rashed-zaman/clinicapi/libs/httpx"
	"github.com/md-rashed-zaman/clinicapi/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicapi/libs/otel"
	"github.com/md-rashed-zaman/clinicapi/libs/runtime"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/appointment"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/audit"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/handlers"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/lockout"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/metrics"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/outbox"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/patients"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/storage"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox publisher",
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.BindFlag("PORT", cmd.Flags().Lookup("port")); err != nil {
				return err
			}
			return config.BindFlag("DATABASE_URL", cmd.Flags().Lookup("database-url"))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := runtime.SignalContext(cmd.Context())
			defer stop()

			logger := runtime.NewLogger(service)
			s, err := loadSettings()
			if err != nil {
				logger.Error("invalid config", "err", err)
				return err
			}
			return serve(ctx, s, logger)
		},
	}
	cmd.Flags().String("port", "", "HTTP port (overrides PORT)")
	cmd.Flags().String("database-url", "", "Postgres URL (overrides DATABASE_URL)")
	return cmd
}

type userStore interface {
	handlers.UserStore
	handlers.UserAdmin
}

// backends holds the stores behind the API. In memory mode there is no
// database, outbox or audit table.
type backends struct {
	pool     *db.Pool
	rdb      *redis.Client
	store    appointment.Store
	users    userStore
	patients patients.Store
	audit    audit.Recorder
	counter  lockout.Counter
	checks   []runtime.ReadyCheck
}

func (b *backends) close() {
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
	b.pool.Close()
}

func openBackends(ctx context.Context, s settings, logger *slog.Logger) (*backends, error) {
	b := &backends{}

	if s.memoryMode() {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		b.store = appointment.NewMemoryStore()
		b.users = storage.NewMemoryUsers()
		b.patients = patients.NewMemoryStore()
		b.audit = audit.NewMemory()
	} else {
		pool, err := db.Open(ctx, s.DatabaseURL, db.Options{})
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		b.pool = pool
		if s.MigrateOnStart {
			if err := storage.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		b.store = storage.NewAppointmentRepository(pool, outbox.NewRepository())
		b.users = storage.NewUserRepository(pool)
		b.patients = storage.NewPatientRepository(pool)
		b.audit = audit.NewRepository(pool)
		b.checks = append(b.checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	}

	if s.RedisAddr != "" {
		b.rdb = redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		b.counter = lockout.NewRedisCounter(b.rdb, "")
		b.checks = append(b.checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return b.rdb.Ping(ctx).Err()
		}})
	} else {
		b.counter = lockout.NewMemoryCounter()
	}

	if len(s.KafkaBrokers) > 0 {
		b.checks = append(b.checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(s.KafkaBrokers)})
	}

	if err := seedAdmin(ctx, b.users, s); err != nil {
		b.close()
		return nil, err
	}
	return b, nil
}

// seedAdmin creates the configured admin account when it does not exist yet.
func seedAdmin(ctx context.Context, users userStore, s settings) error {
	if s.AdminDocument == "" || s.AdminPassword == "" {
		return nil
	}
	_, err := users.FindByDocument(ctx, s.AdminDocument)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		return fmt.Errorf("lookup admin: %w", err)
	}
	hash, err := auth.HashPassword(s.AdminPassword, s.BcryptRounds)
	if err != nil {
		return err
	}
	_, err = users.Create(ctx, storage.User{
		Document:     s.AdminDocument,
		FullName:     "Administrator",
		PasswordHash: hash,
		RoleID:       storage.RoleAdminID,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}

func (b *backends) limiter(limit int, window time.Duration, prefix string) httpx.Limiter {
	if b.rdb != nil {
		return httpx.NewRedisLimiter(b.rdb, limit, window, prefix)
	}
	return httpx.NewMemoryLimiter(limit, window)
}

func serve(ctx context.Context, s settings, logger *slog.Logger) error {
	shutdownTracing, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	b, err := openBackends(ctx, s, logger)
	if err != nil {
		return err
	}
	defer b.close()

	if b.pool != nil {
		publisher := outbox.NewPublisher(b.pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
			Brokers: strings.Join(s.KafkaBrokers, ","),
			Topic:   s.KafkaTopic,
		})
		go publisher.Run(ctx)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	domainMetrics := metrics.New(registry)

	issuer, err := auth.NewIssuer(s.JWTSecret, auth.IssuerOptions{AccessTTL: s.AccessTTL, RefreshTTL: s.RefreshTTL})
	if err != nil {
		return err
	}
	guard := lockout.NewGuard(b.counter, lockout.Options{MaxAttempts: s.MaxLoginAttempts, Window: s.LockoutWindow})
	engine := appointment.NewEngine(b.store, appointment.WithRescheduleConflictCheck(s.StrictReschedule))

	authHandler := handlers.NewAuthHandler(b.users, issuer, guard, b.audit, logger, domainMetrics)
	authn := auth.RequireAuth(issuer, authHandler.CheckUser)
	authLimit := httpx.RateLimit(b.limiter(s.AuthRateLimitMax, s.RateLimitWindow, "rl:auth"), httpx.RateLimitOptions{
		Prefix:   "auth",
		Message:  "Too many authentication attempts, please try again later.",
		Logger:   logger,
		FailOpen: true,
	})

	api := http.NewServeMux()
	authHandler.Register(api, authLimit, authn)
	handlers.NewAppointmentHandler(engine, logger, domainMetrics).Register(api, authn)
	handlers.NewPatientHandler(b.patients, engine, logger).Register(api, authn)
	handlers.NewUserHandler(b.users, s.BcryptRounds, logger).Register(api, authn)

	globalLimit := httpx.RateLimit(b.limiter(s.RateLimitMax, s.RateLimitWindow, "rl:api"), httpx.RateLimitOptions{
		Prefix:   "api",
		Logger:   logger,
		FailOpen: true,
	})

	mux := runtime.NewBaseMuxWithReady(b.checks...)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/api/", httpx.Chain(api,
		globalLimit,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	))

	httpMetrics := httpx.NewHTTPMetrics(registry)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.BrowserPolicy(s.CORSOrigins)),
		httpMetrics.Middleware(),
	)
	handler = otelhttp.NewHandler(handler, "http.server")

	srv := &http.Server{
		Addr:              ":" + s.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "memory_mode", s.memoryMode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server error", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
		return err
	}
	logger.Info("stopped")
	return nil
}
