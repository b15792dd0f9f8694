package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/orders-dashboard/internal/auth"
	"github.com/xenking/orders-dashboard/internal/domain/order"
	"github.com/xenking/orders-dashboard/internal/domain/report"
	"github.com/xenking/orders-dashboard/internal/domain/user"
	"github.com/xenking/orders-dashboard/internal/handler"
	"github.com/xenking/orders-dashboard/internal/storage/postgres"
	rediscache "github.com/xenking/orders-dashboard/internal/storage/redis"
	"github.com/xenking/orders-dashboard/pkg/health"
	"github.com/xenking/orders-dashboard/pkg/httpmiddleware"
)

const serviceName = "orders-api"

// Server is the assembled HTTP application.
type Server struct {
	Handler http.Handler
	Health  *health.Health

	closers []func()
}

// Close releases the database pool and the Redis client.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// NewServer connects to the stores, runs migrations and wires every route.
// The caller must Close the returned Server.
func NewServer(ctx context.Context, lg *zap.Logger, t httpmiddleware.Telemetry, cfg *Config) (_ *Server, rerr error) {
	s := &Server{Health: health.New()}
	defer func() {
		if rerr != nil {
			s.Close()
		}
	}()

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	s.closers = append(s.closers, pool.Close)

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	s.Health.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	s.Health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Redis is optional: without it the dashboard is computed on every
	// request and login attempts are counted in process.
	var (
		cache   handler.Cache = handler.NopCache{}
		limiter httpmiddleware.Limiter
	)
	if cfg.RedisURL != "" {
		rdb, err := rediscache.Connect(cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "connect redis")
		}
		s.closers = append(s.closers, func() { _ = rdb.Close() })

		dashboardCache, err := rediscache.New(rdb, "orders:dashboard:", cfg.Cache.TTL, t.MeterProvider())
		if err != nil {
			return nil, errors.Wrap(err, "create dashboard cache")
		}
		cache = dashboardCache
		s.Health.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(dashboardCache))
		limiter = httpmiddleware.NewRedisLimiter(rdb, "orders:ratelimit:",
			cfg.LoginRateLimit.Max, cfg.LoginRateLimit.Window)
	} else {
		lg.Warn("Redis is not configured, dashboard cache disabled")
		mem := httpmiddleware.NewMemoryLimiter(cfg.LoginRateLimit.Max, cfg.LoginRateLimit.Window)
		go sweepLimiter(ctx, mem, cfg.LoginRateLimit.Window)
		limiter = mem
	}

	issuer, err := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TTL)
	if err != nil {
		return nil, errors.Wrap(err, "create token issuer")
	}

	// Repositories.
	clientRepo := postgres.NewClientRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	reportRepo := postgres.NewReportRepository(pool)
	orderStore := postgres.NewOrderStore(pool)

	// Domain services.
	orderService := order.NewService(orderStore)
	reportService := report.NewService(reportRepo, report.Config{
		Currency:   cfg.Report.Currency,
		OtherLabel: cfg.Report.OtherLabel,
	})
	userService := user.NewService(userRepo, issuer)

	h := handler.NewHandler(handler.Config{Currency: cfg.Report.Currency}, handler.Deps{
		Reports:       reportService,
		Orders:        orderService,
		Users:         userService,
		Tokens:        issuer,
		Products:      productRepo,
		Categories:    productRepo,
		Clients:       clientRepo,
		Cache:         cache,
		AuthRateLimit: httpmiddleware.RateLimit(limiter, httpmiddleware.ClientIP),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", s.Health.LiveEndpoint)
	mux.HandleFunc("GET /readyz", s.Health.ReadyEndpoint)
	h.Register(mux)

	s.Handler = httpmiddleware.Wrap(mux,
		httpmiddleware.Instrument(serviceName, t),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.LogRequests(),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.Labeler(),
	)
	return s, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	srv, err := NewServer(ctx, lg, m, cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           srv.Handler,
	}
	srv.Health.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		srv.Health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// sweepLimiter drops idle rate limit windows until ctx is done.
func sweepLimiter(ctx context.Context, l *httpmiddleware.MemoryLimiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}
