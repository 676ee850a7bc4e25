package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/libs/config"
	"github.com/md-rashed-zaman/counselbook/libs/grpcx"
	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	otelx "github.com/md-rashed-zaman/counselbook/libs/otel"
	"github.com/md-rashed-zaman/counselbook/libs/runtime"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/booking"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/checkin"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/handlers"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "appointment-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	checkinSecret, err := config.RequiredString("CHECKIN_SECRET")
	if err != nil {
		panic(err)
	}
	loc, err := config.Location("TIMEZONE", "UTC")
	if err != nil {
		panic(err)
	}
	start, err := config.Clock("WORKDAY_START", "08:00")
	if err != nil {
		panic(err)
	}
	end, err := config.Clock("WORKDAY_END", "17:00")
	if err != nil {
		panic(err)
	}
	grid := availability.Grid{
		Start:        start,
		End:          end,
		SlotDuration: time.Duration(config.Int("SLOT_DURATION_MINUTES", 60)) * time.Minute,
	}

	backend, err := openBackend(ctx, logger)
	if err != nil {
		logger.Error("store init failed", "err", err)
		panic(err)
	}
	defer backend.close()

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		backend.readyChecks = append(backend.readyChecks, runtime.ReadyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	codec, err := checkin.NewCodec([]byte(checkinSecret))
	if err != nil {
		panic(err)
	}
	var guard checkin.Guard
	if rdb != nil {
		guard = checkin.NewRedisGuard(rdb, config.Duration("CHECKIN_SCAN_GUARD_TTL", 5*time.Second))
	}
	checkins := checkin.NewService(backend.store, codec, guard, logger, checkin.Config{
		Grace:        config.Duration("CHECKIN_GRACE", 2*time.Hour),
		Location:     loc,
		RedirectBase: config.String("PUBLIC_BASE_URL", ""),
	})
	bookings, err := booking.NewManager(backend.store, checkins, logger, booking.Config{
		Grid:            grid,
		DefaultCapacity: config.Int("DEFAULT_SLOT_CAPACITY", 1),
		Location:        loc,
	})
	if err != nil {
		panic(err)
	}

	backend.startWorkers(ctx, logger)

	health := grpcx.NewHealthServer(logger)
	if err := health.Start(ctx, ":"+grpcPort); err != nil {
		logger.Error("grpc health server failed", "err", err)
	}

	var limiter httpx.Limiter = httpx.NewMemoryLimiter(config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute)
	if rdb != nil {
		limiter = httpx.NewRedisLimiter(rdb, config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute, service+":ratelimit:")
	}

	mux := runtime.NewBaseMux(backend.readyChecks...)
	handlers.NewAppointmentHandler(bookings, checkins, backend.dispatcher(logger), logger, config.Int("QR_SIZE_PX", 320)).
		Register(mux, auth.NewVerifier(jwtSecret, config.String("JWT_ISSUER", "")))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithCORS(httpx.CORSFromList(config.String("CORS_ALLOWED_ORIGINS", ""))),
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithRateLimit(limiter, logger, true),
		httpx.WithBodyLimit(8<<20),
		httpx.WithTimeout(15*time.Second),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(httpHandler, "appointment"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}
