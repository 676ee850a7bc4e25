package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/libs/config"
	"github.com/md-rashed-zaman/counselbook/libs/db"
	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/libs/inbox"
	"github.com/md-rashed-zaman/counselbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/counselbook/libs/otel"
	"github.com/md-rashed-zaman/counselbook/libs/runtime"
	"github.com/md-rashed-zaman/counselbook/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/counselbook/services/notification-service/internal/handlers"
	"github.com/md-rashed-zaman/counselbook/services/notification-service/internal/storage"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.DefaultOptions())
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()
	if config.Bool("MIGRATE_ON_START", true) {
		if err := storage.Migrate(ctx, pool); err != nil {
			logger.Error("migration failed", "err", err)
			panic(err)
		}
	}

	repo := storage.NewRepository(pool)
	brokers := config.String("KAFKA_BROKERS", "")
	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers != "" {
		eventConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool), kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topic:   config.String("KAFKA_CONSUME_TOPIC", consumer.TopicNotificationRequested),
		}, consumer.Handler(repo, logger))
		go eventConsumer.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set, no notifications will arrive")
	}

	mux := runtime.NewBaseMux(checks...)
	handlers.New(repo, logger).Register(mux, auth.NewVerifier(jwtSecret, config.String("JWT_ISSUER", "")))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithCORS(httpx.CORSFromList(config.String("CORS_ALLOWED_ORIGINS", ""))),
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithTimeout(10*time.Second),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, "notification"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}
