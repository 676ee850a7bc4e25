package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/config"
	"github.com/md-rashed-zaman/counselbook/libs/db"
	"github.com/md-rashed-zaman/counselbook/libs/inbox"
	"github.com/md-rashed-zaman/counselbook/libs/kafkax"
	"github.com/md-rashed-zaman/counselbook/libs/runtime"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/booking"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/checkin"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/directory"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/memstore"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/notify"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/outbox"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/storage"
)

type appStore interface {
	booking.Store
	checkin.Store
	directory.Repository
}

// backend bundles the store with whatever the chosen driver needs to run
// alongside it.
type backend struct {
	store       appStore
	pool        *db.Pool
	outbox      *outbox.Repository
	dedupe      kafkax.Deduper
	readyChecks []runtime.ReadyCheck
}

func openBackend(ctx context.Context, logger *slog.Logger) (*backend, error) {
	switch driver := config.String("STORE_DRIVER", "postgres"); driver {
	case "memory":
		mem := memstore.New()
		if err := seedCounselors(ctx, mem, config.String("SEED_PROGRAM_COUNSELORS", "")); err != nil {
			return nil, err
		}
		logger.Warn("using in-memory store, data is lost on restart")
		return &backend{store: mem}, nil
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return nil, err
		}
		opts := db.DefaultOptions()
		opts.MaxConns = int32(config.Int("DB_MAX_CONNS", int(opts.MaxConns)))
		pool, err := db.Open(ctx, dbURL, opts)
		if err != nil {
			return nil, err
		}
		if config.Bool("MIGRATE_ON_START", true) {
			if err := storage.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &backend{
			store:       storage.New(pool),
			pool:        pool,
			outbox:      outbox.NewRepository(pool),
			dedupe:      inbox.NewRepository(pool),
			readyChecks: []runtime.ReadyCheck{{Name: "postgres", Check: db.ReadyCheck(pool)}},
		}, nil
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be postgres or memory (got %q)", driver)
	}
}

// dispatcher routes notices through the outbox when there is one so the
// notification service receives them; otherwise they are only logged.
func (b *backend) dispatcher(logger *slog.Logger) *notify.Dispatcher {
	if b.outbox == nil {
		return notify.NewDispatcher(nil, notify.NewLogSink(logger), logger)
	}
	return notify.NewDispatcher(b.outbox, notify.NewOutboxSink(b.outbox), logger)
}

func (b *backend) startWorkers(ctx context.Context, logger *slog.Logger) {
	brokers := config.String("KAFKA_BROKERS", "")
	if brokers == "" {
		logger.Info("KAFKA_BROKERS not set, outbox relay and directory consumer disabled")
		return
	}
	b.readyChecks = append(b.readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})

	if b.outbox != nil {
		publisher := outbox.NewPublisher(b.pool, b.outbox, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)
	}

	consumer := kafkax.NewConsumer(logger, b.dedupe, kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "appointment-service"),
		Topic:   config.String("KAFKA_DIRECTORY_TOPIC", directory.TopicCounselorAssigned),
	}, directory.Handler(b.store, logger))
	go consumer.Run(ctx)
}

func (b *backend) close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

// seedCounselors loads "Program:counselor" pairs separated by commas.
func seedCounselors(ctx context.Context, repo directory.Repository, raw string) error {
	at := time.Now().UTC()
	for i, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		program, counselor, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(program) == "" || strings.TrimSpace(counselor) == "" {
			return fmt.Errorf("SEED_PROGRAM_COUNSELORS: bad entry %q", pair)
		}
		err := repo.UpsertProgramCounselor(ctx, model.ProgramCounselor{
			CounselorID: strings.TrimSpace(counselor),
			Program:     strings.TrimSpace(program),
			Active:      true,
			AssignedAt:  at.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			return err
		}
	}
	return nil
}
