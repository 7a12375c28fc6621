package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"mirakl-orchestrator/internal/app"
	"mirakl-orchestrator/internal/carrier"
	"mirakl-orchestrator/internal/clients"
	"mirakl-orchestrator/internal/config"
	"mirakl-orchestrator/internal/handler"
	"mirakl-orchestrator/internal/parser"
	"mirakl-orchestrator/internal/postgres"
	"mirakl-orchestrator/internal/repo"
	"mirakl-orchestrator/internal/service"
	"mirakl-orchestrator/internal/tracker"
	"mirakl-orchestrator/pkg/cache"
	"mirakl-orchestrator/pkg/trm"

	"github.com/joho/godotenv"
)

func main() {
	conf := config.New()
	logger := newLogger(conf.Env)
	panicIfErr("invalid config", conf.Validate())

	store, closeStore, err := newEventStore(logger, conf)
	panicIfErr("failed to init event store", err)
	defer closeStore()

	lru := cache.NewLRUCache(conf.Cache.Capacity, conf.Cache.TTL)
	trk := tracker.New(logger, store, conf.Tracker.TrackAttempts)

	mirakl := clients.NewMirakl(logger, conf.Mirakl)
	carriers := []service.Carrier{
		clients.NewTIPSA(logger, conf.TIPSA),
		clients.NewStubCarrier(logger, carrier.NewDHL()),
		clients.NewStubCarrier(logger, carrier.NewUPS()),
		clients.NewStubCarrier(logger, carrier.NewOnTime()),
	}

	orchestrator := service.NewOrchestrator(logger, trk, mirakl, carriers, parser.MiraklMapping(), lru)

	handler.RegisterMetrics()
	kafkaHandler := handler.NewKafkaHandler(logger, conf.Kafka, orchestrator)
	httpHandler := handler.NewHTTPHandler(logger, orchestrator)

	app := app.New(logger, conf)

	app.SetHTTPHandlers(httpHandler)
	app.SetConsumers(kafkaHandler)
	app.SetStarters(lru)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	panicIfErr("failed to start app", app.Start(ctx))
	<-ctx.Done()
	panicIfErr("failed to stop app", app.Stop())
}

func init() {
	godotenv.Load()
}

// newEventStore connects to postgres when credentials are configured and
// falls back to the in-memory log otherwise. The in-memory log loses
// history on restart, so it is only meant for local runs.
func newEventStore(logger *slog.Logger, conf config.Config) (tracker.Store, func(), error) {
	if conf.Postgres.User == "" {
		logger.Warn("postgres not configured, using in-memory event store")
		return tracker.NewMemoryStore(), func() {}, nil
	}

	db, err := postgres.New(conf.Postgres)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("postgres connected")

	return repo.NewEventStore(db, trm.NewManager(db)), func() { db.Close() }, nil
}

func newLogger(env string) *slog.Logger {
	switch env {
	case "production":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func panicIfErr(prefix string, err error) {
	if err != nil {
		panic(prefix + ": " + err.Error())
	}
}
