package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "github.com/nomii-dev-lst/monitor-health-sub000/internal/config/scheduler"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/alert"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/event"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/httpapi"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/obs"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/obs/retry"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/realtime"
	kafkaRepo "github.com/nomii-dev-lst/monitor-health-sub000/internal/repository/kafka"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/repository/memory"
	pg "github.com/nomii-dev-lst/monitor-health-sub000/internal/repository/postgres"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/notifier"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/probe"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/probe/auth"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/scheduler"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/status"
)

type stores struct {
	monitors monitor.Repo
	results  check.Repo
	alerts   alert.Repo
	settings alert.Settings
	tx       scheduler.Transactor
	health   func(context.Context) error
	close    func()
}

func main() {
	cfgPath := flag.String("config", envOr("CONFIG_PATH", "config/scheduler.yaml"), "path to yaml config")
	flag.Parse()

	// init
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting monitor engine",
		zap.String("storage", cfg.Storage),
		zap.Bool("kafka", cfg.Kafka.Enable),
		zap.Bool("kafka_relay", cfg.Kafka.Relay),
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.Duration("tick", cfg.Sched.Tick),
	)

	// otel
	otelCloser, err := obs.SetupOTel(ctx, cfg.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// storage
	st, err := openStores(ctx, cfg, l)
	if err != nil {
		l.Fatal("storage init", zap.Error(err))
	}
	defer st.close()

	// notification channels
	channels := []notifier.Channel{}
	if m := notifier.NewMailer(cfg.SMTP); m != nil {
		channels = append(channels, m.WithLogger(l))
	}
	if s := notifier.NewSlack(cfg.Slack); s != nil {
		channels = append(channels, s)
	}
	tg, err := notifier.NewTelegram(cfg.Telegram)
	if err != nil {
		l.Fatal("telegram init", zap.Error(err))
	}
	if tg != nil {
		channels = append(channels, tg)
	}
	n := notifier.New(cfg.Alerts.Product, l, channels...).
		WithRetry(retry.DefaultDeliveryPolicy("alert_delivery", l))
	l.Info("notification channels", zap.Strings("channels", n.Channels()))

	// real-time fan-out
	hub := realtime.NewHub(realtime.NewPresence(cfg.Realtime.PresenceSize, cfg.Realtime.PresenceTTL), l)
	events := event.Multi{hub}

	// kafka
	var kafkaEvents *kafkaRepo.CheckEventsKafka
	if cfg.Kafka.Enable {
		prod := kafkaRepo.BootstrapProducer(ctx, cfg.Kafka.ProducerConfig, l)
		defer func() { _ = prod.Close() }()
		kafkaEvents = kafkaRepo.NewCheckEventsKafka(prod, retry.DefaultPublishPolicy("check_events", l), cfg.Kafka.PublishTimeout, l).
			WithOrigin(cfg.Kafka.InstanceID)
		events = append(events, kafkaEvents)
	}
	relayDone := make(chan struct{})
	if cfg.Kafka.Enable && cfg.Kafka.Relay {
		cons := kafkaRepo.NewConsumer(&kafkaRepo.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: "monitor-engine.relay." + cfg.Kafka.InstanceID,
			Topic:   cfg.Kafka.Topic,
			Logger:  l,
		})
		go func() {
			defer close(relayDone)
			defer func() { _ = cons.Close() }()
			if err := cons.Consume(ctx, kafkaRepo.CheckEventRelay(cfg.Kafka.InstanceID, hub, l)); err != nil && ctx.Err() == nil {
				l.Error("check event relay stopped", zap.Error(err))
			}
		}()
	} else {
		close(relayDone)
	}

	// probe
	client := probe.NewHTTPClient(cfg.Probe)
	exec := probe.NewExecutor(client, auth.NewResolver(client, cfg.Probe.UserAgent, l), cfg.Probe, l)

	// wiring
	uc := scheduler.NewUC(scheduler.Deps{
		Monitors:   st.monitors,
		Results:    st.results,
		Prober:     exec,
		Machine:    status.NewMachine(st.settings, nil, l),
		Dispatcher: status.NewDispatcher(n, st.alerts, l),
		Events:     events,
		Owners:     hub,
		Tx:         st.tx,
	}, cfg.AsPolicy(), l)
	runner := scheduler.New(l, uc, cfg.AsRunnerConfig())

	api := &httpapi.Server{
		Logger:    l,
		Scheduler: runner,
		Trigger:   uc,
		Hub:       hub,
		Results:   st.results,
		Alerts:    st.alerts,
		Health:    st.health,
		BaseCtx:   ctx,
	}
	srv := obs.BootstrapHTTPServer(cfg.HTTP, api.Router(), l)

	// run
	if cfg.Sched.AutoStart {
		if err := runner.Start(ctx); err != nil {
			l.Fatal("scheduler start", zap.Error(err))
		}
	}

	<-ctx.Done()

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	runner.Stop()
	<-relayDone
	if kafkaEvents != nil {
		kafkaEvents.Flush()
	}
	l.Info("bye")
}

func openStores(ctx context.Context, cfg *config.Config, l *zap.Logger) (*stores, error) {
	if cfg.Storage == config.StorageMemory {
		l.Warn("using in-memory storage, state is lost on restart")
		return &stores{
			monitors: memory.NewMonitors(),
			results:  memory.NewResults(),
			alerts:   memory.NewAlerts(),
			settings: memory.NewSettings(cfg.Alerts.DefaultEmail, cfg.Alerts.RecoveryEnabled),
			health:   func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	}

	db, err := pg.New(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	return &stores{
		monitors: pg.NewMonitorRepo(db),
		results:  pg.NewResultRepo(db),
		alerts:   pg.NewAlertRepo(db),
		settings: pg.NewSettingsRepo(db, cfg.Alerts.DefaultEmail, cfg.Alerts.RecoveryEnabled),
		tx:       pg.NewTransactor(db, l),
		health:   func(ctx context.Context) error { return db.Pool.Ping(ctx) },
		close:    db.Close,
	}, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
