package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/citaplan/citaplan/pkg/config"
	"github.com/citaplan/citaplan/pkg/email"
	"github.com/citaplan/citaplan/pkg/httpserver"
	"github.com/citaplan/citaplan/pkg/logger"
	"github.com/citaplan/citaplan/pkg/pg"
	"github.com/citaplan/citaplan/pkg/redis"
	"github.com/citaplan/citaplan/pkg/scheduler"
	"github.com/citaplan/citaplan/pkg/tenant"
	"github.com/citaplan/citaplan/svc/billing"
	"github.com/citaplan/citaplan/svc/billing/pgstore"
	"github.com/citaplan/citaplan/svc/dunning"
	"github.com/citaplan/citaplan/svc/notification"
	"github.com/citaplan/citaplan/svc/webhook"
)

type appConfig struct {
	LogLevel    string    `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string    `env:"LOG_FORMAT" envDefault:"json"`
	ProductName string    `env:"PRODUCT_NAME" envDefault:"CitaPlan"`
	OperatorOrg uuid.UUID `env:"OPERATOR_ORG_ID,required"`

	DunningInterval time.Duration `env:"DUNNING_INTERVAL" envDefault:"1h"`
	MonitorInterval time.Duration `env:"WEBHOOK_MONITOR_INTERVAL" envDefault:"1h"`
	PollInterval    time.Duration `env:"GATEWAY_POLL_INTERVAL" envDefault:"15m"`
	TokenSweep      time.Duration `env:"TOKEN_SWEEP_INTERVAL" envDefault:"1h"`

	// DevEmailDir switches outgoing mail to the file-based dev sender.
	DevEmailDir string `env:"DEV_EMAIL_DIR"`
}

func main() {
	_ = config.LoadEnv()

	var cfg appConfig
	config.MustLoad(&cfg)

	var pgCfg pg.Config
	config.MustLoad(&pgCfg)
	var redisCfg redis.Config
	config.MustLoad(&redisCfg)
	var httpCfg httpserver.Config
	config.MustLoad(&httpCfg)
	var paddleCfg billing.PaddleConfig
	config.MustLoad(&paddleCfg)

	log := logger.New(
		logger.WithLevel(parseLevel(cfg.LogLevel)),
		logger.WithFormat(logger.Format(cfg.LogFormat)),
		logger.WithAttr(slog.String("service", "billingd")),
	)
	slog.SetDefault(log)

	if err := run(cfg, pgCfg, redisCfg, httpCfg, paddleCfg, log); err != nil {
		log.Error("billingd exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg appConfig, pgCfg pg.Config, redisCfg redis.Config, httpCfg httpserver.Config, paddleCfg billing.PaddleConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pgstore.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	gateway, err := billing.NewPaddleGateway(paddleCfg)
	if err != nil {
		return err
	}

	exec := tenant.NewExecutor(pool)
	store := pgstore.New(exec)
	directory := pgstore.NewClientDirectory(exec)

	sender := buildSender(cfg, log)
	dispatcher := notification.New(sender, directory,
		notification.WithLogger(log),
		notification.WithProductName(cfg.ProductName))

	svc := billing.NewService(store, gateway, directory, cfg.OperatorOrg,
		billing.WithNotifier(dispatcher),
		billing.WithEntitlementSyncer(billing.NewEntitlementSyncer(pgstore.NewModuleFlagStore(exec))),
		billing.WithLogger(log))

	ledger := webhook.NewPgLedger(exec)
	processor := webhook.NewProcessor(ledger, svc, webhook.WithProcessorLogger(log))
	ingress := webhook.NewHandler(processor, gateway.WebhookVerifier(), log)

	engine := dunning.New(store.Subscriptions(), dispatcher, cfg.OperatorOrg,
		dunning.WithMarkers(dunning.NewRedisMarkers(rdb, 48*time.Hour)),
		dunning.WithLogger(log))
	monitor := webhook.NewMonitor(ledger,
		webhook.WithMonitorLogger(log),
		webhook.WithMonitorWindow(cfg.MonitorInterval))
	poller := webhook.NewPoller(store.Subscriptions(), gateway, svc, cfg.OperatorOrg,
		webhook.WithPollerLogger(log))

	runner := scheduler.NewRunner(scheduler.WithLogger(log))
	jobs := []struct {
		name     string
		interval time.Duration
		fn       scheduler.JobFunc
	}{
		{"dunning_sweep", cfg.DunningInterval, func(ctx context.Context) error {
			engine.Run(ctx)
			return nil
		}},
		{"webhook_monitor", cfg.MonitorInterval, monitor.Run},
		{"gateway_poll", cfg.PollInterval, poller.Run},
		{"token_expiry", cfg.TokenSweep, func(ctx context.Context) error {
			_, err := store.CheckoutTokens().ExpirePending(ctx, time.Now().UTC())
			return err
		}},
	}
	for _, j := range jobs {
		if err := runner.AddJob(j.name, j.interval, j.fn); err != nil {
			return err
		}
	}

	router := chi.NewRouter()
	router.Get("/healthz", httpserver.HealthCheckHandler(ctx, log))
	router.Get("/readyz", httpserver.HealthCheckHandler(ctx, log,
		pg.Healthcheck(pool), redis.Healthcheck(rdb)))
	router.Mount("/webhooks", ingress.Routes())

	srv := httpserver.NewFromConfig(httpCfg,
		httpserver.WithLogger(log),
		httpserver.WithStartHook(func(l *slog.Logger) {
			l.Info("webhook ingress listening", slog.String("addr", httpCfg.Addr))
		}))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, router) })
	g.Go(func() error {
		err := runner.Start(ctx)
		if err != nil && ctx.Err() != nil {
			return nil // normal shutdown
		}
		return err
	})

	return g.Wait()
}

func buildSender(cfg appConfig, log *slog.Logger) email.EmailSender {
	if cfg.DevEmailDir != "" {
		log.Warn("using file-based dev email sender", slog.String("dir", cfg.DevEmailDir))
		return email.NewDevSender(cfg.DevEmailDir)
	}
	var emailCfg email.Config
	config.MustLoad(&emailCfg)
	return email.MustNewPostmarkClient(emailCfg)
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
