package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ideaforge/billingcore/migrations"
	"github.com/ideaforge/billingcore/pkg/billing"
	"github.com/ideaforge/billingcore/pkg/cache"
	"github.com/ideaforge/billingcore/pkg/config"
	"github.com/ideaforge/billingcore/pkg/httpserver"
	"github.com/ideaforge/billingcore/pkg/logger"
	"github.com/ideaforge/billingcore/pkg/pg"
	"github.com/ideaforge/billingcore/pkg/plan"
	"github.com/ideaforge/billingcore/pkg/redis"
	"github.com/ideaforge/billingcore/pkg/sweeper"
	"github.com/ideaforge/billingcore/pkg/usage"
	"github.com/ideaforge/billingcore/pkg/webhook"
)

type appConfig struct {
	AppEnv    string        `env:"APP_ENV" envDefault:"production"`
	LogLevel  slog.Level    `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat logger.Format `env:"LOG_FORMAT" envDefault:"json"`

	PlansFile string `env:"BILLING_PLANS_FILE"`

	SweepSecret   string        `env:"BILLING_SWEEP_SECRET,required"`
	SweepSchedule string        `env:"BILLING_SWEEP_SCHEDULE" envDefault:"@hourly"`
	CacheTTL      time.Duration `env:"BILLING_ENTITLEMENT_CACHE_TTL" envDefault:"30s"`

	PG      pg.Config
	Redis   redis.Config
	HTTP    httpserver.Config
	Webhook webhook.Config
	Paddle  billing.PaddleConfig
}

func main() {
	cfg := config.MustLoad[appConfig]()

	log := logger.New(
		logger.WithLevel(cfg.LogLevel),
		logger.WithFormat(cfg.LogFormat),
		logger.WithService("billingd"),
	)
	slog.SetDefault(log)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("billingd exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, migrations.FS, cfg.PG, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	catalog := plan.DefaultCatalog()
	if cfg.PlansFile != "" {
		catalog, err = plan.NewFileSource(cfg.PlansFile).Load(ctx)
		if err != nil {
			return err
		}
	}

	subs := billing.NewPostgresSubscriptionStore(pool)
	users := billing.NewPostgresUserStore(pool)
	payments := billing.NewPostgresPaymentStore(pool)
	events := webhook.NewPostgresEventStore(pool)
	usageStore := usage.NewPostgresStore(pool)

	var provider billing.CheckoutProvider
	if cfg.Paddle.APIKey != "" {
		provider, err = billing.NewPaddleProvider(cfg.Paddle)
		if err != nil {
			return err
		}
	} else {
		log.Warn("no payment provider configured, upgrade checkout links disabled")
	}

	svc, err := billing.NewService(subs, users, payments, catalog, provider)
	if err != nil {
		return err
	}

	ledger, err := usage.NewLedger(usageStore, catalog, svc.PlanFor, usage.WithLogger(log))
	if err != nil {
		return err
	}

	machine := billing.NewStateMachine(subs, users, payments, ledger, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ingestor, err := webhook.NewIngestor(cfg.Webhook.Secret, events, machine,
		webhook.WithLogger(log),
		webhook.WithMetrics(webhook.NewMetrics(registry)),
	)
	if err != nil {
		return err
	}

	sweep := sweeper.New(subs, machine, sweeper.WithLogger(log))
	runner := sweeper.NewRunner(sweep, cfg.SweepSchedule, log)
	if err := runner.Start(ctx); err != nil {
		return err
	}
	defer runner.Stop()

	// Caches the subscription row, not the derived decision: Resolve runs
	// fresh on every request and staleness is bounded by the TTL.
	subCache := cache.New[*billing.Subscription](rdb, "subscription", cfg.CacheTTL)

	router := newRouter(routerDeps{
		cfg:      cfg,
		log:      log,
		svc:      svc,
		ledger:   ledger,
		ingestor: ingestor,
		sweep:    sweep,
		subCache: subCache,
		registry: registry,
		probes: []func(context.Context) error{
			pg.Healthcheck(pool),
			redis.Healthcheck(rdb),
		},
	})

	srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))
	return srv.Run(ctx, router)
}
