// Command cashappd runs the cash-application workflow engine as an HTTP
// service: the orchestrator façade in front of the durable engine,
// Postgres history store, and Redis run lease, wired together through a
// dig container the way the corpus's service entrypoints are.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/zoobzio/cashapp/internal/collaborators"
	"github.com/zoobzio/cashapp/internal/config"
	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/engine"
	"github.com/zoobzio/cashapp/internal/lease"
	"github.com/zoobzio/cashapp/internal/logging"
	"github.com/zoobzio/cashapp/internal/matcher"
	"github.com/zoobzio/cashapp/internal/orchestrator"
	"github.com/zoobzio/cashapp/internal/resolver"
	"github.com/zoobzio/cashapp/internal/store"
	"github.com/zoobzio/cashapp/internal/workflows"
)

func buildContainer() (*dig.Container, error) {
	c := dig.New()

	providers := []any{
		config.Load,
		func(cfg config.Config) (*zap.Logger, error) { return logging.New(os.Getenv("CASHAPP_ENV")) },
		func(cfg config.Config) (*sqlx.DB, error) {
			db, err := sqlx.Open("pgx", cfg.Postgres.DSN)
			if err != nil {
				return nil, err
			}
			if err := store.Migrate(db.DB); err != nil {
				return nil, err
			}
			return db, nil
		},
		func(db *sqlx.DB) engine.Store { return store.New(db) },
		func(cfg config.Config) *redis.Client { return redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr}) },
		func(client *redis.Client) engine.Lease { return lease.NewManager(client) },
		func(s engine.Store, l engine.Lease) *engine.Engine { return engine.New(s, l, nil) },
		func(cfg config.Config) collaborators.Notify { return collaborators.NewSlackNotify(cfg.Slack.Token, cfg.Slack.Channel) },
		func(logger *zap.Logger) collaborators.OCR { return collaborators.NewHTTPOCR(os.Getenv("CASHAPP_OCR_URL"), logger) },
		func(logger *zap.Logger) collaborators.ERP { return collaborators.NewHTTPERP(os.Getenv("CASHAPP_ERP_URL"), logger) },
		func(logger *zap.Logger) collaborators.ManualReview {
			return collaborators.NewHTTPManualReview(os.Getenv("CASHAPP_REVIEW_URL"), logger)
		},
		func() *prometheus.Registry { return prometheus.NewRegistry() },
		func(eng *engine.Engine, reg *prometheus.Registry) *orchestrator.Facade {
			return orchestrator.New(eng, reg, 1024)
		},
		func(cfg config.Config) resolver.CountryRule {
			return resolver.CountryRule{CountryCode: cfg.Phone.CountryCode, NationalLength: cfg.Phone.NationalLength}
		},
		newResolver,
	}
	for _, p := range providers {
		if err := c.Provide(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func newResolver(rule resolver.CountryRule) *resolver.Resolver {
	norm := resolver.NewNormalizer(resolver.DefaultStopwords, resolver.DefaultSuffixEquivalences)
	return resolver.New("v1", nil, norm, rule)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	c, err := buildContainer()
	if err != nil {
		return err
	}

	return c.Invoke(func(cfg config.Config, logger *zap.Logger, facade *orchestrator.Facade,
		notify collaborators.Notify, ocr collaborators.OCR, erp collaborators.ERP, review collaborators.ManualReview,
		res *resolver.Resolver, reg *prometheus.Registry) error {
		defer logger.Sync()

		facade.Register("cash_application", func(p orchestrator.Payload) (engine.WorkflowDef, error) {
			payment := paymentFromPayload(p)
			return workflows.CashApplication(payment, workflows.Deps{
				OCR:          ocr,
				ERP:          erp,
				Notify:       notify,
				ManualReview: review,
				Resolver:     res,
				Rules:        matcher.DefaultRules,
			}), nil
		})

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.Handle("/", orchestrator.NewServer(facade))

		srv := &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: mux}
		logger.Info("cashappd listening", zap.String("addr", cfg.HTTP.ListenAddr))

		schedulerCtx, stopScheduler := context.WithCancel(context.Background())
		defer stopScheduler()
		go facade.RunScheduler(schedulerCtx, cfg.Scheduler.PollInterval, cfg.Scheduler.BatchSize, cfg.Scheduler.Workers)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
		case <-sig:
			ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		}
		return nil
	})
}

func paymentFromPayload(p orchestrator.Payload) domain.Payment {
	return domain.Payment{
		ID:            p.ID,
		ClientID:      p.ClientID,
		ValueDate:     p.ValueDate,
		Reference:     p.Body["reference"],
		Memo:          p.Body["memo"],
		RawRemittance: p.Body["raw_remittance"],
	}
}
