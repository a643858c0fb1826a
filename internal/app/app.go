package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joffchandler/Sentinel-flight-ops/internal/audit"
	"github.com/joffchandler/Sentinel-flight-ops/internal/auth"
	"github.com/joffchandler/Sentinel-flight-ops/internal/config"
	"github.com/joffchandler/Sentinel-flight-ops/internal/db"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/expiry"
	"github.com/joffchandler/Sentinel-flight-ops/internal/history"
	"github.com/joffchandler/Sentinel-flight-ops/internal/metrics"
	"github.com/joffchandler/Sentinel-flight-ops/internal/notify"
	"github.com/joffchandler/Sentinel-flight-ops/internal/orgs"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
	"github.com/joffchandler/Sentinel-flight-ops/internal/reports"
	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
	"github.com/joffchandler/Sentinel-flight-ops/internal/signals"
	"github.com/rs/zerolog/log"
)

// maxDBConns leaves room for open report streams, each of which holds a
// connection while it listens.
const maxDBConns = 50

// Services are the wired domain services behind the router.
type Services struct {
	Store      docstore.Store
	Principals *principals.Store
	Accounts   *auth.Accounts
	Auditor    *audit.Writer
	AuditLog   *audit.Reader
	Orgs       *orgs.Service
	Reports    *reports.Service
	Evaluator  *reports.Evaluator
	Runner     *risk.Runner
	Notifier   *notify.Client
	Metrics    *metrics.Metrics
}

// NewServices wires every domain service on top of store.
func NewServices(cfg *config.Config, store docstore.Store, providers []risk.Provider) (*Services, error) {
	m := metrics.New()

	runner, err := risk.NewRunner(providers, risk.NewTracker(),
		risk.WithTimeout(time.Duration(cfg.ProviderTimeoutMS)*time.Millisecond),
		risk.WithObserver(m),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create risk runner: %w", err)
	}

	notifier := notify.NewClient(cfg.SlackTimeoutMS, m.NotificationFailed)
	ps := principals.NewStore(store)
	auditor := audit.NewWriter(store)
	orgSvc := orgs.NewService(store, ps, auditor, cfg.SuperAdminEmails)
	reportSvc := reports.NewService(reports.Deps{
		Store:            store,
		Ledger:           history.NewLedger(store),
		Auditor:          auditor,
		Orgs:             orgSvc,
		Notifier:         notifier,
		BaseURL:          cfg.BaseURL,
		MaxEvidenceBytes: cfg.MaxEvidenceBytes,
	})

	return &Services{
		Store:      store,
		Principals: ps,
		Accounts:   auth.NewAccounts(store),
		Auditor:    auditor,
		AuditLog:   audit.NewReader(store),
		Orgs:       orgSvc,
		Reports:    reportSvc,
		Evaluator:  reports.NewEvaluator(runner, reportSvc, orgSvc),
		Runner:     runner,
		Notifier:   notifier,
		Metrics:    m,
	}, nil
}

// App is the running service: its config, storage and HTTP surface.
type App struct {
	Config   *config.Config
	DB       *pgxpool.Pool
	Services *Services
	Router   http.Handler
	Sweeper  *expiry.Sweeper

	server *http.Server
}

// New connects storage and wires every service and route. It does not start
// listening; see Start.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	configureLogging(cfg.LogLevel, cfg.IsDev())
	log.Info().Str("env", cfg.Env).Msg("starting sentinelsky")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("config loaded")

	var (
		pool  *pgxpool.Pool
		store docstore.Store
	)
	if cfg.DBDSN == "" {
		log.Warn().Msg("SS_DB_DSN unset, documents live in memory only")
		store = docstore.NewMemoryStore()
	} else {
		var err error
		if pool, err = openDatabase(ctx, cfg); err != nil {
			return nil, err
		}
		store = docstore.NewPostgresStore(pool)
	}

	fetcher := signals.NewHTTPFetcher(
		time.Duration(cfg.ProviderTimeoutMS)*time.Millisecond,
		cfg.FetchRPS,
		cfg.MaxFetchBytes,
	)
	providers := signals.Providers(signals.Options{
		Fetcher:  fetcher,
		NOTAMURL: cfg.NOTAMURL,
	})

	services, err := NewServices(cfg, store, providers)
	if err != nil {
		db.Close(pool)
		return nil, err
	}

	app := &App{
		Config:   cfg,
		DB:       pool,
		Services: services,
		Router:   NewRouter(cfg, services),
		Sweeper:  expiry.NewSweeper(services.Orgs, services.Notifier, services.Auditor, services.Runner.Tracker()),
	}

	log.Info().Msg("application ready")
	return app, nil
}

// Start starts the HTTP server and blocks until it stops.
func (a *App) Start() error {
	addr := a.Config.HTTPAddr
	log.Info().Str("addr", addr).Msg("http server listening")

	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a.server.ListenAndServe()
}

// Shutdown stops accepting requests, waits for in-flight ones and closes the
// database.
func (a *App) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down")
	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}
	a.Close()
	return err
}

// Close releases the database connection.
func (a *App) Close() {
	if a.DB != nil {
				db.Close(a.DB)
		a.DB = nil
	}
}

// openDatabase connects to PostgreSQL. Development runs apply pending
// migrations; other environments expect them applied out of band.
func openDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, cfg.DBDSN, maxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if !cfg.IsDev() {
		return pool, nil
	}
	if err := db.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return pool, nil
}
