// Command helpdesk serves the helpdesk OAuth, sync and dashboard API and runs
// the background ticket sync workers.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	gosync "sync"
	"syscall"
	"time"

	helpdesk "github.com/goliatone/go-helpdesk"
	"github.com/goliatone/go-helpdesk/adapters/gocommand"
	"github.com/goliatone/go-helpdesk/adapters/gojob"
	"github.com/goliatone/go-helpdesk/adapters/gologger"
	helpdeskprometheus "github.com/goliatone/go-helpdesk/adapters/prometheus"
	"github.com/goliatone/go-helpdesk/auth"
	helpdeskcommand "github.com/goliatone/go-helpdesk/command"
	"github.com/goliatone/go-helpdesk/config"
	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-helpdesk/httpapi"
	"github.com/goliatone/go-helpdesk/migrations"
	"github.com/goliatone/go-helpdesk/security"
	sqlstore "github.com/goliatone/go-helpdesk/store/sql"
	helpdesksync "github.com/goliatone/go-helpdesk/sync"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "helpdesk: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	loggers := gologger.NewZerologProvider(gologger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stdout,
	})
	logger := loggers.GetLogger("helpdesk")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("database close failed", "error", err)
		}
	}()

	stores, err := buildStores(cfg, client)
	if err != nil {
		return err
	}

	platforms, err := helpdesk.NewPlatformRegistry(cfg.PlatformClients(), &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return err
	}
	recorder := helpdeskprometheus.NewRecorder(helpdeskprometheus.WithRuntimeCollectors())

	service, err := helpdesk.NewService(cfg.ServiceConfig(),
		helpdesk.WithPlatformRegistry(platforms),
		helpdesk.WithPersistenceClient(client),
		helpdesk.WithRepositoryFactory(stores),
		helpdesk.WithLoggerProvider(loggers),
		helpdesk.WithMetricsRecorder(recorder),
	)
	if err != nil {
		return err
	}
	facade, err := helpdesk.NewFacade(service)
	if err != nil {
		return err
	}

	bindings, err := gocommand.BindFacade(facade)
	if err != nil {
		return err
	}
	defer bindings.Unsubscribe()

	authenticator, err := auth.NewJWTAuthenticator(auth.Config{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   cfg.Auth.Leeway,
	})
	if err != nil {
		return err
	}

	router, err := httpapi.NewRouter(httpapi.Options{
		Bindings:       bindings,
		Authenticator:  authenticator,
		Logger:         loggers.GetLogger("helpdesk.http"),
		CallbackURL:    cfg.CallbackURL(),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimit: httpapi.RateLimit{
			Enabled:  cfg.RateLimit.Enabled,
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window,
		},
		Metrics: recorder.Handler(),
		Health: func(ctx context.Context) error {
			return client.DB().PingContext(ctx)
		},
	})
	if err != nil {
		return err
	}

	var background gosync.WaitGroup
	if cfg.Scheduler.Enabled {
		if err := startBackground(ctx, &background, cfg, client, stores, recorder, loggers); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr, "platforms", len(platforms.List()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			stop()
			background.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	stop()
	background.Wait()
	logger.Info("helpdesk stopped")
	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*persistence.Client, error) {
	dialectName, err := migrations.DialectForDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(cfg.SQLDriver(), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var dialect schema.Dialect = pgdialect.New()
	if dialectName == migrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}
	if cfg.Migrate {
		if err := migrations.Apply(ctx, client, dialectName); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}

func buildStores(cfg config.Config, client *persistence.Client) (*sqlstore.RepositoryFactory, error) {
	opts := []sqlstore.FactoryOption{
		sqlstore.WithStateTTL(cfg.ServiceConfig().StateTTL()),
	}
	if cfg.Cache.Enabled {
		cacheConfig := repositorycache.DefaultConfig()
		if cfg.Cache.TTL > 0 {
			cacheConfig.TTL = cfg.Cache.TTL
		}
		cacheService, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			return nil, fmt.Errorf("connection cache: %w", err)
		}
		opts = append(opts, sqlstore.WithConnectionCache(cacheService))
	}
	if key := strings.TrimSpace(cfg.Auth.TokenKey); key != "" {
		cipher, err := security.NewTokenCipherFromString(key)
		if err != nil {
			return nil, fmt.Errorf("token cipher: %w", err)
		}
		opts = append(opts, sqlstore.WithTokenCipher(cipher))
	}
	return sqlstore.NewRepositoryFactoryFromPersistence(client, opts...)
}

// startBackground runs the scheduler and the job worker until ctx is done.
// Queued jobs dispatch through the bound facade commands.
func startBackground(
	ctx context.Context,
	wg *gosync.WaitGroup,
	cfg config.Config,
	client *persistence.Client,
	stores *sqlstore.RepositoryFactory,
	recorder *helpdeskprometheus.Recorder,
	loggers glog.LoggerProvider,
) error {
	jobQueue, err := gojob.OpenQueue(ctx, client.DB(), gojob.WithDeadLetterLimit(cfg.Scheduler.DeadLetterLimit))
	if err != nil {
		return err
	}
	commands, err := gojob.NewCommandRegistry(
		gocommand.Forward[helpdeskcommand.SyncTicketsMessage, core.SyncResult](),
		gocommand.Forward[helpdeskcommand.PurgeStatesMessage, int](),
	)
	if err != nil {
		return err
	}

	worker, err := gojob.NewWorker(jobQueue, commands,
		gojob.WithConcurrency(cfg.Scheduler.Workers),
		gojob.WithRetryPolicy(gojob.NewRetryPolicy(cfg.Scheduler.MaxAttempts)),
		gojob.WithHooks(gojob.NewMetricsHook(recorder)),
		gojob.WithLogger(loggers.GetLogger("helpdesk.jobs")),
	)
	if err != nil {
		return err
	}
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("start job worker: %w", err)
	}

	jobs, err := gojob.NewJobs(jobQueue, commands, jobQueue.Dedup())
	if err != nil {
		return err
	}
	scheduler := helpdesksync.NewScheduler(
		stores.ConnectionRegistry(),
		jobs,
		cfg.Scheduler.SyncInterval,
		cfg.Scheduler.PurgeInterval,
		loggers.GetLogger("helpdesk.scheduler"),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Run(ctx)

		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := worker.Stop(stopCtx); err != nil {
			loggers.GetLogger("helpdesk.jobs").Warn("job worker stop failed", "error", err)
		}
	}()
	return nil
}
