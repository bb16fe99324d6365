package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"venq/api"
	"venq/common"
	"venq/configs"
	jobsmetrics "venq/jobs/metrics"
	"venq/metrics"
	"venq/services"
	"venq/store"
	"venq/utils"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog/log"
)

func main() {
	opts := parseOptions()
	if opts.authSecret == "" {
		log.Fatal().Msg("auth secret is not provided: either set VENQ_AUTH_SECRET environment variable or pass it as a command line argument --auth-secret")
		panic("auth secret is not provided: either set VENQ_AUTH_SECRET environment variable or pass it as a command line argument --auth-secret")
	}
	if !common.SupportedBackends[opts.backend] {
		log.Fatal().Str("backend", opts.backend).Msg("unsupported backend: must be 'file' or 'sqlite'")
		panic("unsupported backend: must be 'file' or 'sqlite'")
	}

	dataDir := opts.dataDir
	if dataDir == "" {
		var err error
		dataDir, err = utils.GetOrCreateDefaultDataDir()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get or create default data directory")
			panic(err)
		}
	}

	appConfigs := configs.NewAppConfig()

	var newStore services.StoreFactory
	switch opts.backend {
	case common.SqliteBackend:
		dbPath := filepath.Join(dataDir, "venq.db")
		runMigrations(dbPath)

		dbConn, err := sql.Open("sqlite", dbPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open sqlite database")
			panic(err)
		}
		defer dbConn.Close()

		if err := dbConn.Ping(); err != nil {
			log.Fatal().Err(err).Msg("failed to ping sqlite database")
			panic(err)
		}

		newStore = func(queueName string) (store.MessageStore, error) {
			return store.NewSqliteStore(dbConn, dbPath, queueName), nil
		}
	case common.FileBackend:
		newStore = func(queueName string) (store.MessageStore, error) {
			return store.NewFileStore(filepath.Join(dataDir, queueName+".json"), appConfigs.LockAcquireTimeout)
		}
	}

	metricsService := metrics.NewMetricsService(opts.metricsEnabled)
	registry := services.NewQueueRegistry(newStore, appConfigs, metricsService)
	defer registry.Close()

	queuesDepthMetricsJob := jobsmetrics.NewQueuesDepthMetricsJob(metricsService, registry, appConfigs.JobsIntervals.QueuesDepthMetricsMs)
	defer queuesDepthMetricsJob.Close()

	venqRouter := api.NewVenqRouter(registry, appConfigs, opts.authSecret, opts.metricsEnabled)

	venqServer := &http.Server{
		Addr:              opts.addr,
		Handler:           http.TimeoutHandler(venqRouter.NewRouter(), appConfigs.ServerConfig.Timeouts.Handle, "timeout"),
		WriteTimeout:      appConfigs.ServerConfig.Timeouts.Write,
		ReadTimeout:       appConfigs.ServerConfig.Timeouts.Read,
		ReadHeaderTimeout: appConfigs.ServerConfig.Timeouts.ReadHeader,
		IdleTimeout:       appConfigs.ServerConfig.Timeouts.Idle,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", opts.addr).Str("backend", opts.backend).Str("data_dir", dataDir).Msg("venq server starting")
		err := venqServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	log.Info().Msg("server shutdown requested")
	if err := venqServer.Shutdown(context.Background()); err != nil {
		if err := venqServer.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close server")
		}
	}
}

type serverOptions struct {
	authSecret     string
	addr           string
	dataDir        string
	backend        string
	metricsEnabled bool
}

func parseOptions() serverOptions {
	var flagAuthSecret, flagAddr, flagDataDir, flagBackend string
	var flagMetrics bool
	flag.StringVar(&flagAuthSecret, "auth-secret", "", "Authentication secret")
	flag.StringVar(&flagAddr, "addr", "", "Address to listen on")
	flag.StringVar(&flagDataDir, "data-dir", "", "Directory holding queue files and the sqlite database")
	flag.StringVar(&flagBackend, "backend", "", "Store backend: file or sqlite")
	flag.BoolVar(&flagMetrics, "metrics", false, "Expose prometheus metrics on /metrics")
	flag.Parse()

	return serverOptions{
		authSecret:     fromEnvOr("VENQ_AUTH_SECRET", flagAuthSecret),
		addr:           fromEnvOr("VENQ_ADDR", orDefault(flagAddr, "localhost:8080")),
		dataDir:        fromEnvOr("VENQ_DATA_DIR", flagDataDir),
		backend:        fromEnvOr("VENQ_BACKEND", orDefault(flagBackend, common.FileBackend)),
		metricsEnabled: flagMetrics || os.Getenv("VENQ_METRICS") == "true",
	}
}

func fromEnvOr(envName string, fallback string) string {
	if value := os.Getenv(envName); value != "" {
		return value
	}
	return fallback
}

func orDefault(value string, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func runMigrations(dbPath string) {
	// x-no-tx-wrap=true to disable transaction wrapping for PRAGMA statements, as otherwise it fails:
	// https://github.com/golang-migrate/migrate/issues/346
	dbURL := fmt.Sprintf("sqlite3://file:%s?cache=shared&mode=rwc&x-no-tx-wrap=true", dbPath)

	m, err := migrate.New("file://db/migrations", dbURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create migration instance")
		panic(err)
	}

	err = m.Up()
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("no migrations to run")
			return
		}
		log.Fatal().Err(err).Msg("failed to run migrations")
		panic(fmt.Errorf("failed to run migrations: %w", err))
	} else {
		log.Info().Msg("migrations applied successfully")
	}
}
