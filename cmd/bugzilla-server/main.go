// Package main provides the Bugzilla mirror server entry point. The server
// hosts the admin API and runs the periodic synchronization worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang/glog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/admin"
	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/bugzilla"
	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/config"
	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/ingest"
	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/store"
	syncpkg "github.com/noodlebreak/apache-bugzilla-fetcher/pkg/sync"
)

func main() {
	var (
		listenAddr   string
		databaseType string
		databaseDSN  string
	)

	flag.StringVar(&listenAddr, "listen", "", "Address to listen on (overrides LISTEN_ADDR)")
	flag.StringVar(&databaseType, "db-type", "", "Database type (postgres, mysql or sqlite)")
	flag.StringVar(&databaseDSN, "db-dsn", "", "Database connection string")
	flag.Parse()

	_ = flag.Set("logtostderr", "true")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if databaseType != "" {
		cfg.Database.Type = databaseType
	}
	if databaseDSN != "" {
		cfg.Database.DSN = databaseDSN
	}

	logger.Info("starting bugzilla mirror server",
		"listen", cfg.ListenAddr,
		"dbType", cfg.Database.Type,
		"bugzilla", cfg.Bugzilla.RestBase)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	gormDB, err := setupDatabase(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	dataStore := store.New(gormDB)
	runStore := syncpkg.NewRunStore(gormDB)
	err = store.WithMigrationLock(ctx, gormDB, func() error {
		if err := dataStore.AutoMigrate(); err != nil {
			return err
		}
		return runStore.AutoMigrate()
	})
	if err != nil {
		glog.Fatalf("Failed to migrate schema: %v", err)
	}

	clientOpts := []bugzilla.Option{bugzilla.WithLogger(logger)}
	if cfg.Bugzilla.ListID != "" {
		terms := bugzilla.DefaultSearchTerms()
		terms.Set("list_id", cfg.Bugzilla.ListID)
		clientOpts = append(clientOpts, bugzilla.WithSearchTerms(terms))
	}
	client := bugzilla.NewClient(cfg.Bugzilla.RestBase, clientOpts...)

	ingester := ingest.New(dataStore, logger)
	worker := syncpkg.NewWorker(client, ingester, runStore, syncpkg.ConfigFromEnv(), logger)
	go worker.Run(ctx)

	router := admin.Router(dataStore, runStore, worker)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("bugzilla mirror server ready", "listen", cfg.ListenAddr)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("bugzilla mirror server stopped")
}

func setupDatabase(dbType, dsn string) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	switch dbType {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), gormCfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), gormCfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), gormCfg)
	default:
		return nil, fmt.Errorf("unknown database type %q (expected postgres, mysql or sqlite)", dbType)
	}
}
