package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/newsletter-ai/internal/api"
	"github.com/ignite/newsletter-ai/internal/backend"
	"github.com/ignite/newsletter-ai/internal/config"
	"github.com/ignite/newsletter-ai/internal/dispatch"
	"github.com/ignite/newsletter-ai/internal/generation"
	"github.com/ignite/newsletter-ai/internal/pkg/distlock"
	"github.com/ignite/newsletter-ai/internal/pkg/logger"
	"github.com/ignite/newsletter-ai/internal/reference"
	"github.com/ignite/newsletter-ai/internal/repository/dynamo"
	"github.com/ignite/newsletter-ai/internal/repository/postgres"
	"github.com/ignite/newsletter-ai/internal/repository/redisstore"
	"github.com/ignite/newsletter-ai/internal/service/archive"
	"github.com/ignite/newsletter-ai/internal/service/workflow"
	"github.com/ignite/newsletter-ai/internal/storage"
)

const sweepInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults only when empty)")
	flag.Parse()
	if *configPath == "" {
		if _, err := os.Stat("config/config.yaml"); err == nil {
			*configPath = "config/config.yaml"
		}
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.SetLevel(level)
	logger.SetRedactPII(cfg.Log.Redact())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := openDatabase(ctx, cfg.Database)
	if db != nil {
		defer db.Close()
	}
	rdb := openRedis(ctx, cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	clients, err := storage.NewAWSClients(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize AWS clients: %v", err)
	}

	var backendClient *backend.Client
	if cfg.Backend.BaseURL != "" {
		backendClient = backend.NewClient(cfg.Backend)
	}

	deps := workflow.Dependencies{}

	// Reference text
	var fetcher reference.Fetcher
	if cfg.Reference.Mode == config.ModeDirect {
		fetcher = reference.NewPageFetcher(cfg.Reference)
	} else {
		fetcher = backendClient
	}
	if rdb != nil {
		fetcher = reference.NewCachedFetcher(fetcher, rdb, cfg.Reference.CacheTTL())
	}
	deps.Reference = fetcher

	// Generation
	if cfg.Generation.Provider == config.ProviderAnthropic {
		deps.Generator = generation.NewAnthropic(cfg.Generation)
	} else {
		deps.Generator = generation.NewBedrock(clients.Bedrock, cfg.Generation.ModelID())
	}

	// Persistence
	var archiveSvc *archive.Service
	switch cfg.Persistence.Mode {
	case config.ModePostgres:
		if db == nil {
			log.Fatalf("postgres persistence selected but the database is unreachable")
		}
		archiveSvc = archive.NewService(postgres.NewNewsletterRepo(db))
	case config.ModeDynamoDB:
		archiveSvc = archive.NewService(dynamo.NewNewsletterStore(clients.DynamoDB, cfg.Persistence.DynamoTable))
	}
	if archiveSvc != nil {
		deps.Persister = archiveSvc
	} else {
		deps.Persister = backendClient
	}

	// Dispatch
	if cfg.Dispatch.Mode == config.ModeSES {
		d, err := dispatch.NewSESDispatcher(clients.SES, dispatch.Options{
			FromAddress:      cfg.Dispatch.FromAddress,
			FromName:         cfg.Dispatch.FromName,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		})
		if err != nil {
			log.Fatalf("Failed to initialize SES dispatcher: %v", err)
		}
		deps.Dispatcher = d
	} else {
		deps.Dispatcher = backendClient
	}

	wfOpts := workflow.Options{
		ShareBaseURL:    cfg.Share.BaseURL,
		MaxOutputTokens: cfg.Generation.MaxOutputTokens,
		Temperature:     cfg.Generation.Temperature,
		SingleFlight:    cfg.Workflow.SingleFlightEnabled(),
		Locks:           distlock.NewFactory(rdb, db, cfg.Workflow.LockTTL()),
		Delays: workflow.RevertDelays{
			Generate: cfg.Workflow.Revert.Generate(),
			Save:     cfg.Workflow.Revert.Save(),
			Copy:     cfg.Workflow.Revert.Copy(),
		},
		SessionTTL: cfg.Workflow.SessionTTL(),
	}
	// Session snapshots follow the lock backend's order.
	switch {
	case rdb != nil:
		wfOpts.Store = redisstore.NewSessionStore(rdb)
	case db != nil:
		wfOpts.Store = postgres.NewSessionStore(db)
	}
	manager := workflow.NewManager(deps, wfOpts)
	defer manager.Close()
	go manager.Run(ctx, sweepInterval)

	opts := api.Options{
		Bucket:       cfg.Recipients.S3Bucket,
		MaxFileBytes: cfg.Recipients.MaxFileBytes,
	}
	if archiveSvc != nil {
		opts.Archive = archiveSvc
	}
	health := api.HealthDeps{
		DB:       db,
		Redis:    rdb,
		S3Bucket: cfg.Recipients.S3Bucket,
		Sessions: manager.Len,
	}
	if clients.S3 != nil {
		opts.Objects = clients.S3
		health.S3 = clients.S3
	}
	if backendClient != nil {
		health.Backend = backendClient
	}

	router := api.SetupRoutes(api.NewHandlers(manager, opts), api.NewHealthChecker(health), api.RouterConfig{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout(),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout() + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server: listening",
			"addr", srv.Addr,
			"reference", cfg.Reference.Mode,
			"generation", cfg.Generation.Provider,
			"persistence", cfg.Persistence.Mode,
			"dispatch", cfg.Dispatch.Mode,
			"locks", distlock.Backend(rdb, db),
			"shared_sessions", wfOpts.Store != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	logger.Info("server: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server: shutdown error", "error", err)
	}
	logger.Info("server: stopped")
}

// openDatabase connects to PostgreSQL when a URL is configured. A database
// that does not answer a ping is treated as absent.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) *sql.DB {
	if cfg.URL == "" {
		return nil
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		logger.Warn("server: database open failed", "error", err)
		return nil
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(3)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Warn("server: database unreachable", "error", err)
		db.Close()
		return nil
	}
	return db
}

// openRedis connects to Redis when an address is configured. Addresses may
// be host:port or a redis:// URL.
func openRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	var client *redis.Client
	if opts, err := redis.ParseURL(cfg.Addr); err == nil {
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("server: redis unreachable, continuing without cache", "error", err)
		client.Close()
		return nil
	}
	return client
}
