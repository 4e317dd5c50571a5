package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shadecraft/channelsync/internal/cache"
	"github.com/shadecraft/channelsync/internal/config"
	"github.com/shadecraft/channelsync/internal/database"
	"github.com/shadecraft/channelsync/internal/handler"
	"github.com/shadecraft/channelsync/internal/middleware"
	"github.com/shadecraft/channelsync/internal/models"
	"github.com/shadecraft/channelsync/internal/repository"
	"github.com/shadecraft/channelsync/internal/service"
	"github.com/shadecraft/channelsync/internal/worker"
	"github.com/shadecraft/channelsync/pkg/storefront"
	"github.com/shadecraft/channelsync/pkg/tradegate"
)

// main is the application entrypoint for the channelsync engine.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	setupLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Msg("starting channelsync")

	// 3. Connect database
	db, err := database.Connect(&cfg.DB)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "database connection failed: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// 3a. Run migrations
	if err := runMigrations(db.DB); err != nil {
		log.Error().Err(err).Msg("migration failed")
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	log.Info().Msg("migrations completed successfully")

	// 3b. Connect to Redis
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Error().Err(err).Msg("redis connection failed")
		fmt.Fprintf(os.Stderr, "redis connection failed: %v\n", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected successfully")

	// 3c. Group locks and import audit trail live in Redis so overlapping
	// runs from multiple instances contend on the same keys.
	syncLock := cache.NewSyncLock(redisClient, cfg.Sync.LockTTL, cfg.Sync.LockWait)
	importAudit := cache.NewImportAudit(redisClient)

	// 4. Initialize marketplace clients and channels
	storefrontClient := storefront.NewClient(storefront.Config{
		BaseURL:     cfg.Storefront.BaseURL,
		AccessToken: cfg.Storefront.AccessToken,
		RateLimit:   cfg.Storefront.RateLimit,
		Timeout:     cfg.Storefront.Timeout,
	})
	tradegateClient := tradegate.NewClient(tradegate.Config{
		BaseURL:   cfg.Tradegate.BaseURL,
		APIKey:    cfg.Tradegate.APIKey,
		RateLimit: cfg.Tradegate.RateLimit,
		Timeout:   cfg.Tradegate.Timeout,
	})
	storefrontChannel := service.NewStorefrontChannel(storefrontClient)
	tradegateChannel := service.NewTradegateChannel(tradegateClient)
	channels := map[models.ChannelCode]service.Channel{
		storefrontChannel.Code(): storefrontChannel,
		tradegateChannel.Code():  tradegateChannel,
	}

	// 5. Initialize repositories
	productRepo := repository.NewProductRepository(db)
	syncRecordRepo := repository.NewSyncRecordRepository(db)

	// 6. Initialize services
	reconciler := service.NewReconciler(syncRecordRepo)
	importTracker := service.NewImportTracker(tradegateChannel, importAudit)
	syncSvc := service.NewSyncService(
		productRepo,
		syncRecordRepo,
		reconciler,
		syncLock,
		importTracker,
		cfg.Sync.GroupingAttribute,
		cfg.Sync.Concurrency,
	)

	// 7. Initialize handlers
	handlers := &Handlers{
		Health: handler.NewHealthHandler(storefrontChannel, tradegateChannel),
		Sync:   handler.NewSyncHandler(syncSvc, syncRecordRepo, importTracker, channels),
	}

	// 8. Setup router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.LoggingMiddleware())
	setupRoutes(router, handlers)

	// 9. Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 10. Start workers
	go worker.NewSyncWorker(
		syncSvc,
		[]service.Channel{storefrontChannel, tradegateChannel},
		cfg.Worker.SyncInterval,
	).Start(ctx)
	go worker.NewImportPollWorker(
		importTracker,
		syncSvc,
		cfg.Worker.ImportPollInterval,
		cfg.Worker.ImportPollMaxAge,
	).Start(ctx)

	// 11. Start HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// 12. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// 13. Cancel context to stop workers
	cancel()

	// 14. Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

// Handlers groups all HTTP handlers used by the server.
type Handlers struct {
	Health *handler.HealthHandler
	Sync   *handler.SyncHandler
}

// setupRoutes registers all routes.
func setupRoutes(router *gin.Engine, handlers *Handlers) {
	router.GET("/health", handlers.Health.GetHealth)

	api := router.Group("/api/v1")
	{
		api.POST("/sync", handlers.Sync.TriggerSync)
		api.GET("/products/:id/sync-records", handlers.Sync.GetProductSyncRecords)
		api.GET("/sync-records/recent", handlers.Sync.GetRecentSyncRecords)
		api.GET("/channels/:channel/listings", handlers.Sync.GetChannelListings)
		api.GET("/imports", handlers.Sync.GetOpenImports)
	}
}

// runMigrations runs database migrations using golang-migrate.
func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func setupLogger(env string) {
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
