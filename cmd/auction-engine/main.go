package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"veles-auction-engine/internal/adapters/broadcaster"
	"veles-auction-engine/internal/adapters/db"
	"veles-auction-engine/internal/adapters/redis"
	"veles-auction-engine/internal/adapters/scheduler"
	"veles-auction-engine/internal/adapters/ws"
	"veles-auction-engine/internal/app"
	"veles-auction-engine/internal/config"
)

func main() {

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	initLogging(cfg)

	log.Info().Msg("Starting Veles Auction Engine...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection
	dbConn, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	log.Info().Msg("Database connection established")

	// Create repositories
	repoFactory := db.NewRepositoryFactory(dbConn)
	auctionRepo := repoFactory.GetAuctionRepository()
	settlementRepo := repoFactory.GetSettlementRepository()
	vehicleRepo := repoFactory.GetVehicleRepository()
	bidderRepo := repoFactory.GetBidderRepository()

	log.Info().Msg("Database repositories initialized")

	// Create Redis client
	redisClient := redis.NewClient(cfg)
	if err := redis.Ping(redisClient); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	log.Info().Msg("Redis connection established")

	// Create Redis broadcaster
	redisBroadcaster := broadcaster.NewBroadcaster(broadcaster.RedisBroadcasterParams{
		RedisClient: redisClient,
		Logger:      log.Logger,
	})
	log.Info().Msg("Redis broadcaster initialized")

	// Deadline index backs the clock's view of upcoming transitions
	deadlineIndex := redis.NewDeadlineIndex(redis.DeadlineIndexParams{
		RedisClient: redisClient,
		Logger:      log.Logger,
	})

	// Create the bidding engine
	engine := app.NewEngine(app.EngineParams{
		AuctionRepo:    auctionRepo,
		SettlementRepo: settlementRepo,
		VehicleRepo:    vehicleRepo,
		BidderRepo:     bidderRepo,
		Broadcaster:    redisBroadcaster,
		Deadlines:      deadlineIndex,
		Logger:         log.Logger,
	})

	if err := engine.Recover(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to recover open auctions")
	}

	log.Info().Msg("Bidding engine initialized")

	// Start the engine clock
	clock := scheduler.NewClock(scheduler.ClockParams{
		Engine:   engine,
		Interval: cfg.Engine.TickInterval,
		Logger:   log.Logger,
	})
	if err := clock.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start engine clock")
	}
	log.Info().Msg("Engine clock started")

	wsServer := ws.NewServer(ws.ServerParams{
		Config:      cfg,
		Engine:      engine,
		Broadcaster: redisBroadcaster,
		Logger:      log.Logger,
	})

	log.Info().Msg("WebSocket server initialized")

	// Start WebSocket server
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting WebSocket server")
		if err := wsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start WebSocket server")
			cancel()
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the clock first so no tick races shutdown
	clock.Stop()
	log.Info().Msg("Engine clock stopped")

	// Stop WebSocket server
	if err := wsServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping WebSocket server")
	}

	// Drain auction actors
	engine.Stop()
	log.Info().Msg("Bidding engine stopped")

	if err := redisBroadcaster.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing broadcaster")
	}

	log.Info().Msg("Graceful shutdown completed")
}

func initLogging(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set log format
	if cfg.Logging.Format == "json" {
		// JSON format (default)
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Console format for development
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global logger
	zerolog.DefaultContextLogger = &log.Logger
}
