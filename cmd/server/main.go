package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flightstatus-service/internal/domain/repository"
	"flightstatus-service/internal/infrastructure/cache"
	"flightstatus-service/internal/infrastructure/config"
	"flightstatus-service/internal/infrastructure/persistence"
	"flightstatus-service/internal/interface/api"
	mongoRepo "flightstatus-service/internal/interface/repository"
	"flightstatus-service/internal/interface/vendor"
	"flightstatus-service/internal/usecase"
	"flightstatus-service/pkg/logger"
	"flightstatus-service/pkg/metrics"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// Create logger
	log := logger.NewLogger()
	log.Info("Starting Flight Status Service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up MongoDB connection
	log.Info("Connecting to MongoDB")
	mongoClient, db, err := persistence.NewMongoClient(ctx, cfg.MongoURI, cfg.MongoDB, cfg.MongoUser, cfg.MongoPassword)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}

	// Set up the shared cache: Redis when configured, in-memory
	// otherwise.
	var store cache.Cache
	if cfg.RedisAddr != "" {
		log.Info("Connecting to Redis", "addr", cfg.RedisAddr)
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal("Failed to connect to Redis", "error", err)
		}
		defer redisCache.Close()
		store = redisCache
	} else {
		log.Info("Using in-memory cache")
		memCache := cache.NewMemoryCache()
		defer memCache.Close()
		store = memCache
	}

	// Airport/airline reference data is optional; vendors fall back
	// to bare IATA codes without it.
	var airportRepository repository.AirportRepository
	var airlineRepository repository.AirlineRepository
	if cfg.PostgresURI != "" {
		gormDB, err := gorm.Open(postgres.Open(cfg.PostgresURI), &gorm.Config{})
		if err != nil {
			log.Fatal("Failed to connect to PostgreSQL", "error", err)
		}
		airportRepository = mongoRepo.NewGormAirportRepository(gormDB)
		airlineRepository = mongoRepo.NewGormAirlineRepository(gormDB)
	}

	// Set up metrics
	m := metrics.NewMetrics("flightstatus")

	// Set up repositories
	flightRepository := mongoRepo.NewMongoFlightRepository(db)
	subscriptionRepository := mongoRepo.NewMongoSubscriptionRepository(db)

	// Set up vendor clients
	vendors, err := vendor.NewClients(cfg.Vendors, airportRepository, airlineRepository, log)
	if err != nil {
		log.Fatal("Failed to configure vendors", "error", err)
	}
	log.Info("Configured flight data vendors", "count", len(vendors))

	// Set up usecases
	tracker := usecase.NewFlightTracker(flightRepository, vendors, store, m, log, cfg.FlightCacheTTL, cfg.StrictTransitions)
	dispatcher := usecase.NewWebhookDispatcher(subscriptionRepository, store, m, log, usecase.DispatcherOptions{
		DeliveryConcurrency: cfg.DeliveryConcurrency,
		DeliveryTimeout:     cfg.DeliveryTimeout,
		ProbeTimeout:        cfg.ProbeTimeout,
	})

	// Start the dead-letter retry loop
	go func() {
		retryTicker := time.NewTicker(cfg.RetryInterval)
		defer retryTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("Dead-letter retry loop stopped")
				return
			case <-retryTicker.C:
				processed, err := dispatcher.RetryFailedDeliveries(ctx)
				if err != nil {
					log.Error("Dead-letter retry cycle failed", "error", err)
				} else if processed > 0 {
					log.Info("Dead-letter retry cycle finished", "processed", processed)
				}
			}
		}
	}()

	// Set up HTTP server
	router := api.NewRouter(tracker, dispatcher, log)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start HTTP server in a goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Received signal", "signal", sig)

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	cancel() // Cancel the context to stop all goroutines

	// Disconnect from MongoDB
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		log.Error("MongoDB disconnect error", "error", err)
	}

	log.Info("Flight Status Service stopped")
}
