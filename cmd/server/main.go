package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codyseavey/tcg-sorter/backend/internal/api"
	"github.com/codyseavey/tcg-sorter/backend/internal/config"
	"github.com/codyseavey/tcg-sorter/backend/internal/database"
	"github.com/codyseavey/tcg-sorter/backend/internal/services"
	"github.com/codyseavey/tcg-sorter/backend/internal/sorting"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := database.Open(cfg.Database.Path, cfg.Database.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	scryfallService := services.NewScryfallService(services.ScryfallOptions{
		BaseURL:   cfg.Scryfall.BaseURL,
		RateLimit: cfg.Scryfall.RateLimit,
		CacheSize: cfg.Scryfall.CacheSize,
		Timeout:   cfg.ScryfallTimeout(),
	})

	priceTracker := services.NewPriceTracker(db, scryfallService, cfg.PriceStaleAfter(), cfg.Prices.Concurrency)
	catalog := services.NewCatalogService(db, scryfallService, priceTracker)
	imageStorage := services.NewImageStorageService(cfg.Images.Dir)
	scans := services.NewScanService(db, catalog, imageStorage, cfg.Recognition.ConfidenceThreshold)
	collections := services.NewCollectionService(db, priceTracker)
	priceWorker := services.NewPriceWorker(db, priceTracker, cfg.PriceUpdateInterval(), cfg.Prices.BatchSize)
	snapshotService := services.NewSnapshotService(db, priceTracker)

	// Sorting completion goes to SSE subscribers and, when configured, to RabbitMQ
	hub := services.NewEventHub()
	var notifier sorting.Notifier = hub
	var amqpNotifier *services.AMQPNotifier
	if cfg.AMQP.URL != "" {
		amqpNotifier = services.NewAMQPNotifier(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey)
		notifier = services.MultiNotifier{hub, amqpNotifier}
		log.Printf("Sorting events will be published to exchange %s", cfg.AMQP.Exchange)
	}
	sortingStore := services.NewSortingStore(db)
	session := sorting.NewSession(sortingStore, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Prices.WorkerEnabled {
		go runWithRecovery(ctx, "price worker", priceWorker.Start)
	} else {
		log.Println("Price worker disabled")
	}
	if cfg.Snapshots.Enabled {
		go runWithRecovery(ctx, "snapshot service", snapshotService.Start)
	}

	router := api.SetupRouter(api.Dependencies{
		Scryfall:           scryfallService,
		Catalog:            catalog,
		Scans:              scans,
		Collections:        collections,
		PriceTracker:       priceTracker,
		PriceWorker:        priceWorker,
		Snapshots:          snapshotService,
		Images:             imageStorage,
		SortingStore:       sortingStore,
		Session:            session,
		Events:             hub,
		DefaultBinCount:    cfg.Sorting.DefaultBinCount,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		FrontendDistPath:   cfg.Server.FrontendDistPath,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop background workers
	cancel()

	// Give outstanding requests a deadline to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if amqpNotifier != nil {
		if err := amqpNotifier.Close(); err != nil {
			log.Printf("Failed to close amqp connection: %v", err)
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Println("Server exited")
}

// runWithRecovery runs a background loop and restarts it 30 seconds after a panic
// until ctx is cancelled
func runWithRecovery(ctx context.Context, name string, run func(context.Context)) {
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("PANIC in %s: %v - restarting in 30 seconds", name, r)
				}
			}()
			run(ctx)
		}()

		select {
		case <-ctx.Done():
			return
		case <-time.After(30 * time.Second):
			log.Printf("%s restarting after panic recovery...", name)
		}
	}
}
