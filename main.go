package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"quicktexts/engine/internal/api"
	"quicktexts/engine/internal/auth"
	"quicktexts/engine/internal/cache"
	"quicktexts/engine/internal/config"
	"quicktexts/engine/internal/db"
	"quicktexts/engine/internal/localstore"
	"quicktexts/engine/internal/services"
	"quicktexts/engine/internal/store"
	"quicktexts/engine/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'worker' (share notification delivery), 'all' (default)")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the remote store and the identity provider. MOCK_SERVICES
	// swaps both for in-memory fakes; useful for local development without a
	// Mongo/identity backend.
	var remoteStore store.Store
	var identity auth.Identity
	if os.Getenv("MOCK_SERVICES") == "true" {
		log.Println("MOCK_SERVICES enabled: Using in-memory store and identity.")
		memStore := store.NewMemoryStore()
		memIdentity := auth.NewMemoryIdentity(cfg.JwtSecret)
		remoteStore = memStore
		identity = memIdentity
	} else {
		mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer func() {
			if err := db.DisconnectDB(mongoClient); err != nil {
				log.Printf("Error disconnecting from MongoDB: %v", err)
			}
		}()
		if err := db.EnsureIndexes(context.Background(), mongoDb); err != nil {
			log.Fatalf("Failed to ensure indexes: %v", err)
		}
		remoteStore = store.NewMongoStore(mongoClient, mongoDb)
		identity = auth.NewRestIdentity(cfg.IdentityURL, cfg.IdentityAPIKey)
	}

	// Initialize Cache (Redis)
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	// Local persistence: the sqlite key-value file backs both the signed-out
	// template store and the settings overrides.
	kv, err := localstore.OpenSqlite(cfg.LocalDBPath)
	if err != nil {
		log.Fatalf("Failed to open local database %s: %v", cfg.LocalDBPath, err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			log.Printf("Error closing local database: %v", err)
		}
	}()
	local := localstore.New(kv)

	// Initialize Task Client
	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()
	notifier := tasks.NewNotifier(taskClient)

	// Initialize Task Processor
	taskProcessor := tasks.NewTaskProcessor(cfg, identity)

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// --- Mode-specific servers ---
	var mainApiSrv *http.Server
	var taskSrv *asynq.Server
	var sessionService services.ISessionService
	var sharingService services.ISharingService

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	apiMode := func() {
		fmt.Println("Starting main API server...")
		// Router initializes its own needed services
		mainApiRouter, session, sharing := api.SetupRouter(cfg, remoteStore, identity, kv, local, notifier)
		sessionService = session
		sharingService = sharing

		// Resume a persisted session before serving requests.
		if err := sessionService.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start session service: %v", err)
		}

		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: mainApiRouter,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("Main API listening on :%s\n", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
			fmt.Println("Main API server stopped.")
		}()
	}

	workerMode := func() {
		fmt.Println("Starting share notification worker...")
		taskSrv = tasks.SetupServer(redisClient, taskProcessor)
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "worker":
		workerMode()
	case "all":
		apiMode()
		workerMode()
	default:
		log.Fatalf("Invalid run mode specified in config: %s.", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)

	// Create context with timeout for shutdown
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if mainApiSrv != nil {
		fmt.Println("Shutting down Main API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Main API server shutdown error: %v", err)
		}
	}

	// Commit any debounced share removals before the stores go away.
	if sharingService != nil {
		sharingService.Flush()
	}
	if sessionService != nil {
		sessionService.Stop()
	}

	if taskSrv != nil {
		fmt.Println("Shutting down task server...")
		taskSrv.Shutdown()
	}

	// Wait for all server goroutines to finish
	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}
