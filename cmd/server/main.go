package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"

	"github.com/pitchlab/gradepipe/internal/batch"
	"github.com/pitchlab/gradepipe/internal/cache"
	"github.com/pitchlab/gradepipe/internal/dispatch"
	"github.com/pitchlab/gradepipe/internal/enhance"
	"github.com/pitchlab/gradepipe/internal/grading"
	"github.com/pitchlab/gradepipe/internal/monitoring"
	"github.com/pitchlab/gradepipe/internal/provider"
	"github.com/pitchlab/gradepipe/internal/queue"
	"github.com/pitchlab/gradepipe/internal/ratelimit"
	"github.com/pitchlab/gradepipe/internal/store"
	"github.com/pitchlab/gradepipe/internal/types"
)

func main() {
	appLogger := monitoring.NewLogger()
	slog.SetDefault(appLogger.Logger)

	// Configuration from environment with defaults
	port := getEnvOrDefault("PORT", "8080")
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	redisAddr := os.Getenv("REDIS_ADDR")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := getEnvIntOrDefault("REDIS_DB", 0)
	completionURL := os.Getenv("COMPLETION_API_URL")
	completionKey := os.Getenv("COMPLETION_API_KEY")
	transcriptURL := os.Getenv("TRANSCRIPT_API_URL")
	workerCount := getEnvIntOrDefault("WORKER_COUNT", dispatch.DefaultWorkerCount)
	batchSize := getEnvIntOrDefault("BATCH_SIZE", batch.DefaultBatchSize)
	enhanceTimeout := getEnvDurationOrDefault("ENHANCE_TIMEOUT", grading.DefaultEnhanceTimeout)
	retentionDays := getEnvIntOrDefault("RETENTION_DAYS", 90)

	db, err := store.NewDB(dataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	repo := store.NewRepository(db)

	appMetrics := monitoring.NewMetrics()

	// Redis backs both the job queue and the rate limiter; without it both
	// degrade to in-memory single-node mode.
	redisClient, err := ratelimit.NewRedisClient(redisAddr, redisPassword, redisDB)
	if err != nil {
		slog.Warn("Redis unavailable", "error", err)
	}
	defer redisClient.Close()

	var jobQueue queue.Queue
	if redisClient.IsEnabled() {
		jobQueue = queue.NewRedisQueue(redisClient.Client(), "")
	} else {
		jobQueue = queue.NewMemoryQueue(0)
	}
	defer jobQueue.Close()

	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), appMetrics)

	var enhancer grading.Enhancer
	if completionURL != "" {
		enhancer = enhance.NewClient(completionURL, completionKey, enhanceTimeout)
	} else {
		slog.Info("Completion API not configured, grading deterministically")
	}

	var providerClient *provider.Client
	if transcriptURL != "" {
		providerClient = provider.NewClient(transcriptURL)
	}

	grader := grading.NewService(repo, enhancer, appLogger, appMetrics, enhanceTimeout)
	dispatcher := dispatch.NewDispatcher(jobQueue, repo, appLogger, appMetrics, batchSize)
	pool := dispatch.NewPool(jobQueue, repo, appLogger, appMetrics, workerCount)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	go func() {
		if err := pool.Run(rootCtx); err != nil {
			slog.Error("Worker pool stopped", "error", err)
		}
	}()

	// Daily retention sweep over graded sessions.
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, 0, -retentionDays)
				pruned, err := repo.PruneOlderThan(rootCtx, cutoff)
				if err != nil {
					slog.Error("Retention cleanup failed", "error", err)
					continue
				}
				slog.Info("Retention cleanup done", "sessions_pruned", pruned, "cutoff", cutoff.Format(time.RFC3339))
			}
		}
	}()

	srv := &server{
		repo:        repo,
		grader:      grader,
		dispatcher:  dispatcher,
		provider:    providerClient,
		convCache:   cache.New[*provider.Conversation](15 * time.Minute),
		statusCache: cache.New[*types.StatusResponse](time.Second),
		logger:      appLogger,
		metrics:     appMetrics,
		limiter:     limiter,
	}

	corsMiddleware := cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})

	r := newRouter(srv, corsMiddleware)

	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "port", port, "workers", workerCount, "batch_size", batchSize)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	// Stop the workers before closing the queue so in-flight batches finish
	// their store writes.
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}
