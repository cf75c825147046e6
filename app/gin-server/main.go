package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/yoockh/echonote/config"
	"github.com/yoockh/echonote/internal/api/handlers"
	"github.com/yoockh/echonote/internal/api/middleware"
	"github.com/yoockh/echonote/internal/api/routes"
	"github.com/yoockh/echonote/internal/logger"
	"github.com/yoockh/echonote/internal/providers/embed"
	"github.com/yoockh/echonote/internal/providers/llm"
	"github.com/yoockh/echonote/internal/providers/stt"
	mongorepo "github.com/yoockh/echonote/internal/repositories/mongo"
	pgrepo "github.com/yoockh/echonote/internal/repositories/postgres"
	"github.com/yoockh/echonote/internal/services"
	"github.com/yoockh/echonote/internal/storage"
	"github.com/yoockh/echonote/internal/workers"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	logg := logger.New()

	// Init MongoDB
	if err := config.InitMongo(); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}
	logg.Info("MongoDB connected")

	// Init PostgreSQL
	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	if err := config.EnsurePostgresSchema(); err != nil {
		log.Fatalf("PostgreSQL schema error: %v", err)
	}
	logg.Info("PostgreSQL connected")

	// Init Redis
	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	logg.Info("Redis connected")

	// Durable byte store
	storageDir := os.Getenv("STORAGE_DIR")
	if storageDir == "" {
		storageDir = "./data/recordings"
	}
	store, err := storage.NewDiskStore(storageDir)
	if err != nil {
		log.Fatalf("storage init error: %v", err)
	}

	var archiver storage.Archiver
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		gcs, err := storage.NewGCSArchiver(ctx, bucket)
		if err != nil {
			log.Fatalf("GCS init error: %v", err)
		}
		defer gcs.Close()
		archiver = gcs
	}

	// Providers
	sttProvider, err := stt.NewGoogleSpeech(ctx)
	if err != nil {
		log.Fatalf("speech client init error: %v", err)
	}
	defer sttProvider.Close()

	llmProvider, err := llm.NewVertexGemini(ctx,
		os.Getenv("GCP_PROJECT"),
		envOr("GCP_LOCATION", "us-central1"),
		envOr("GEMINI_MODEL", "gemini-1.5-flash"),
	)
	if err != nil {
		log.Fatalf("vertex client init error: %v", err)
	}
	defer llmProvider.Close()

	embedDims, _ := strconv.Atoi(envOr("EMBEDDING_DIMS", "768"))
	embedder := embed.NewOpenAIClient(
		os.Getenv("EMBEDDING_API_KEY"),
		os.Getenv("EMBEDDING_BASE_URL"),
		envOr("EMBEDDING_MODEL", "text-embedding-3-small"),
		embedDims,
	)
	defer embedder.Close()

	// Repositories
	recordingRepo := pgrepo.NewRecordingRepo(config.PostgresDB)
	taskRepo := pgrepo.NewTaskRepo(config.PostgresDB)
	embeddingRepo := pgrepo.NewEmbeddingRepo(config.PostgresDB)
	manifestRepo := mongorepo.NewManifestRepo(config.MongoDatabase())

	// Services
	uploadSvc := services.NewUploadService(recordingRepo, manifestRepo, store, archiver, logg, 24*time.Hour)
	recordingSvc := services.NewRecordingService(recordingRepo, taskRepo, embeddingRepo, store, logg)
	taskSvc := services.NewTaskService(taskRepo)
	searchSvc := services.NewSearchService(embeddingRepo, embedder, logg)
	progress := services.NewRedisProgress(config.RedisClient, logg)
	pipelineSvc := services.NewPipelineService(recordingRepo, store, sttProvider, llmProvider, taskSvc, searchSvc, progress, logg)

	// Background workers
	pool := &workers.PipelineWorkerPool{
		Redis:    config.RedisClient,
		Pipeline: pipelineSvc,
		Logger:   logg,
	}
	if err := pool.Start(ctx); err != nil {
		log.Fatalf("worker pool start error: %v", err)
	}

	// HTTP server
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logg))

	routes.RegisterRoutes(r, routes.Deps{
		Upload:     handlers.NewUploadHandler(uploadSvc),
		Stream:     handlers.NewStreamHandler(recordingSvc, store),
		Recording:  handlers.NewRecordingHandler(recordingSvc, taskSvc),
		Pipeline:   handlers.NewPipelineHandler(pipelineSvc, config.RedisClient, ""),
		Search:     handlers.NewSearchHandler(searchSvc),
		ProgressWS: handlers.NewProgressWSHandler(recordingSvc, config.RedisClient),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
