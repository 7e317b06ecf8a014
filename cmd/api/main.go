package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maize-backend/cmd"
	"maize-backend/internal/api"
	"maize-backend/internal/buildinfo"
	"maize-backend/internal/config"
	"maize-backend/internal/core"
	"maize-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ort "github.com/yalue/onnxruntime_go"
	"gopkg.in/natefinch/lumberjack.v2"
)

func createServer(service *core.PredictionService, cfg *config.Config) *http.Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300, // Cache preflight response for 5 minutes
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Compress(5))               // Gzip responses
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout
	r.Use(api.Metrics)

	handler := api.NewBackendService(service, buildinfo.String())
	handler.AddRoutes(r)

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.LogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}))
	}

	if cfg.OnnxRuntimeDylib != "" {
		ort.SetSharedLibraryPath(cfg.OnnxRuntimeDylib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		log.Fatalf("could not init ONNX Runtime: %v", err)
	}
	defer func() {
		if err := ort.DestroyEnvironment(); err != nil {
			log.Fatalf("error destroying onnx env: %v", err)
		}
	}()

	source, err := storage.NewSource(cfg.ModelPath, cfg.ModelCacheDir, storage.S3Config{
		EndpointURL:     cfg.S3EndpointURL,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Region:          cfg.S3Region,
	})
	if err != nil {
		log.Fatalf("error creating model source for %s: %v", cfg.ModelPath, err)
	}

	modelDir, err := source.Fetch(context.Background())
	if err != nil {
		log.Fatalf("error fetching model artifact: %v", err)
	}

	// A model that fails to load is a deployment problem; there is nothing
	// to serve without it.
	handle, err := core.LoadHandle(modelDir)
	if err != nil {
		log.Fatalf("could not load model from %s: %v", modelDir, err)
	}

	service := core.NewPredictionService(handle, cfg.MaxUploadBytes(), cfg.InferTimeout)
	server := createServer(service, cfg)

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("server started", "port", cfg.Port, "version", buildinfo.String(), "model_dir", modelDir)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	// Shutdown has drained in-flight requests by the time ListenAndServe
	// returns, so the model can be released before the onnx environment goes.
	handle.Close()
	slog.Info("server stopped")
}
