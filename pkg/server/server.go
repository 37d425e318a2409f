package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kacperjurak/golgadcore/pkg/config"
	"github.com/kacperjurak/golgadcore/pkg/handlers"
	"github.com/kacperjurak/golgadcore/pkg/profiling"
	"github.com/kacperjurak/golgadcore/pkg/webhook"
	"github.com/kacperjurak/golgadcore/pkg/worker"
)

// Server represents the HTTP server with all dependencies
type Server struct {
	config        *config.Config
	serverConfig  *config.ServerConfig
	workerPool    *worker.Pool
	webhookClient *webhook.Client
	httpServer    *http.Server
	profiler      *profiling.Profiler
	middleware    *profiling.Middleware
}

// Options holds configuration for creating a new server
type Options struct {
	Config       *config.Config
	ServerConfig *config.ServerConfig
	Processor    worker.ProcessorFunc
}

// New creates a new server instance
func New(opts Options) *Server {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.ServerConfig == nil {
		opts.ServerConfig = config.DefaultServerConfig()
	}

	s := &Server{
		config:       opts.Config,
		serverConfig: opts.ServerConfig,
		middleware:   profiling.NewMiddleware(opts.ServerConfig.EnableProfiling),
	}

	poolOpts := worker.Options{
		Workers:   opts.ServerConfig.WorkerCount,
		Processor: opts.Processor,
	}
	if opts.ServerConfig.WebhookURL != "" {
		s.webhookClient = webhook.NewClient(opts.ServerConfig.WebhookURL, opts.Config.Quiet)
		poolOpts.Webhook = s.webhookClient.Send
	}
	s.workerPool = worker.New(poolOpts)
	s.profiler = profiling.New(opts.ServerConfig, s.workerPool.Stats)

	s.setupRoutes()
	return s
}

// setupRoutes configures HTTP routes and handlers
func (s *Server) setupRoutes() {
	mux := http.NewServeMux()

	forward := s.webhookClient != nil
	eventHandler := handlers.NewEventHandler(s.config, s.workerPool, forward)
	batchHandler := handlers.NewBatchHandler(s.config, s.workerPool, s.serverConfig.TimingFile, forward)

	// Register routes with profiling middleware
	mux.Handle("/events", s.middleware.ProfiledHandler("events-single", eventHandler))
	mux.Handle("/events/batch", s.middleware.ProfiledHandler("events-batch", batchHandler))
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/debug/gc", s.gcHandler)
	mux.HandleFunc("/debug/memory", s.memoryHandler)

	s.httpServer = &http.Server{
		Addr:         ":" + s.serverConfig.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// healthHandler provides a simple health check endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// statsHandler returns the run statistics accumulated by the worker pool
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"stats":     s.workerPool.Stats(),
		"workers":   s.workerPool.Workers(),
		"method":    s.config.OptimMethod,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// gcHandler triggers garbage collection and returns stats
func (s *Server) gcHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(profiling.ForceGC())
}

// memoryHandler provides current memory statistics
func (s *Server) memoryHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	profiling.LogGCStats()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.profiler.RuntimeInfo())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	if err := s.profiler.Start(); err != nil {
		log.Printf("❌ Failed to start profiler: %v", err)
	}

	log.Println("🚀 Starting HTTP server on port", s.serverConfig.Port)
	log.Println("📡 Endpoints available:")
	log.Printf("  - Single: http://localhost:%s/events", s.serverConfig.Port)
	log.Printf("  - Batch:  http://localhost:%s/events/batch", s.serverConfig.Port)
	log.Printf("  - Health: http://localhost:%s/health", s.serverConfig.Port)
	log.Printf("  - Stats:  http://localhost:%s/stats", s.serverConfig.Port)
	log.Printf("  - GC:     http://localhost:%s/debug/gc", s.serverConfig.Port)
	log.Printf("  - Memory: http://localhost:%s/debug/memory", s.serverConfig.Port)
	if s.webhookClient != nil {
		log.Printf("🌐 Forwarding reports to %s", s.webhookClient.URL())
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("⚠️ HTTP server shutdown error: %v", err)
	}

	if err := s.profiler.Stop(); err != nil {
		log.Printf("⚠️ Profiler shutdown error: %v", err)
	}

	s.workerPool.Shutdown()

	log.Println("✅ Server shutdown complete")
	return nil
}
