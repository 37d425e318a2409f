package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kacperjurak/golgadcore/internal/processing"
	"github.com/kacperjurak/golgadcore/pkg/config"
	"github.com/kacperjurak/golgadcore/pkg/server"
)

func main() {
	cfg, serverConfig := parseFlags()

	proc, err := processing.NewEventProcessor(cfg)
	if err != nil {
		log.Fatal("❌ Invalid configuration: ", err)
	}

	srv := server.New(server.Options{
		Config:       cfg,
		ServerConfig: serverConfig,
		Processor:    proc.ProcessorFunc(),
	})

	setupGracefulShutdown(srv)

	if err := srv.Start(); err != nil {
		log.Fatal("❌ Failed to start server:", err)
	}
}

// parseFlags parses command line flags and returns configuration
func parseFlags() (*config.Config, *config.ServerConfig) {
	cfg := config.DefaultConfig()
	sc := config.DefaultServerConfig()

	flag.Float64Var(&cfg.PixelSize, "size", cfg.PixelSize, "Pixel pad side (mm)")
	flag.Float64Var(&cfg.PixelSpacing, "spacing", cfg.PixelSpacing, "Pixel center-to-center spacing (mm)")
	flag.Float64Var(&cfg.CornerOffset, "offset", cfg.CornerOffset, "Gap between plane edge and first pad (mm)")
	flag.Float64Var(&cfg.DetectorSize, "det", cfg.DetectorSize, "Detector plane side (mm)")
	flag.StringVar(&cfg.OptimMethod, "method", cfg.OptimMethod, "Optimization method")
	flag.IntVar(&cfg.MaxIterations, "iter", cfg.MaxIterations, "Max optimizer iterations per fit")
	flag.StringVar(&cfg.ValueKind, "values", cfg.ValueKind, "Profile values (fraction, charge)")
	flag.Var(&cfg.Families, "family", "Model family, repeatable")
	flag.BoolVar(&cfg.ParallelFits, "parfits", cfg.ParallelFits, "Run the fits of one event concurrently")
	flag.UintVar(&cfg.Threads, "threads", cfg.Threads, "Number of worker threads")
	flag.BoolVar(&cfg.Quiet, "quiet", cfg.Quiet, "Suppress verbose output")
	flag.StringVar(&sc.Port, "port", sc.Port, "HTTP port")
	flag.StringVar(&sc.WebhookURL, "webhook", sc.WebhookURL, "Forward event reports to this URL")
	flag.StringVar(&sc.TimingFile, "timing", sc.TimingFile, "Batch timing CSV (empty disables)")
	flag.BoolVar(&sc.EnableProfiling, "profile", sc.EnableProfiling, "Enable pprof profiling")
	flag.StringVar(&sc.ProfilingPort, "pprof-port", sc.ProfilingPort, "pprof port")

	flag.Parse()

	sc.WorkerCount = int(cfg.Threads)
	cfg.EnableProfiling = sc.EnableProfiling
	return cfg, sc
}

// setupGracefulShutdown sets up graceful shutdown handling
func setupGracefulShutdown(srv *server.Server) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("🛑 Received shutdown signal...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
		os.Exit(0)
	}()
}
