package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kacperjurak/golgadcore"
	"github.com/kacperjurak/golgadcore/internal/processing"
	"github.com/kacperjurak/golgadcore/internal/utils"
	"github.com/kacperjurak/golgadcore/pkg/config"
	"github.com/kacperjurak/golgadcore/pkg/server"
	"github.com/kacperjurak/golgadcore/pkg/webhook"
)

func main() {
	cfg := config.DefaultConfig()
	var output string

	flag.Float64Var(&cfg.PixelSize, "size", cfg.PixelSize, "Pixel pad side (mm)")
	flag.Float64Var(&cfg.PixelSpacing, "spacing", cfg.PixelSpacing, "Pixel center-to-center spacing (mm)")
	flag.Float64Var(&cfg.CornerOffset, "offset", cfg.CornerOffset, "Gap between plane edge and first pad (mm)")
	flag.Float64Var(&cfg.DetectorSize, "det", cfg.DetectorSize, "Detector plane side (mm)")
	flag.Float64Var(&cfg.IonizationEnergy, "eion", cfg.IonizationEnergy, "Ionization energy per pair (eV)")
	flag.Float64Var(&cfg.Gain, "gain", cfg.Gain, "Amplification gain")
	flag.Float64Var(&cfg.ReferenceDistance, "d0", cfg.ReferenceDistance, "Reference distance d0 (mm)")
	flag.Float64Var(&cfg.DistanceFloor, "floor", cfg.DistanceFloor, "Smallest distance used in ln(d/d0) (mm)")
	flag.StringVar(&cfg.OptimMethod, "m", cfg.OptimMethod, "Optimization method (lm, lm-numeric, nelder-mead)")
	flag.IntVar(&cfg.MaxIterations, "iter", cfg.MaxIterations, "Max optimizer iterations per fit")
	flag.Float64Var(&cfg.Tolerance, "tol", cfg.Tolerance, "Relative step tolerance")
	flag.IntVar(&cfg.MinPoints, "minpts", cfg.MinPoints, "Minimum points for a fittable profile")
	flag.StringVar(&cfg.ValueKind, "values", cfg.ValueKind, "Profile values (fraction, charge)")
	flag.Var(&cfg.Families, "family", "Model family, repeatable (gaussian, lorentzian)")
	flag.BoolVar(&cfg.ParallelFits, "parfits", cfg.ParallelFits, "Run the fits of one event concurrently")
	flag.StringVar(&cfg.File, "f", cfg.File, "Hit file, one 'E x y' per line")
	flag.UintVar(&cfg.RandomHits, "random", cfg.RandomHits, "Generate N uniformly distributed hits")
	flag.Float64Var(&cfg.Energy, "e", cfg.Energy, "Deposited energy of generated hits (MeV)")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Seed for generated hits")
	flag.UintVar(&cfg.Threads, "threads", cfg.Threads, "Number of worker threads")
	flag.StringVar(&output, "o", "", "Write per-event JSON reports to this file")
	flag.BoolVar(&cfg.HTTPServer, "http", cfg.HTTPServer, "Start HTTP server on port 8080")
	flag.BoolVar(&cfg.EnableProfiling, "profile", cfg.EnableProfiling, "Enable pprof profiling")
	flag.BoolVar(&cfg.Quiet, "q", cfg.Quiet, "Quiet mode")
	flag.Parse()

	proc, err := processing.NewEventProcessor(cfg)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.HTTPServer {
		startHTTPServer(cfg, proc)
		return
	}

	hits, err := loadHits(cfg, proc.Core().Grid())
	if err != nil {
		log.Fatal(err)
	}
	if len(hits) == 0 {
		log.Fatal("no hits: use -f FILE or -random N")
	}

	start := time.Now()
	results, stats := lgadcore.ProcessBatch(proc.Core(), hits, int(cfg.Threads))
	elapsed := time.Since(start)

	logSummary(results, stats, elapsed)

	if output != "" {
		if err := writeReports(output, results); err != nil {
			log.Fatal(err)
		}
		log.Printf("Reports written to %s", output)
	}
}

func loadHits(cfg *config.Config, grid *lgadcore.PixelGrid) ([]lgadcore.HitSample, error) {
	if cfg.File != "" {
		return parseFile(cfg.File)
	}
	return randomHits(int(cfg.RandomHits), cfg.Energy, grid.DetectorSize, cfg.Seed), nil
}

func logSummary(results []lgadcore.EventResult, stats lgadcore.RunStats, elapsed time.Duration) {
	var maps []*lgadcore.ChargeMap
	var sumX2, sumY2 float64
	for _, r := range results {
		if r.State != lgadcore.StateDone {
			continue
		}
		maps = append(maps, r.ChargeMap)
		dx := r.Estimate.X.Value - r.Hit.X
		dy := r.Estimate.Y.Value - r.Hit.Y
		sumX2 += dx * dx
		sumY2 += dy * dy
	}

	log.Printf("Processed %d events in %v (%d done, %d rejected, %d invalid)",
		stats.Events, elapsed, stats.Done, stats.Rejected, stats.InvalidInput)
	log.Printf("Fits: %d attempted, %d converged, %d degenerate, %d not converged",
		stats.FitsAttempted, stats.FitsConverged, stats.FitsDegenerate, stats.FitsNonConvergence)
	log.Printf("Inside pad: %d, invariant violations: %d, centroid fallbacks x/y: %d/%d",
		stats.InsidePixel, stats.InvariantViolations, stats.LowConfidenceX, stats.LowConfidenceY)
	if n := float64(len(maps)); n > 0 {
		log.Printf("RMS residual: x=%.4g mm, y=%.4g mm", math.Sqrt(sumX2/n), math.Sqrt(sumY2/n))
		mean := lgadcore.MeanAlphaGrid(maps)
		log.Printf("Mean subtended angle at center pixel: %.4f deg", mean[lgadcore.NeighborhoodRadius][lgadcore.NeighborhoodRadius])
	}
}

func writeReports(path string, results []lgadcore.EventResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for i, r := range results {
		if err := enc.Encode(webhook.BuildReport(utils.EventID("cli", i), r, 0, false)); err != nil {
			return err
		}
	}
	return nil
}

func startHTTPServer(cfg *config.Config, proc *processing.EventProcessor) {
	serverConfig := config.DefaultServerConfig()
	serverConfig.WorkerCount = int(cfg.Threads)
	serverConfig.EnableProfiling = cfg.EnableProfiling

	srv := server.New(server.Options{
		Config:       cfg,
		ServerConfig: serverConfig,
		Processor:    proc.ProcessorFunc(),
	})

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	if err := srv.Start(); err != nil {
		log.Fatal("❌ Failed to start server:", err)
	}
}
