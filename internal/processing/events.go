package processing

import (
	"fmt"
	"log"
	"time"

	"github.com/kacperjurak/golgadcore"
	"github.com/kacperjurak/golgadcore/pkg/config"
)

// EventProcessor runs hits through a core processor built from a Config
type EventProcessor struct {
	core  *lgadcore.Processor
	quiet bool
}

// NewEventProcessor validates cfg and builds the grid and processor
func NewEventProcessor(cfg *config.Config) (*EventProcessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	grid, err := cfg.Grid()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Options(grid)
	if err != nil {
		return nil, err
	}
	core, err := lgadcore.NewProcessor(grid, opts)
	if err != nil {
		return nil, fmt.Errorf("processing: %w", err)
	}

	log.Printf("Pixel grid: %d x %d pads of %.3g mm at %.3g mm pitch on a %.3g mm plane",
		grid.NumPerSide, grid.NumPerSide, grid.PixelSize, grid.PixelSpacing, grid.DetectorSize)
	log.Printf("Using optimization method: %s, families: %v", opts.Fit.Method, opts.Families)

	return &EventProcessor{core: core, quiet: cfg.Quiet}, nil
}

// Core returns the underlying processor
func (p *EventProcessor) Core() *lgadcore.Processor {
	return p.core
}

// Process processes one hit and logs its outcome
func (p *EventProcessor) Process(hit lgadcore.HitSample) (lgadcore.EventResult, error) {
	startTime := time.Now()
	res, err := p.core.Process(hit)
	duration := time.Since(startTime)

	if err != nil {
		log.Printf("Event %d %s: %v", hit.EventID, res.State, err)
		return res, err
	}

	if !p.quiet {
		est := res.Estimate
		log.Printf("Event %d: hit=(%.5f, %.5f) reco=(%.5f±%.2g, %.5f±%.2g) fits=%d rejected=%d time=%v",
			hit.EventID, hit.X, hit.Y,
			est.X.Value, est.X.Uncertainty, est.Y.Value, est.Y.Uncertainty,
			len(res.Fits), len(est.Rejected), duration)
	}
	return res, nil
}

// ProcessorFunc creates a function compatible with the worker pool
func (p *EventProcessor) ProcessorFunc() func(hit lgadcore.HitSample) (lgadcore.EventResult, error) {
	return p.Process
}
