package lgadcore

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
)

// EventState is the per-event position in the processing state machine.
type EventState int

const (
	StateDistributing EventState = iota
	StateExtracting
	StateFitting
	StateAggregating
	StateDone
	StateRejected
)

func (s EventState) String() string {
	switch s {
	case StateDistributing:
		return "distributing"
	case StateExtracting:
		return "extracting"
	case StateFitting:
		return "fitting"
	case StateAggregating:
		return "aggregating"
	case StateDone:
		return "done"
	case StateRejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText lets states appear by name in JSON reports.
func (s EventState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// HitSample is one interaction handed over by the transport simulation.
type HitSample struct {
	EventID int64   `json:"event_id"`
	Energy  float64 `json:"energy_mev"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// Validate checks the input contract on the deposit.
func (h HitSample) Validate() error {
	if !(h.Energy > 0) || math.IsInf(h.Energy, 0) {
		return fmt.Errorf("%w: event %d has %v", ErrInvalidEnergy, h.EventID, h.Energy)
	}
	return nil
}

// EventResult is everything produced for one event. Rejected events carry
// only the hit and the error.
type EventResult struct {
	Hit          HitSample
	State        EventState
	Neighborhood *Neighborhood
	ChargeMap    *ChargeMap
	Profiles     [NumCuts]Profile
	Fits         []FitResult
	Estimate     *PositionEstimate
	// InvariantErr is set when the charge map breaks its invariants. The
	// event is still processed and the condition is logged.
	InvariantErr error
	Err          error
}

// Options configures a Processor. Zero fields take defaults.
type Options struct {
	Charge    *ChargeModel
	Families  []Family
	Fit       Settings
	Extractor Extractor
	Estimator Estimator
	// ParallelFits runs the per-event fits on separate goroutines.
	ParallelFits bool
}

// DefaultOptions returns both families, native LM and fraction profiles.
func DefaultOptions(grid *PixelGrid) Options {
	return Options{
		Charge:    NewChargeModel(grid.PixelSize),
		Families:  []Family{Gaussian, Lorentzian},
		Fit:       DefaultSettings(),
		Extractor: Extractor{MinPoints: DefaultMinPoints, Value: ValueFraction},
		Estimator: Estimator{UncertaintyFloor: DefaultUncertaintyFloor},
	}
}

// Processor runs the full per-event pipeline. It is immutable after
// construction and safe for concurrent use.
type Processor struct {
	grid      *PixelGrid
	charge    *ChargeModel
	solvers   []*Solver
	extractor Extractor
	estimator Estimator
	parallel  bool
}

// NewProcessor validates the options against the grid.
func NewProcessor(grid *PixelGrid, opts Options) (*Processor, error) {
	if grid == nil {
		return nil, errors.New("processor: nil pixel grid")
	}
	defaults := DefaultOptions(grid)
	if opts.Charge == nil {
		opts.Charge = defaults.Charge
	}
	if len(opts.Families) == 0 {
		opts.Families = defaults.Families
	}
	if opts.Fit == (Settings{}) {
		opts.Fit = defaults.Fit
	}
	if err := opts.Charge.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Fit.Validate(); err != nil {
		return nil, err
	}

	p := &Processor{
		grid:      grid,
		charge:    opts.Charge,
		extractor: opts.Extractor,
		estimator: opts.Estimator,
		parallel:  opts.ParallelFits,
	}
	seen := make(map[Family]bool)
	for _, f := range opts.Families {
		if seen[f] {
			continue
		}
		if f != Gaussian && f != Lorentzian {
			return nil, fmt.Errorf("processor: unsupported family %v", f)
		}
		seen[f] = true
		p.solvers = append(p.solvers, NewSolver(ModelFor(f), opts.Fit))
	}
	return p, nil
}

// Grid returns the shared pixel grid.
func (p *Processor) Grid() *PixelGrid {
	return p.grid
}

// Process runs one hit through indexing, charge sharing, extraction,
// fitting and aggregation. The returned error is non-nil only for a
// rejected event (GeometryError) or an input that breaks the contract.
func (p *Processor) Process(hit HitSample) (EventResult, error) {
	res := EventResult{Hit: hit, State: StateDistributing}
	if err := hit.Validate(); err != nil {
		res.Err = err
		return res, err
	}

	n, err := p.grid.Neighborhood(hit.X, hit.Y)
	if err != nil {
		res.State = StateRejected
		res.Err = err
		return res, err
	}
	res.Neighborhood = n

	cm, err := p.charge.Distribute(n, hit.Energy)
	if err != nil {
		res.Err = err
		return res, err
	}
	res.ChargeMap = cm
	if err := CheckInvariants(cm); err != nil {
		log.Printf("event %d: %v", hit.EventID, err)
		res.InvariantErr = err
	}

	res.State = StateExtracting
	res.Profiles = p.extractor.Extract(cm)

	res.State = StateFitting
	res.Fits = p.fitAll(res.Profiles)

	res.State = StateAggregating
	est := p.estimator.Estimate(cm, res.Fits)
	res.Estimate = &est

	res.State = StateDone
	return res, nil
}

// fitAll fits every profile with every configured family. Results are laid
// out profile-major in solver order.
func (p *Processor) fitAll(profiles [NumCuts]Profile) []FitResult {
	fits := make([]FitResult, NumCuts*len(p.solvers))
	run := func(slot int, s *Solver, prof Profile) {
		if !prof.Fittable {
			fits[slot] = unfit(s.Model.Family, prof)
			return
		}
		fits[slot] = s.Fit(prof)
	}

	if !p.parallel {
		for c, prof := range profiles {
			for k, s := range p.solvers {
				run(c*len(p.solvers)+k, s, prof)
			}
		}
		return fits
	}

	var wg sync.WaitGroup
	for c, prof := range profiles {
		for k, s := range p.solvers {
			wg.Add(1)
			go func(slot int, s *Solver, prof Profile) {
				defer wg.Done()
				run(slot, s, prof)
			}(c*len(p.solvers)+k, s, prof)
		}
	}
	wg.Wait()
	return fits
}

func unfit(f Family, prof Profile) FitResult {
	return FitResult{
		Cut:          prof.Cut,
		Family:       f,
		Points:       prof.Len(),
		RSS:          math.NaN(),
		ReducedChiSq: math.NaN(),
		Errors:       infErrors(),
		Status:       StatusDegenerate,
		Err:          fmt.Errorf("%w: profile has %d points, below the fittable minimum", ErrFitDegenerate, prof.Len()),
	}
}

// RunStats aggregates outcomes across events for the bookkeeping stage. It
// is not synchronized; feed it from a single collector goroutine.
type RunStats struct {
	Events              int `json:"events"`
	Done                int `json:"done"`
	Rejected            int `json:"rejected"`
	InvalidInput        int `json:"invalid_input"`
	InvariantViolations int `json:"invariant_violations"`
	InsidePixel         int `json:"inside_pixel"`
	FitsAttempted       int `json:"fits_attempted"`
	FitsConverged       int `json:"fits_converged"`
	FitsDegenerate      int `json:"fits_degenerate"`
	FitsNonConvergence  int `json:"fits_non_convergence"`
	LowConfidenceX      int `json:"low_confidence_x"`
	LowConfidenceY      int `json:"low_confidence_y"`
}

// Add folds one event outcome into the totals.
func (s *RunStats) Add(r EventResult) {
	s.Events++
	switch {
	case r.State == StateRejected:
		s.Rejected++
		return
	case r.State != StateDone:
		s.InvalidInput++
		return
	}
	s.Done++
	if r.InvariantErr != nil {
		s.InvariantViolations++
	}
	if r.Neighborhood != nil && r.Neighborhood.InsidePixel {
		s.InsidePixel++
	}
	for _, f := range r.Fits {
		s.FitsAttempted++
		switch {
		case f.Converged:
			s.FitsConverged++
		case errors.Is(f.Err, ErrFitNonConvergence):
			s.FitsNonConvergence++
		default:
			s.FitsDegenerate++
		}
	}
	if r.Estimate != nil {
		if r.Estimate.X.LowConfidence {
			s.LowConfidenceX++
		}
		if r.Estimate.Y.LowConfidence {
			s.LowConfidenceY++
		}
	}
}

// Merge adds the totals of o into s.
func (s *RunStats) Merge(o RunStats) {
	s.Events += o.Events
	s.Done += o.Done
	s.Rejected += o.Rejected
	s.InvalidInput += o.InvalidInput
	s.InvariantViolations += o.InvariantViolations
	s.InsidePixel += o.InsidePixel
	s.FitsAttempted += o.FitsAttempted
	s.FitsConverged += o.FitsConverged
	s.FitsDegenerate += o.FitsDegenerate
	s.FitsNonConvergence += o.FitsNonConvergence
	s.LowConfidenceX += o.LowConfidenceX
	s.LowConfidenceY += o.LowConfidenceY
}
