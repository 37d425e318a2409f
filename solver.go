package lgadcore

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Optimizer methods understood by Solver.
const (
	MethodLM         = "lm"          // Levenberg-Marquardt with analytic Jacobian
	MethodLMNumeric  = "lm-numeric"  // maorshutman/lm with a numeric Jacobian
	MethodNelderMead = "nelder-mead" // derivative free simplex
)

const (
	DefaultMaxIterations = 200
	DefaultTolerance     = 1e-8

	lambdaInit = 1e-3
	lambdaMin  = 1e-15
	lambdaMax  = 1e16
)

// Status strings carried by FitResult.
const (
	OK               = "OK"
	StatusDegenerate = "DEGENERATE"
	StatusNoConverge = "NOT_CONVERGED"
)

// Settings is the read-only optimizer configuration shared by all fits.
type Settings struct {
	Method        string
	MaxIterations int
	Tolerance     float64 // relative parameter update that counts as converged
}

// DefaultSettings returns the native LM with the default budget.
func DefaultSettings() Settings {
	return Settings{
		Method:        MethodLM,
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
	}
}

// Validate rejects unusable budgets and unknown methods.
func (s Settings) Validate() error {
	switch strings.ToLower(s.Method) {
	case MethodLM, MethodLMNumeric, MethodNelderMead:
	default:
		return fmt.Errorf("unknown optimization method %q", s.Method)
	}
	if s.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", s.MaxIterations)
	}
	if !(s.Tolerance > 0) {
		return fmt.Errorf("tolerance must be positive, got %v", s.Tolerance)
	}
	return nil
}

// FitResult is the outcome of one (profile, family) fit. On failure the
// parameters hold the best estimate reached and Converged is false.
type FitResult struct {
	Cut          Cut                `json:"cut"`
	Family       Family             `json:"family"`
	Params       [NumParams]float64 `json:"params"`
	Errors       [NumParams]float64 `json:"errors"`
	RSS          float64            `json:"rss"`
	ReducedChiSq float64            `json:"reduced_chi_sq"`
	DoF          int                `json:"dof"`
	Points       int                `json:"points"`
	Iterations   int                `json:"iterations"`
	Converged    bool               `json:"converged"`
	Status       string             `json:"status"`
	Err          error              `json:"-"`
}

func (r FitResult) Amplitude() float64   { return r.Params[ParamAmplitude] }
func (r FitResult) Center() float64      { return r.Params[ParamCenter] }
func (r FitResult) Width() float64       { return r.Params[ParamWidth] }
func (r FitResult) Offset() float64      { return r.Params[ParamOffset] }
func (r FitResult) CenterError() float64 { return r.Errors[ParamCenter] }

// FWHM derives the full width at half maximum from the width parameter.
func (r FitResult) FWHM() float64 {
	return ModelFor(r.Family).FWHM(r.Width())
}

func (r FitResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s %s", r.Cut, r.Family, r.Status)
	for i, name := range paramNames {
		fmt.Fprintf(&b, " %s=%.6g±%.3g", name, r.Params[i], r.Errors[i])
	}
	fmt.Fprintf(&b, " rss=%.4g iters=%d", r.RSS, r.Iterations)
	return b.String()
}

// Solver fits one model family. It holds no per-fit state and may be used
// from several goroutines at once.
type Solver struct {
	Model    Model
	Settings Settings
}

// NewSolver returns a solver for the model.
func NewSolver(m Model, s Settings) *Solver {
	return &Solver{Model: m, Settings: s}
}

// Fit minimizes the squared residuals between the model and the profile.
// Charge-valued profiles sit near 1e-14 C, so the fit runs on values scaled
// to a unit peak and A, B and their errors are restored afterwards.
func (s *Solver) Fit(p Profile) FitResult {
	scale := floats.Norm(p.Values, math.Inf(1))
	if !(scale > 0) || math.IsInf(scale, 0) {
		scale = 1
	}
	sp := p
	sp.Values = make([]float64, len(p.Values))
	floats.ScaleTo(sp.Values, 1/scale, p.Values)

	res := s.fit(sp)
	res.rescale(scale)
	return res
}

func (s *Solver) fit(sp Profile) FitResult {
	res := FitResult{
		Cut:          sp.Cut,
		Family:       s.Model.Family,
		Points:       sp.Len(),
		RSS:          math.NaN(),
		ReducedChiSq: math.NaN(),
		Errors:       infErrors(),
		Status:       StatusDegenerate,
	}

	if sp.Len() < NumParams {
		res.Err = fmt.Errorf("%w: %d points for %d parameters", ErrFitDegenerate, sp.Len(), NumParams)
		return res
	}

	init, err := InitialGuess(s.Model, sp.Coords, sp.Values)
	res.Params = init
	if err != nil {
		res.Err = err
		return res
	}

	var (
		params [NumParams]float64
		iters  int
	)
	switch strings.ToLower(s.Settings.Method) {
	case MethodLMNumeric:
		params, err = s.lmNumericSolve(sp.Coords, sp.Values, init)
	case MethodNelderMead:
		params, iters, err = s.nmSolve(sp.Coords, sp.Values, init)
	default:
		params, iters, err = s.lmSolve(sp.Coords, sp.Values, init)
	}
	params[ParamWidth] = math.Abs(params[ParamWidth])

	res.Params = params
	res.Iterations = iters
	s.finish(&res, sp)

	switch {
	case err != nil:
		res.Err = err
		res.Status = StatusNoConverge
	case !(params[ParamWidth] > 0):
		res.Err = fmt.Errorf("%w: fitted width %v", ErrFitDegenerate, params[ParamWidth])
		res.Status = StatusDegenerate
	case !allFinite(params[:]):
		res.Err = fmt.Errorf("%w: non-finite parameters %v", ErrFitNonConvergence, params)
		res.Status = StatusNoConverge
	default:
		res.Converged = true
		res.Status = OK
	}
	return res
}

// rescale maps a fit made on values divided by scale back to the original
// units. Center and width do not depend on the value scale.
func (r *FitResult) rescale(scale float64) {
	if scale == 1 {
		return
	}
	r.Params[ParamAmplitude] *= scale
	r.Params[ParamOffset] *= scale
	r.Errors[ParamAmplitude] *= scale
	r.Errors[ParamOffset] *= scale
	r.RSS *= scale * scale
	r.ReducedChiSq *= scale * scale
}

// finish fills goodness of fit and parameter uncertainties at the reached point.
func (s *Solver) finish(res *FitResult, p Profile) {
	calculated := s.Model.Sample(p.Coords, res.Params[:])
	res.RSS = ChiSq(p.Values, calculated)
	res.DoF = p.Len() - NumParams
	if res.DoF > 0 {
		res.ReducedChiSq = res.RSS / float64(res.DoF)
	}

	errs, err := s.uncertainties(p.Coords, res.Params[:], res.ReducedChiSq)
	if err != nil {
		return
	}
	res.Errors = errs
}

// uncertainties returns sqrt(diag((J^T J)^-1) * s^2), with J evaluated at params.
func (s *Solver) uncertainties(x, params []float64, variance float64) ([NumParams]float64, error) {
	inf := infErrors()
	if math.IsNaN(variance) || math.IsInf(variance, 0) {
		return inf, fmt.Errorf("residual variance undefined")
	}

	jac := make([]float64, len(x)*NumParams)
	s.jacobian(jac, x, params)
	jtj, _ := normalEquations(jac, nil)

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(NumParams, jtj[:])); !ok {
		return inf, fmt.Errorf("singular normal matrix")
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return inf, err
	}

	var out [NumParams]float64
	for i := 0; i < NumParams; i++ {
		out[i] = math.Sqrt(math.Abs(cov.At(i, i)) * variance)
	}
	return out, nil
}

// lmSolve is a Levenberg-Marquardt loop on the damped normal equations
// (J^T J + lambda diag(J^T J)) delta = J^T r.
func (s *Solver) lmSolve(x, y []float64, p0 [NumParams]float64) ([NumParams]float64, int, error) {
	var (
		n      = len(x)
		p      = p0
		r      = make([]float64, n)
		trialR = make([]float64, n)
		jac    = make([]float64, n*NumParams)
		lambda = lambdaInit
		tol    = s.Settings.Tolerance
	)

	cost := s.residuals(r, x, y, p[:])
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return p, 0, fmt.Errorf("%w: initial residuals not finite", ErrFitNonConvergence)
	}

	for iter := 1; iter <= s.Settings.MaxIterations; iter++ {
		if cost == 0 {
			return p, iter - 1, nil
		}
		s.jacobian(jac, x, p[:])
		jtj, jtr := normalEquations(jac, r)

		for {
			var damped [NumParams * NumParams]float64
			copy(damped[:], jtj[:])
			for i := 0; i < NumParams; i++ {
				damped[i*NumParams+i] += lambda * math.Max(jtj[i*NumParams+i], 1e-12)
			}

			var (
				chol  mat.Cholesky
				delta mat.VecDense
			)
			if ok := chol.Factorize(mat.NewSymDense(NumParams, damped[:])); !ok {
				lambda *= 10
				if lambda > lambdaMax {
					return p, iter, fmt.Errorf("%w: normal matrix stays singular", ErrFitNonConvergence)
				}
				continue
			}
			if err := chol.SolveVecTo(&delta, mat.NewVecDense(NumParams, jtr[:])); err != nil {
				return p, iter, fmt.Errorf("%w: %v", ErrFitNonConvergence, err)
			}

			var cand [NumParams]float64
			for i := range cand {
				cand[i] = p[i] + delta.AtVec(i)
			}
			step := floats.Norm(delta.RawVector().Data, 2) / (floats.Norm(p[:], 2) + tol)

			trialCost := math.Inf(1)
			if cand[ParamWidth] != 0 {
				trialCost = s.residuals(trialR, x, y, cand[:])
			}

			if trialCost <= cost {
				p, cost = cand, trialCost
				r, trialR = trialR, r
				lambda = math.Max(lambda/10, lambdaMin)
				if step < tol {
					return p, iter, nil
				}
				break
			}

			// No downhill step exists at the current resolution.
			if step < tol {
				return p, iter, nil
			}
			lambda *= 10
			if lambda > lambdaMax {
				return p, iter, fmt.Errorf("%w: damping exhausted with relative step %.3g", ErrFitNonConvergence, step)
			}
		}
	}
	return p, s.Settings.MaxIterations, fmt.Errorf("%w after %d iterations", ErrFitNonConvergence, s.Settings.MaxIterations)
}

// lmNumericSolve delegates to maorshutman/lm. The library does not report an
// iteration count, so its own termination is trusted.
func (s *Solver) lmNumericSolve(x, y []float64, p0 [NumParams]float64) (params [NumParams]float64, err error) {
	params = p0
	fnc := func(dst, q []float64) {
		for i := range x {
			dst[i] = y[i] - s.Model.Func(x[i], q)
		}
	}

	jac := lm.NumJac{Func: fnc}
	init := make([]float64, NumParams)
	copy(init, p0[:])

	problem := lm.LMProblem{
		Dim:        NumParams,
		Size:       len(x),
		Func:       fnc,
		Jac:        jac.Jac,
		InitParams: init,
		Tau:        lambdaInit,
		Eps1:       s.Settings.Tolerance,
		Eps2:       s.Settings.Tolerance,
	}

	// Recover from LM panics (e.g., singular matrix)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("LM optimization panicked: %v", r)
			err = fmt.Errorf("%w: lm panicked: %v", ErrFitNonConvergence, r)
		}
	}()

	res, lmErr := lm.LM(problem, &lm.Settings{Iterations: s.Settings.MaxIterations, ObjectiveTol: 1e-16})
	if lmErr != nil {
		return params, fmt.Errorf("%w: %v", ErrFitNonConvergence, lmErr)
	}
	copy(params[:], res.X)
	return params, nil
}

// nmSolve minimizes the residual sum with gonum's Nelder-Mead.
func (s *Solver) nmSolve(x, y []float64, p0 [NumParams]float64) ([NumParams]float64, int, error) {
	params := p0
	calc := make([]float64, len(x))
	problem := optimize.Problem{
		Func: func(q []float64) float64 {
			for i, xi := range x {
				calc[i] = s.Model.Func(xi, q)
			}
			return ChiSq(y, calc)
		},
	}

	settings := &optimize.Settings{
		MajorIterations: s.Settings.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-20,
			Relative:   s.Settings.Tolerance,
			Iterations: 4 * NumParams,
		},
	}

	res, err := optimize.Minimize(problem, p0[:], settings, &optimize.NelderMead{})
	if res == nil {
		return params, 0, fmt.Errorf("%w: %v", ErrFitNonConvergence, err)
	}
	copy(params[:], res.X)
	if err != nil {
		return params, res.MajorIterations, fmt.Errorf("%w: %v", ErrFitNonConvergence, err)
	}
	if res.Status == optimize.IterationLimit || res.Status == optimize.FunctionEvaluationLimit {
		return params, res.MajorIterations, fmt.Errorf("%w: %v", ErrFitNonConvergence, res.Status)
	}
	return params, res.MajorIterations, nil
}

// residuals writes y - f(x) into dst and returns the residual sum of squares.
func (s *Solver) residuals(dst, x, y, p []float64) float64 {
	for i, xi := range x {
		dst[i] = y[i] - s.Model.Func(xi, p)
	}
	return floats.Dot(dst, dst)
}

// jacobian writes df/dp row-major into dst (len(x) rows, NumParams columns).
func (s *Solver) jacobian(dst, x, p []float64) {
	for i, xi := range x {
		s.Model.Grad(dst[i*NumParams:(i+1)*NumParams], xi, p)
	}
}

// normalEquations forms J^T J and, when r is non-nil, J^T r.
func normalEquations(jac, r []float64) (jtj [NumParams * NumParams]float64, jtr [NumParams]float64) {
	rows := len(jac) / NumParams
	for i := 0; i < rows; i++ {
		row := jac[i*NumParams : (i+1)*NumParams]
		for a := 0; a < NumParams; a++ {
			if r != nil {
				jtr[a] += row[a] * r[i]
			}
			for b := 0; b < NumParams; b++ {
				jtj[a*NumParams+b] += row[a] * row[b]
			}
		}
	}
	return jtj, jtr
}

// InitialGuess derives starting parameters from the profile: amplitude from
// the value range, center from the maximum, width from the interpolated half
// width at half maximum and offset from the minimum.
func InitialGuess(m Model, coords, values []float64) ([NumParams]float64, error) {
	var p [NumParams]float64
	if len(coords) == 0 || len(coords) != len(values) {
		return p, fmt.Errorf("%w: %d coordinates for %d values", ErrFitDegenerate, len(coords), len(values))
	}

	imax := floats.MaxIdx(values)
	imin := floats.MinIdx(values)
	amp := values[imax] - values[imin]

	p[ParamAmplitude] = amp
	p[ParamCenter] = coords[imax]
	p[ParamOffset] = values[imin]
	if !(amp > 0) {
		return p, fmt.Errorf("%w: flat profile", ErrFitDegenerate)
	}

	hwhm := halfWidth(coords, values, imax, values[imin]+amp/2)
	p[ParamWidth] = m.WidthFromHWHM(hwhm)
	if !(p[ParamWidth] > 0) {
		return p, fmt.Errorf("%w: estimated width %v", ErrFitDegenerate, p[ParamWidth])
	}
	return p, nil
}

// halfWidth walks outwards from the peak on both sides and linearly
// interpolates the first crossing of the half level. The found sides are
// averaged; with no crossing a quarter of the span is used.
func halfWidth(coords, values []float64, peak int, half float64) float64 {
	var (
		sum   float64
		found int
	)
	for k := peak; k+1 < len(values); k++ {
		if values[k+1] < half {
			sum += math.Abs(crossing(coords[k], values[k], coords[k+1], values[k+1], half) - coords[peak])
			found++
			break
		}
	}
	for k := peak; k-1 >= 0; k-- {
		if values[k-1] < half {
			sum += math.Abs(coords[peak] - crossing(coords[k], values[k], coords[k-1], values[k-1], half))
			found++
			break
		}
	}
	if found == 0 {
		return math.Abs(coords[len(coords)-1]-coords[0]) / 4
	}
	return sum / float64(found)
}

func crossing(x0, y0, x1, y1, level float64) float64 {
	if y1 == y0 {
		return (x0 + x1) / 2
	}
	return x0 + (level-y0)*(x1-x0)/(y1-y0)
}

// ChiSq returns the sum of squared differences between observed and calculated values.
func ChiSq(observed, calculated []float64) float64 {
	if len(observed) != len(calculated) {
		panic("solver chiSq: slice length mismatch")
	}
	sum := 0.0
	for i, o := range observed {
		d := o - calculated[i]
		sum += d * d
	}
	return sum
}

func infErrors() [NumParams]float64 {
	var e [NumParams]float64
	for i := range e {
		e[i] = math.Inf(1)
	}
	return e
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
