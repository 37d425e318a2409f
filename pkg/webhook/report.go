package webhook

import (
	"log"
	"math"
	"time"

	"github.com/kacperjurak/golgadcore"
	"github.com/kacperjurak/golgadcore/pkg/models"
)

// Calculator samples fitted models along their profiles for the report
type Calculator struct{}

// NewCalculator creates a new fitted-curve calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// CalculateCurves evaluates every converged fit at its profile coordinates
func (c *Calculator) CalculateCurves(profiles [lgadcore.NumCuts]lgadcore.Profile, fits []lgadcore.FitResult) []models.FitCurve {
	var result []models.FitCurve

	for _, fit := range fits {
		if !fit.Converged {
			continue
		}
		prof := profiles[fit.Cut]
		fitted := lgadcore.ModelFor(fit.Family).Sample(prof.Coords, fit.Params[:])

		result = append(result, models.FitCurve{
			Cut:    fit.Cut.String(),
			Family: fit.Family.String(),
			Coords: prof.Coords,
			Values: prof.Values,
			Fitted: c.sanitizeCurve(fitted, fit),
		})
	}

	return result
}

// sanitizeCurve handles NaN, Inf values for JSON compatibility
func (c *Calculator) sanitizeCurve(values []float64, fit lgadcore.FitResult) []float64 {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			log.Printf("Warning: Invalid fitted value (%v) for %s/%s at point %d, setting to 0.0", v, fit.Cut, fit.Family, i)
			values[i] = 0.0
		}
	}
	return values
}

// BuildReport converts a processed event into its JSON report
func BuildReport(requestID string, res lgadcore.EventResult, elapsed time.Duration, curves bool) models.EventReport {
	report := models.EventReport{
		ID:           requestID,
		Time:         time.Now().Format(time.RFC3339Nano),
		EventID:      res.Hit.EventID,
		State:        res.State.String(),
		HitX:         sanitizeFloat(res.Hit.X),
		HitY:         sanitizeFloat(res.Hit.Y),
		EnergyMeV:    sanitizeFloat(res.Hit.Energy),
		ProcessingMs: float64(elapsed.Nanoseconds()) / 1000000.0,
	}
	if res.Err != nil {
		report.Error = res.Err.Error()
	}
	if res.InvariantErr != nil {
		report.InvariantError = res.InvariantErr.Error()
	}
	if n := res.Neighborhood; n != nil {
		report.CenterPixel = [2]int{n.CenterI, n.CenterJ}
		report.InsidePixel = n.InsidePixel
	}
	if res.ChargeMap != nil {
		report.TotalCharge = res.ChargeMap.TotalCharge
		report.ChargeMap = chargeMapReport(res.ChargeMap)
	}

	for _, f := range res.Fits {
		report.Fits = append(report.Fits, fitSummary(f))
	}
	if curves {
		report.Curves = NewCalculator().CalculateCurves(res.Profiles, res.Fits)
	}

	if est := res.Estimate; est != nil {
		pos := positionReport(est.Reconstruction)
		report.Position = &pos
		report.ByFamily = make(map[string]models.PositionReport, len(est.ByFamily))
		for fam, rec := range est.ByFamily {
			report.ByFamily[lgadcore.Family(fam).String()] = positionReport(rec)
		}
		for _, r := range est.Rejected {
			report.Rejected = append(report.Rejected, r.Cut.String()+"/"+r.Family.String()+": "+r.Reason)
		}
	}
	return report
}

func fitSummary(f lgadcore.FitResult) models.FitSummary {
	s := models.FitSummary{
		Cut:          f.Cut.String(),
		Family:       f.Family.String(),
		Status:       f.Status,
		Converged:    f.Converged,
		Params:       finiteSlice(f.Params[:]),
		Errors:       finiteSlice(f.Errors[:]),
		FWHM:         finite(f.FWHM()),
		RSS:          finite(f.RSS),
		ReducedChiSq: finite(f.ReducedChiSq),
		Iterations:   f.Iterations,
	}
	if f.Err != nil {
		s.Error = f.Err.Error()
	}
	return s
}

func positionReport(r lgadcore.Reconstruction) models.PositionReport {
	axis := func(a lgadcore.AxisEstimate) models.AxisReport {
		return models.AxisReport{
			Value:         sanitizeFloat(a.Value),
			Uncertainty:   sanitizeFloat(a.Uncertainty),
			LowConfidence: a.LowConfidence,
			Contributors:  a.Contributors,
		}
	}
	return models.PositionReport{X: axis(r.X), Y: axis(r.Y)}
}

func chargeMapReport(cm *lgadcore.ChargeMap) *models.ChargeMapReport {
	const n = lgadcore.NeighborhoodSize
	out := &models.ChargeMapReport{
		Size:      n,
		Pixels:    make([][2]int, 0, n*n),
		Valid:     make([]bool, 0, n*n),
		Fractions: make([]float64, 0, n*n),
		Charges:   make([]float64, 0, n*n),
		AlphaDeg:  make([]*float64, 0, n*n),
	}
	alpha := cm.AlphaDegrees()
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			c := cm.Neighborhood.Cells[row][col]
			out.Pixels = append(out.Pixels, [2]int{c.I, c.J})
			out.Valid = append(out.Valid, c.Valid)
			out.Fractions = append(out.Fractions, sanitizeFloat(cm.Fraction[row][col]))
			out.Charges = append(out.Charges, sanitizeFloat(cm.Charge[row][col]))
			out.AlphaDeg = append(out.AlphaDeg, finite(alpha[row][col]))
		}
	}
	return out
}

// finite returns nil for NaN and Inf so they encode as JSON null
func finite(value float64) *float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return &value
}

func finiteSlice(v []float64) []*float64 {
	out := make([]*float64, len(v))
	for i, x := range v {
		out[i] = finite(x)
	}
	return out
}

// sanitizeFloat cleans float64 values for JSON compatibility
func sanitizeFloat(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0.0
	}
	return value
}
