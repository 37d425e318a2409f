package lgadcore

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultUncertaintyFloor keeps inverse-variance weights finite for
// noise-free fits whose residual variance vanishes.
const DefaultUncertaintyFloor = 1e-9

// AxisEstimate is the reconstructed coordinate on one axis.
type AxisEstimate struct {
	Value       float64 `json:"value"`
	Uncertainty float64 `json:"uncertainty"`
	// LowConfidence is set when no fit contributed and the value is the
	// charge centroid.
	LowConfidence bool `json:"low_confidence"`
	Contributors  int  `json:"contributors"`
}

// Reconstruction is an (x, y) estimate from a subset of fits.
type Reconstruction struct {
	X AxisEstimate `json:"x"`
	Y AxisEstimate `json:"y"`
}

// Rejection records a fit that did not contribute and why.
type Rejection struct {
	Cut    Cut    `json:"cut"`
	Family Family `json:"family"`
	Reason string `json:"reason"`
}

// PositionEstimate is the terminal per-event output.
type PositionEstimate struct {
	Reconstruction
	// ByFamily holds the reconstruction from each family's fits alone,
	// indexed by Family. Families that were not fitted fall back to the centroid.
	ByFamily [NumFamilies]Reconstruction `json:"by_family"`
	Fits     []FitResult                 `json:"fits"`
	Rejected []Rejection                 `json:"rejected"`
}

// Estimator combines fits into a position.
type Estimator struct {
	UncertaintyFloor float64
}

type contribution struct {
	value, sigma float64
}

// Estimate combines converged fits by inverse-variance weighting. Row fits
// measure x, column fits measure y, and a converged pair of diagonal fits of
// one family is rotated back by 45 degrees into both axes. An axis with no
// contribution falls back to the charge centroid flagged LowConfidence.
func (e Estimator) Estimate(cm *ChargeMap, fits []FitResult) PositionEstimate {
	out := PositionEstimate{Fits: fits}

	var (
		xs, ys   []contribution
		familyXs [NumFamilies][]contribution
		familyYs [NumFamilies][]contribution
		diag     [NumFamilies][2]*FitResult
	)

	for i := range fits {
		f := &fits[i]
		if reason := e.reject(cm, f); reason != "" {
			out.Rejected = append(out.Rejected, Rejection{Cut: f.Cut, Family: f.Family, Reason: reason})
			continue
		}
		c := contribution{value: f.Center(), sigma: e.floor(f.CenterError())}
		switch f.Cut {
		case CutRow:
			xs = append(xs, c)
			familyXs[f.Family] = append(familyXs[f.Family], c)
		case CutColumn:
			ys = append(ys, c)
			familyYs[f.Family] = append(familyYs[f.Family], c)
		case CutMainDiagonal:
			diag[f.Family][0] = f
		case CutSecondaryDiagonal:
			diag[f.Family][1] = f
		}
	}

	n := cm.Neighborhood
	for fam := range diag {
		main, sec := diag[fam][0], diag[fam][1]
		if main == nil || sec == nil {
			for _, f := range diag[fam] {
				if f != nil {
					out.Rejected = append(out.Rejected, Rejection{Cut: f.Cut, Family: f.Family, Reason: "diagonal partner missing"})
				}
			}
			continue
		}
		// main runs along (1,-1)/sqrt2, secondary along (1,1)/sqrt2
		sm, ss := main.Center(), sec.Center()
		sigma := e.floor(math.Hypot(main.CenterError(), sec.CenterError()) / math.Sqrt2)
		cx := contribution{value: n.CenterX + (sm+ss)/math.Sqrt2, sigma: sigma}
		cy := contribution{value: n.CenterY + (ss-sm)/math.Sqrt2, sigma: sigma}
		xs = append(xs, cx)
		ys = append(ys, cy)
		familyXs[fam] = append(familyXs[fam], cx)
		familyYs[fam] = append(familyYs[fam], cy)
	}

	gx, gy, sx, sy := Centroid(cm)
	out.X = combine(xs, gx, sx)
	out.Y = combine(ys, gy, sy)
	for fam := range out.ByFamily {
		out.ByFamily[fam] = Reconstruction{
			X: combine(familyXs[fam], gx, sx),
			Y: combine(familyYs[fam], gy, sy),
		}
	}
	return out
}

// reject returns a non-empty reason when the fit must not contribute.
func (e Estimator) reject(cm *ChargeMap, f *FitResult) string {
	if !f.Converged {
		if f.Err != nil {
			return f.Err.Error()
		}
		return f.Status
	}
	if !allFinite(f.Params[:]) || math.IsNaN(f.CenterError()) || math.IsInf(f.CenterError(), 0) {
		return "non-finite center or uncertainty"
	}

	lo, hi := cutRange(cm.Neighborhood, f.Cut)
	if f.Center() < lo || f.Center() > hi {
		return fmt.Sprintf("center %.6g outside profile range [%.6g, %.6g]", f.Center(), lo, hi)
	}
	return ""
}

func (e Estimator) floor(sigma float64) float64 {
	floor := e.UncertaintyFloor
	if floor <= 0 {
		floor = DefaultUncertaintyFloor
	}
	return math.Max(sigma, floor)
}

// cutRange is the coordinate span covered by a full profile along the cut.
func cutRange(n *Neighborhood, cut Cut) (lo, hi float64) {
	first := n.Cells[0][0]
	last := n.Cells[NeighborhoodSize-1][NeighborhoodSize-1]
	switch cut {
	case CutRow:
		return first.X, last.X
	case CutColumn:
		return first.Y, last.Y
	}
	half := (last.X - first.X) / 2 * math.Sqrt2
	return -half, half
}

// combine returns the inverse-variance weighted mean of the contributions,
// or the centroid marked low confidence when there are none.
func combine(cs []contribution, centroid, spread float64) AxisEstimate {
	if len(cs) == 0 {
		return AxisEstimate{Value: centroid, Uncertainty: spread, LowConfidence: true}
	}
	values := make([]float64, len(cs))
	weights := make([]float64, len(cs))
	for i, c := range cs {
		values[i] = c.value
		weights[i] = 1 / (c.sigma * c.sigma)
	}
	return AxisEstimate{
		Value:        stat.Mean(values, weights),
		Uncertainty:  1 / math.Sqrt(floats.Sum(weights)),
		Contributors: len(cs),
	}
}

// Centroid returns the charge-weighted center of the map over its valid
// cells and the charge-weighted RMS spread on each axis.
func Centroid(cm *ChargeMap) (x, y, sx, sy float64) {
	var xs, ys, ws []float64
	for row := range cm.Fraction {
		for col, f := range cm.Fraction[row] {
			c := cm.Neighborhood.Cells[row][col]
			if !c.Valid {
				continue
			}
			xs = append(xs, c.X)
			ys = append(ys, c.Y)
			ws = append(ws, f)
		}
	}
	x = stat.Mean(xs, ws)
	y = stat.Mean(ys, ws)
	sx = math.Sqrt(weightedMeanSquare(xs, ws, x))
	sy = math.Sqrt(weightedMeanSquare(ys, ws, y))
	return x, y, sx, sy
}

func weightedMeanSquare(v, w []float64, mean float64) float64 {
	d := make([]float64, len(v))
	for i := range v {
		d[i] = (v[i] - mean) * (v[i] - mean)
	}
	return stat.Mean(d, w)
}
