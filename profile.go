package lgadcore

import (
	"fmt"
	"math"
	"strings"
)

// Cut selects one of the four 1D slices through the neighborhood center.
type Cut int

const (
	CutRow Cut = iota
	CutColumn
	CutMainDiagonal      // top-left to bottom-right
	CutSecondaryDiagonal // top-right to bottom-left
)

// NumCuts is the number of profiles extracted per event.
const NumCuts = 4

var cutNames = [NumCuts]string{"row", "column", "main-diagonal", "secondary-diagonal"}

func (c Cut) String() string {
	if c < 0 || int(c) >= NumCuts {
		return fmt.Sprintf("cut(%d)", int(c))
	}
	return cutNames[c]
}

// MarshalText lets cuts appear by name in JSON reports.
func (c Cut) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ValueKind selects what a profile carries per point.
type ValueKind int

const (
	ValueFraction ValueKind = iota
	ValueCharge
)

func (v ValueKind) String() string {
	if v == ValueCharge {
		return "charge"
	}
	return "fraction"
}

// ParseValueKind accepts "fraction" or "charge".
func ParseValueKind(s string) (ValueKind, error) {
	switch strings.ToLower(s) {
	case "fraction", "":
		return ValueFraction, nil
	case "charge":
		return ValueCharge, nil
	}
	return ValueFraction, fmt.Errorf("unknown profile value kind %q", s)
}

// DefaultMinPoints is the smallest profile submitted to the fit engine.
const DefaultMinPoints = 5

// Profile is a 1D slice of the charge map in ascending coordinate order.
// Row and column coordinates are absolute pixel centers; diagonal
// coordinates are signed distances from the center pixel along the
// diagonal, one step being sqrt(2) spacings.
type Profile struct {
	Cut      Cut
	Coords   []float64
	Values   []float64
	Fittable bool
}

// Len returns the number of points.
func (p Profile) Len() int {
	return len(p.Coords)
}

// Extractor slices charge maps into profiles.
type Extractor struct {
	MinPoints int
	Value     ValueKind
}

// Extract returns the row, column and both diagonal profiles of cm, indexed by Cut.
func (e Extractor) Extract(cm *ChargeMap) [NumCuts]Profile {
	var out [NumCuts]Profile
	for c := Cut(0); c < NumCuts; c++ {
		out[c] = e.extract(cm, c)
	}
	return out
}

func (e Extractor) extract(cm *ChargeMap, cut Cut) Profile {
	n := cm.Neighborhood
	step := n.Cells[NeighborhoodRadius][NeighborhoodRadius+1].X - n.Center().X
	diagStep := step * math.Sqrt2

	p := Profile{
		Cut:    cut,
		Coords: make([]float64, 0, NeighborhoodSize),
		Values: make([]float64, 0, NeighborhoodSize),
	}
	for k := 0; k < NeighborhoodSize; k++ {
		var row, col int
		var coord float64
		switch cut {
		case CutRow:
			row, col = NeighborhoodRadius, k
			coord = n.Cells[row][col].X
		case CutColumn:
			row, col = k, NeighborhoodRadius
			coord = n.Cells[row][col].Y
		case CutMainDiagonal:
			// walks from (-x,+y) to (+x,-y)
			row, col = NeighborhoodSize-1-k, k
			coord = float64(k-NeighborhoodRadius) * diagStep
		case CutSecondaryDiagonal:
			// walks from (-x,-y) to (+x,+y)
			row, col = k, k
			coord = float64(k-NeighborhoodRadius) * diagStep
		}
		if !n.Cells[row][col].Valid {
			continue
		}
		p.Coords = append(p.Coords, coord)
		p.Values = append(p.Values, e.value(cm, row, col))
	}

	minPoints := e.MinPoints
	if minPoints <= 0 {
		minPoints = DefaultMinPoints
	}
	p.Fittable = p.Len() >= minPoints
	return p
}

func (e Extractor) value(cm *ChargeMap, row, col int) float64 {
	if e.Value == ValueCharge {
		return cm.Charge[row][col]
	}
	return cm.Fraction[row][col]
}
