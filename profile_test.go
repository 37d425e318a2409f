package lgadcore

import (
	"math"
	"testing"
)

func TestExtractCenterHit(t *testing.T) {
	g := testGrid(t)
	cx, cy := g.PixelCenter(30, 30)
	cm := distribute(t, g, cx, cy, 0.1)
	profiles := Extractor{MinPoints: DefaultMinPoints}.Extract(cm)

	for c, p := range profiles {
		if p.Cut != Cut(c) {
			t.Errorf("profile %d has cut %v", c, p.Cut)
		}
		if p.Len() != NeighborhoodSize || !p.Fittable {
			t.Fatalf("%v: %d points, fittable=%v", p.Cut, p.Len(), p.Fittable)
		}
		for k := 1; k < p.Len(); k++ {
			if !(p.Coords[k] > p.Coords[k-1]) {
				t.Fatalf("%v: coordinates not ascending at %d", p.Cut, k)
			}
		}
		// a hit on the pixel center gives symmetric profiles
		for k := 0; k < NeighborhoodRadius; k++ {
			if !approx(p.Values[k], p.Values[NeighborhoodSize-1-k], 1e-15) {
				t.Errorf("%v: asymmetric at %d: %v vs %v", p.Cut, k, p.Values[k], p.Values[NeighborhoodSize-1-k])
			}
		}
	}

	row := profiles[CutRow]
	if !approx(row.Coords[0], cx-2, 1e-12) || !approx(row.Coords[8], cx+2, 1e-12) {
		t.Errorf("row spans [%v, %v], want [%v, %v]", row.Coords[0], row.Coords[8], cx-2, cx+2)
	}
	diag := profiles[CutMainDiagonal]
	step := 0.5 * math.Sqrt2
	for k, c := range diag.Coords {
		if !approx(c, float64(k-NeighborhoodRadius)*step, 1e-12) {
			t.Errorf("diagonal coord %d = %v", k, c)
		}
	}
}

func TestExtractDiagonalCells(t *testing.T) {
	g := testGrid(t)
	cx, cy := g.PixelCenter(20, 40)
	cm := distribute(t, g, cx+0.17, cy-0.08, 0.1)
	profiles := Extractor{}.Extract(cm)

	main, sec := profiles[CutMainDiagonal], profiles[CutSecondaryDiagonal]
	for k := 0; k < NeighborhoodSize; k++ {
		if main.Values[k] != cm.Fraction[NeighborhoodSize-1-k][k] {
			t.Errorf("main diagonal %d = %v, want cell (%d,%d)", k, main.Values[k], NeighborhoodSize-1-k, k)
		}
		if sec.Values[k] != cm.Fraction[k][k] {
			t.Errorf("secondary diagonal %d = %v, want cell (%d,%d)", k, sec.Values[k], k, k)
		}
	}
}

func TestExtractChargeValues(t *testing.T) {
	g := testGrid(t)
	cm := distribute(t, g, 1.1, -2.3, 0.4)
	p := Extractor{Value: ValueCharge}.Extract(cm)[CutColumn]
	for k, v := range p.Values {
		if v != cm.Charge[k][NeighborhoodRadius] {
			t.Errorf("column %d = %v, want charge %v", k, v, cm.Charge[k][NeighborhoodRadius])
		}
	}
}

func TestExtractClippedProfiles(t *testing.T) {
	g := testGrid(t)
	tests := []struct {
		name     string
		i, j     int
		minPts   int
		row      int
		fittable bool
	}{
		{"corner", 0, 0, 5, 5, true},
		{"one from edge", 1, 30, 5, 6, true},
		{"corner needs six", 0, 0, 6, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := g.PixelCenter(tt.i, tt.j)
			cm := distribute(t, g, x+0.01, y+0.01, 0.1)
			p := Extractor{MinPoints: tt.minPts}.Extract(cm)[CutRow]
			if p.Len() != tt.row {
				t.Errorf("row has %d points, want %d", p.Len(), tt.row)
			}
			if p.Fittable != tt.fittable {
				t.Errorf("fittable = %v, want %v", p.Fittable, tt.fittable)
			}
			if p.Coords[0] != cm.Neighborhood.Cells[NeighborhoodRadius][NeighborhoodSize-p.Len()].X {
				t.Errorf("first coordinate %v does not belong to the first valid cell", p.Coords[0])
			}
		})
	}
}

func TestParseValueKind(t *testing.T) {
	for in, want := range map[string]ValueKind{"": ValueFraction, "Fraction": ValueFraction, "charge": ValueCharge} {
		got, err := ParseValueKind(in)
		if err != nil || got != want {
			t.Errorf("ParseValueKind(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseValueKind("adc"); err == nil {
		t.Error("unknown kind accepted")
	}
}
