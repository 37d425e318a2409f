package lgadcore

import (
	"math"
	"testing"
)

// testGrid is the 100 um pad / 500 um pitch / 100 um offset layout on a 30 mm plane.
func testGrid(t *testing.T) *PixelGrid {
	t.Helper()
	g, err := NewPixelGrid(0.1, 0.5, 0.1, 30)
	if err != nil {
		t.Fatalf("NewPixelGrid: %v", err)
	}
	return g
}

func testProcessor(t *testing.T, grid *PixelGrid) *Processor {
	t.Helper()
	p, err := NewProcessor(grid, DefaultOptions(grid))
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	return p
}

func distribute(t *testing.T, grid *PixelGrid, x, y, energy float64) *ChargeMap {
	t.Helper()
	n, err := grid.Neighborhood(x, y)
	if err != nil {
		t.Fatalf("Neighborhood(%v, %v): %v", x, y, err)
	}
	cm, err := NewChargeModel(grid.PixelSize).Distribute(n, energy)
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	return cm
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func relErr(got, want float64) float64 {
	if want == 0 {
		return math.Abs(got)
	}
	return math.Abs(got-want) / math.Abs(want)
}
