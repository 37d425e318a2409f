package lgadcore

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestFractionsSumToOne(t *testing.T) {
	g := testGrid(t)
	rng := rand.New(rand.NewSource(42))

	hits := [][2]float64{{0, 0}, {14.9, 14.9}, {-14.99, 3.3}, {0.25, 0.25}}
	for i := 0; i < 200; i++ {
		hits = append(hits, [2]float64{rng.Float64()*30 - 15, rng.Float64()*30 - 15})
	}

	for _, h := range hits {
		cm := distribute(t, g, h[0], h[1], 0.05)
		if err := CheckInvariants(cm); err != nil {
			t.Fatalf("hit %v: %v", h, err)
		}
		sum := 0.0
		for row := range cm.Fraction {
			for _, f := range cm.Fraction[row] {
				sum += f
			}
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("hit %v: fraction sum = %.15g", h, sum)
		}
	}
}

func TestFractionsInvariantToEnergy(t *testing.T) {
	g := testGrid(t)
	x, y := g.PixelCenter(31, 28)
	low := distribute(t, g, x+0.13, y-0.07, 0.01)
	high := distribute(t, g, x+0.13, y-0.07, 2.5)

	ratio := high.TotalCharge / low.TotalCharge
	if relErr(ratio, 250) > 1e-12 {
		t.Fatalf("total charge ratio = %v, want 250", ratio)
	}
	for row := range low.Fraction {
		for col := range low.Fraction[row] {
			if low.Fraction[row][col] != high.Fraction[row][col] {
				t.Fatalf("fraction changed with energy at (%d,%d)", row, col)
			}
			if low.Charge[row][col] == 0 {
				continue
			}
			if r := high.Charge[row][col] / low.Charge[row][col]; relErr(r, 250) > 1e-12 {
				t.Errorf("charge ratio at (%d,%d) = %v", row, col, r)
			}
		}
	}
}

func TestTotalCharge(t *testing.T) {
	m := NewChargeModel(0.1)
	want := 1e6 / 3.6 * 20 * ElementaryCharge
	if got := m.TotalCharge(1); relErr(got, want) > 1e-12 {
		t.Errorf("TotalCharge(1 MeV) = %v, want %v", got, want)
	}
}

func TestHitOnPixelCenterStaysFinite(t *testing.T) {
	g := testGrid(t)
	x, y := g.PixelCenter(30, 30)
	cm := distribute(t, g, x, y, 0.1)

	if d := cm.Neighborhood.Center().Distance; d != 0 {
		t.Fatalf("center distance = %v, want exactly 0", d)
	}
	for row := range cm.Fraction {
		for col, f := range cm.Fraction[row] {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				t.Fatalf("non-finite fraction at (%d,%d)", row, col)
			}
			if q := cm.Charge[row][col]; math.IsNaN(q) || math.IsInf(q, 0) {
				t.Fatalf("non-finite charge at (%d,%d)", row, col)
			}
		}
	}
	if err := CheckInvariants(cm); err != nil {
		t.Fatal(err)
	}
}

func TestCenterPixelCarriesLargestFraction(t *testing.T) {
	g := testGrid(t)
	x, y := g.PixelCenter(30, 30)
	cm := distribute(t, g, x, y, 0.1)

	center := cm.Fraction[NeighborhoodRadius][NeighborhoodRadius]
	for row := range cm.Fraction {
		for col, f := range cm.Fraction[row] {
			if row == NeighborhoodRadius && col == NeighborhoodRadius {
				continue
			}
			if !(center > f) {
				t.Fatalf("center fraction %v not above (%d,%d) = %v", center, row, col, f)
			}
		}
	}
	t.Logf("center fraction %.4f", center)
}

func TestClippedCellsCarryNoCharge(t *testing.T) {
	g := testGrid(t)
	x, y := g.PixelCenter(0, 0)
	cm := distribute(t, g, x, y, 0.1)
	for row := range cm.Fraction {
		for col := range cm.Fraction[row] {
			if !cm.Neighborhood.Cells[row][col].Valid && (cm.Fraction[row][col] != 0 || cm.Charge[row][col] != 0) {
				t.Errorf("clipped cell (%d,%d) has charge", row, col)
			}
		}
	}
	if err := CheckInvariants(cm); err != nil {
		t.Fatal(err)
	}
}

func TestCheckInvariantsDetectsDefects(t *testing.T) {
	g := testGrid(t)
	cm := distribute(t, g, 0.3, -1.1, 0.1)

	broken := *cm
	broken.Fraction[2][2] += 0.01
	if err := CheckInvariants(&broken); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("sum defect: err = %v", err)
	}

	broken = *cm
	broken.Fraction[0][0] = -0.1
	if err := CheckInvariants(&broken); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("negative fraction: err = %v", err)
	}
}

func TestDistributeRejectsBadEnergy(t *testing.T) {
	g := testGrid(t)
	n, _ := g.Neighborhood(0, 0)
	m := NewChargeModel(g.PixelSize)
	for _, e := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := m.Distribute(n, e); !errors.Is(err, ErrInvalidEnergy) {
			t.Errorf("energy %v: err = %v", e, err)
		}
	}
}

func TestChargeModelValidate(t *testing.T) {
	m := NewChargeModel(0.1)
	if err := m.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	m.DistanceFloor = m.ReferenceDistance
	if err := m.Validate(); err == nil {
		t.Error("floor equal to d0 accepted")
	}
}

func TestWeightDecreasesWithDistance(t *testing.T) {
	m := NewChargeModel(0.1)
	prev := m.Weight(0)
	for _, d := range []float64{0.02, 0.1, 0.5, 0.7, 1.0, 2.0, 2.83} {
		w := m.Weight(d)
		if !(w > 0) || !(w < prev) {
			t.Fatalf("weight(%v) = %v, previous %v", d, w, prev)
		}
		prev = w
	}
}

func TestAlphaDegreesExport(t *testing.T) {
	g := testGrid(t)
	x, y := g.PixelCenter(0, 30)

	cm := distribute(t, g, x+0.2, y, 0.1)
	grid := cm.AlphaDegrees()
	if grid[NeighborhoodRadius][0] != InvalidAngle {
		t.Errorf("clipped cell angle = %v, want %v", grid[NeighborhoodRadius][0], InvalidAngle)
	}
	want := cm.Alpha[NeighborhoodRadius][NeighborhoodRadius] * 180 / math.Pi
	if got := grid[NeighborhoodRadius][NeighborhoodRadius]; got != want {
		t.Errorf("center angle = %v, want %v", got, want)
	}

	inside := distribute(t, g, x, y, 0.1)
	for _, row := range inside.AlphaDegrees() {
		for _, v := range row {
			if !math.IsNaN(v) {
				t.Fatalf("inside-pad hit exported angle %v, want NaN", v)
			}
		}
	}
}

func TestMeanAlphaGrid(t *testing.T) {
	g := testGrid(t)
	x, y := g.PixelCenter(30, 30)
	a := distribute(t, g, x+0.2, y, 0.1)
	b := distribute(t, g, x-0.2, y+0.1, 0.1)
	edge := distribute(t, g, -14.6, 0.2, 0.1)

	mean := MeanAlphaGrid([]*ChargeMap{a, b, edge})
	ga, gb, ge := a.AlphaDegrees(), b.AlphaDegrees(), edge.AlphaDegrees()

	// column 0 is clipped for the edge hit and averages only a and b
	want := (ga[2][0] + gb[2][0]) / 2
	if ge[2][0] != InvalidAngle {
		t.Fatalf("edge hit column 0 not clipped: %v", ge[2][0])
	}
	if !approx(mean[2][0], want, 1e-12) {
		t.Errorf("mean[2][0] = %v, want %v", mean[2][0], want)
	}
	want = (ga[4][4] + gb[4][4] + ge[4][4]) / 3
	if !approx(mean[4][4], want, 1e-12) {
		t.Errorf("mean[4][4] = %v, want %v", mean[4][4], want)
	}

	if empty := MeanAlphaGrid(nil); !math.IsNaN(empty[0][0]) {
		t.Errorf("empty mean = %v, want NaN", empty[0][0])
	}
}
