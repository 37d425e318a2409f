package lgadcore

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// ElementaryCharge in coulomb.
	ElementaryCharge = 1.602176634e-19

	DefaultIonizationEnergy  = 3.6   // eV per electron-hole pair (silicon)
	DefaultGain              = 20.0  // LGAD amplification
	DefaultReferenceDistance = 0.01  // d0, mm
	DefaultDistanceFloor     = 0.015 // smallest distance fed to ln(d/d0), mm

	// InvalidAngle is written into exported angle grids for clipped cells.
	InvalidAngle = -999.0

	fractionSumTolerance = 1e-9
)

const cells = NeighborhoodSize * NeighborhoodSize

// ChargeModel converts a deposit into per-pixel charge fractions using the
// angle each pad subtends from the hit, damped logarithmically with distance.
type ChargeModel struct {
	PixelSize         float64
	IonizationEnergy  float64 // eV
	Gain              float64
	ReferenceDistance float64
	// DistanceFloor clamps d before ln(d/d0). It must exceed
	// ReferenceDistance so every weight stays finite and positive.
	DistanceFloor float64
}

// NewChargeModel returns a model with default physics constants for the pad size.
func NewChargeModel(pixelSize float64) *ChargeModel {
	return &ChargeModel{
		PixelSize:         pixelSize,
		IonizationEnergy:  DefaultIonizationEnergy,
		Gain:              DefaultGain,
		ReferenceDistance: DefaultReferenceDistance,
		DistanceFloor:     DefaultDistanceFloor,
	}
}

// Validate checks the constants before the model is shared between workers.
func (m *ChargeModel) Validate() error {
	switch {
	case !(m.PixelSize > 0):
		return fmt.Errorf("charge model: pixel size must be positive, got %v", m.PixelSize)
	case !(m.IonizationEnergy > 0):
		return fmt.Errorf("charge model: ionization energy must be positive, got %v", m.IonizationEnergy)
	case !(m.Gain > 0):
		return fmt.Errorf("charge model: gain must be positive, got %v", m.Gain)
	case !(m.ReferenceDistance > 0):
		return fmt.Errorf("charge model: reference distance must be positive, got %v", m.ReferenceDistance)
	case !(m.DistanceFloor > m.ReferenceDistance):
		return fmt.Errorf("charge model: distance floor %v must exceed reference distance %v", m.DistanceFloor, m.ReferenceDistance)
	}
	return nil
}

// TotalCharge returns the amplified charge in coulomb for a deposit in MeV.
func (m *ChargeModel) TotalCharge(energyMeV float64) float64 {
	return energyMeV * 1e6 / m.IonizationEnergy * m.Gain * ElementaryCharge
}

// Alpha returns the angle (radians) subtended by a pad at distance d.
func (m *ChargeModel) Alpha(d float64) float64 {
	halfDiag := m.PixelSize / 2 * math.Sqrt2
	return math.Atan(halfDiag / (halfDiag + d))
}

// Weight returns the unnormalized share for a pad at distance d.
func (m *ChargeModel) Weight(d float64) float64 {
	d = math.Max(d, m.DistanceFloor)
	return m.Alpha(d) / math.Log(d/m.ReferenceDistance)
}

// ChargeMap holds the per-pixel result of one deposit. Invalid cells carry
// zero fraction and charge.
type ChargeMap struct {
	Neighborhood *Neighborhood
	EnergyMeV    float64
	TotalCharge  float64
	Alpha        [NeighborhoodSize][NeighborhoodSize]float64
	Fraction     [NeighborhoodSize][NeighborhoodSize]float64
	Charge       [NeighborhoodSize][NeighborhoodSize]float64
}

// Distribute spreads the charge of a deposit over the valid cells of n.
func (m *ChargeModel) Distribute(n *Neighborhood, energyMeV float64) (*ChargeMap, error) {
	if !(energyMeV > 0) || math.IsInf(energyMeV, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnergy, energyMeV)
	}

	cm := &ChargeMap{
		Neighborhood: n,
		EnergyMeV:    energyMeV,
		TotalCharge:  m.TotalCharge(energyMeV),
	}

	var w [cells]float64
	for row := 0; row < NeighborhoodSize; row++ {
		for col := 0; col < NeighborhoodSize; col++ {
			c := n.Cells[row][col]
			if !c.Valid {
				continue
			}
			cm.Alpha[row][col] = m.Alpha(c.Distance)
			w[row*NeighborhoodSize+col] = m.Weight(c.Distance)
		}
	}

	sum := floats.Sum(w[:])
	if !(sum > 0) {
		return nil, fmt.Errorf("%w: weight sum %v", ErrInvariantViolation, sum)
	}
	floats.Scale(1/sum, w[:])

	for k, f := range w {
		row, col := k/NeighborhoodSize, k%NeighborhoodSize
		cm.Fraction[row][col] = f
		cm.Charge[row][col] = f * cm.TotalCharge
	}
	return cm, nil
}

// CheckInvariants verifies 0 <= F <= 1 on every cell and that the fractions
// of the valid cells sum to one.
func CheckInvariants(cm *ChargeMap) error {
	sum := 0.0
	for row := 0; row < NeighborhoodSize; row++ {
		for col := 0; col < NeighborhoodSize; col++ {
			f := cm.Fraction[row][col]
			if math.IsNaN(f) || f < 0 || f > 1 {
				return fmt.Errorf("%w: fraction %v at cell (%d,%d)", ErrInvariantViolation, f, row, col)
			}
			if !cm.Neighborhood.Cells[row][col].Valid && f != 0 {
				return fmt.Errorf("%w: clipped cell (%d,%d) carries fraction %v", ErrInvariantViolation, row, col, f)
			}
			sum += f
		}
	}
	if math.Abs(sum-1) > fractionSumTolerance {
		return fmt.Errorf("%w: fractions sum to %.15g", ErrInvariantViolation, sum)
	}
	return nil
}

// AlphaDegrees exports the angle grid in degrees with InvalidAngle on clipped
// cells. A hit on the center pad has no meaningful angles and yields NaN everywhere.
func (cm *ChargeMap) AlphaDegrees() [NeighborhoodSize][NeighborhoodSize]float64 {
	var out [NeighborhoodSize][NeighborhoodSize]float64
	for row := range out {
		for col := range out[row] {
			switch {
			case cm.Neighborhood.InsidePixel:
				out[row][col] = math.NaN()
			case !cm.Neighborhood.Cells[row][col].Valid:
				out[row][col] = InvalidAngle
			default:
				out[row][col] = cm.Alpha[row][col] * 180 / math.Pi
			}
		}
	}
	return out
}

// MeanAlphaGrid averages exported angle grids position by position, skipping
// NaN and InvalidAngle entries. Positions with no usable sample stay NaN.
func MeanAlphaGrid(maps []*ChargeMap) [NeighborhoodSize][NeighborhoodSize]float64 {
	var (
		sum   [NeighborhoodSize][NeighborhoodSize]float64
		count [NeighborhoodSize][NeighborhoodSize]int
	)
	for _, cm := range maps {
		grid := cm.AlphaDegrees()
		for row := range grid {
			for col, v := range grid[row] {
				if math.IsNaN(v) || v == InvalidAngle {
					continue
				}
				sum[row][col] += v
				count[row][col]++
			}
		}
	}
	for row := range sum {
		for col := range sum[row] {
			if count[row][col] == 0 {
				sum[row][col] = math.NaN()
				continue
			}
			sum[row][col] /= float64(count[row][col])
		}
	}
	return sum
}
