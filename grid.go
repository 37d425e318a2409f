package lgadcore

import (
	"fmt"
	"math"
)

const (
	// NeighborhoodRadius is the number of pixels on each side of the center pixel.
	NeighborhoodRadius = 4
	// NeighborhoodSize is the side of the square neighborhood (9).
	NeighborhoodSize = 2*NeighborhoodRadius + 1
)

// PixelGrid describes the square pixel array on the detector plane. All
// lengths share one unit (mm in the default configuration). A grid is built
// once and only read afterwards, so it may be shared between workers.
type PixelGrid struct {
	PixelSize    float64 // side of the metal pad
	PixelSpacing float64 // center-to-center distance
	CornerOffset float64 // configured gap between plane edge and first pad
	DetectorSize float64 // side of the instrumented plane
	NumPerSide   int

	firstCenter float64
}

// NewPixelGrid validates the geometry and derives the pixel count per side.
// The array is centered on the plane, so the effective corner offset can
// exceed the configured one by up to one spacing.
func NewPixelGrid(pixelSize, pixelSpacing, cornerOffset, detectorSize float64) (*PixelGrid, error) {
	switch {
	case !(pixelSize > 0):
		return nil, fmt.Errorf("pixel size must be positive, got %v", pixelSize)
	case !(pixelSpacing >= pixelSize):
		return nil, fmt.Errorf("pixel spacing %v smaller than pixel size %v", pixelSpacing, pixelSize)
	case cornerOffset < 0:
		return nil, fmt.Errorf("corner offset must be non-negative, got %v", cornerOffset)
	case !(detectorSize > 0) || math.IsInf(detectorSize, 0):
		return nil, fmt.Errorf("detector size must be positive and finite, got %v", detectorSize)
	}

	usable := detectorSize - 2*cornerOffset - pixelSize
	if usable < 0 {
		return nil, fmt.Errorf("detector size %v too small for one pixel with offset %v", detectorSize, cornerOffset)
	}
	n := int(math.Floor(usable/pixelSpacing+1e-9)) + 1

	return &PixelGrid{
		PixelSize:    pixelSize,
		PixelSpacing: pixelSpacing,
		CornerOffset: cornerOffset,
		DetectorSize: detectorSize,
		NumPerSide:   n,
		firstCenter:  -float64(n-1) * pixelSpacing / 2,
	}, nil
}

// PixelCenter returns the center of pixel (i, j); i runs along x, j along y.
func (g *PixelGrid) PixelCenter(i, j int) (x, y float64) {
	return g.firstCenter + float64(i)*g.PixelSpacing, g.firstCenter + float64(j)*g.PixelSpacing
}

// Contains reports whether pixel index (i, j) exists on the grid.
func (g *PixelGrid) Contains(i, j int) bool {
	return i >= 0 && j >= 0 && i < g.NumPerSide && j < g.NumPerSide
}

// Locate returns the pixel whose cell (a square of side PixelSpacing around
// the center) contains the hit. Hits between the outermost cells and the
// plane edge belong to the edge pixel.
func (g *PixelGrid) Locate(x, y float64) (i, j int, err error) {
	half := g.DetectorSize / 2
	if math.IsNaN(x) || math.IsNaN(y) || math.Abs(x) > half || math.Abs(y) > half {
		return 0, 0, &GeometryError{X: x, Y: y, HalfSize: half}
	}
	return g.clampIndex(x), g.clampIndex(y), nil
}

func (g *PixelGrid) clampIndex(v float64) int {
	k := int(math.Round((v - g.firstCenter) / g.PixelSpacing))
	if k < 0 {
		return 0
	}
	if k >= g.NumPerSide {
		return g.NumPerSide - 1
	}
	return k
}

// Cell is one entry of a Neighborhood.
type Cell struct {
	I, J     int     // pixel index on the grid
	X, Y     float64 // pixel center
	Distance float64 // hit to pixel center
	Valid    bool    // false when the cell falls off the grid
}

// Neighborhood is the fixed 9x9 block of pixels around the hit. Cells are
// addressed [row][col] with row = dj+R (y offset) and col = di+R (x offset),
// so row 0 is the lowest y and col 0 the lowest x.
type Neighborhood struct {
	HitX, HitY       float64
	CenterI, CenterJ int
	CenterX, CenterY float64
	// InsidePixel is set when the hit landed on the center pixel's pad.
	InsidePixel bool
	Cells       [NeighborhoodSize][NeighborhoodSize]Cell
}

// Neighborhood builds the block of pixels around the hit, marking cells that
// fall off the grid as invalid.
func (g *PixelGrid) Neighborhood(x, y float64) (*Neighborhood, error) {
	ci, cj, err := g.Locate(x, y)
	if err != nil {
		return nil, err
	}

	cx, cy := g.PixelCenter(ci, cj)
	n := &Neighborhood{
		HitX:        x,
		HitY:        y,
		CenterI:     ci,
		CenterJ:     cj,
		CenterX:     cx,
		CenterY:     cy,
		InsidePixel: math.Abs(x-cx) <= g.PixelSize/2 && math.Abs(y-cy) <= g.PixelSize/2,
	}

	for row := 0; row < NeighborhoodSize; row++ {
		for col := 0; col < NeighborhoodSize; col++ {
			i := ci + col - NeighborhoodRadius
			j := cj + row - NeighborhoodRadius
			px, py := g.PixelCenter(i, j)
			n.Cells[row][col] = Cell{
				I:        i,
				J:        j,
				X:        px,
				Y:        py,
				Distance: math.Hypot(x-px, y-py),
				Valid:    g.Contains(i, j),
			}
		}
	}
	return n, nil
}

// Center returns the center cell.
func (n *Neighborhood) Center() Cell {
	return n.Cells[NeighborhoodRadius][NeighborhoodRadius]
}

// ValidCount returns how many cells lie on the grid.
func (n *Neighborhood) ValidCount() int {
	count := 0
	for row := range n.Cells {
		for col := range n.Cells[row] {
			if n.Cells[row][col].Valid {
				count++
			}
		}
	}
	return count
}
