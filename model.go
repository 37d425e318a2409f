package lgadcore

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// Family tags the profile function fitted to a profile.
type Family int

const (
	Gaussian Family = iota
	Lorentzian
)

// NumFamilies is the number of supported model families.
const NumFamilies = 2

func (f Family) String() string {
	switch f {
	case Gaussian:
		return "gaussian"
	case Lorentzian:
		return "lorentzian"
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// MarshalText lets families appear by name in JSON reports.
func (f Family) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// ParseFamily accepts "gaussian"/"g" or "lorentzian"/"l".
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(s) {
	case "gaussian", "gauss", "g":
		return Gaussian, nil
	case "lorentzian", "lorentz", "l":
		return Lorentzian, nil
	}
	return Gaussian, fmt.Errorf("unknown model family %q", s)
}

// Parameter positions shared by both families.
const (
	ParamAmplitude = iota
	ParamCenter
	ParamWidth
	ParamOffset
	NumParams
)

var paramNames = [NumParams]string{"amplitude", "center", "width", "offset"}

// Model is the closed form of one family: its value, its gradient with
// respect to the parameters and the conversion from a half width at half
// maximum to the width parameter.
type Model struct {
	Family        Family
	Func          func(x float64, p []float64) float64
	Grad          func(dst []float64, x float64, p []float64)
	WidthFromHWHM func(hwhm float64) float64
	FWHM          func(width float64) float64
}

var gaussHWHM = math.Sqrt(2 * math.Ln2)

// GaussianModel returns y = A exp(-(x-mu)^2 / 2 sigma^2) + B.
func GaussianModel() Model {
	return Model{
		Family: Gaussian,
		Func: func(x float64, p []float64) float64 {
			u := (x - p[ParamCenter]) / p[ParamWidth]
			return p[ParamAmplitude]*math.Exp(-u*u/2) + p[ParamOffset]
		},
		Grad: func(dst []float64, x float64, p []float64) {
			a, s := p[ParamAmplitude], p[ParamWidth]
			dx := x - p[ParamCenter]
			e := math.Exp(-dx * dx / (2 * s * s))
			dst[ParamAmplitude] = e
			dst[ParamCenter] = a * e * dx / (s * s)
			dst[ParamWidth] = a * e * dx * dx / (s * s * s)
			dst[ParamOffset] = 1
		},
		WidthFromHWHM: func(hwhm float64) float64 { return hwhm / gaussHWHM },
		FWHM:          func(sigma float64) float64 { return 2 * gaussHWHM * math.Abs(sigma) },
	}
}

// LorentzianModel returns y = A / (1 + ((x-m)/gamma)^2) + B.
func LorentzianModel() Model {
	return Model{
		Family: Lorentzian,
		Func: func(x float64, p []float64) float64 {
			u := (x - p[ParamCenter]) / p[ParamWidth]
			return p[ParamAmplitude]/(1+u*u) + p[ParamOffset]
		},
		Grad: func(dst []float64, x float64, p []float64) {
			a, g := p[ParamAmplitude], p[ParamWidth]
			u := (x - p[ParamCenter]) / g
			d := 1 + u*u
			dst[ParamAmplitude] = 1 / d
			dst[ParamCenter] = a * 2 * u / (g * d * d)
			dst[ParamWidth] = a * 2 * u * u / (g * d * d)
			dst[ParamOffset] = 1
		},
		WidthFromHWHM: func(hwhm float64) float64 { return hwhm },
		FWHM:          func(gamma float64) float64 { return 2 * math.Abs(gamma) },
	}
}

// ModelFor returns the closed form for a family.
func ModelFor(f Family) Model {
	if f == Lorentzian {
		return LorentzianModel()
	}
	return GaussianModel()
}

// Sample evaluates the model at every coordinate.
func (m Model) Sample(coords []float64, params []float64) []float64 {
	out := make([]float64, len(coords))
	for i, x := range coords {
		out[i] = m.Func(x, params)
	}
	return out
}

// SampleNoisy evaluates the model and adds Gaussian noise of the given
// standard deviation drawn from rng.
func (m Model) SampleNoisy(coords []float64, params []float64, sigma float64, rng *rand.Rand) []float64 {
	out := m.Sample(coords, params)
	for i := range out {
		out[i] += rng.NormFloat64() * sigma
	}
	return out
}

// SyntheticProfile builds a profile from the model for tests and calibration runs.
func (m Model) SyntheticProfile(cut Cut, coords []float64, params []float64) Profile {
	c := make([]float64, len(coords))
	copy(c, coords)
	return Profile{
		Cut:      cut,
		Coords:   c,
		Values:   m.Sample(coords, params),
		Fittable: len(coords) >= DefaultMinPoints,
	}
}
