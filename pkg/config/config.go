package config

import (
	"fmt"
	"strings"

	"github.com/kacperjurak/golgadcore"
)

// FamilyFlags collects repeated -family flags
type FamilyFlags []lgadcore.Family

func (a *FamilyFlags) String() string {
	names := make([]string, len(*a))
	for i, f := range *a {
		names[i] = f.String()
	}
	return strings.Join(names, ",")
}

func (a *FamilyFlags) Set(value string) error {
	if f, err := lgadcore.ParseFamily(value); err == nil {
		*a = append(*a, f)
		return nil
	} else {
		return err
	}
}

// Config holds all configuration settings for the charge sharing pipeline
type Config struct {
	// Geometry, mm
	PixelSize    float64
	PixelSpacing float64
	CornerOffset float64
	DetectorSize float64

	// Charge model
	IonizationEnergy  float64
	Gain              float64
	ReferenceDistance float64
	DistanceFloor     float64

	// Fitting
	OptimMethod   string
	MaxIterations int
	Tolerance     float64
	MinPoints     int
	ValueKind     string
	Families      FamilyFlags
	ParallelFits  bool

	// Run
	File            string
	RandomHits      uint
	Energy          float64
	Seed            int64
	Threads         uint
	Quiet           bool
	HTTPServer      bool
	EnableProfiling bool
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port            string
	WorkerCount     int
	WebhookURL      string
	EnableMetrics   bool
	EnableProfiling bool
	ProfilingPort   string
	TimingFile      string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		PixelSize:         0.1,
		PixelSpacing:      0.5,
		CornerOffset:      0.1,
		DetectorSize:      30,
		IonizationEnergy:  lgadcore.DefaultIonizationEnergy,
		Gain:              lgadcore.DefaultGain,
		ReferenceDistance: lgadcore.DefaultReferenceDistance,
		DistanceFloor:     lgadcore.DefaultDistanceFloor,
		OptimMethod:       lgadcore.MethodLM,
		MaxIterations:     lgadcore.DefaultMaxIterations,
		Tolerance:         lgadcore.DefaultTolerance,
		MinPoints:         lgadcore.DefaultMinPoints,
		ValueKind:         "fraction",
		Energy:            0.1,
		Seed:              1,
		Threads:           5,
		Quiet:             false,
		HTTPServer:        false,
	}
}

// DefaultServerConfig returns server configuration with sensible defaults
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            "8080",
		WorkerCount:     5,
		WebhookURL:      "",
		EnableMetrics:   true,
		EnableProfiling: false,
		ProfilingPort:   "6060",
		TimingFile:      "event_timing_results.csv",
	}
}

// Validate checks the settings that the core would otherwise reject later
func (c *Config) Validate() error {
	if _, err := c.Grid(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := lgadcore.ParseValueKind(c.ValueKind); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.fitSettings().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.chargeModel().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.MinPoints < lgadcore.NumParams {
		return fmt.Errorf("config: min points %d below the %d model parameters", c.MinPoints, lgadcore.NumParams)
	}
	if !(c.Energy > 0) {
		return fmt.Errorf("config: default energy must be positive, got %v", c.Energy)
	}
	return nil
}

// Grid builds the pixel grid described by the config
func (c *Config) Grid() (*lgadcore.PixelGrid, error) {
	return lgadcore.NewPixelGrid(c.PixelSize, c.PixelSpacing, c.CornerOffset, c.DetectorSize)
}

// Options builds processor options for the given grid
func (c *Config) Options(grid *lgadcore.PixelGrid) (lgadcore.Options, error) {
	kind, err := lgadcore.ParseValueKind(c.ValueKind)
	if err != nil {
		return lgadcore.Options{}, err
	}
	opts := lgadcore.DefaultOptions(grid)
	opts.Charge = c.chargeModel()
	opts.Fit = c.fitSettings()
	opts.Extractor = lgadcore.Extractor{MinPoints: c.MinPoints, Value: kind}
	opts.ParallelFits = c.ParallelFits
	if len(c.Families) > 0 {
		opts.Families = []lgadcore.Family(c.Families)
	}
	return opts, nil
}

func (c *Config) chargeModel() *lgadcore.ChargeModel {
	return &lgadcore.ChargeModel{
		PixelSize:         c.PixelSize,
		IonizationEnergy:  c.IonizationEnergy,
		Gain:              c.Gain,
		ReferenceDistance: c.ReferenceDistance,
		DistanceFloor:     c.DistanceFloor,
	}
}

func (c *Config) fitSettings() lgadcore.Settings {
	return lgadcore.Settings{
		Method:        c.OptimMethod,
		MaxIterations: c.MaxIterations,
		Tolerance:     c.Tolerance,
	}
}
