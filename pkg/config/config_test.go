package config

import (
	"flag"
	"testing"

	"github.com/kacperjurak/golgadcore"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	grid, err := cfg.Grid()
	if err != nil {
		t.Fatal(err)
	}
	if grid.NumPerSide != 60 {
		t.Errorf("pixels per side = %d, want 60", grid.NumPerSide)
	}
	opts, err := cfg.Options(grid)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lgadcore.NewProcessor(grid, opts); err != nil {
		t.Errorf("processor from defaults: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"spacing below size", func(c *Config) { c.PixelSpacing = 0.05 }},
		{"unknown method", func(c *Config) { c.OptimMethod = "bfgs" }},
		{"floor at d0", func(c *Config) { c.DistanceFloor = c.ReferenceDistance }},
		{"value kind", func(c *Config) { c.ValueKind = "adc" }},
		{"min points", func(c *Config) { c.MinPoints = 3 }},
		{"energy", func(c *Config) { c.Energy = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestFamilyFlags(t *testing.T) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&cfg.Families, "family", "model family")
	if err := fs.Parse([]string{"-family", "lorentzian", "-family", "g"}); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Families) != 2 || cfg.Families[0] != lgadcore.Lorentzian || cfg.Families[1] != lgadcore.Gaussian {
		t.Fatalf("families = %v", cfg.Families)
	}
	if got := cfg.Families.String(); got != "lorentzian,gaussian" {
		t.Errorf("String() = %q", got)
	}
	if err := cfg.Families.Set("voigt"); err == nil {
		t.Error("unknown family accepted")
	}

	grid, _ := cfg.Grid()
	opts, err := cfg.Options(grid)
	if err != nil {
		t.Fatal(err)
	}
	if len(opts.Families) != 2 || opts.Families[0] != lgadcore.Lorentzian {
		t.Errorf("options families = %v", opts.Families)
	}
}
