package statecc

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(`
tier = "gen5"
pool_budget_kb = 64
debug_wm = true
`)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Tier != "gen5" || cfg.PoolBudgetKB != 64 || !cfg.DebugWM {
		t.Errorf("decoded %+v", cfg)
	}
	// Keys absent from the text keep their defaults.
	def := DefaultConfig()
	if cfg.WMMaxGRF != def.WMMaxGRF || cfg.ScratchPerThread != def.ScratchPerThread {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		isConfig bool
		contains string
	}{
		{"unknown key", "tier = \"gen4\"\ncolour = 1\n", true, "colour"},
		{"bad tier", `tier = "gen9"`, true, "gen9"},
		{"small pool", `pool_budget_kb = 1`, true, "pool_budget_kb"},
		{"syntax", `tier = `, false, "parse config"},
		{"wrong type", `wm_max_grf = "many"`, false, "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(tt.text)
			if err == nil {
				t.Fatal("ParseConfig succeeded")
			}
			if errors.Is(err, ErrConfig) != tt.isConfig {
				t.Errorf("errors.Is(err, ErrConfig) = %v, err = %v", !tt.isConfig, err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not mention %q", err, tt.contains)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"gen4", func(c *Config) { c.Tier = "gen4" }, true},
		{"empty tier", func(c *Config) { c.Tier = "" }, false},
		{"min pool", func(c *Config) { c.PoolBudgetKB = 4 }, true},
		{"tiny pool", func(c *Config) { c.PoolBudgetKB = 3 }, false},
		{"grf low", func(c *Config) { c.WMMaxGRF = 15 }, false},
		{"grf min", func(c *Config) { c.WMMaxGRF = 16 }, true},
		{"grf high", func(c *Config) { c.WMMaxGRF = 129 }, false},
		{"divisor zero", func(c *Config) { c.CURBEShrinkDivisor = 0 }, false},
		{"divisor one", func(c *Config) { c.CURBEShrinkDivisor = 1 }, true},
		{"floor negative", func(c *Config) { c.CURBEShrinkFloor = -1 }, false},
		{"floor max", func(c *Config) { c.CURBEShrinkFloor = 32 }, true},
		{"floor high", func(c *Config) { c.CURBEShrinkFloor = 33 }, false},
		{"no scratch", func(c *Config) { c.ScratchPerThread = 0 }, true},
		{"scratch high", func(c *Config) { c.ScratchPerThread = 16*1024 + 1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrConfig) {
				t.Errorf("Validate() = %v, want ErrConfig", err)
			}
		})
	}
}

func TestConfigWriteToRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tier = "gen4"
	cfg.PoolBudgetKB = 512
	cfg.CURBEShrinkFloor = 8
	cfg.DebugState = true

	var buf bytes.Buffer
	n, err := cfg.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("WriteTo returned %d, wrote %d bytes", n, buf.Len())
	}
	if !strings.Contains(buf.String(), "pool_budget_kb = 512") {
		t.Errorf("encoded config:\n%s", buf.String())
	}

	got, err := ParseConfig(buf.String())
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if got != cfg {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statecc.toml")
	if err := os.WriteFile(path, []byte("tier = \"gen5\"\nwm_max_grf = 64\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Tier != "gen5" || cfg.WMMaxGRF != 64 {
		t.Errorf("loaded %+v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadConfig of a missing file succeeded")
	}
}
