package statecc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gogpu/statecc/internal/curbe"
	"github.com/gogpu/statecc/internal/eu"
	"github.com/gogpu/statecc/internal/pool"
)

// ErrConfig is returned for configuration values outside their range.
var ErrConfig = errors.New("statecc: invalid config")

// Config holds the tunables of a driver context. The zero value is not
// valid; start from DefaultConfig.
//
// A config file is TOML:
//
//	tier = "g4x"
//	pool_budget_kb = 8192
//	wm_max_grf = 128
//	curbe_shrink_divisor = 4
//	curbe_shrink_floor = 16
//	scratch_per_thread = 2048
//	debug_state = false
//	debug_wm = false
type Config struct {
	// Tier is the hardware generation: "gen4", "g4x" or "gen5".
	Tier string `toml:"tier"`

	// PoolBudgetKB bounds the memory holding cached state, kernels, scratch
	// and constants.
	PoolBudgetKB int `toml:"pool_budget_kb"`

	// WMMaxGRF is the register budget of fragment kernels. Values that do
	// not fit are spilled to scratch.
	WMMaxGRF int `toml:"wm_max_grf"`

	// CURBEShrinkDivisor and CURBEShrinkFloor set the CURBE relayout
	// hysteresis: shrink when the request drops below 1/divisor of an
	// allocation larger than floor registers.
	CURBEShrinkDivisor int `toml:"curbe_shrink_divisor"`
	CURBEShrinkFloor   int `toml:"curbe_shrink_floor"`

	// ScratchPerThread caps the spill space of one fragment thread in
	// bytes. Kernels that need more fail to bind.
	ScratchPerThread int `toml:"scratch_per_thread"`

	// DebugState enables the scheduler's ordering check.
	DebugState bool `toml:"debug_state"`

	// DebugWM logs the disassembly of every compiled fragment kernel.
	DebugWM bool `toml:"debug_wm"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Tier:               eu.G4X.String(),
		PoolBudgetKB:       pool.DefaultBudgetKB,
		WMMaxGRF:           128,
		CURBEShrinkDivisor: curbe.DefaultShrinkDivisor,
		CURBEShrinkFloor:   curbe.DefaultShrinkFloor,
		ScratchPerThread:   2048,
	}
}

// LoadConfig reads a TOML config file. Keys missing from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("statecc: load config: %w", err)
	}
	if err := checkUndecoded(md); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ParseConfig decodes TOML text. Keys missing from text keep their
// DefaultConfig values.
func ParseConfig(text string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(text, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("statecc: parse config: %w", err)
	}
	if err := checkUndecoded(md); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func checkUndecoded(md toml.MetaData) error {
	keys := md.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return fmt.Errorf("%w: unknown keys %s", ErrConfig, strings.Join(names, ", "))
}

// WriteTo encodes the config as TOML.
func (c Config) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return 0, fmt.Errorf("statecc: encode config: %w", err)
	}
	return buf.WriteTo(w)
}

// Validate checks every field against its hardware range.
func (c Config) Validate() error {
	if _, ok := eu.ParseGen(c.Tier); !ok {
		return fmt.Errorf("%w: unknown tier %q", ErrConfig, c.Tier)
	}
	if c.PoolBudgetKB < pool.MinBudgetKB {
		return fmt.Errorf("%w: pool_budget_kb %d below %d", ErrConfig, c.PoolBudgetKB, pool.MinBudgetKB)
	}
	if c.WMMaxGRF < 16 || c.WMMaxGRF > 128 {
		return fmt.Errorf("%w: wm_max_grf %d outside [16, 128]", ErrConfig, c.WMMaxGRF)
	}
	if c.CURBEShrinkDivisor < 1 {
		return fmt.Errorf("%w: curbe_shrink_divisor %d", ErrConfig, c.CURBEShrinkDivisor)
	}
	if c.CURBEShrinkFloor < 0 || c.CURBEShrinkFloor > curbe.MaxRegs {
		return fmt.Errorf("%w: curbe_shrink_floor %d outside [0, %d]", ErrConfig, c.CURBEShrinkFloor, curbe.MaxRegs)
	}
	if c.ScratchPerThread < 0 || c.ScratchPerThread > maxScratchPerThread {
		return fmt.Errorf("%w: scratch_per_thread %d outside [0, %d]", ErrConfig, c.ScratchPerThread, maxScratchPerThread)
	}
	return nil
}

// maxScratchPerThread bounds the per-thread spill space.
const maxScratchPerThread = 16 * 1024

func (c Config) gen() eu.Gen {
	g, _ := eu.ParseGen(c.Tier)
	return g
}
