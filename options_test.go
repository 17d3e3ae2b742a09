package statecc

import (
	"errors"
	"testing"

	"github.com/gogpu/statecc/batch"
)

// countingEmitter is a test emitter for DI testing. It does not implement
// batch.Positioner.
type countingEmitter struct {
	packets int
	words   int
	relocs  int
}

func (e *countingEmitter) Begin(int) error { return nil }
func (e *countingEmitter) Emit(uint32)     { e.words++ }
func (e *countingEmitter) End() error      { e.packets++; return nil }

func (e *countingEmitter) EmitReloc(batch.Target, uint32, batch.Usage) {
	e.words++
	e.relocs++
}

// TestNewContextDefault tests that NewContext emits into a batch.Buffer by default.
func TestNewContextDefault(t *testing.T) {
	ctx, err := NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer ctx.Destroy()

	if _, ok := ctx.Emitter().(*batch.Buffer); !ok {
		t.Errorf("Emitter() = %T, want *batch.Buffer", ctx.Emitter())
	}
	if ctx.Config() != DefaultConfig() {
		t.Errorf("Config() = %+v, want defaults", ctx.Config())
	}
}

// TestNewContextWithEmitter tests dependency injection of a custom emitter.
func TestNewContextWithEmitter(t *testing.T) {
	e := &countingEmitter{}

	ctx, err := NewContext(WithEmitter(e))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer ctx.Destroy()

	if ctx.Emitter() != e {
		t.Fatal("emitter is not the injected one")
	}
	if err := ctx.Draw(TopologyTriangleList, 0, 3); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if e.packets == 0 || e.relocs == 0 {
		t.Errorf("emitter saw %d packets, %d relocations", e.packets, e.relocs)
	}
}

func TestNewContextWithConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tier = "gen5"

	ctx, err := NewContext(WithConfig(cfg))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer ctx.Destroy()
	if ctx.Config().Tier != "gen5" {
		t.Errorf("Tier = %q", ctx.Config().Tier)
	}

	cfg.WMMaxGRF = 8
	if _, err := NewContext(WithConfig(cfg)); !errors.Is(err, ErrConfig) {
		t.Errorf("NewContext(bad config) = %v, want ErrConfig", err)
	}
}

// TestWithShaderCache tests that the translation cache size is honoured.
func TestWithShaderCache(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		wantHits   uint64
		wantMisses uint64
	}{
		{"default", 0, 1, 2},
		{"single entry", 1, 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := NewContext(WithShaderCache(tt.size))
			if err != nil {
				t.Fatalf("NewContext: %v", err)
			}
			defer ctx.Destroy()

			for _, src := range []string{wgslPassThrough, wgslHalved, wgslPassThrough} {
				if _, err := ctx.SetFragmentWGSL(src, "main"); err != nil {
					t.Fatalf("SetFragmentWGSL: %v", err)
				}
			}
			s := ctx.Stats()
			if s.ShaderHits != tt.wantHits || s.ShaderMisses != tt.wantMisses {
				t.Errorf("shader hits/misses = %d/%d, want %d/%d",
					s.ShaderHits, s.ShaderMisses, tt.wantHits, tt.wantMisses)
			}
		})
	}
}
