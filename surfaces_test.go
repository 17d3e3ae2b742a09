package statecc

import (
	"math"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/statecc/batch"
	"github.com/gogpu/statecc/internal/statecache"
	"github.com/gogpu/statecc/internal/unit"
	"github.com/gogpu/statecc/internal/wm"
)

const (
	hdrPolyStipplePattern = 0x7907001f
	hdrPolyStippleOffset  = 0x79060000
	hdrLineStipple        = 0x79080001
	hdrAALineParameters   = 0x790a0001
)

// findPacket returns the index of the first word equal to header.
func findPacket(w []uint32, header uint32) int {
	for i, v := range w {
		if v == header {
			return i
		}
	}
	return -1
}

// surfaceEntry looks up the cached surface record for key.
func surfaceEntry(t *testing.T, ctx *Context, k unit.SurfaceKey, memory batch.Target) *statecache.Entry {
	t.Helper()
	u := unit.Surface(&k, memory)
	e, ok := ctx.cache.Search(statecache.StageSurface, statecache.KeyBytes(&k), u.Relocs)
	if !ok {
		t.Fatalf("surface %+v is not cached", k)
	}
	return e
}

func TestRenderTargetSurfaces(t *testing.T) {
	ctx, _ := newTestContext(t)
	mem := testMemory(t, "rt0")
	fb := Framebuffer{
		Width: 64, Height: 32, ColorTargets: 2,
		Color: []Surface{{Memory: mem, Format: gputypes.TextureFormatRGBA8Unorm, Pitch: 256,
			WriteMask: gputypes.ColorWriteMaskRed}},
	}
	if err := ctx.SetFramebuffer(fb); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Draw(TopologyTriangleList, 0, 3); err != nil {
		t.Fatal(err)
	}

	if len(ctx.st.surfaces) != 2 {
		t.Fatalf("%d surfaces, want one per colour target", len(ctx.st.surfaces))
	}
	k, _ := ctx.renderSurface(0)
	if k.Width != 64 || k.Height != 32 || k.WriteDisable != 0b1011 {
		t.Errorf("target 0 key = %+v, want the framebuffer size with only red written", k)
	}
	e := surfaceEntry(t, ctx, k, mem)
	if e.Allocation() != ctx.st.surfaces[0] {
		t.Error("binding entry 0 does not hold the render target")
	}
	rel := e.Relocations()
	if len(rel) != 1 || rel[0].Usage != statecache.UsageRender || rel[0].Target != mem {
		t.Errorf("render target relocations = %+v", rel)
	}

	null, _ := ctx.renderSurface(1)
	if null.Type != unit.SurfaceTypeNull {
		t.Errorf("target 1 type = %d, want a null surface", null.Type)
	}

	bt := ctx.st.bindingTable.Relocations()
	if len(bt) != 2 || bt[0].Target != ctx.st.surfaces[0] || bt[1].Offset != 4 {
		t.Errorf("binding table relocations = %+v", bt)
	}
}

func TestTextureBindingLayout(t *testing.T) {
	ctx, _ := newTestContext(t)
	tex := testMemory(t, "texture")
	err := ctx.SetSamplers([]Sampler{{
		Descriptor: gputypes.SamplerDescriptor{MagFilter: gputypes.FilterModeLinear},
		Cube:       true,
		Texture: Surface{Memory: tex, Format: gputypes.TextureFormatBGRA8Unorm,
			Width: 16, Height: 16, Pitch: 64, Levels: 5},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.Draw(TopologyTriangleList, 0, 3); err != nil {
		t.Fatal(err)
	}

	if want := wm.TextureBindingBase + 1; len(ctx.st.surfaces) != want {
		t.Fatalf("%d surfaces, want %d", len(ctx.st.surfaces), want)
	}
	k, _ := ctx.textureSurface(0)
	if k.Type != unit.SurfaceTypeCube || k.Levels != 5 || k.RenderTarget {
		t.Errorf("texture key = %+v", k)
	}
	e := surfaceEntry(t, ctx, k, tex)
	if e.Allocation() != ctx.st.surfaces[wm.TextureBindingBase] {
		t.Error("texture is not at its sampler's binding entry")
	}
	if rel := e.Relocations(); len(rel) != 1 || rel[0].Usage != statecache.UsageTexture {
		t.Errorf("texture relocations = %+v", rel)
	}
	if got := len(ctx.st.bindingTable.Relocations()); got != wm.TextureBindingBase+1 {
		t.Errorf("binding table has %d pointers", got)
	}
}

func TestBlendConstantPacket(t *testing.T) {
	ctx, buf := newTestContext(t)
	ctx.SetBlendConstant(gputypes.Color{R: 1, G: 0.5, B: 0, A: 0.25})
	if err := ctx.Draw(TopologyTriangleList, 0, 3); err != nil {
		t.Fatal(err)
	}
	w := buf.Words()
	i := findPacket(w, hdrConstantColor)
	if i < 0 {
		t.Fatalf("no CONSTANT_COLOR:\n%s", buf.Dump())
	}
	for j, want := range []float32{1, 0.5, 0, 0.25} {
		if got := math.Float32frombits(w[i+1+j]); got != want {
			t.Errorf("channel %d = %v, want %v", j, got, want)
		}
	}

	// Only a new constant re-emits the packet.
	n := buf.Len()
	ctx.SetBlendConstant(gputypes.Color{R: 1})
	if err := ctx.Draw(TopologyTriangleList, 0, 3); err != nil {
		t.Fatal(err)
	}
	if got := buf.Len() - n; got != constantColorDwords+primitiveDwords {
		t.Errorf("blend constant change emitted %d words", got)
	}
}

func TestDepthBufferPacket(t *testing.T) {
	tests := []struct {
		tier   string
		header uint32
	}{
		{"gen4", 0x79050003},
		{"g4x", hdrDepthBuffer},
		{"gen5", hdrDepthBuffer},
	}

	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			ctx, buf := newTestContext(t, configWith(func(c *Config) { c.Tier = tt.tier }))
			depth := testMemory(t, "depth")
			err := ctx.SetFramebuffer(Framebuffer{
				Width: 64, Height: 32, ColorTargets: 1,
				DepthFormat: gputypes.TextureFormatDepth24PlusStencil8,
				DepthBuffer: depth,
				DepthPitch:  256,
				DepthTiled:  true,
			})
			if err != nil {
				t.Fatal(err)
			}
			if err := ctx.Draw(TopologyTriangleList, 0, 3); err != nil {
				t.Fatal(err)
			}

			w := buf.Words()
			i := findPacket(w, tt.header)
			if i < 0 {
				t.Fatalf("no DEPTH_BUFFER %#x:\n%s", tt.header, buf.Dump())
			}
			if want := uint32(255 | 2<<18 | 1<<26 | 1<<27 | 1<<29); w[i+1] != want {
				t.Errorf("dword 1 = %#x, want %#x", w[i+1], want)
			}
			if want := uint32(63<<6 | 31<<19); w[i+3] != want {
				t.Errorf("dword 3 = %#x, want %#x", w[i+3], want)
			}
			r, ok := relocFor(buf, i+2)
			if !ok || r.Target != depth || r.Usage != statecache.UsageRender {
				t.Errorf("depth address reloc = %+v (%v)", r, ok)
			}
		})
	}
}

func TestPolygonStipple(t *testing.T) {
	ctx, buf := newTestContext(t)
	var rows [32]uint32
	rows[0], rows[31] = 0xaaaaaaaa, 0x55555555
	ctx.SetPolygonStipple(rows)
	if err := ctx.SetFramebuffer(Framebuffer{Width: 100, Height: 100, ColorTargets: 1}); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Draw(TopologyTriangleList, 0, 3); err != nil {
		t.Fatal(err)
	}
	if findPacket(buf.Words(), hdrPolyStipplePattern) >= 0 {
		t.Fatal("stipple pattern emitted while disabled")
	}

	r := DefaultRasterizerState()
	r.PolygonStipple = true
	r.FlipY = true
	ctx.SetRasterizerState(r)
	if err := ctx.Draw(TopologyTriangleList, 0, 3); err != nil {
		t.Fatal(err)
	}
	w := buf.Words()
	i := findPacket(w, hdrPolyStipplePattern)
	if i < 0 {
		t.Fatalf("no POLY_STIPPLE_PATTERN:\n%s", buf.Dump())
	}
	if w[i+1] != rows[31] || w[i+32] != rows[0] {
		t.Errorf("pattern rows = %#x..%#x, want bottom row first", w[i+1], w[i+32])
	}
	j := findPacket(w, hdrPolyStippleOffset)
	if j < 0 || w[j+1] != 28 {
		t.Errorf("stipple offset at %d = %#x, want y offset 28", j, w[j+1])
	}
}

func TestLineStipple(t *testing.T) {
	ctx, buf := newTestContext(t)
	r := DefaultRasterizerState()
	r.LineStipple = true
	r.LineStipplePattern = 0xf0f0
	r.LineStippleFactor = 4
	ctx.SetRasterizerState(r)
	if err := ctx.Draw(TopologyLineList, 0, 2); err != nil {
		t.Fatal(err)
	}
	w := buf.Words()
	i := findPacket(w, hdrLineStipple)
	if i < 0 {
		t.Fatalf("no LINE_STIPPLE:\n%s", buf.Dump())
	}
	if w[i+1] != 0xf0f0 || w[i+2] != 2048<<16|4 {
		t.Errorf("LINE_STIPPLE = %#x %#x", w[i+1], w[i+2])
	}
}

func TestLineStippleFactorClamps(t *testing.T) {
	tests := []struct {
		factor uint16
		want   uint32
	}{
		{0, 8192<<16 | 1},
		{1, 8192<<16 | 1},
		{3, 2730<<16 | 3},
		{1000, 32<<16 | 256},
	}
	for _, tt := range tests {
		if got := lineStipple(0xffff, tt.factor)[2]; got != tt.want {
			t.Errorf("lineStipple(factor %d) dword 2 = %#x, want %#x", tt.factor, got, tt.want)
		}
	}
}

func TestAALineParametersNeedG4X(t *testing.T) {
	tests := []struct {
		tier string
		want bool
	}{
		{"gen4", false},
		{"g4x", true},
		{"gen5", true},
	}
	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			ctx, buf := newTestContext(t, configWith(func(c *Config) { c.Tier = tt.tier }))
			r := DefaultRasterizerState()
			r.LineSmooth = true
			ctx.SetRasterizerState(r)
			if err := ctx.Draw(TopologyLineList, 0, 2); err != nil {
				t.Fatal(err)
			}
			if got := findPacket(buf.Words(), hdrAALineParameters) >= 0; got != tt.want {
				t.Errorf("AA_LINE_PARAMETERS emitted = %v, want %v", got, tt.want)
			}
		})
	}
}
