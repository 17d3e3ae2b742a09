package statecc

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/statecc/batch"
	"github.com/gogpu/statecc/internal/curbe"
	"github.com/gogpu/statecc/internal/dirty"
	"github.com/gogpu/statecc/internal/eu"
	"github.com/gogpu/statecc/internal/pool"
	"github.com/gogpu/statecc/internal/statecache"
	"github.com/gogpu/statecc/internal/unit"
	"github.com/gogpu/statecc/internal/urb"
	"github.com/gogpu/statecc/shader"
	"github.com/gogpu/statecc/shader/wgsl"
)

// Context is one driver context. It owns the state pool, the state cache,
// the dirty-state scheduler and the CURBE and URB allocators; nothing is
// shared between contexts.
//
// Setters record API state and mark it dirty. Draw brings the hardware
// state up to date, compiling and caching whatever changed, and appends
// the state commands and the primitive to the emitter.
//
// Thread Safety:
// Context is not safe for concurrent use.
type Context struct {
	cfg  Config
	gen  eu.Gen
	caps unit.Caps

	pool    *pool.Pool
	cache   *statecache.Cache
	sched   *dirty.Scheduler[*Context]
	curbe   *curbe.Allocator
	urb     *urb.Partitioner
	emitter batch.Emitter
	shaders *wgsl.Translator

	// API state
	blend        *gputypes.BlendState
	blendColor   gputypes.Color
	depthStencil *gputypes.DepthStencilState
	stencilRef   uint8
	raster       RasterizerState
	stipple      [32]uint32
	viewport     Viewport
	scissor      Rect
	clipPlanes   [][4]float32
	fragment     *shader.Program
	fragmentHash uint64
	fragmentBin  []byte // AppendBinary encoding of fragment
	constants    [][4]float32
	vertex       VertexProgram
	fb           Framebuffer
	samplers     []Sampler
	topology     Topology

	// Derived state, owned by the atoms.
	st derived

	// raised collects driver bits raised by prepare functions until the
	// scheduler drains them.
	raised uint64

	draws         uint64
	failedUpdates uint64
	urbRelayouts  uint64
	wmCompiles    uint64

	destroyed bool
}

// NewContext creates a driver context. Without options it uses
// DefaultConfig and emits into a batch.Buffer of default capacity.
//
// The context starts with a pass-through fragment program, a vertex
// program with a position and one colour attribute, a 1x1 framebuffer and
// default rasterizer state; everything is dirty for the first draw.
func NewContext(opts ...ContextOption) (*Context, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	cfg := options.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	emitter := options.emitter
	if emitter == nil {
		emitter = batch.NewBuffer(0)
	}

	shaders, err := wgsl.NewTranslator(options.cacheSize)
	if err != nil {
		return nil, err
	}

	gen := cfg.gen()
	p := pool.New(pool.Config{BudgetKB: cfg.PoolBudgetKB})
	//nolint:gosec // G115: validated by Config.Validate
	policy := curbe.Policy{
		ShrinkDivisor: uint32(cfg.CURBEShrinkDivisor),
		ShrinkFloor:   uint32(cfg.CURBEShrinkFloor),
	}
	c := &Context{
		cfg:     cfg,
		gen:     gen,
		caps:    unit.CapsFor(gen),
		pool:    p,
		cache:   statecache.New(p),
		curbe:   curbe.New(policy),
		urb:     urb.New(gen),
		emitter: emitter,
		shaders: shaders,

		raster:   DefaultRasterizerState(),
		viewport: Viewport{Width: 1, Height: 1, MaxDepth: 1},
		vertex:   VertexProgram{Attributes: 2},
		fb:       Framebuffer{Width: 1, Height: 1, ColorTargets: 1},
		topology: TopologyTriangleList,
	}
	c.fragment = defaultFragmentProgram()
	c.fragmentBin, _ = c.fragment.AppendBinary(nil)
	c.fragmentHash = c.fragment.Hash()

	c.sched = dirty.New(func(c *Context) dirty.Bits {
		b := dirty.Bits{Driver: c.raised, Cache: c.cache.TakeDirty()}
		c.raised = 0
		return b
	})
	c.sched.Register(atoms()...)
	c.sched.SetDebug(cfg.DebugState)
	c.sched.Flag(dirty.Bits{Pipe: pipeAll, Driver: driverNewContext | driverNewBatch})

	slogger().Info("statecc: context created",
		"tier", gen.String(),
		"pool_kb", cfg.PoolBudgetKB,
		"atoms", len(c.sched.Atoms()))
	return c, nil
}

// defaultFragmentProgram writes the interpolated primary colour.
func defaultFragmentProgram() *shader.Program {
	p := shader.NewProgram()
	p.DeclareInput(shader.InputColor0, shader.InterpPerspective)
	p.Add(shader.OpMOV, shader.Out(0), shader.In(shader.InputColor0))
	return p
}

// Destroy frees every cached entry and all pool memory. Destroy is
// idempotent; methods that return an error fail with ErrContextDestroyed
// afterwards.
func (c *Context) Destroy() {
	if c.destroyed {
		return
	}
	c.cache.Destroy()
	c.st.release(c.pool)
	c.pool.Close()
	c.shaders.Purge()
	c.destroyed = true
	slogger().Info("statecc: context destroyed", "draws", c.draws)
}

// Config returns the configuration the context was created with.
func (c *Context) Config() Config { return c.cfg }

// Emitter returns the command stream the context appends to.
func (c *Context) Emitter() batch.Emitter { return c.emitter }

// NewBatch tells the context that the emitter now writes a fresh command
// buffer, so every command that is not carried in cached state must be
// emitted again on the next draw.
func (c *Context) NewBatch() {
	c.sched.Flag(dirty.Bits{Driver: driverNewBatch})
}

func (c *Context) flag(pipe uint64) {
	c.sched.Flag(dirty.Bits{Pipe: pipe})
}

// raise marks driver state changed by a prepare function. The bits reach
// the atoms registered after the caller in the same pass.
func (c *Context) raise(driver uint64) { c.raised |= driver }

// =============================================================================
// Setters
// =============================================================================

// SetBlendState sets colour blending for every target. nil disables
// blending.
func (c *Context) SetBlendState(b *gputypes.BlendState) {
	if b != nil {
		cp := *b
		b = &cp
	}
	c.blend = b
	c.flag(pipeBlend)
}

// SetBlendConstant sets the colour read by the constant blend factors.
func (c *Context) SetBlendConstant(col gputypes.Color) {
	c.blendColor = col
	c.flag(pipeBlendConstant)
}

// SetDepthStencilState sets the depth and stencil tests. nil disables
// both.
func (c *Context) SetDepthStencilState(ds *gputypes.DepthStencilState, stencilRef uint8) {
	if ds != nil {
		cp := *ds
		ds = &cp
	}
	c.depthStencil = ds
	c.stencilRef = stencilRef
	c.flag(pipeDepthStencil)
}

// SetRasterizerState sets culling, winding, point and line rules.
func (c *Context) SetRasterizerState(r RasterizerState) {
	c.raster = r
	c.flag(pipeRasterizer)
}

// SetPolygonStipple sets the 32x32 polygon stipple pattern, one row per
// word with the top row first. It applies only while
// RasterizerState.PolygonStipple is set.
func (c *Context) SetPolygonStipple(rows [32]uint32) {
	c.stipple = rows
	c.flag(pipePolygonStipple)
}

// SetViewport sets the viewport transform and depth range.
func (c *Context) SetViewport(v Viewport) {
	c.viewport = v
	c.flag(pipeViewport)
}

// SetScissor sets the scissor rectangle. It applies only while
// RasterizerState.ScissorEnable is set.
func (c *Context) SetScissor(r Rect) {
	c.scissor = r
	c.flag(pipeScissor)
}

// SetClipPlanes sets the user clip planes, in clip space. An empty list
// disables user clipping and releases the clip slot of the CURBE.
func (c *Context) SetClipPlanes(planes [][4]float32) error {
	if c.destroyed {
		return ErrContextDestroyed
	}
	if len(planes) > MaxClipPlanes {
		return fmt.Errorf("%w: %d planes, limit %d", ErrTooManyClipPlanes, len(planes), MaxClipPlanes)
	}
	c.clipPlanes = append(c.clipPlanes[:0], planes...)
	c.flag(pipeClipPlanes)
	return nil
}

// SetFragmentProgram sets the fragment program. The program must not be
// modified afterwards; its hash is taken here.
func (c *Context) SetFragmentProgram(p *shader.Program) error {
	if c.destroyed {
		return ErrContextDestroyed
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("statecc: fragment program: %w", err)
	}
	c.setFragment(p)
	return nil
}

func (c *Context) setFragment(p *shader.Program) {
	c.fragment = p
	c.fragmentBin, _ = p.AppendBinary(c.fragmentBin[:0])
	c.fragmentHash = p.Hash()
	c.flag(pipeFragmentProgram)
}

// SetFragmentWGSL translates the fragment entry point of a WGSL source and
// makes it the fragment program. Translations are cached, so setting the
// same source again is cheap. The returned Shader tells where uniforms
// land in the constant file and which units textures use.
func (c *Context) SetFragmentWGSL(source, entry string) (*wgsl.Shader, error) {
	if c.destroyed {
		return nil, ErrContextDestroyed
	}
	s, err := c.shaders.Translate(source, entry)
	if err != nil {
		return nil, err
	}
	c.setFragment(s.Program)
	return s, nil
}

// SetVertexProgram sets the vertex stage layout and its constants.
func (c *Context) SetVertexProgram(v VertexProgram) error {
	if c.destroyed {
		return ErrContextDestroyed
	}
	if v.Attributes < 2 || v.Attributes > MaxVertexAttributes {
		return fmt.Errorf("%w: %d attributes, want 2 to %d", ErrVertexProgram, v.Attributes, MaxVertexAttributes)
	}
	if regs := curbe.VertexRegs(len(v.Constants)); regs > curbe.MaxRegs {
		return fmt.Errorf("%w: %d constants need %d CURBE registers", ErrVertexProgram, len(v.Constants), regs)
	}
	v.Constants = append([][4]float32(nil), v.Constants...)
	c.vertex = v
	c.flag(pipeVertexProgram)
	return nil
}

// SetConstants sets the fragment program's constant registers.
func (c *Context) SetConstants(consts [][4]float32) {
	c.constants = append(c.constants[:0], consts...)
	c.flag(pipeConstants)
}

// SetFramebuffer sets the render targets and the depth/stencil buffer.
func (c *Context) SetFramebuffer(fb Framebuffer) error {
	if c.destroyed {
		return ErrContextDestroyed
	}
	if fb.Width == 0 || fb.Height == 0 || fb.Width > MaxFramebufferSize || fb.Height > MaxFramebufferSize {
		return fmt.Errorf("%w: %dx%d", ErrFramebuffer, fb.Width, fb.Height)
	}
	if fb.ColorTargets < 1 || fb.ColorTargets > shader.MaxColorOuts {
		return fmt.Errorf("%w: %d colour targets", ErrFramebuffer, fb.ColorTargets)
	}
	if len(fb.Color) > fb.ColorTargets {
		return fmt.Errorf("%w: %d surfaces for %d colour targets", ErrFramebuffer, len(fb.Color), fb.ColorTargets)
	}
	for i := range fb.Color {
		if err := fb.Color[i].check(true); err != nil {
			return fmt.Errorf("colour target %d: %w", i, err)
		}
	}
	if fb.DepthFormat != gputypes.TextureFormatUndefined {
		if _, ok := unit.DepthFormat(fb.DepthFormat); !ok {
			return fmt.Errorf("%w: depth format %v", ErrFramebuffer, fb.DepthFormat)
		}
		if fb.DepthBuffer == nil {
			return fmt.Errorf("%w: depth format %v without a depth buffer", ErrFramebuffer, fb.DepthFormat)
		}
		if fb.DepthPitch == 0 || fb.DepthPitch > unit.MaxSurfacePitch {
			return fmt.Errorf("%w: depth pitch %d", ErrFramebuffer, fb.DepthPitch)
		}
	} else if fb.DepthBuffer != nil {
		return fmt.Errorf("%w: depth buffer without a format", ErrFramebuffer)
	}
	fb.Color = append([]Surface(nil), fb.Color...)
	c.fb = fb
	c.flag(pipeFramebuffer)
	return nil
}

// SetSamplers binds samplers to the fragment stage's units, in order.
func (c *Context) SetSamplers(s []Sampler) error {
	if c.destroyed {
		return ErrContextDestroyed
	}
	if len(s) > unit.MaxSamplers {
		return fmt.Errorf("%w: %d bound, limit %d", ErrTooManySamplers, len(s), unit.MaxSamplers)
	}
	for i := range s {
		if err := s[i].Texture.check(false); err != nil {
			return fmt.Errorf("sampler %d texture: %w", i, err)
		}
	}
	c.samplers = append(c.samplers[:0], s...)
	c.flag(pipeSamplers)
	return nil
}

// =============================================================================
// Draw
// =============================================================================

// Draw brings the hardware state up to date and emits count sequential
// vertices starting at start.
//
// When a state update fails, for example because the pool is exhausted,
// nothing is emitted for the draw, the dirty state is kept and the error
// is returned; previously cached state stays valid and the next draw
// retries the update.
func (c *Context) Draw(t Topology, start, count uint32) error {
	if c.destroyed {
		return ErrContextDestroyed
	}
	if !t.valid() {
		return fmt.Errorf("%w: %d", ErrTopology, uint8(t))
	}
	if t != c.topology {
		c.topology = t
		c.flag(pipePrimitive)
	}

	if err := c.sched.Run(c); err != nil {
		c.failedUpdates++
		slogger().Warn("statecc: state update failed", "topology", t.String(), "err", err)
		return fmt.Errorf("statecc: draw: %w", err)
	}
	if err := emitWords(c.emitter, primitive(t, start, count)); err != nil {
		return fmt.Errorf("statecc: draw: %w", err)
	}
	c.draws++
	return nil
}

// Stats returns cache, allocator and pool statistics.
func (c *Context) Stats() Stats {
	hits, misses := c.cache.Stats()
	ps := c.pool.Stats()
	sh, sm := c.shaders.Stats()
	return Stats{
		Draws:           c.draws,
		FailedUpdates:   c.failedUpdates,
		CacheHits:       hits,
		CacheMisses:     misses,
		CacheUploads:    c.cache.Uploads(),
		CacheEntries:    c.cache.Size(),
		CURBERelayouts:  c.curbe.Relayouts(),
		URBRelayouts:    c.urbRelayouts,
		WMCompiles:      c.wmCompiles,
		PoolUsedBytes:   ps.UsedBytes,
		PoolBudgetBytes: ps.BudgetBytes,
		Allocations:     ps.Allocations,
		ShaderHits:      sh,
		ShaderMisses:    sm,
	}
}
