package statecc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/statecc/batch"
	"github.com/gogpu/statecc/internal/curbe"
	"github.com/gogpu/statecc/internal/dirty"
	"github.com/gogpu/statecc/internal/eu"
	"github.com/gogpu/statecc/internal/kernel"
	"github.com/gogpu/statecc/internal/pool"
	"github.com/gogpu/statecc/internal/statecache"
	"github.com/gogpu/statecc/internal/unit"
	"github.com/gogpu/statecc/internal/urb"
	"github.com/gogpu/statecc/internal/wm"
	"github.com/gogpu/statecc/shader"
)

// Pipe bits, raised by the setters.
const (
	pipeBlend uint64 = 1 << iota
	pipeDepthStencil
	pipeRasterizer
	pipeViewport
	pipeScissor
	pipeClipPlanes
	pipeFragmentProgram
	pipeVertexProgram
	pipeConstants
	pipeFramebuffer
	pipeSamplers
	pipePrimitive
	pipeBlendConstant
	pipePolygonStipple

	pipeAll = 1<<iota - 1
)

// Driver bits, raised by driver bookkeeping.
const (
	driverNewContext uint64 = 1 << iota
	driverNewBatch
	driverCURBELayout
	driverURBFence
)

func cacheBits(stages ...statecache.Stage) uint64 {
	var b uint64
	for _, s := range stages {
		b |= s.Bit()
	}
	return b
}

// derived is the hardware state prepared by the atoms. Entries are
// borrowed from the cache; the scratch and constant buffers are owned.
type derived struct {
	wmProg   *statecache.Entry
	vsProg   *statecache.Entry
	gsProg   *statecache.Entry
	clipProg *statecache.Entry
	sfProg   *statecache.Entry

	wmData   *wm.ProgData
	vsData   kernel.Data
	gsData   kernel.Data
	clipData kernel.Data
	sfData   kernel.Data

	// gsActive is set when the geometry stage decomposes the primitive;
	// postGS is the primitive leaving it.
	gsActive bool
	postGS   kernel.Prim

	ccVP     *statecache.Entry
	cc       *statecache.Entry
	sfVP     *statecache.Entry
	clipVP   *statecache.Entry
	samplers *statecache.Entry
	vsUnit   *statecache.Entry
	gsUnit   *statecache.Entry
	clipUnit *statecache.Entry
	sfUnit   *statecache.Entry
	wmUnit   *statecache.Entry

	// surfaces is indexed by binding table entry.
	surfaces     []*pool.Allocation
	bindingTable *statecache.Entry

	defaultColors []*pool.Allocation

	scratch *pool.Allocation

	constants *pool.Allocation
	constData curbe.Buffer
	constRows uint32
}

func (d *derived) release(p *pool.Pool) {
	if d.scratch != nil {
		p.Free(d.scratch)
	}
	if d.constants != nil {
		p.Free(d.constants)
	}
	*d = derived{}
}

// atoms returns the state atoms in processing order. Producers come
// before their consumers: programs, then the CURBE and URB layouts that
// depend on them, then the unit records that embed the layouts, then the
// commands that point at the records.
func atoms() []dirty.Atom[*Context] {
	return []dirty.Atom[*Context]{
		{
			Name:    "wm_prog",
			Deps:    dirty.Bits{Pipe: pipeFragmentProgram | pipeRasterizer | pipeDepthStencil | pipeFramebuffer},
			Prepare: (*Context).prepareWMProg,
		},
		{
			Name:    "vs_prog",
			Deps:    dirty.Bits{Pipe: pipeVertexProgram},
			Prepare: (*Context).prepareVSProg,
		},
		{
			Name:    "gs_prog",
			Deps:    dirty.Bits{Pipe: pipePrimitive | pipeVertexProgram},
			Prepare: (*Context).prepareGSProg,
		},
		{
			Name:    "clip_prog",
			Deps:    dirty.Bits{Pipe: pipePrimitive | pipeVertexProgram},
			Prepare: (*Context).prepareClipProg,
		},
		{
			Name:    "sf_prog",
			Deps:    dirty.Bits{Pipe: pipePrimitive | pipeVertexProgram | pipeRasterizer},
			Prepare: (*Context).prepareSFProg,
		},
		{
			Name: "curbe_offsets",
			Deps: dirty.Bits{
				Pipe:   pipeVertexProgram | pipeClipPlanes,
				Driver: driverNewContext,
				Cache:  cacheBits(statecache.StageWMProg),
			},
			Prepare: (*Context).prepareCURBEOffsets,
		},
		{
			Name: "urb_fence",
			Deps: dirty.Bits{
				Driver: driverNewContext | driverCURBELayout,
				Cache:  cacheBits(statecache.StageVSProg, statecache.StageGSProg, statecache.StageClipProg, statecache.StageSFProg),
			},
			Prepare: (*Context).prepareURBFence,
		},
		{
			Name:    "cc_vp",
			Deps:    dirty.Bits{Pipe: pipeViewport},
			Prepare: (*Context).prepareCCViewport,
		},
		{
			Name: "cc_unit",
			Deps: dirty.Bits{
				Pipe:  pipeBlend | pipeDepthStencil | pipeFramebuffer,
				Cache: cacheBits(statecache.StageCCViewport),
			},
			Prepare: (*Context).prepareCCUnit,
		},
		{
			Name:    "sampler",
			Deps:    dirty.Bits{Pipe: pipeSamplers},
			Prepare: (*Context).prepareSamplers,
		},
		{
			Name:    "wm_surfaces",
			Deps:    dirty.Bits{Pipe: pipeFramebuffer | pipeSamplers | pipeBlend},
			Prepare: (*Context).prepareSurfaces,
		},
		{
			Name: "wm_binding_table",
			Deps: dirty.Bits{
				Pipe:  pipeFramebuffer | pipeSamplers | pipeBlend,
				Cache: cacheBits(statecache.StageSurface),
			},
			Prepare: (*Context).prepareBindingTable,
		},
		{
			Name: "wm_unit",
			Deps: dirty.Bits{
				Pipe:   pipeRasterizer | pipeDepthStencil | pipeSamplers | pipeFramebuffer,
				Driver: driverCURBELayout,
				Cache:  cacheBits(statecache.StageWMProg, statecache.StageSampler),
			},
			Prepare: (*Context).prepareWMUnit,
		},
		{
			Name:    "sf_vp",
			Deps:    dirty.Bits{Pipe: pipeViewport | pipeScissor | pipeFramebuffer | pipeRasterizer},
			Prepare: (*Context).prepareSFViewport,
		},
		{
			Name: "sf_unit",
			Deps: dirty.Bits{
				Pipe:   pipeRasterizer,
				Driver: driverURBFence,
				Cache:  cacheBits(statecache.StageSFProg, statecache.StageSFViewport),
			},
			Prepare: (*Context).prepareSFUnit,
		},
		{
			Name: "vs_unit",
			Deps: dirty.Bits{
				Driver: driverURBFence | driverCURBELayout,
				Cache:  cacheBits(statecache.StageVSProg),
			},
			Prepare: (*Context).prepareVSUnit,
		},
		{
			Name: "gs_unit",
			Deps: dirty.Bits{
				Pipe:   pipePrimitive,
				Driver: driverURBFence,
				Cache:  cacheBits(statecache.StageGSProg),
			},
			Prepare: (*Context).prepareGSUnit,
		},
		{
			Name:    "clip_vp",
			Deps:    dirty.Bits{Driver: driverNewContext},
			Prepare: (*Context).prepareClipViewport,
		},
		{
			Name: "clip_unit",
			Deps: dirty.Bits{
				Pipe:   pipeClipPlanes | pipeRasterizer,
				Driver: driverURBFence | driverCURBELayout,
				Cache:  cacheBits(statecache.StageClipProg, statecache.StageClipViewport),
			},
			Prepare: (*Context).prepareClipUnit,
		},
		{
			Name: "psp_urb_cbs",
			Deps: dirty.Bits{
				Pipe:   pipePrimitive,
				Driver: driverNewBatch | driverURBFence,
				Cache: cacheBits(statecache.StageVSUnit, statecache.StageGSUnit, statecache.StageClipUnit,
					statecache.StageSFUnit, statecache.StageWMUnit, statecache.StageCCUnit),
			},
			Emit: (*Context).emitPSPURBCBS,
		},
		{
			Name: "constant_buffer",
			Deps: dirty.Bits{
				Pipe:   pipeConstants | pipeClipPlanes | pipeVertexProgram | pipeFragmentProgram,
				Driver: driverNewBatch | driverCURBELayout,
				Cache:  cacheBits(statecache.StageWMProg),
			},
			Prepare: (*Context).prepareConstants,
			Emit:    (*Context).emitConstants,
		},
		{
			Name: "drawing_rect",
			Deps: dirty.Bits{Pipe: pipeFramebuffer, Driver: driverNewBatch},
			Emit: (*Context).emitDrawingRect,
		},
		{
			Name: "binding_table_pointers",
			Deps: dirty.Bits{
				Driver: driverNewBatch,
				Cache:  cacheBits(statecache.StageBindingTable),
			},
			Emit: (*Context).emitBindingTablePointers,
		},
		{
			Name: "blend_constant_color",
			Deps: dirty.Bits{Pipe: pipeBlendConstant, Driver: driverNewBatch},
			Emit: (*Context).emitBlendConstant,
		},
		{
			Name: "depth_buffer",
			Deps: dirty.Bits{Pipe: pipeFramebuffer, Driver: driverNewBatch},
			Emit: (*Context).emitDepthBuffer,
		},
		{
			Name: "polygon_stipple",
			Deps: dirty.Bits{Pipe: pipePolygonStipple | pipeRasterizer, Driver: driverNewBatch},
			Emit: (*Context).emitPolygonStipple,
		},
		{
			Name: "polygon_stipple_offset",
			Deps: dirty.Bits{Pipe: pipeFramebuffer | pipeRasterizer, Driver: driverNewBatch},
			Emit: (*Context).emitPolygonStippleOffset,
		},
		{
			Name: "line_stipple",
			Deps: dirty.Bits{Pipe: pipeRasterizer, Driver: driverNewBatch},
			Emit: (*Context).emitLineStipple,
		},
		{
			Name: "aa_line_parameters",
			Deps: dirty.Bits{Pipe: pipeRasterizer, Driver: driverNewBatch},
			Emit: (*Context).emitAALineParameters,
		},
	}
}

// =============================================================================
// Programs
// =============================================================================

func (c *Context) prepareWMProg() error {
	depth := c.depthActive()
	//nolint:gosec // G115: WMMaxGRF and ColorTargets are validated
	key := wm.Key{
		ProgramHash:     c.fragmentHash,
		Gen:             c.gen,
		MaxGRF:          uint8(c.cfg.WMMaxGRF),
		ColorTargets:    uint8(c.fb.ColorTargets),
		Flatshade:       c.raster.Flatshade,
		SourceDepth:     depth,
		SourceDepthToRT: depth,
		DestDepth:       depth && writesDepth(c.fragment),
		AADestStencil:   c.raster.LineSmooth,
	}
	prog := c.fragment
	e, err := c.cache.SearchOrUpload(statecache.StageWMProg, wm.CacheKey(&key, c.fragmentBin), nil,
		func() ([]byte, any, error) {
			k, err := wm.Compile(prog, key)
			if err != nil {
				return nil, nil, err
			}
			c.wmCompiles++
			if c.cfg.DebugWM {
				logKernel("wm", k.Code,
					"grf", k.Data.TotalGRF,
					"curbe_regs", k.Data.CURBEReadLength*2,
					"spills", k.Data.Stats.Spills,
					"dead", k.Data.Stats.DeadInstructions)
			}
			return k.Code, &k.Data, nil
		})
	if err != nil {
		return err
	}

	d, _ := e.Aux().(*wm.ProgData)
	if d == nil {
		return errors.New("statecc: wm_prog entry carries no program data")
	}
	//nolint:gosec // G115: ScratchPerThread is validated non-negative
	if limit := uint32(c.cfg.ScratchPerThread); d.ScratchBytes > limit {
		return fmt.Errorf("%w: kernel spills %d bytes per thread, limit %d", ErrScratchBudget, d.ScratchBytes, limit)
	}
	c.st.wmProg, c.st.wmData = e, d
	return nil
}

// writesDepth reports whether p writes the depth output.
func writesDepth(p *shader.Program) bool {
	for _, in := range p.Instructions {
		if in.Dst.File == shader.FileOutput && in.Dst.Index == shader.OutputDepth {
			return true
		}
	}
	return false
}

func (c *Context) depthActive() bool {
	ds := c.depthStencil
	if ds == nil || !c.fb.hasDepth() {
		return false
	}
	return ds.DepthWriteEnabled ||
		(ds.DepthCompare != gputypes.CompareFunctionAlways && ds.DepthCompare != gputypes.CompareFunctionUndefined)
}

func logKernel(stage string, code []byte, attrs ...any) {
	log := slogger()
	log.Info("statecc: kernel compiled", append([]any{"stage", stage, "bytes", len(code)}, attrs...)...)
	lines, err := eu.Disassemble(code)
	if err != nil {
		log.Warn("statecc: disassembly failed", "stage", stage, "err", err)
		return
	}
	log.Info("statecc: kernel code", "stage", stage, "asm", "\n"+strings.Join(lines, "\n"))
}

// kernelState looks up a fixed-function kernel, generating it on a miss,
// and returns the entry with its payload description.
func (c *Context) kernelState(stage statecache.Stage, key []byte, gen func() (*kernel.Kernel, error)) (*statecache.Entry, kernel.Data, error) {
	e, err := c.cache.SearchOrUpload(stage, key, nil, func() ([]byte, any, error) {
		k, err := gen()
		if err != nil {
			return nil, nil, err
		}
		return k.Code, &k.Data, nil
	})
	if err != nil {
		return nil, kernel.Data{}, err
	}
	d, _ := e.Aux().(*kernel.Data)
	if d == nil {
		return nil, kernel.Data{}, fmt.Errorf("statecc: %s entry carries no kernel data", stage)
	}
	return e, *d, nil
}

// vueRegs is the size of a vertex entry in registers, header included.
func (c *Context) vueRegs() uint8 {
	return uint8(c.vertex.Attributes + 1) //nolint:gosec // G115: at most MaxVertexAttributes+1
}

func (c *Context) prepareVSProg() error {
	key := kernel.VSKey{Attributes: uint8(c.vertex.Attributes), Gen: c.gen} //nolint:gosec // G115: validated
	e, d, err := c.kernelState(statecache.StageVSProg, statecache.KeyBytes(&key), func() (*kernel.Kernel, error) {
		return kernel.VS(&key)
	})
	if err != nil {
		return err
	}
	c.st.vsProg, c.st.vsData = e, d
	return nil
}

func (c *Context) prepareGSProg() error {
	prim := c.topology.prim()
	c.st.gsActive = prim == kernel.PrimQuadList || prim == kernel.PrimQuadStrip
	if !c.st.gsActive {
		c.st.postGS = prim
		c.st.gsProg, c.st.gsData = nil, kernel.Data{}
		return nil
	}

	key := kernel.GSKey{Prim: prim, Regs: c.vueRegs(), Gen: c.gen}
	e, d, err := c.kernelState(statecache.StageGSProg, statecache.KeyBytes(&key), func() (*kernel.Kernel, error) {
		return kernel.GS(&key)
	})
	if err != nil {
		return err
	}
	c.st.gsProg, c.st.gsData = e, d
	c.st.postGS = kernel.PrimTriStrip
	return nil
}

func (c *Context) prepareClipProg() error {
	key := kernel.ClipKey{Prim: c.st.postGS, Regs: c.vueRegs(), Gen: c.gen}
	e, d, err := c.kernelState(statecache.StageClipProg, statecache.KeyBytes(&key), func() (*kernel.Kernel, error) {
		return kernel.Clip(&key)
	})
	if err != nil {
		return err
	}
	c.st.clipProg, c.st.clipData = e, d
	return nil
}

func (c *Context) prepareSFProg() error {
	prim := c.st.postGS
	provoking := 0
	if !c.raster.FirstVertexProvoking {
		provoking = prim.Vertices() - 1
	}
	//nolint:gosec // G115: attribute and vertex counts are small
	key := kernel.SFKey{
		Prim:       prim,
		Attributes: uint8(c.vertex.Attributes - 1),
		Provoking:  uint8(max(provoking, 0)),
		Gen:        c.gen,
	}
	e, d, err := c.kernelState(statecache.StageSFProg, statecache.KeyBytes(&key), func() (*kernel.Kernel, error) {
		return kernel.SF(&key)
	})
	if err != nil {
		return err
	}
	c.st.sfProg, c.st.sfData = e, d
	return nil
}

// =============================================================================
// CURBE and URB
// =============================================================================

// regPairs rounds a register count up to whole 512-bit rows, the unit
// in which threads read constants.
func regPairs(n uint32) uint32 { return pool.AlignUp(n, 2) }

func (c *Context) prepareCURBEOffsets() error {
	planes := len(c.clipPlanes)
	req := curbe.Request{
		Fragment: regPairs(curbe.FragmentRegs(len(c.st.wmData.Params))),
		Clip:     regPairs(curbe.ClipRegs(planes, planes > 0)),
		Vertex:   regPairs(curbe.VertexRegs(len(c.vertex.Constants))),
	}
	if c.curbe.Update(req) {
		c.raise(driverCURBELayout)
		slogger().Debug("statecc: curbe relayout", "layout", c.curbe.Layout().String())
	}
	return nil
}

func (c *Context) prepareURBFence() error {
	sizes := urb.Sizes{
		VS: max(c.st.vsData.URBEntryRows, c.st.clipData.URBEntryRows),
		SF: c.st.sfData.URBEntryRows,
		CS: c.curbe.Layout().Total / 2,
	}
	if c.st.gsActive {
		sizes.VS = max(sizes.VS, c.st.gsData.URBEntryRows)
	}
	changed, err := c.urb.Update(sizes)
	if err != nil {
		return err
	}
	if changed {
		c.urbRelayouts++
		c.raise(driverURBFence)
		slogger().Debug("statecc: urb relayout", "layout", c.urb.Layout().String())
	}
	return nil
}

// fragmentParams resolves the fragment kernel's CURBE parameters against
// the current constants. Constants that were never set read as zero.
func (c *Context) fragmentParams() []float32 {
	params := c.st.wmData.Params
	out := make([]float32, len(params))
	for i, p := range params {
		switch p.Source {
		case wm.ParamImmediate:
			out[i] = p.Value
		case wm.ParamConstant:
			if p.Index < len(c.constants) {
				out[i] = c.constants[p.Index][p.Channel&3]
			}
		}
	}
	return out
}

func (c *Context) prepareConstants() error {
	l := c.curbe.Layout()
	c.st.constRows = l.Total / 2
	if l.Total == 0 {
		return nil
	}

	data := curbe.Build(l, c.fragmentParams(), c.clipPlanes, c.vertex.Constants)
	if !c.st.constData.Changed(data) && c.st.constants != nil {
		return nil
	}

	buf := make([]byte, 0, len(data)*4)
	for _, f := range data {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	a, err := c.pool.Alloc("curbe", len(buf))
	if err != nil {
		c.st.constData.Reset()
		return fmt.Errorf("statecc: constant buffer: %w", err)
	}
	if err := c.pool.Write(a, 0, buf); err != nil {
		c.pool.Free(a)
		c.st.constData.Reset()
		return fmt.Errorf("statecc: constant buffer: %w", err)
	}
	if c.st.constants != nil {
		c.pool.Free(c.st.constants)
	}
	c.st.constants = a
	return nil
}

// =============================================================================
// Unit records
// =============================================================================

// unitState looks up a unit record, uploading u on a miss. Packing a
// record is cheap; the relocations it embeds take part in the lookup.
func (c *Context) unitState(stage statecache.Stage, key []byte, u unit.Unit) (*statecache.Entry, error) {
	return c.cache.SearchOrUpload(stage, key, u.Relocs, func() ([]byte, any, error) {
		return u.Payload, nil, nil
	})
}

func (c *Context) prepareCCViewport() error {
	key := unit.CCViewportKey{MinDepth: c.viewport.MinDepth, MaxDepth: c.viewport.MaxDepth}
	e, err := c.unitState(statecache.StageCCViewport, statecache.KeyBytes(&key), unit.CCViewport(&key))
	if err != nil {
		return err
	}
	c.st.ccVP = e
	return nil
}

func (c *Context) prepareCCUnit() error {
	ds := c.depthStencil
	if !c.fb.hasDepth() && !c.fb.hasStencil() {
		ds = nil
	}
	key := unit.CCKeyFrom(ds, c.blend, c.stencilRef)
	if !c.fb.hasDepth() {
		key.DepthTest, key.DepthWrite = false, false
	}
	if !c.fb.hasStencil() {
		key.StencilEnable, key.TwoSided = false, false
	}
	e, err := c.unitState(statecache.StageCCUnit, statecache.KeyBytes(&key), unit.CC(&key, c.st.ccVP.Allocation()))
	if err != nil {
		return err
	}
	c.st.cc = e
	return nil
}

func (c *Context) prepareSamplers() error {
	c.st.defaultColors = c.st.defaultColors[:0]
	if len(c.samplers) == 0 {
		c.st.samplers = nil
		return nil
	}

	var key unit.SamplerKey
	key.Count = uint32(len(c.samplers)) //nolint:gosec // G115: at most MaxSamplers
	for i := range c.samplers {
		s := &c.samplers[i]
		dk := unit.DefaultColorKey{Color: s.BorderColor}
		e, err := c.unitState(statecache.StageSamplerDefaultColor, statecache.KeyBytes(&dk), unit.DefaultColor(&dk))
		if err != nil {
			return err
		}
		c.st.defaultColors = append(c.st.defaultColors, e.Allocation())

		key.Samplers[i] = unit.SamplerFrom(&s.Descriptor)
		key.Samplers[i].Cube = s.Cube
	}

	e, err := c.unitState(statecache.StageSampler, statecache.KeyBytes(&key), unit.Samplers(&key, c.st.defaultColors))
	if err != nil {
		return err
	}
	c.st.samplers = e
	return nil
}

// scratchFor returns a scratch buffer holding perThread bytes for every
// fragment thread, growing the current one when it is too small.
func (c *Context) scratchFor(perThread uint32) (*pool.Allocation, error) {
	if perThread == 0 {
		return nil, nil
	}
	size := (1024 << unit.ScratchSpace(perThread)) * int(c.caps.WMThreads)
	if c.st.scratch != nil && c.st.scratch.Size() >= size {
		return c.st.scratch, nil
	}
	a, err := c.pool.Alloc("wm_scratch", size)
	if err != nil {
		return nil, fmt.Errorf("statecc: scratch: %w", err)
	}
	if c.st.scratch != nil {
		c.pool.Free(c.st.scratch)
	}
	c.st.scratch = a
	return a, nil
}

func (c *Context) prepareWMUnit() error {
	d := c.st.wmData
	scratch, err := c.scratchFor(d.ScratchBytes)
	if err != nil {
		return err
	}
	var samplers *pool.Allocation
	if c.st.samplers != nil {
		samplers = c.st.samplers.Allocation()
	}

	r := &c.raster
	//nolint:gosec // G115: target and sampler counts are validated
	key := unit.WMKey{
		TotalGRF:            d.TotalGRF,
		DispatchGRF:         d.FirstCURBEReg,
		URBReadLength:       d.URBReadLength,
		ConstReadOffset:     c.curbe.Layout().FragmentStart / 2,
		ConstReadLength:     d.CURBEReadLength,
		ScratchBytes:        d.ScratchBytes,
		SamplerCount:        uint32(len(c.samplers)),
		BindingEntries:      uint32(len(c.st.surfaces)),
		DepthOffsetConstant: r.DepthBiasConstant,
		DepthOffsetScale:    r.DepthBiasSlope,
		Gen:                 c.gen,
		UsesDepth:           c.depthActive(),
		ComputesDepth:       d.ComputesDepth,
		UsesKill:            d.UsesKill,
		DepthOffset:         r.DepthBiasConstant != 0 || r.DepthBiasSlope != 0,
		LineStipple:         r.LineStipple,
		PolygonStipple:      r.PolygonStipple,
		LineSmooth:          r.LineSmooth,
	}
	e, err := c.unitState(statecache.StageWMUnit, statecache.KeyBytes(&key),
		unit.WM(&key, c.st.wmProg.Allocation(), scratch, samplers))
	if err != nil {
		return err
	}
	c.st.wmUnit = e
	return nil
}

// bindingEntries returns the size of the fragment binding table. Textures
// start after the last colour output slot.
func (c *Context) bindingEntries() int {
	if len(c.samplers) == 0 {
		return c.fb.ColorTargets
	}
	return wm.TextureBindingBase + len(c.samplers)
}

// renderSurface returns the surface key of colour target i.
func (c *Context) renderSurface(i int) (unit.SurfaceKey, batch.Target) {
	if i >= c.fb.ColorTargets || i >= len(c.fb.Color) || c.fb.Color[i].Memory == nil {
		return unit.NullSurfaceKey(c.fb.Width, c.fb.Height), nil
	}
	s := &c.fb.Color[i]
	format, _ := unit.SurfaceFormat(s.Format)
	k := unit.SurfaceKey{
		Format:       format,
		Type:         unit.SurfaceType2D,
		Width:        s.Width,
		Height:       s.Height,
		Pitch:        s.Pitch,
		Levels:       s.Levels,
		RenderTarget: true,
		Tiled:        s.Tiled,
		ColorBlend:   c.blend != nil,
	}
	if k.Width == 0 || k.Height == 0 {
		k.Width, k.Height = c.fb.Width, c.fb.Height
	}
	if s.WriteMask != gputypes.ColorWriteMaskNone {
		k.WriteDisable = unit.WriteDisable(s.WriteMask)
	}
	return k, s.Memory
}

// textureSurface returns the surface key of the texture behind sampler i.
func (c *Context) textureSurface(i int) (unit.SurfaceKey, batch.Target) {
	s := &c.samplers[i]
	t := &s.Texture
	if t.Memory == nil {
		k := unit.NullSurfaceKey(1, 1)
		k.RenderTarget = false
		return k, nil
	}
	format, _ := unit.SurfaceFormat(t.Format)
	k := unit.SurfaceKey{
		Format: format,
		Type:   unit.SurfaceType2D,
		Width:  t.Width,
		Height: t.Height,
		Pitch:  t.Pitch,
		Levels: t.Levels,
		Tiled:  t.Tiled,
	}
	if s.Cube {
		k.Type = unit.SurfaceTypeCube
	}
	return k, t.Memory
}

func (c *Context) prepareSurfaces() error {
	n := c.bindingEntries()
	c.st.surfaces = c.st.surfaces[:0]
	for i := range n {
		var k unit.SurfaceKey
		var memory batch.Target
		if i < wm.TextureBindingBase {
			k, memory = c.renderSurface(i)
		} else {
			k, memory = c.textureSurface(i - wm.TextureBindingBase)
		}
		e, err := c.unitState(statecache.StageSurface, statecache.KeyBytes(&k), unit.Surface(&k, memory))
		if err != nil {
			return err
		}
		c.st.surfaces = append(c.st.surfaces, e.Allocation())
	}
	return nil
}

func (c *Context) prepareBindingTable() error {
	key := unit.BindingTableKey{Entries: uint32(len(c.st.surfaces))} //nolint:gosec // G115: at most MaxBindingEntries
	e, err := c.unitState(statecache.StageBindingTable, statecache.KeyBytes(&key), unit.BindingTable(&key, c.st.surfaces))
	if err != nil {
		return err
	}
	c.st.bindingTable = e
	return nil
}

func (c *Context) prepareSFViewport() error {
	key := unit.SFViewportKey{
		Viewport:          unit.Viewport(c.viewport),
		Scissor:           unit.Rect(c.scissor),
		FramebufferWidth:  c.fb.Width,
		FramebufferHeight: c.fb.Height,
		FlipY:             c.raster.FlipY,
		ScissorEnable:     c.raster.ScissorEnable,
	}
	e, err := c.unitState(statecache.StageSFViewport, statecache.KeyBytes(&key), unit.SFViewport(&key))
	if err != nil {
		return err
	}
	c.st.sfVP = e
	return nil
}

func (c *Context) prepareSFUnit() error {
	l := c.urb.Layout()
	d := c.st.sfData
	r := &c.raster
	key := unit.SFKey{
		TotalGRF:             d.TotalGRF,
		URBReadLength:        d.URBReadLength,
		URBEntries:           l.Entries[urb.SF],
		URBEntrySize:         l.Size[urb.SF],
		FrontFace:            r.FrontFace,
		CullMode:             r.CullMode,
		LineWidth:            r.LineWidth,
		PointSize:            r.PointSize,
		Gen:                  c.gen,
		Scissor:              r.ScissorEnable,
		LineSmooth:           r.LineSmooth,
		PointSprite:          r.PointSprite,
		FirstVertexProvoking: r.FirstVertexProvoking,
	}
	e, err := c.unitState(statecache.StageSFUnit, statecache.KeyBytes(&key),
		unit.SF(&key, c.st.sfProg.Allocation(), c.st.sfVP.Allocation()))
	if err != nil {
		return err
	}
	c.st.sfUnit = e
	return nil
}

func (c *Context) prepareVSUnit() error {
	ul := c.urb.Layout()
	cl := c.curbe.Layout()
	d := c.st.vsData
	key := unit.VSKey{
		TotalGRF:        d.TotalGRF,
		URBReadLength:   d.URBReadLength,
		ConstReadOffset: cl.VertexStart / 2,
		ConstReadLength: cl.VertexSize / 2,
		URBEntries:      ul.Entries[urb.VS],
		URBEntrySize:    ul.Size[urb.VS],
		Gen:             c.gen,
	}
	e, err := c.unitState(statecache.StageVSUnit, statecache.KeyBytes(&key), unit.VS(&key, c.st.vsProg.Allocation()))
	if err != nil {
		return err
	}
	c.st.vsUnit = e
	return nil
}

func (c *Context) prepareGSUnit() error {
	l := c.urb.Layout()
	key := unit.GSKey{
		URBEntries:   l.Entries[urb.GS],
		URBEntrySize: l.Size[urb.GS],
		Gen:          c.gen,
		Enabled:      c.st.gsActive,
	}
	var prog *pool.Allocation
	if c.st.gsActive {
		key.TotalGRF = c.st.gsData.TotalGRF
		key.URBReadLength = c.st.gsData.URBReadLength
		prog = c.st.gsProg.Allocation()
	}
	e, err := c.unitState(statecache.StageGSUnit, statecache.KeyBytes(&key), unit.GS(&key, prog))
	if err != nil {
		return err
	}
	c.st.gsUnit = e
	return nil
}

func (c *Context) prepareClipViewport() error {
	key := unit.DefaultClipViewport()
	e, err := c.unitState(statecache.StageClipViewport, statecache.KeyBytes(&key), unit.ClipViewport(&key))
	if err != nil {
		return err
	}
	c.st.clipVP = e
	return nil
}

func (c *Context) prepareClipUnit() error {
	ul := c.urb.Layout()
	cl := c.curbe.Layout()
	d := c.st.clipData
	key := unit.ClipKey{
		TotalGRF:        d.TotalGRF,
		URBReadLength:   d.URBReadLength,
		ConstReadOffset: cl.ClipStart / 2,
		ConstReadLength: cl.ClipSize / 2,
		URBEntries:      ul.Entries[urb.Clip],
		URBEntrySize:    ul.Size[urb.Clip],
		Mode:            unit.ClipNormal,
		UserPlanes:      uint32(1)<<len(c.clipPlanes) - 1,
		Gen:             c.gen,
		GuardBand:       true,
		DepthClip:       c.raster.DepthClip,
	}
	e, err := c.unitState(statecache.StageClipUnit, statecache.KeyBytes(&key),
		unit.Clip(&key, c.st.clipProg.Allocation(), c.st.clipVP.Allocation()))
	if err != nil {
		return err
	}
	c.st.clipUnit = e
	return nil
}

// =============================================================================
// Commands
// =============================================================================

// emitPSPURBCBS points the pipeline at the unit records, then publishes
// the URB partition. URB_FENCE may not cross a cache line, so it is
// padded when the emitter reports its position.
func (c *Context) emitPSPURBCBS() error {
	e := c.emitter
	if c.gen >= eu.Gen5 {
		if err := emitWords(e, []uint32{miFlush}); err != nil {
			return err
		}
	}

	p := unitPointers{
		vs:   c.st.vsUnit.Allocation(),
		clip: c.st.clipUnit.Allocation(),
		sf:   c.st.sfUnit.Allocation(),
		wm:   c.st.wmUnit.Allocation(),
		cc:   c.st.cc.Allocation(),
	}
	if c.st.gsActive {
		p.gs = c.st.gsUnit.Allocation()
	}
	if err := emitPipelinedPointers(e, p); err != nil {
		return err
	}

	l := c.urb.Layout()
	if pos, ok := e.(batch.Positioner); ok {
		if err := emitNoops(e, urb.FencePadding(pos.Len())); err != nil {
			return err
		}
	}
	if err := emitWords(e, urb.Fence(l)); err != nil {
		return err
	}
	return emitWords(e, urb.CSState(l))
}

// emitConstants writes CONSTANT_BUFFER. An empty CURBE is published
// without the valid bit.
func (c *Context) emitConstants() error {
	e := c.emitter
	w := urb.ConstBuffer(c.st.constRows)
	if err := e.Begin(urb.ConstBufDwords); err != nil {
		return err
	}
	e.Emit(w[0])
	if c.st.constRows > 0 {
		e.EmitReloc(c.st.constants, w[1], statecache.UsageConstant)
	} else {
		e.Emit(w[1])
	}
	return e.End()
}

func (c *Context) emitDrawingRect() error {
	return emitWords(c.emitter, drawingRect(c.fb.Width, c.fb.Height))
}

func (c *Context) emitBindingTablePointers() error {
	return emitBindingTablePointers(c.emitter, c.st.bindingTable.Allocation())
}

func (c *Context) emitBlendConstant() error {
	return emitWords(c.emitter, constantColor(c.blendColor))
}

func (c *Context) emitDepthBuffer() error {
	d := depthBuffer{}
	if c.fb.DepthFormat != gputypes.TextureFormatUndefined {
		format, _ := unit.DepthFormat(c.fb.DepthFormat)
		d = depthBuffer{
			memory: c.fb.DepthBuffer,
			format: format,
			width:  c.fb.Width,
			height: c.fb.Height,
			pitch:  c.fb.DepthPitch,
			tiled:  c.fb.DepthTiled,
		}
	}
	return emitDepthBuffer(c.emitter, c.gen, d)
}

// emitPolygonStipple programs the pattern only while the windower reads
// it.
func (c *Context) emitPolygonStipple() error {
	if !c.raster.PolygonStipple {
		return nil
	}
	return emitWords(c.emitter, polyStipplePattern(&c.stipple, c.raster.FlipY))
}

func (c *Context) emitPolygonStippleOffset() error {
	if !c.raster.PolygonStipple {
		return nil
	}
	return emitWords(c.emitter, polyStippleOffset(c.fb.Height, c.raster.FlipY))
}

func (c *Context) emitLineStipple() error {
	if !c.raster.LineStipple {
		return nil
	}
	return emitWords(c.emitter, lineStipple(c.raster.LineStipplePattern, c.raster.LineStippleFactor))
}

// emitAALineParameters programs the antialiased line coverage, which G4X
// added.
func (c *Context) emitAALineParameters() error {
	if !c.raster.LineSmooth || c.gen < eu.G4X {
		return nil
	}
	return emitWords(c.emitter, aaLineParameters())
}
