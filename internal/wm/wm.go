// Package wm compiles fragment programs to native SIMD-16 kernels.
//
// Compilation runs in three passes over a value-renamed IR:
//
//   - pass0 translates the program, adding the interpolation prologue and
//     one framebuffer write per colour target.
//   - pass1 removes instructions and channels whose results never reach a
//     framebuffer write or a kill.
//   - pass2 lays out the thread payload and assigns register pairs,
//     spilling to scratch when the budget runs out.
//
// The emitter then lowers the surviving instructions. A compile depends
// only on the program and the Key, so kernels can be cached by both.
package wm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"structs"

	"honnef.co/go/safeish"

	"github.com/gogpu/statecc/internal/eu"
	"github.com/gogpu/statecc/shader"
)

var (
	// ErrInvalidProgram is returned for programs that fail validation.
	ErrInvalidProgram = errors.New("wm: invalid program")

	// ErrRegisterBudget is returned when a single instruction needs more
	// registers than the budget holds, even after spilling.
	ErrRegisterBudget = errors.New("wm: register budget exceeded")

	// ErrBadKey is returned for keys outside the hardware limits.
	ErrBadKey = errors.New("wm: bad key")
)

// DefaultMaxGRF is the register budget used when Key.MaxGRF is zero.
const DefaultMaxGRF = 128

// Key holds every piece of state that changes the generated code besides
// the program itself. It is hashed byte-wise, so it has a fixed layout
// and no pointers.
type Key struct {
	_ structs.HostLayout

	ProgramHash  uint64
	Gen          eu.Gen
	MaxGRF       uint8
	ColorTargets uint8

	Flatshade       bool
	SourceDepth     bool // the payload carries interpolated depth
	SourceDepthToRT bool // depth is sent with the colour
	DestDepth       bool
	AADestStencil   bool
}

// Stats counts what a compile produced.
type Stats struct {
	Instructions     int // native instructions
	EmittedGroups    int // program instructions that produced code
	Spills           int
	Unspills         int
	DeadInstructions int
}

// ProgData describes the thread payload a kernel expects.
type ProgData struct {
	TotalGRF        uint32
	FirstCURBEReg   uint32
	CURBEReadLength uint32 // in register pairs
	URBReadLength   uint32 // in register pairs
	ScratchBytes    uint32 // per thread

	// Params lists the CURBE contents, one float per entry.
	Params []Param

	UsesKill      bool
	ComputesDepth bool

	Stats Stats
}

// Kernel is a compiled fragment program.
type Kernel struct {
	Code []byte
	Data ProgData
}

// CacheKey returns the bytes that identify the kernel Compile produces for
// a program with the given AppendBinary encoding. The whole program takes
// part, so programs whose hashes collide never share a kernel.
func CacheKey(key *Key, program []byte) []byte {
	kb := safeish.AsBytes(key)
	out := make([]byte, 0, len(kb)+len(program))
	return append(append(out, kb...), program...)
}

// Compile translates prog under key.
func Compile(prog *shader.Program, key Key) (*Kernel, error) {
	if err := prog.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProgram, err)
	}
	if key.ColorTargets > shader.MaxColorOuts {
		return nil, fmt.Errorf("%w: %d colour targets", ErrBadKey, key.ColorTargets)
	}
	maxGRF := int(key.MaxGRF)
	if maxGRF == 0 {
		maxGRF = DefaultMaxGRF
	}

	b := newBuilder(prog, key)
	b.pass0()
	total := len(b.insts)
	b.pass1()
	b.compactParams()

	lay := b.assignPayload()
	ra := newRegalloc(b.ir, lay, maxGRF)
	if err := ra.run(); err != nil {
		return nil, err
	}

	k := &Kernel{}
	d := &k.Data
	e := &emitter{ir: b.ir, key: key, lay: lay, p: eu.NewCompiler(), data: d}
	e.run()

	//nolint:gosec // G115: register counts are bounded by MaxGRF
	*d = ProgData{
		TotalGRF:        uint32(ra.high),
		FirstCURBEReg:   uint32(lay.curbeStart),
		CURBEReadLength: uint32((lay.curbeRegs + 1) / 2),
		URBReadLength:   uint32(lay.urbRegs / 2),
		ScratchBytes:    uint32(ra.scratchBytes()),
		Params:          b.ir.params,
		UsesKill:        b.usesKill,
		ComputesDepth:   b.computesDepth,
		Stats:           d.Stats,
	}
	d.Stats.Spills = ra.spills
	d.Stats.DeadInstructions = total - len(b.live())
	k.Code = e.p.Bytes()

	if log := slogger(); log.Enabled(context.Background(), slog.LevelDebug) {
		log.Debug("wm: compiled fragment program",
			"hash", key.ProgramHash,
			"instructions", d.Stats.Instructions,
			"grf", d.TotalGRF,
			"spills", d.Stats.Spills,
		)
		log.Debug("wm: ir\n" + b.dump())
		if lines, err := eu.Disassemble(k.Code); err == nil {
			for _, l := range lines {
				log.Debug("wm: " + l)
			}
		}
	}
	return k, nil
}
