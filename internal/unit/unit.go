// Package unit packs the state records of the fixed-function units.
//
// Every builder is a pure function of a key struct and the allocations the
// record points at. The key holds no pointers and has a fixed layout, so
// its bytes can address the state cache directly; pointers are returned as
// relocations and resolved when the record is uploaded.
package unit

import (
	"math/bits"

	"github.com/gogpu/statecc/batch"
	"github.com/gogpu/statecc/internal/bitfield"
	"github.com/gogpu/statecc/internal/pool"
	"github.com/gogpu/statecc/internal/statecache"
)

// Unit is a packed record and the pointers it embeds.
type Unit struct {
	Payload []byte
	Relocs  []statecache.Relocation
}

// Thread dwords shared by the VS, GS, clip, SF and WM records.
var (
	fGRFRegCount   = bitfield.F("grf_reg_count", 0, 1, 3)
	fKernelStart   = bitfield.F("kernel_start_pointer", 0, 6, 31)
	fDepthCoefRead = bitfield.F("depth_coef_urb_read_offset", 1, 8, 13)
	fFloatMode     = bitfield.Bit("floating_point_mode", 1, 16)
	fBindingCount  = bitfield.F("binding_table_entry_count", 1, 18, 25)
	fSPF           = bitfield.Bit("single_program_flow", 1, 31)
	fScratchSpace  = bitfield.F("per_thread_scratch_space", 2, 0, 3)
	fScratchBase   = bitfield.F("scratch_space_base_pointer", 2, 10, 31)
	fDispatchGRF   = bitfield.F("dispatch_grf_start_reg", 3, 0, 3)
	fURBReadOffset = bitfield.F("urb_entry_read_offset", 3, 4, 9)
	fURBReadLength = bitfield.F("urb_entry_read_length", 3, 11, 16)
	fConstOffset   = bitfield.F("const_urb_entry_read_offset", 3, 18, 23)
	fConstLength   = bitfield.F("const_urb_entry_read_length", 3, 25, 30)

	fStatsEnable = bitfield.Bit("stats_enable", 4, 10)
	fURBEntries  = bitfield.F("nr_urb_entries", 4, 11, 17)
	fURBAlloc    = bitfield.F("urb_entry_allocation_size", 4, 19, 23)
)

var threadFields = []bitfield.Field{
	fGRFRegCount, fKernelStart, fDepthCoefRead, fFloatMode, fBindingCount, fSPF,
	fScratchSpace, fScratchBase, fDispatchGRF, fURBReadOffset, fURBReadLength,
	fConstOffset, fConstLength, fStatsEnable, fURBEntries, fURBAlloc,
}

// Thread holds the dispatch parameters common to every unit that runs a
// kernel.
type Thread struct {
	TotalGRF        uint32
	BindingEntries  uint32
	ScratchBytes    uint32
	DispatchGRF     uint32
	URBReadOffset   uint32
	URBReadLength   uint32
	ConstReadOffset uint32
	ConstReadLength uint32
	SPF             bool
}

// GRFBlocks encodes a register count in blocks of 16, minus one.
func GRFBlocks(totalGRF uint32) uint32 {
	if totalGRF == 0 {
		return 0
	}
	return pool.AlignUp(totalGRF, 16)/16 - 1
}

// ScratchSpace encodes per-thread scratch as log2 of the size in KB. Any
// non-zero size is rounded up to a power of two of at least 1KB.
func ScratchSpace(bytes uint32) uint32 {
	if bytes <= 1024 {
		return 0
	}
	//nolint:gosec // G115: bit length of a uint32 fits
	return uint32(bits.Len32((bytes - 1) / 1024))
}

// packThread fills dwords 0-3 and returns the relocations for the kernel
// and, when scratch is used, the scratch base.
func packThread(r *bitfield.Record, t Thread, kernel, scratch *pool.Allocation) []statecache.Relocation {
	r.Set(fGRFRegCount, GRFBlocks(t.TotalGRF))
	r.Set(fBindingCount, t.BindingEntries)
	r.SetBool(fSPF, t.SPF)
	r.Set(fDispatchGRF, t.DispatchGRF)
	r.Set(fURBReadOffset, t.URBReadOffset)
	r.Set(fURBReadLength, t.URBReadLength)
	r.Set(fConstOffset, t.ConstReadOffset)
	r.Set(fConstLength, t.ConstReadLength)

	var relocs []statecache.Relocation
	if kernel != nil {
		relocs = append(relocs, reloc(r, fKernelStart, statecache.UsageInstruction, kernel))
	}
	if t.ScratchBytes > 0 && scratch != nil {
		r.Set(fScratchSpace, ScratchSpace(t.ScratchBytes))
		relocs = append(relocs, reloc(r, fScratchBase, statecache.UsageScratch, scratch))
	}
	return relocs
}

// packURB fills the URB allocation fields of dword 4.
func packURB(r *bitfield.Record, entries, entrySize uint32, stats bool) {
	r.SetBool(fStatsEnable, stats)
	r.Set(fURBEntries, entries)
	if entrySize > 0 {
		r.Set(fURBAlloc, entrySize-1)
	}
}

// reloc returns a relocation for the pointer held in f. The other bits of
// the dword travel in the delta because the upload overwrites the dword.
func reloc(r *bitfield.Record, f bitfield.Field, usage statecache.Usage, target batch.Target) statecache.Relocation {
	return statecache.Relocation{
		Offset: f.ByteOffset(),
		Usage:  usage,
		Target: target,
		Delta:  r.Word(f.DWord) &^ (f.Mask() << f.Lo),
	}
}

// threadCount converts a thread limit to the hardware's minus-one field,
// clamped to [1, limit].
func threadCount(want, limit uint32) uint32 {
	return min(max(want, 1), limit) - 1
}
