package urb

import (
	"github.com/gogpu/statecc/internal/bitfield"
)

// Command opcodes, in the upper half of the header dword.
const (
	cmdURBFence    = 0x6000
	cmdCSURBState  = 0x6001
	cmdConstBuffer = 0x6002

	fenceRealloc  = 0x3f << 8
	constBufValid = 1 << 8

	cacheLineDwords = 16
)

// Command sizes in dwords.
const (
	FenceDwords    = 3
	CSStateDwords  = 2
	ConstBufDwords = 2
)

var (
	fVSFence   = bitfield.F("vs_fence", 1, 0, 9)
	fGSFence   = bitfield.F("gs_fence", 1, 10, 19)
	fClipFence = bitfield.F("clp_fence", 1, 20, 29)
	fSFFence   = bitfield.F("sf_fence", 2, 0, 9)
	fVFFence   = bitfield.F("vf_fence", 2, 10, 19)
	fCSFence   = bitfield.F("cs_fence", 2, 20, 30)

	fCSEntries   = bitfield.F("nr_urb_entries", 1, 0, 2)
	fCSEntrySize = bitfield.F("urb_entry_size", 1, 4, 8)

	fConstLength = bitfield.F("buffer_length", 1, 0, 5)
)

// FenceFields lists the URB_FENCE fields for dumps.
var FenceFields = []bitfield.Field{fVSFence, fGSFence, fClipFence, fSFFence, fVFFence, fCSFence}

func header(op uint32, dwords int) uint32 {
	//nolint:gosec // G115: command lengths are a handful of dwords
	return op<<16 | uint32(dwords-2)
}

// Fence encodes URB_FENCE for l. The vertex fetcher shares the SF fence.
func Fence(l Layout) []uint32 {
	r := bitfield.NewRecord(FenceDwords)
	r.SetWord(0, header(cmdURBFence, FenceDwords)|fenceRealloc)
	r.Set(fVSFence, l.Fence(VS))
	r.Set(fGSFence, l.Fence(GS))
	r.Set(fClipFence, l.Fence(Clip))
	r.Set(fSFFence, l.Fence(SF))
	r.Set(fVFFence, l.Fence(SF))
	r.Set(fCSFence, l.Fence(CS))
	return r.Words()
}

// FencePadding returns how many MI_NOOP dwords must precede a fence that
// would start at dword offset pos, since the command may not cross a
// 64-byte boundary.
func FencePadding(pos int) int {
	if rem := cacheLineDwords - pos%cacheLineDwords; rem < FenceDwords {
		return rem
	}
	return 0
}

// CSState encodes CS_URB_STATE for l.
func CSState(l Layout) []uint32 {
	r := bitfield.NewRecord(CSStateDwords)
	r.SetWord(0, header(cmdCSURBState, CSStateDwords))
	r.Set(fCSEntries, l.Entries[CS])
	r.Set(fCSEntrySize, l.Size[CS]-1)
	return r.Words()
}

// ConstBuffer encodes the header and length dword of CONSTANT_BUFFER for
// a CURBE of rows 512-bit rows. The buffer address is added to the second
// dword by relocation; an empty buffer is emitted without the valid bit.
func ConstBuffer(rows uint32) []uint32 {
	r := bitfield.NewRecord(ConstBufDwords)
	h := header(cmdConstBuffer, ConstBufDwords)
	if rows > 0 {
		h |= constBufValid
		r.Set(fConstLength, rows-1)
	}
	r.SetWord(0, h)
	return r.Words()
}
