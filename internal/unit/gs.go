package unit

import (
	"structs"

	"github.com/gogpu/statecc/internal/bitfield"
	"github.com/gogpu/statecc/internal/eu"
	"github.com/gogpu/statecc/internal/pool"
)

var (
	fGSRendering  = bitfield.Bit("rendering_enable", 4, 8)
	fGSMaxThreads = bitfield.F("max_threads", 4, 25, 29)
)

// GSDwords is the size of the GS unit record.
const GSDwords = 7

// GSKey selects a GS unit record. A disabled GS passes vertices straight
// to the clipper.
type GSKey struct {
	_ structs.HostLayout

	TotalGRF      uint32
	URBReadLength uint32
	URBEntries    uint32
	URBEntrySize  uint32

	Gen     eu.Gen
	Enabled bool
	Stats   bool
	_       [1]byte
}

// GS packs the geometry shader unit. kernel is ignored when the unit is
// disabled.
func GS(k *GSKey, kernel *pool.Allocation) Unit {
	r := bitfield.NewRecord(GSDwords)
	if !k.Enabled {
		packURB(r, k.URBEntries, k.URBEntrySize, k.Stats)
		return Unit{Payload: r.Bytes()}
	}

	relocs := packThread(r, Thread{
		TotalGRF:      k.TotalGRF,
		DispatchGRF:   1,
		URBReadLength: k.URBReadLength,
		SPF:           true,
	}, kernel, nil)

	packURB(r, k.URBEntries, k.URBEntrySize, k.Stats)
	// The hardware runs a single GS thread.
	r.Set(fGSMaxThreads, 0)
	r.SetBool(fGSRendering, k.Gen >= eu.Gen5)

	return Unit{Payload: r.Bytes(), Relocs: relocs}
}
