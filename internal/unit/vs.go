package unit

import (
	"structs"

	"github.com/gogpu/statecc/internal/bitfield"
	"github.com/gogpu/statecc/internal/eu"
	"github.com/gogpu/statecc/internal/pool"
)

var (
	fVSMaxThreads = bitfield.F("max_threads", 4, 25, 30)
	fVSSamplers   = bitfield.F("sampler_count", 5, 0, 2)
	fVSEnable     = bitfield.Bit("vs_enable", 6, 0)
	fVSCacheOff   = bitfield.Bit("vert_cache_disable", 6, 1)
)

// VSDwords is the size of the VS unit record.
const VSDwords = 7

// VSKey selects a VS unit record.
type VSKey struct {
	_ structs.HostLayout

	TotalGRF        uint32
	URBReadLength   uint32
	ConstReadOffset uint32
	ConstReadLength uint32
	URBEntries      uint32
	URBEntrySize    uint32

	Gen          eu.Gen
	Stats        bool
	CacheDisable bool
	_            [1]byte
}

// VS packs the vertex shader unit.
func VS(k *VSKey, kernel *pool.Allocation) Unit {
	r := bitfield.NewRecord(VSDwords)
	relocs := packThread(r, Thread{
		TotalGRF:        k.TotalGRF,
		DispatchGRF:     1,
		URBReadLength:   k.URBReadLength,
		ConstReadOffset: k.ConstReadOffset,
		ConstReadLength: k.ConstReadLength,
	}, kernel, nil)

	packURB(r, k.URBEntries, k.URBEntrySize, k.Stats)
	r.Set(fVSMaxThreads, threadCount(k.URBEntries/2, CapsFor(k.Gen).VSThreads))
	r.Set(fVSSamplers, 0)
	r.SetBool(fVSEnable, true)
	r.SetBool(fVSCacheOff, k.CacheDisable)

	return Unit{Payload: r.Bytes(), Relocs: relocs}
}
