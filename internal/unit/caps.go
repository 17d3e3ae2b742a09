package unit

import (
	"github.com/gogpu/statecc/internal/eu"
)

// Caps are the per-generation thread and URB limits.
type Caps struct {
	VSThreads   uint32
	GSThreads   uint32
	ClipThreads uint32
	SFThreads   uint32
	WMThreads   uint32

	// URBRows is the URB size in 512-bit rows.
	URBRows uint32
}

var capsTable = map[eu.Gen]Caps{
	eu.Gen4: {VSThreads: 16, GSThreads: 2, ClipThreads: 2, SFThreads: 24, WMThreads: 32, URBRows: 256},
	eu.G4X:  {VSThreads: 32, GSThreads: 2, ClipThreads: 2, SFThreads: 24, WMThreads: 50, URBRows: 384},
	eu.Gen5: {VSThreads: 64, GSThreads: 2, ClipThreads: 4, SFThreads: 48, WMThreads: 72, URBRows: 1024},
}

// CapsFor returns the limits of gen. Unknown generations get the Gen4
// limits.
func CapsFor(gen eu.Gen) Caps {
	if c, ok := capsTable[gen]; ok {
		return c
	}
	return capsTable[eu.Gen4]
}
