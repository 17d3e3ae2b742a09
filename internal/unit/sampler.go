package unit

import (
	"math"
	"structs"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/statecc/internal/bitfield"
	"github.com/gogpu/statecc/internal/pool"
	"github.com/gogpu/statecc/internal/statecache"
)

// MaxSamplers is the number of sampler slots the fragment stage can bind.
const MaxSamplers = 16

// SamplerDwords is the size of one sampler record.
const SamplerDwords = 4

// Hardware filters and wrap modes.
const (
	hwMapNearest = 0
	hwMapLinear  = 1
	hwMapAniso   = 2

	hwMipNone    = 0
	hwMipNearest = 1
	hwMipLinear  = 3

	hwWrap   = 0
	hwMirror = 1
	hwClamp  = 2
	hwCube   = 3
)

// Address rounding bits, relative to the address_round field.
const (
	roundMag = 0x15 // U, V and R on magnification
	roundMin = 0x2a // U, V and R on minification
)

var (
	fShadowFunc   = bitfield.F("shadow_function", 0, 0, 2)
	fLODBias      = bitfield.F("lod_bias", 0, 3, 13)
	fMinFilter    = bitfield.F("min_filter", 0, 14, 16)
	fMagFilter    = bitfield.F("mag_filter", 0, 17, 19)
	fMipFilter    = bitfield.F("mip_filter", 0, 20, 21)
	fBaseLevel    = bitfield.F("base_level", 0, 22, 26)
	fMinMagNeq    = bitfield.Bit("min_mag_neq", 0, 27)
	fLODPreclamp  = bitfield.Bit("lod_preclamp", 0, 28)
	fRWrap        = bitfield.F("r_wrap_mode", 1, 0, 2)
	fTWrap        = bitfield.F("t_wrap_mode", 1, 3, 5)
	fSWrap        = bitfield.F("s_wrap_mode", 1, 6, 8)
	fCubeControl  = bitfield.Bit("cube_control_mode", 1, 9)
	fMaxLOD       = bitfield.F("max_lod", 1, 12, 21)
	fMinLOD       = bitfield.F("min_lod", 1, 22, 31)
	fDefaultColor = bitfield.F("default_color_pointer", 2, 5, 31)
	fNonNormal    = bitfield.Bit("non_normalized_coord", 3, 0)
	fAddressRound = bitfield.F("address_round", 3, 13, 18)
	fMaxAniso     = bitfield.F("max_aniso", 3, 19, 21)
)

// SamplerState is the cacheable part of one sampler.
type SamplerState struct {
	AddressU, AddressV, AddressW gputypes.AddressMode
	MagFilter, MinFilter         gputypes.FilterMode
	MipmapFilter                 gputypes.MipmapFilterMode
	Compare                      gputypes.CompareFunction
	LODMin, LODMax, LODBias      float32
	MaxAnisotropy                uint16
	Cube                         bool
	NonNormalized                bool
}

// SamplerFrom converts a WebGPU sampler descriptor.
func SamplerFrom(d *gputypes.SamplerDescriptor) SamplerState {
	return SamplerState{
		AddressU:      d.AddressModeU,
		AddressV:      d.AddressModeV,
		AddressW:      d.AddressModeW,
		MagFilter:     d.MagFilter,
		MinFilter:     d.MinFilter,
		MipmapFilter:  d.MipmapFilter,
		Compare:       d.Compare,
		LODMin:        d.LodMinClamp,
		LODMax:        d.LodMaxClamp,
		MaxAnisotropy: d.MaxAnisotropy,
	}
}

// SamplerKey selects a sampler table.
type SamplerKey struct {
	_ structs.HostLayout

	Count    uint32
	Samplers [MaxSamplers]SamplerState
}

// Samplers packs a table of Count sampler records. defaultColors holds the
// border colour record of each sampler; missing entries leave the pointer
// zero.
func Samplers(k *SamplerKey, defaultColors []*pool.Allocation) Unit {
	n := int(min(k.Count, MaxSamplers))
	out := Unit{Payload: make([]byte, 0, n*SamplerDwords*4)}
	for i := range n {
		r := bitfield.NewRecord(SamplerDwords)
		packSampler(r, &k.Samplers[i])

		base := uint32(len(out.Payload)) //nolint:gosec // G115: at most 256 bytes
		if i < len(defaultColors) && defaultColors[i] != nil {
			rel := reloc(r, fDefaultColor, statecache.UsageSampler, defaultColors[i])
			rel.Offset += base
			out.Relocs = append(out.Relocs, rel)
		}
		out.Payload = append(out.Payload, r.Bytes()...)
	}
	return out
}

func packSampler(r *bitfield.Record, s *SamplerState) {
	if s.MaxAnisotropy > 1 {
		r.Set(fMinFilter, hwMapAniso)
		r.Set(fMagFilter, hwMapAniso)
		r.Set(fMaxAniso, anisoRatio(s.MaxAnisotropy))
	} else {
		r.Set(fMinFilter, mapFilter(s.MinFilter))
		r.Set(fMagFilter, mapFilter(s.MagFilter))
	}
	r.SetBool(fMinMagNeq, s.MinFilter != s.MagFilter)
	r.Set(fMipFilter, mipFilter(s.MipmapFilter))

	if s.Cube {
		r.Set(fSWrap, hwCube)
		r.Set(fTWrap, hwCube)
		r.Set(fRWrap, hwCube)
		r.SetBool(fCubeControl, true)
	} else {
		r.Set(fSWrap, wrapMode(s.AddressU))
		r.Set(fTWrap, wrapMode(s.AddressV))
		r.Set(fRWrap, wrapMode(s.AddressW))
	}

	r.Set(fLODBias, lodBias(s.LODBias))
	r.Set(fMinLOD, lodClamp(s.LODMin))
	r.Set(fMaxLOD, lodClamp(s.LODMax))
	r.Set(fBaseLevel, 0)
	r.SetBool(fLODPreclamp, true)

	if s.Compare != gputypes.CompareFunctionUndefined {
		r.Set(fShadowFunc, shadowFunc(s.Compare))
	}

	var round uint32
	if r.Get(fMinFilter) != hwMapNearest {
		round |= roundMin
	}
	if r.Get(fMagFilter) != hwMapNearest {
		round |= roundMag
	}
	r.Set(fAddressRound, round)
	r.SetBool(fNonNormal, s.NonNormalized)
}

func mapFilter(f gputypes.FilterMode) uint32 {
	if f == gputypes.FilterModeLinear {
		return hwMapLinear
	}
	return hwMapNearest
}

func mipFilter(f gputypes.MipmapFilterMode) uint32 {
	switch f {
	case gputypes.MipmapFilterModeNearest:
		return hwMipNearest
	case gputypes.MipmapFilterModeLinear:
		return hwMipLinear
	default:
		return hwMipNone
	}
}

func wrapMode(m gputypes.AddressMode) uint32 {
	switch m {
	case gputypes.AddressModeRepeat:
		return hwWrap
	case gputypes.AddressModeMirrorRepeat:
		return hwMirror
	default:
		return hwClamp
	}
}

// anisoRatio encodes 2x..16x in steps of two.
func anisoRatio(n uint16) uint32 {
	return uint32(min(max(n, 2), 16)/2 - 1)
}

// lodBias encodes S4.6 two's complement.
func lodBias(b float32) uint32 {
	v := int32(math.Round(float64(min(max(b, -16), 15.984375)) * 64))
	return uint32(v) & fLODBias.Mask() //nolint:gosec // G115: S4.6 two's complement
}

// lodClamp encodes U4.6.
func lodClamp(l float32) uint32 {
	return uint32(math.Round(float64(min(max(l, 0), 13)) * 64))
}

// shadowFunc maps the compare function to the sampler's prefilter
// operation, which tests the opposite sense.
func shadowFunc(f gputypes.CompareFunction) uint32 {
	switch f {
	case gputypes.CompareFunctionNever:
		return hwCompareAlways
	case gputypes.CompareFunctionLess:
		return hwCompareLEqual
	case gputypes.CompareFunctionLessEqual:
		return hwCompareLess
	case gputypes.CompareFunctionGreater:
		return hwCompareGEqual
	case gputypes.CompareFunctionGreaterEqual:
		return hwCompareGreater
	case gputypes.CompareFunctionNotEqual:
		return hwCompareEqual
	case gputypes.CompareFunctionEqual:
		return hwCompareNotEqual
	default:
		return hwCompareNever
	}
}

// DefaultColorDwords is the size of a border colour record.
const DefaultColorDwords = 4

// DefaultColorKey selects a border colour record.
type DefaultColorKey struct {
	_ structs.HostLayout

	Color [4]float32
}

// DefaultColor packs a border colour.
func DefaultColor(k *DefaultColorKey) Unit {
	r := bitfield.NewRecord(DefaultColorDwords)
	for i, c := range k.Color {
		r.SetFloat(i, c)
	}
	return Unit{Payload: r.Bytes()}
}
