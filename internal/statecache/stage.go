package statecache

// Stage identifies the kind of state an entry holds.
type Stage uint8

// Cache stages, in the order the scheduler usually produces them.
const (
	StageCCViewport Stage = iota
	StageCCUnit
	StageSamplerDefaultColor
	StageSampler
	StageWMProg
	StageWMUnit
	StageSFProg
	StageSFViewport
	StageSFUnit
	StageVSProg
	StageVSUnit
	StageGSProg
	StageGSUnit
	StageClipViewport
	StageClipProg
	StageClipUnit
	StageSurface
	StageBindingTable

	// NumStages is the number of cache stages.
	NumStages
)

var stageNames = [NumStages]string{
	StageCCViewport:          "cc_vp",
	StageCCUnit:              "cc_unit",
	StageSamplerDefaultColor: "sdc",
	StageSampler:             "sampler",
	StageWMProg:              "wm_prog",
	StageWMUnit:              "wm_unit",
	StageSFProg:              "sf_prog",
	StageSFViewport:          "sf_vp",
	StageSFUnit:              "sf_unit",
	StageVSProg:              "vs_prog",
	StageVSUnit:              "vs_unit",
	StageGSProg:              "gs_prog",
	StageGSUnit:              "gs_unit",
	StageClipViewport:        "clip_vp",
	StageClipProg:            "clip_prog",
	StageClipUnit:            "clip_unit",
	StageSurface:             "surf",
	StageBindingTable:        "bind",
}

// String returns the stage name.
func (s Stage) String() string {
	if s < NumStages {
		return stageNames[s]
	}
	return "unknown"
}

// Bit returns the stage's bit in the cache dirty namespace.
func (s Stage) Bit() uint64 { return 1 << s }
