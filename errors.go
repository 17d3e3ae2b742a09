package statecc

import (
	"errors"

	"github.com/gogpu/statecc/internal/pool"
)

// Context errors.
var (
	// ErrOutOfMemory is wrapped when the state pool cannot hold a new
	// cache entry, kernel, scratch buffer or constant buffer. The draw that
	// hit it is dropped and the next draw retries the whole state update.
	ErrOutOfMemory = pool.ErrMemoryBudgetExceeded

	// ErrContextDestroyed is returned by every call after Destroy.
	ErrContextDestroyed = errors.New("statecc: context destroyed")

	// ErrTopology is returned for an unknown draw topology.
	ErrTopology = errors.New("statecc: unknown topology")

	// ErrVertexProgram is returned for a vertex program the vertex and
	// setup kernels cannot carry.
	ErrVertexProgram = errors.New("statecc: unsupported vertex program")

	// ErrTooManySamplers is returned when more samplers are bound than the
	// fragment stage has slots.
	ErrTooManySamplers = errors.New("statecc: too many samplers")

	// ErrTooManyClipPlanes is returned when more than MaxClipPlanes user
	// planes are enabled.
	ErrTooManyClipPlanes = errors.New("statecc: too many clip planes")

	// ErrScratchBudget is returned when a fragment kernel spills more per
	// thread than Config.ScratchPerThread allows.
	ErrScratchBudget = errors.New("statecc: scratch budget exceeded")

	// ErrFramebuffer is returned for a framebuffer the hardware cannot
	// address.
	ErrFramebuffer = errors.New("statecc: invalid framebuffer")

	// ErrSurface is returned for a render target or texture whose format,
	// size or pitch the surface state cannot describe.
	ErrSurface = errors.New("statecc: unsupported surface")
)
