// Package statecc compiles and caches the pipeline state of a tile-based
// GPU driver for the i965-class fixed-function pipeline (Gen4, G4X and
// Gen5).
//
// # Overview
//
// A Context records API state (blending, depth and stencil, rasterizer
// toggles, viewport, clip planes, shader programs, constants, samplers and
// the framebuffer). On every draw it works out which hardware state that
// API state invalidated, rebuilds only that, and appends the resulting
// commands to a batch.Emitter.
//
// Rebuilt state is content-addressed: every unit record and kernel is
// looked up by its key and its relocations before it is packed or
// compiled, so switching between a handful of states costs lookups rather
// than uploads.
//
// # Quick Start
//
//	import "github.com/gogpu/statecc"
//
//	ctx, err := statecc.NewContext()
//	if err != nil {
//	    return err
//	}
//	defer ctx.Destroy()
//
//	ctx.SetViewport(statecc.Viewport{Width: 640, Height: 480, MaxDepth: 1})
//	if _, err := ctx.SetFragmentWGSL(source, "main"); err != nil {
//	    return err
//	}
//	if err := ctx.Draw(statecc.TopologyTriangleList, 0, 3); err != nil {
//	    return err
//	}
//
// # Architecture
//
// The library is organized into:
//   - Public API: Context, Config, the state types, batch.Emitter
//   - Shaders: shader (fragment program IR), shader/wgsl (WGSL front end)
//   - Compilers: internal/wm (fragment kernels), internal/kernel (vertex,
//     geometry, clip and setup kernels), internal/eu (instruction encoding)
//   - State: internal/unit (record packing), internal/curbe and
//     internal/urb (constant and vertex entry partitioning)
//   - Infrastructure: internal/statecache, internal/pool, internal/dirty
//
// # Dirty State
//
// State changes are tracked as bits in three namespaces: API state set by
// the setters, driver events such as a new batch or a relayout, and cache
// results, raised whenever a lookup returns a different entry than last
// time. Atoms run in a fixed order so that every bit is raised before any
// atom that reads it.
//
// # Errors
//
// A draw whose state update fails emits nothing and returns the error;
// the dirty state is kept so the next draw retries. Running out of pool
// memory surfaces as ErrOutOfMemory.
package statecc

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
