// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package batch defines the downstream interface that receives hardware
// commands, plus an in-memory implementation.
//
// The state compiler never submits work itself. It writes commands as
// packets of 32-bit words into an Emitter; words that point at GPU memory
// are written as relocations so the submission layer can patch them.
package batch

import (
	"errors"
	"fmt"
)

// Emitter errors.
var (
	// ErrPacketLength is returned by End when a packet received a different
	// number of words than announced by Begin.
	ErrPacketLength = errors.New("batch: packet length mismatch")

	// ErrNotInPacket is returned when End is called without Begin.
	ErrNotInPacket = errors.New("batch: no packet open")

	// ErrNestedPacket is returned when Begin is called inside a packet.
	ErrNestedPacket = errors.New("batch: packet already open")

	// ErrBatchFull is returned when a packet does not fit the buffer.
	ErrBatchFull = errors.New("batch: buffer full")
)

// Usage tells the submission layer which memory domain a relocated word
// points into.
type Usage uint8

// Relocation usages.
const (
	UsageState Usage = iota
	UsageInstruction
	UsageSampler
	UsageScratch
	UsageConstant
	UsageRender
	UsageTexture
)

// String returns the usage name.
func (u Usage) String() string {
	switch u {
	case UsageState:
		return "state"
	case UsageInstruction:
		return "instruction"
	case UsageSampler:
		return "sampler"
	case UsageScratch:
		return "scratch"
	case UsageConstant:
		return "constant"
	case UsageRender:
		return "render"
	case UsageTexture:
		return "texture"
	default:
		return fmt.Sprintf("usage(%d)", uint8(u))
	}
}

// Target is a GPU allocation a relocation points at. Implementations must
// be comparable, normally a pointer, because cached state compares targets
// by identity.
type Target interface {
	// Address returns the GPU address of the allocation.
	Address() uint32

	// Label names the allocation for dumps.
	Label() string
}

// Emitter receives command packets.
//
// Every packet is framed by Begin and End. Begin announces the number of
// words; Emit and EmitReloc each append one word.
//
// Emitters are NOT thread-safe; a driver context owns its emitter.
type Emitter interface {
	// Begin opens a packet of n words.
	Begin(n int) error

	// Emit appends a literal word.
	Emit(w uint32)

	// EmitReloc appends a word holding target's address plus delta.
	EmitReloc(target Target, delta uint32, usage Usage)

	// End closes the packet and checks its length.
	End() error
}

// Positioner is an optional interface for emitters that can report the
// current write position, which lets callers align commands that must not
// cross a cache line.
type Positioner interface {
	// Len returns the number of words written so far.
	Len() int
}
