// Package wgsl translates WGSL fragment shaders into shader.Program.
//
// Sources are parsed and lowered with github.com/gogpu/naga; the lowered
// entry point is then walked statement by statement and every expression
// becomes one or more vec4 instructions. The translation covers the
// straight-line subset the native code generator supports: arithmetic,
// math builtins, derivatives, texture sampling with bias or depth
// comparison, uniform buffers, function-local variables and conditional
// discard. Loops, calls and general control flow are rejected with
// ErrUnsupported.
//
// All values are treated as 32-bit floats; integer and boolean values are
// carried as their float equivalents.
//
// A Translator memoises results in an LRU cache keyed by a hash of the
// source text, so a program set repeatedly is parsed once.
package wgsl

import (
	"errors"
	"fmt"
	"hash/fnv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gogpu/naga"
	"github.com/gogpu/statecc/shader"
)

// Translation errors.
var (
	// ErrNoEntryPoint is returned when the source has no matching fragment
	// entry point.
	ErrNoEntryPoint = errors.New("wgsl: fragment entry point not found")

	// ErrUnsupported is returned for constructs outside the translated
	// subset.
	ErrUnsupported = errors.New("wgsl: unsupported construct")

	// ErrTooManyTemps is returned when the program needs more temporaries
	// than shader.MaxTemps.
	ErrTooManyTemps = errors.New("wgsl: out of temporary registers")

	// ErrBinding is returned for an input, output, uniform or texture
	// binding outside the hardware limits.
	ErrBinding = errors.New("wgsl: binding out of range")
)

// DefaultCacheSize is the number of translations a Translator keeps when
// created with a non-positive size.
const DefaultCacheSize = 64

// MaxTextures is the number of texture units a program may sample.
const MaxTextures = 16

// Uniform describes where a uniform buffer lands in the constant file.
type Uniform struct {
	Name    string
	Group   uint32
	Binding uint32
	Reg     int // first constant register
	Regs    int // registers spanned
}

// Texture describes the unit assigned to a texture binding.
type Texture struct {
	Name    string
	Group   uint32
	Binding uint32
	Unit    uint8
}

// Shader is the result of translating one entry point.
//
// Shaders returned by a Translator are shared between callers and must
// not be modified.
type Shader struct {
	Entry    string
	Program  *shader.Program
	Uniforms []Uniform
	Textures []Texture
}

// Translate parses source and translates the fragment entry point named
// entry. An empty entry selects the first fragment entry point.
func Translate(source, entry string) (*Shader, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("wgsl: %w", err)
	}
	mod, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("wgsl: %w", err)
	}
	return translateModule(mod, entry)
}

type cacheKey struct {
	hash  uint64
	entry string
}

type cached struct {
	source string
	shader *Shader
}

// Translator translates WGSL sources and memoises the results.
//
// Translator is not safe for concurrent use; a driver context owns one.
type Translator struct {
	cache  *lru.Cache[cacheKey, cached]
	hits   uint64
	misses uint64
}

// NewTranslator creates a translator caching up to size results.
func NewTranslator(size int) (*Translator, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[cacheKey, cached](size)
	if err != nil {
		return nil, fmt.Errorf("wgsl: create cache: %w", err)
	}
	return &Translator{cache: c}, nil
}

// Translate returns the cached translation of source, translating it on a
// miss. Failed translations are not cached.
func (t *Translator) Translate(source, entry string) (*Shader, error) {
	key := cacheKey{hash: hashSource(source), entry: entry}
	if c, ok := t.cache.Get(key); ok && c.source == source {
		t.hits++
		return c.shader, nil
	}
	t.misses++

	s, err := Translate(source, entry)
	if err != nil {
		return nil, err
	}
	t.cache.Add(key, cached{source: source, shader: s})
	return s, nil
}

// Len returns the number of cached translations.
func (t *Translator) Len() int { return t.cache.Len() }

// Stats returns the cache hit and miss counts.
func (t *Translator) Stats() (hits, misses uint64) { return t.hits, t.misses }

// Purge drops every cached translation.
func (t *Translator) Purge() { t.cache.Purge() }

func hashSource(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
