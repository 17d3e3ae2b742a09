package statecc

import (
	"github.com/gogpu/statecc/batch"
)

// ContextOption configures a Context during creation.
//
// Example:
//
//	// Default configuration, emitting into an in-memory buffer
//	ctx, err := statecc.NewContext()
//
//	// Loaded configuration and a custom command stream
//	cfg, _ := statecc.LoadConfig("statecc.toml")
//	ctx, err := statecc.NewContext(statecc.WithConfig(cfg), statecc.WithEmitter(ring))
type ContextOption func(*contextOptions)

// contextOptions holds optional configuration for Context creation.
type contextOptions struct {
	config    Config
	emitter   batch.Emitter
	cacheSize int
}

// defaultOptions returns the default context options.
func defaultOptions() contextOptions {
	return contextOptions{
		config:  DefaultConfig(),
		emitter: nil, // Will be set to a batch.Buffer if nil
	}
}

// WithConfig sets the context configuration. The config is validated by
// NewContext.
func WithConfig(cfg Config) ContextOption {
	return func(o *contextOptions) {
		o.config = cfg
	}
}

// WithEmitter sets the command stream state and draw packets are
// appended to. If the emitter also implements batch.Positioner, URB
// fences are padded so they never cross a cache line.
func WithEmitter(e batch.Emitter) ContextOption {
	return func(o *contextOptions) {
		o.emitter = e
	}
}

// WithShaderCache sets how many WGSL translations SetFragmentWGSL keeps.
func WithShaderCache(size int) ContextOption {
	return func(o *contextOptions) {
		o.cacheSize = size
	}
}
