// Command statecc-dump compiles a draw's hardware state and prints the
// command stream it produces.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/statecc"
	"github.com/gogpu/statecc/batch"
)

func main() {
	var (
		config      = flag.String("config", "", "TOML config file (defaults when empty)")
		tier        = flag.String("tier", "", "override the hardware tier: gen4, g4x or gen5")
		wgslFile    = flag.String("wgsl", "", "WGSL fragment shader (pass-through when empty)")
		entry       = flag.String("entry", "main", "WGSL fragment entry point")
		topology    = flag.String("topology", "triangles", "points, lines, triangles, quads or rects")
		draws       = flag.Int("draws", 1, "number of identical draws")
		width       = flag.Uint("width", 640, "framebuffer width")
		height      = flag.Uint("height", 480, "framebuffer height")
		verbose     = flag.Bool("v", false, "log cache and layout activity")
		printConfig = flag.Bool("print-config", false, "print the effective config and exit")
	)
	flag.Parse()

	cfg := statecc.DefaultConfig()
	if *config != "" {
		var err error
		if cfg, err = statecc.LoadConfig(*config); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *tier != "" {
		cfg.Tier = *tier
	}
	if *printConfig {
		if _, err := cfg.WriteTo(os.Stdout); err != nil {
			log.Fatalf("Failed to print config: %v", err)
		}
		return
	}

	if *verbose {
		statecc.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	t, ok := topologies[*topology]
	if !ok {
		log.Fatalf("Unknown topology %q", *topology)
	}
	size, err := framebufferSize(*width, *height)
	if err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}
	if *draws < 0 {
		log.Fatalf("Invalid flags: -draws %d is negative", *draws)
	}

	buf := batch.NewBuffer(0)
	ctx, err := statecc.NewContext(statecc.WithConfig(cfg), statecc.WithEmitter(buf))
	if err != nil {
		log.Fatalf("Failed to create context: %v", err)
	}
	defer ctx.Destroy()

	fb := statecc.Framebuffer{Width: size[0], Height: size[1], ColorTargets: 1}
	if err := ctx.SetFramebuffer(fb); err != nil {
		log.Fatalf("Failed to set framebuffer: %v", err)
	}
	ctx.SetViewport(statecc.Viewport{Width: float32(size[0]), Height: float32(size[1]), MaxDepth: 1})

	if *wgslFile != "" {
		src, err := os.ReadFile(*wgslFile)
		if err != nil {
			log.Fatalf("Failed to read shader: %v", err)
		}
		if _, err := ctx.SetFragmentWGSL(string(src), *entry); err != nil {
			log.Fatalf("Failed to translate shader: %v", err)
		}
	}

	for i := 0; i < *draws; i++ {
		if err := ctx.Draw(t.topology, 0, t.vertices); err != nil {
			log.Fatalf("Draw %d failed: %v", i, err)
		}
	}

	fmt.Print(buf.Dump())
	log.Printf("%d words, %d packets; %s", buf.Len(), buf.Packets(), ctx.Stats())
}

var errFramebufferSize = errors.New("framebuffer size out of range")

// framebufferSize checks the -width and -height flags before they are
// narrowed to the framebuffer's 32-bit fields.
func framebufferSize(width, height uint) ([2]uint32, error) {
	for _, v := range [...]uint{width, height} {
		if v == 0 || v > statecc.MaxFramebufferSize {
			return [2]uint32{}, fmt.Errorf("%w: %dx%d, want 1 to %d", errFramebufferSize,
				width, height, statecc.MaxFramebufferSize)
		}
	}
	//nolint:gosec // G115: both values are at most MaxFramebufferSize
	return [2]uint32{uint32(width), uint32(height)}, nil
}

type draw struct {
	topology statecc.Topology
	vertices uint32
}

var topologies = map[string]draw{
	"points":    {statecc.TopologyPointList, 1},
	"lines":     {statecc.TopologyLineList, 2},
	"triangles": {statecc.TopologyTriangleList, 3},
	"quads":     {statecc.TopologyQuadList, 4},
	"rects":     {statecc.TopologyRectList, 3},
}
