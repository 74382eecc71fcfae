// Package mlx wraps the mflux image generator for local, on-device image
// generation on Apple Silicon. Generation shells out to mflux-generate
// through uvx, so no standing install is required.
package mlx

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/comfy-pilot/bridge/internal/logging"
	"go.uber.org/zap"
)

// Model describes one supported base model.
type Model struct {
	Name        string
	Description string
}

// Models lists the supported base models in display order.
var Models = []Model{
	{"schnell", "Fast FLUX.1 (12B, ~10s)"},
	{"dev", "FLUX.1 Dev (12B, quality)"},
	{"z-image-turbo", "Z-Image Turbo (6B, fastest)"},
	{"flux2-klein-4b", "FLUX.2 Klein 4B (compact)"},
	{"flux2-klein-9b", "FLUX.2 Klein 9B (balanced)"},
	{"fibo", "FIBO 8B (creative)"},
	{"qwen", "Qwen Image 20B (highest quality)"},
}

// GenerateConfig holds one generation request. Zero values fall back to the
// model defaults; a negative Seed means random, a zero Quantize means full
// precision.
type GenerateConfig struct {
	Prompt   string
	Model    string
	Width    int
	Height   int
	Steps    int
	Seed     int64
	Quantize int
	Output   string
}

func (c *GenerateConfig) withDefaults() {
	if c.Model == "" {
		c.Model = "schnell"
	}
	if c.Width <= 0 {
		c.Width = 1024
	}
	if c.Height <= 0 {
		c.Height = 1024
	}
	if c.Output == "" {
		c.Output = "output.png"
	}
}

// Args builds the mflux-generate argument list.
func (c GenerateConfig) Args() []string {
	c.withDefaults()
	args := []string{
		"--prompt", c.Prompt,
		"--base-model", c.Model,
		"--width", strconv.Itoa(c.Width),
		"--height", strconv.Itoa(c.Height),
		"--output", c.Output,
	}
	if c.Steps > 0 {
		args = append(args, "--steps", strconv.Itoa(c.Steps))
	}
	if c.Seed >= 0 {
		args = append(args, "--seed", strconv.FormatInt(c.Seed, 10))
	}
	if c.Quantize > 0 {
		args = append(args, "--quantize", strconv.Itoa(c.Quantize))
	}
	return args
}

// Generator runs mflux generations. Runner is injectable for tests; the
// default inherits the parent's stdio so progress output streams through.
type Generator struct {
	Runner func(ctx context.Context, name string, args ...string) error

	log *logging.Logger
}

// New builds a generator.
func New(log *logging.Logger) *Generator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Generator{
		Runner: func(ctx context.Context, name string, args ...string) error {
			cmd := exec.CommandContext(ctx, name, args...)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			return cmd.Run()
		},
		log: log,
	}
}

// Generate runs one generation and returns the output path.
func (g *Generator) Generate(ctx context.Context, cfg GenerateConfig) (string, error) {
	if cfg.Prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}
	cfg.withDefaults()

	args := append([]string{"--from", "mflux", "mflux-generate"}, cfg.Args()...)
	g.log.Info("running mlx generation",
		zap.String("model", cfg.Model),
		zap.String("output", cfg.Output))

	if err := g.Runner(ctx, "uvx", args...); err != nil {
		return "", fmt.Errorf("mflux-generate: %w", err)
	}
	return cfg.Output, nil
}
