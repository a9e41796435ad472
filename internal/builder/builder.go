package builder

import (
	"github.com/vk/rfnocgo/internal/graph"
	"github.com/vk/rfnocgo/internal/registry"
	"github.com/vk/rfnocgo/internal/regs"
)

// Builder creates graphs from descriptions using the block types of one
// registry.
type Builder struct {
	registry      *registry.Registry
	clock         registry.ClockController
	registers     func(blockID string) regs.Iface
	maxIterations int
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock hands the device clock to every block factory.
func WithClock(c registry.ClockController) Option {
	return func(b *Builder) { b.clock = c }
}

// WithRegisters supplies the register space for each block. Blocks get an
// in-memory space when the function is unset or returns nil.
func WithRegisters(fn func(blockID string) regs.Iface) Option {
	return func(b *Builder) { b.registers = fn }
}

// WithMaxIterations sets the resolution iteration bound of built graphs.
func WithMaxIterations(n int) Option {
	return func(b *Builder) { b.maxIterations = n }
}

// New creates a builder.
func New(r *registry.Registry, opts ...Option) *Builder {
	b := &Builder{registry: r, maxIterations: graph.DefaultMaxIterations}
	for _, opt := range opts {
		opt(b)
	}
	return b
}
