package testutil

import (
	"context"

	"github.com/vk/rfnocgo/internal/graph"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// NoOpModule registers a "noop" block type: a bare node with the requested
// number of ports and no properties. It is useful for topology tests that
// do not care about resolution.
type NoOpModule struct{}

func (m *NoOpModule) Register(r *registry.Registry) {
	r.RegisterBlock("noop", &registry.RegisteredBlock{
		New: func(_ context.Context, a registry.BlockArgs) (graph.Block, error) {
			in, err := a.Int("inputs", 1)
			if err != nil {
				return nil, err
			}
			out, err := a.Int("outputs", 1)
			if err != nil {
				return nil, err
			}
			return node.New(a.ID, in, out), nil
		},
		Params: map[string]cty.Type{"inputs": cty.Number, "outputs": cty.Number},
	})
}

// BrokenModule registers a block type without a factory, which fails
// registry validation.
type BrokenModule struct{}

func (m *BrokenModule) Register(r *registry.Registry) {
	r.RegisterBlock("broken", &registry.RegisteredBlock{})
}
