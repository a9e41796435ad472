package registry

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Module is the interface that all block modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the block factories of a single application instance.
type Registry struct {
	blocks map[string]*RegisteredBlock
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{blocks: make(map[string]*RegisteredBlock)}
}

// RegisterBlock adds a factory under blockType. Registering a type twice is
// a programming error and panics.
func (r *Registry) RegisterBlock(blockType string, b *RegisteredBlock) {
	if _, exists := r.blocks[blockType]; exists {
		panic(fmt.Sprintf("block type '%s' already registered", blockType))
	}
	slog.Debug("Registering block type.", "type", blockType)
	r.blocks[blockType] = b
}

// Lookup returns the factory registered for blockType.
func (r *Registry) Lookup(blockType string) (*RegisteredBlock, bool) {
	b, ok := r.blocks[blockType]
	return b, ok
}

// Types lists the registered block types in sorted order.
func (r *Registry) Types() []string {
	return slices.Sorted(maps.Keys(r.blocks))
}
