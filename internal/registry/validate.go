package registry

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// ValidateRegistry checks every registered block for a factory and for
// parameter declarations that can actually be checked.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, blockType := range r.Types() {
		b := r.blocks[blockType]
		if b.New == nil {
			errs = append(errs, fmt.Sprintf("block '%s': no factory registered", blockType))
		}
		for name, t := range b.Params {
			switch {
			case t == cty.NilType:
				errs = append(errs, fmt.Sprintf("block '%s', parameter '%s': no type declared", blockType, name))
			case t.Equals(cty.DynamicPseudoType):
				logger.Warn("Block declares a parameter with 'type = any', which disables static type checking.",
					"block", blockType, "parameter", name)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// CheckParams converts params to the types blockType declares. Unknown
// parameters and values that do not convert are reported together.
func (r *Registry) CheckParams(blockType string, params map[string]cty.Value) (map[string]cty.Value, error) {
	b, ok := r.blocks[blockType]
	if !ok {
		return nil, fmt.Errorf("unknown block type '%s', registered types are: %s", blockType, strings.Join(r.Types(), ", "))
	}

	var errs []string
	out := make(map[string]cty.Value, len(params))
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		want, ok := b.Params[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("block type '%s' has no parameter '%s'", blockType, name))
			continue
		}
		v, err := convert.Convert(params[name], want)
		if err != nil {
			errs = append(errs, fmt.Sprintf("parameter '%s': type mismatch, requires '%s': %v", name, want.FriendlyName(), err))
			continue
		}
		out[name] = v
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid parameters:\n- %s", strings.Join(errs, "\n- "))
	}
	return out, nil
}
