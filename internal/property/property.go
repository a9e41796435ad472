// Package property implements the typed, directionally scoped attributes that
// nodes expose and resolvers compute.
package property

import (
	"fmt"
	"reflect"

	"github.com/vk/rfnocgo/internal/rfnocerr"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Prop is the type-erased view of a property that nodes and graphs work
// with. The mutating methods are meant for the owning node during
// resolution; application code goes through the node's accessors instead.
type Prop interface {
	ID() string
	Source() SourceInfo
	IsDirty() bool
	IsValid() bool
	Access() Access
	SetAccess(a Access)
	MarkClean()
	// Value returns the payload, or nil when the property is not valid.
	Value() any
	// SetAny converts v to the payload type and writes it under the current
	// access mode.
	SetAny(v any) error
	// Forward copies this value into dst regardless of dst's access mode.
	Forward(dst Prop) error
	// Clone returns a copy of this property registered at src.
	Clone(src SourceInfo) Prop
	Equal(other Prop) bool
	String() string
}

// Property is a named, typed value with dirty tracking.
type Property[T any] struct {
	id     string
	src    SourceInfo
	data   T
	valid  bool
	dirty  bool
	access Access
}

// New returns a valid property holding def. It starts dirty so the first
// resolution pass sees it.
func New[T any](id string, def T, src SourceInfo) *Property[T] {
	return &Property[T]{
		id:     id,
		src:    src,
		data:   def,
		valid:  true,
		dirty:  true,
		access: ReadWrite,
	}
}

// NewUnset returns a property with no value. It is skipped by edge
// forwarding until something writes it.
func NewUnset[T any](id string, src SourceInfo) *Property[T] {
	return &Property[T]{id: id, src: src, access: ReadWrite}
}

func (p *Property[T]) ID() string         { return p.id }
func (p *Property[T]) Source() SourceInfo { return p.src }
func (p *Property[T]) IsDirty() bool      { return p.dirty }
func (p *Property[T]) IsValid() bool      { return p.valid }
func (p *Property[T]) Access() Access     { return p.access }
func (p *Property[T]) SetAccess(a Access) { p.access = a }
func (p *Property[T]) MarkClean()         { p.dirty = false }

// Get returns the stored value. An unset property yields the zero value.
func (p *Property[T]) Get() T {
	return p.data
}

// Set writes v. Under ReadWrite the property turns dirty only if the value
// changes. Under ReadWriteLocked any different value is a contradiction.
func (p *Property[T]) Set(v T) error {
	switch p.access {
	case ReadWrite:
		p.assign(v)
		return nil
	case ReadWriteLocked:
		if p.valid && equalValues(p.data, v) {
			return nil
		}
		return fmt.Errorf("%w: property %s was already resolved to %v in this pass, refusing %v",
			rfnocerr.ErrResolution, p.key(), p.data, v)
	default:
		return fmt.Errorf("%w: property %s is %s", rfnocerr.ErrAccess, p.key(), p.access)
	}
}

func (p *Property[T]) assign(v T) {
	if p.valid && equalValues(p.data, v) {
		return
	}
	p.data = v
	p.valid = true
	p.dirty = true
}

func (p *Property[T]) Value() any {
	if !p.valid {
		return nil
	}
	return p.data
}

func (p *Property[T]) SetAny(v any) error {
	if typed, ok := v.(T); ok {
		return p.Set(typed)
	}
	converted, err := Convert[T](v)
	if err != nil {
		return fmt.Errorf("property %s: %w", p.key(), err)
	}
	return p.Set(converted)
}

func (p *Property[T]) Forward(dst Prop) error {
	d, ok := dst.(*Property[T])
	if !ok {
		return fmt.Errorf("%w: cannot forward %s into %s: payload is %T, destination is %T",
			rfnocerr.ErrConfiguration, p.key(), dst.ID()+"@"+dst.Source().String(), p, dst)
	}
	if !p.valid {
		return nil
	}
	d.assign(p.data)
	return nil
}

func (p *Property[T]) Clone(src SourceInfo) Prop {
	return &Property[T]{
		id:     p.id,
		src:    src,
		data:   p.data,
		valid:  p.valid,
		dirty:  p.valid,
		access: ReadWrite,
	}
}

func (p *Property[T]) Equal(other Prop) bool {
	o, ok := other.(*Property[T])
	if !ok {
		return false
	}
	return p.valid == o.valid && equalValues(p.data, o.data)
}

func (p *Property[T]) String() string {
	if !p.valid {
		return "<unset>"
	}
	return fmt.Sprintf("%v", p.data)
}

func (p *Property[T]) key() string {
	return fmt.Sprintf("`%s'@%s", p.id, p.src)
}

func equalValues[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}

// Convert turns v into a T using cty's conversion rules, so strings such as
// "100e6" or "true" and cty values from HCL land in the right payload type.
func Convert[T any](v any) (T, error) {
	var out T
	want, err := gocty.ImpliedType(out)
	if err != nil {
		return out, fmt.Errorf("%w: no value conversion for %T: %v", rfnocerr.ErrConfiguration, out, err)
	}

	var val cty.Value
	switch x := v.(type) {
	case cty.Value:
		val = x
	case string:
		val = cty.StringVal(x)
	default:
		have, err := gocty.ImpliedType(v)
		if err != nil {
			return out, fmt.Errorf("%w: cannot convert %T: %v", rfnocerr.ErrConfiguration, v, err)
		}
		if val, err = gocty.ToCtyValue(v, have); err != nil {
			return out, fmt.Errorf("%w: cannot convert %T: %v", rfnocerr.ErrConfiguration, v, err)
		}
	}

	val, err = convert.Convert(val, want)
	if err != nil {
		return out, fmt.Errorf("%w: %v", rfnocerr.ErrConfiguration, err)
	}
	if err := gocty.FromCtyValue(val, &out); err != nil {
		return out, fmt.Errorf("%w: %v", rfnocerr.ErrConfiguration, err)
	}
	return out, nil
}
