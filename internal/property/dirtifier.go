package property

import (
	"fmt"

	"github.com/vk/rfnocgo/internal/rfnocerr"
)

// AlwaysDirtyID names the marker property every node registers.
const AlwaysDirtyID = "__ALWAYS_DIRTY__"

// Dirtifier is a framework property that never becomes clean. A resolver
// listing it as an input runs every time its node resolves.
type Dirtifier struct{}

func NewDirtifier() *Dirtifier { return &Dirtifier{} }

func (d *Dirtifier) ID() string         { return AlwaysDirtyID }
func (d *Dirtifier) Source() SourceInfo { return SourceInfo{Type: Framework} }
func (d *Dirtifier) IsDirty() bool      { return true }
func (d *Dirtifier) IsValid() bool      { return false }
func (d *Dirtifier) Access() Access     { return ReadOnly }
func (d *Dirtifier) SetAccess(Access)   {}
func (d *Dirtifier) MarkClean()         {}
func (d *Dirtifier) Value() any         { return nil }
func (d *Dirtifier) String() string     { return "<always dirty>" }

func (d *Dirtifier) SetAny(any) error {
	return fmt.Errorf("%w: %s cannot be written", rfnocerr.ErrAccess, AlwaysDirtyID)
}

func (d *Dirtifier) Forward(Prop) error {
	return fmt.Errorf("%w: %s cannot be forwarded", rfnocerr.ErrConfiguration, AlwaysDirtyID)
}

func (d *Dirtifier) Clone(SourceInfo) Prop { return d }

func (d *Dirtifier) Equal(other Prop) bool {
	_, ok := other.(*Dirtifier)
	return ok
}
