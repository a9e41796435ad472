package property

import "fmt"

// SourceType tells where a property lives on its node: user facing, attached
// to an input or output edge, or reserved for the framework itself.
type SourceType int

const (
	User SourceType = iota
	InputEdge
	OutputEdge
	Framework
)

func (t SourceType) String() string {
	switch t {
	case User:
		return "USER"
	case InputEdge:
		return "INPUT_EDGE"
	case OutputEdge:
		return "OUTPUT_EDGE"
	case Framework:
		return "FRAMEWORK"
	default:
		return fmt.Sprintf("SOURCE(%d)", int(t))
	}
}

// IsEdge reports whether t is InputEdge or OutputEdge.
func (t SourceType) IsEdge() bool {
	return t == InputEdge || t == OutputEdge
}

// InvertEdge swaps InputEdge and OutputEdge. Other types are returned as is.
func InvertEdge(t SourceType) SourceType {
	switch t {
	case InputEdge:
		return OutputEdge
	case OutputEdge:
		return InputEdge
	default:
		return t
	}
}

// SourceInfo addresses a property (or an action port) on a node.
type SourceInfo struct {
	Type     SourceType
	Instance int
}

func (s SourceInfo) String() string {
	return fmt.Sprintf("%s:%d", s.Type, s.Instance)
}

// Inverted returns the source on the opposite side of the same port index.
func (s SourceInfo) Inverted() SourceInfo {
	return SourceInfo{Type: InvertEdge(s.Type), Instance: s.Instance}
}

func UserSource(instance int) SourceInfo {
	return SourceInfo{Type: User, Instance: instance}
}

func InputEdgeSource(port int) SourceInfo {
	return SourceInfo{Type: InputEdge, Instance: port}
}

func OutputEdgeSource(port int) SourceInfo {
	return SourceInfo{Type: OutputEdge, Instance: port}
}

// Access is the write permission a property currently grants.
type Access int

const (
	AccessNone Access = iota
	ReadOnly
	ReadWrite
	// ReadWriteLocked accepts only writes that repeat the stored value.
	ReadWriteLocked
)

func (a Access) String() string {
	switch a {
	case AccessNone:
		return "NONE"
	case ReadOnly:
		return "RO"
	case ReadWrite:
		return "RW"
	case ReadWriteLocked:
		return "RWLOCKED"
	default:
		return fmt.Sprintf("ACCESS(%d)", int(a))
	}
}
