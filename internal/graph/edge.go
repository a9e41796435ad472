package graph

import (
	"fmt"
	"strings"
)

// EdgeKind tells a fixed hardware connection from one routed at runtime.
type EdgeKind int

const (
	Static EdgeKind = iota
	Dynamic
)

func (k EdgeKind) String() string {
	switch k {
	case Static:
		return "STATIC"
	case Dynamic:
		return "DYNAMIC"
	default:
		return fmt.Sprintf("EdgeKind(%d)", int(k))
	}
}

// ParseEdgeKind accepts "static" or "dynamic" in any case.
func ParseEdgeKind(s string) (EdgeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "static":
		return Static, nil
	case "dynamic", "":
		return Dynamic, nil
	default:
		return 0, fmt.Errorf("unknown edge kind %q", s)
	}
}

// Edge connects output port SrcPort of one block to input port DstPort of
// another. Connect fills in the block ids.
type Edge struct {
	SrcBlockID string
	SrcPort    int
	DstBlockID string
	DstPort    int
	Kind       EdgeKind
	// IsForwardEdge puts the edge into the resolution order. Back edges
	// close feedback loops.
	IsForwardEdge bool
	// PropagationActive lets edge properties cross the edge.
	PropagationActive bool
}

// NewEdge returns an edge with property propagation enabled.
func NewEdge(srcPort, dstPort int, kind EdgeKind, forward bool) Edge {
	return Edge{
		SrcPort:           srcPort,
		DstPort:           dstPort,
		Kind:              kind,
		IsForwardEdge:     forward,
		PropagationActive: true,
	}
}

func (e Edge) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d", e.SrcBlockID, e.SrcPort, e.DstBlockID, e.DstPort)
}

// Describe renders the edge with its attributes.
func (e Edge) Describe() string {
	dir := "forward"
	if !e.IsForwardEdge {
		dir = "back"
	}
	prop := "propagating"
	if !e.PropagationActive {
		prop = "inert"
	}
	return fmt.Sprintf("%s [%s, %s, %s]", e, e.Kind, dir, prop)
}
