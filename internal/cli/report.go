package cli

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/vk/rfnocgo/internal/builder"
	"github.com/vk/rfnocgo/internal/graph"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/propstore"
)

// printer renders graphs and snapshots for humans.
type printer struct {
	w io.Writer

	block   *color.Color
	static  *color.Color
	dynamic *color.Color
	muted   *color.Color
	value   *color.Color
	good    *color.Color
}

func newPrinter(w io.Writer, noColor bool) *printer {
	p := &printer{
		w:       w,
		block:   color.New(color.FgCyan, color.Bold),
		static:  color.New(color.FgYellow),
		dynamic: color.New(color.FgMagenta),
		muted:   color.New(color.Faint),
		value:   color.New(color.FgGreen),
		good:    color.New(color.FgGreen, color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{p.block, p.static, p.dynamic, p.muted, p.value, p.good} {
			c.DisableColor()
		}
	}
	return p
}

func sortedEdges(edges []graph.Edge) []graph.Edge {
	out := slices.Clone(edges)
	slices.SortFunc(out, func(a, b graph.Edge) int {
		return cmp.Or(
			cmp.Compare(a.SrcBlockID, b.SrcBlockID),
			cmp.Compare(a.SrcPort, b.SrcPort),
			cmp.Compare(a.DstBlockID, b.DstBlockID),
			cmp.Compare(a.DstPort, b.DstPort),
		)
	})
	return out
}

// Edges lists every edge, one per line.
func (p *printer) Edges(g *builder.Graph) {
	edges := sortedEdges(g.EnumerateEdges())
	fmt.Fprintf(p.w, "Edges (%d):\n", len(edges))
	for _, e := range edges {
		kind := p.dynamic
		if e.Kind == graph.Static {
			kind = p.static
		}
		dir := "forward"
		if !e.IsForwardEdge {
			dir = "back"
		}
		flags := dir
		if !e.PropagationActive {
			flags += ", inert"
		}
		fmt.Fprintf(p.w, "  %s:%d -> %s:%d  %s %s\n",
			p.block.Sprint(e.SrcBlockID), e.SrcPort,
			p.block.Sprint(e.DstBlockID), e.DstPort,
			kind.Sprint(e.Kind), p.muted.Sprintf("(%s)", flags))
	}
}

// Properties lists the user and edge properties of every node in the
// engine, grouped by node.
func (p *printer) Properties(g *builder.Graph) {
	snap := g.PropertySnapshot()
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	fmt.Fprintln(p.w, "Properties:")
	for _, id := range ids {
		props := slices.Clone(snap[id])
		slices.SortFunc(props, func(a, b node.PropertyValue) int {
			return cmp.Or(
				cmp.Compare(a.Source.Type, b.Source.Type),
				cmp.Compare(a.ID, b.ID),
				cmp.Compare(a.Source.Instance, b.Source.Instance),
			)
		})

		fmt.Fprintf(p.w, "  %s\n", p.block.Sprint(id))
		tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
		for _, pv := range props {
			fmt.Fprintf(tw, "    %s\t%s\t%s\n", pv.ID, p.muted.Sprint(pv.Source), p.formatValue(pv.Value))
		}
		_ = tw.Flush()
	}
}

// Entries lists the contents of a property store.
func (p *printer) Entries(entries []propstore.Entry, info propstore.Info) {
	if info.Count == 0 && len(entries) == 0 {
		fmt.Fprintln(p.w, "The snapshot store is empty.")
		return
	}
	fmt.Fprintf(p.w, "Snapshot of %s, %d values:\n", info.SavedAt.Format("2006-01-02 15:04:05"), len(entries))
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(tw, "  %s\t%s:%d\t%s\n", p.block.Sprint(e.Block), e.ID, e.Instance, p.formatValue(e.Value))
	}
	_ = tw.Flush()
}

func (p *printer) Success(format string, args ...any) {
	fmt.Fprintln(p.w, p.good.Sprintf(format, args...))
}

func (p *printer) formatValue(v any) string {
	if v == nil {
		return p.muted.Sprint("<unset>")
	}
	return p.value.Sprint(v)
}
