package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
}

func TestAddNode(t *testing.T) {
	g := New()

	g.AddNode("a")
	assert.Len(t, g.nodes, 1)
	nodeA, ok := g.nodes["a"]
	require.True(t, ok)
	assert.Equal(t, "a", nodeA.id)
	assert.NotNil(t, nodeA.deps)
	assert.NotNil(t, nodeA.dependents)

	g.AddNode("a") // Test idempotency
	assert.Len(t, g.nodes, 1)
	assert.Equal(t, []string{"a"}, g.order)

	g.AddNode("b")
	assert.Len(t, g.nodes, 2)
	assert.Contains(t, g.nodes, "b")
	assert.NotContains(t, g.nodes, "c")
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("a", "b") // b depends on a
		require.NoError(t, err)
		require.NoError(t, g.AddEdge("a", "b"))

		assert.Equal(t, 2, g.nodes["a"].dependents["b"])
		assert.Equal(t, 2, g.nodes["b"].deps["a"])
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("dne", "a")
		assert.ErrorContains(t, err, "source node not found")

		err = g.AddEdge("a", "dne")
		assert.ErrorContains(t, err, "destination node not found")

		err = g.AddEdge("a", "a")
		assert.ErrorContains(t, err, "self-referential edge")
	})
}

func TestRemoveEdge(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("b")
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "b"))

	require.NoError(t, g.RemoveEdge("a", "b"))
	assert.Equal(t, map[string]int{"a": 1}, g.nodes["b"].deps, "one parallel edge remains")

	require.NoError(t, g.RemoveEdge("a", "b"))
	assert.Empty(t, g.nodes["b"].deps)
	assert.Empty(t, g.nodes["a"].dependents)

	assert.ErrorContains(t, g.RemoveEdge("a", "b"), "edge not found")
	assert.ErrorContains(t, g.RemoveEdge("x", "b"), "source node not found")
}

func TestRemoveNode(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("b")
	g.AddNode("c")
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))

	g.RemoveNode("b")
	assert.NotContains(t, g.nodes, "b")
	assert.Equal(t, []string{"a", "c"}, g.order)
	assert.Empty(t, g.nodes["a"].dependents)
	assert.Empty(t, g.nodes["c"].deps)

	g.RemoveNode("dne") // no-op
	assert.Len(t, g.nodes, 2)
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		g := New()
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("valid dag has no cycles", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")
		g.AddNode("d")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("a", "c")) // Transitive edge
		require.NoError(t, g.AddEdge("c", "d"))
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("simple direct cycle is detected", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "a")) // Cycle
		err := g.DetectCycles()
		assert.ErrorContains(t, err, "cycle detected")
	})

	t.Run("cycle in a disjoint component is detected", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))

		g.AddNode("x")
		g.AddNode("y")
		g.AddNode("z")
		require.NoError(t, g.AddEdge("x", "y"))
		require.NoError(t, g.AddEdge("y", "z"))
		require.NoError(t, g.AddEdge("z", "y")) // Cycle

		assert.ErrorContains(t, g.DetectCycles(), "cycle detected")
	})
}

func TestTopologicalSort(t *testing.T) {
	testCases := []struct {
		name  string
		nodes []string
		edges [][2]string
		want  []string
	}{
		{
			name:  "insertion order without edges",
			nodes: []string{"c", "a", "b"},
			want:  []string{"c", "a", "b"},
		},
		{
			name:  "chain inserted backwards",
			nodes: []string{"tx", "ddc", "rx"},
			edges: [][2]string{{"rx", "ddc"}, {"ddc", "tx"}},
			want:  []string{"rx", "ddc", "tx"},
		},
		{
			name:  "crisscross",
			nodes: []string{"radio0", "radio1", "fifo0", "fifo1"},
			edges: [][2]string{{"radio0", "fifo1"}, {"radio1", "fifo0"}, {"fifo0", "radio0"}, {"fifo1", "radio1"}},
			want:  nil,
		},
		{
			name:  "diamond",
			nodes: []string{"d", "b", "c", "a"},
			edges: [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}},
			want:  []string{"a", "b", "c", "d"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := New()
			for _, id := range tc.nodes {
				g.AddNode(id)
			}
			for _, e := range tc.edges {
				require.NoError(t, g.AddEdge(e[0], e[1]))
			}
			got, err := g.TopologicalSort()
			if tc.want == nil {
				assert.ErrorContains(t, err, "cycle detected")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
