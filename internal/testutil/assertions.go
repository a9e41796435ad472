package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rfnocgo/internal/graph"
	"github.com/vk/rfnocgo/internal/property"
)

// PropertyValue looks up the current value of a property in a built graph.
// Missing and unset properties fail the test.
func PropertyValue(t *testing.T, result *HarnessResult, blockID, propID string, src property.SourceInfo) any {
	t.Helper()
	require.NoError(t, result.Err)
	require.NotNil(t, result.Graph)

	for _, pv := range result.Graph.PropertySnapshot()[blockID] {
		if pv.ID == propID && pv.Source == src {
			require.NotNil(t, pv.Value, "property '%s' on %s of %s is unset", propID, src, blockID)
			return pv.Value
		}
	}
	require.Failf(t, "property not found", "block %s has no property '%s' on %s", blockID, propID, src)
	return nil
}

// AssertProperty checks a property value, converting between numeric types.
func AssertProperty(t *testing.T, result *HarnessResult, blockID, propID string, src property.SourceInfo, want any) {
	t.Helper()
	assert.EqualValues(t, want, PropertyValue(t, result, blockID, propID, src))
}

// AssertEdge checks that the graph holds an edge between the two endpoints.
func AssertEdge(t *testing.T, result *HarnessResult, src string, srcPort int, dst string, dstPort int) graph.Edge {
	t.Helper()
	require.NotNil(t, result.Graph)
	for _, e := range result.Graph.EnumerateEdges() {
		if e.SrcBlockID == src && e.SrcPort == srcPort && e.DstBlockID == dst && e.DstPort == dstPort {
			return e
		}
	}
	assert.Failf(t, "edge not found", "no edge %s:%d -> %s:%d", src, srcPort, dst, dstPort)
	return graph.Edge{}
}
