/*
Package builder turns a graph description into a live, committed block graph.
It is the bridge between the static model (package model) and the resolution
engine (package graph).

The construction is a multi-phase process:

 1. Block Creation: Every `block` definition is checked against the registry.
    Its parameters are converted to the declared types, and the registered
    factory creates the block. Properties are initialized right away, so
    every block enters the graph with consistent defaults.

 2. Linking: Every `connect` definition becomes an edge. The graph rejects
    port reuse and forward edges that would form a cycle. Streamers are then
    created and attached to the ports they name.

 3. Commit and Apply: The graph is committed, which validates the topology
    and runs the initial resolution pass. The user property values from the
    description are then written one by one, each resolving across the graph
    the same way a write from an application would.

The result is a *Graph, which embeds the resolution engine and indexes the
blocks and streamers by id.
*/
package builder
