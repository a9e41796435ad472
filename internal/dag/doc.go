// Package dag keeps the forward-edge skeleton of a block graph: which block
// feeds which, how many edges join them, and an ordering in which every
// upstream block comes before its downstream ones. Back-edges never enter
// this structure, so anything stored here must stay acyclic.
package dag
