// Package registry maps the block type names used in graph description files
// to the Go factories that build them.
//
// Block packages implement Module and add their factories in Register. Each
// factory declares the parameters it accepts together with their cty types,
// so a description can be checked before any block is constructed.
//
// During application startup, the registry is populated and then validated;
// a factory with an unusable parameter declaration fails startup rather than
// the first graph build that uses it.
package registry
