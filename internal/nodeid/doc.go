// internal/nodeid/doc.go

/*
Package nodeid provides a structured representation of block identifiers.

A block id has the canonical form `<device>/<name>#<instance>`, e.g.
`0/Radio#0`. The device and instance parts may be omitted when written by
hand; they default to zero. An endpoint adds a port number to a block id,
e.g. `0/DDC#0:1`.

This package centralizes all formatting and parsing of these strings so the
description loader, the builder and the CLI agree on one spelling.
*/
package nodeid
