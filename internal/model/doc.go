// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model provides the Go struct representation of an RFNoC graph
// description. Its purpose is to turn the user's .hcl files into a
// strongly-typed, in-memory model before any block is instantiated.
//
// # Core Concepts
//
//   - Description: The root container for a whole workspace. It aggregates
//     the blocks, connections and streamers of one or more .hcl files.
//
//   - Block: One block instance. It names the registered block type, the
//     construction parameters handed to the factory, and the user property
//     values applied once the graph is committed.
//
//   - Connection: A directed edge from an output port to an input port, with
//     its kind (static or dynamic), direction (forward or back) and whether
//     edge properties cross it.
//
//   - Streamer: A host endpoint attached to a block port. RX streamers
//     receive overflow events and TX streamers receive underflow and burst
//     acknowledgements.
//
// Example:
//
//	block "0/Radio#0" {
//	  type   = "radio"
//	  params = { channels = 1 }
//	  properties = {
//	    master_clock_rate = 200e6
//	    "freq:0"          = 2.4e9
//	  }
//	}
//
//	block "0/DDC#0" {
//	  type       = "ddc"
//	  properties = { "decim:0" = 4 }
//	}
//
//	connect {
//	  from = "0/Radio#0:0"
//	  to   = "0/DDC#0:0"
//	  kind = "static"
//	}
//
//	streamer "rx0" {
//	  direction = "rx"
//	  port      = "0/DDC#0:0"
//	}
//
// The model does not know block types. Checking parameters against the
// registry and creating blocks is the builder's job.
package model
