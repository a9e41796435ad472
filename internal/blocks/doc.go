// Package blocks provides the concrete processing blocks that populate a
// graph: radios, DDC/DUC rate changers, FIFOs, the replay buffer, the
// switchboard, the signal generator and the FIR filter.
//
// # Common Core
//
// Every block embeds a Core, which embeds a *node.Node and adds:
//
//   - one `tick_rate` edge property per port, kept equal across the block
//   - one `mtu` edge property per port, coerced to the smaller of the
//     incoming value and the hardware maximum of that edge
//   - the register interface the block programs
//
// The MTU forwarding policy decides how a changed MTU spreads to the other
// ports of the block. It can be set once.
//
// # Registers
//
// Blocks write registers from clean callbacks, so hardware is only touched
// once a resolution pass has settled on consistent values. Register layouts
// are per block and per port (a fixed stride apart).
//
// # Registration
//
// Module registers a factory for every block type, keyed by the names used
// in graph description files ("radio", "ddc", "fifo", ...).
package blocks
