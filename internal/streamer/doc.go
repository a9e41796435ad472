// Package streamer provides the graph endpoints that applications talk to:
// an RX streamer at the sink of a receive chain and a TX streamer at the
// source of a transmit chain.
//
// Streamers do not move samples. They issue stream commands towards the
// radio and collect the async events (overflows, underflows, burst acks)
// that travel back, buffering them in an AsyncQueue for the application.
package streamer
