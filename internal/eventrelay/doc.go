// Package eventrelay forwards async streamer metadata (overflows,
// underflows, burst acknowledgements) to a socket.io monitor.
//
// A Relay drains one or more streamer queues and emits every event as a JSON
// message. The socket.io client lives in client.go; tests drive the relay
// through the Emitter interface instead.
package eventrelay
