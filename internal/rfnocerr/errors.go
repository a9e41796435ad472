// Package rfnocerr defines the error kinds shared by the property, node and
// graph layers. Call sites wrap these sentinels with context, and callers
// classify failures with errors.Is.
package rfnocerr

import "errors"

var (
	// ErrConfiguration is returned for malformed topologies: conflicting
	// reconnects, forward-edge cycles, forwarding-map entries that point at
	// ports which do not exist, or mismatched property payload types.
	ErrConfiguration = errors.New("configuration error")

	// ErrResolution is returned when a resolution pass cannot reach a stable
	// fixed point, or when two resolvers write different values to the same
	// property in one pass.
	ErrResolution = errors.New("resolution error")

	// ErrUnknownProperty is returned when a node has no property with the
	// requested name at the requested source.
	ErrUnknownProperty = errors.New("unknown property")

	// ErrUnknownPort is returned when a port index is outside a node's port
	// range.
	ErrUnknownPort = errors.New("unknown port")

	// ErrAccess is returned when a property is written without write access.
	ErrAccess = errors.New("access error")

	// ErrActionHandler wraps failures raised inside a registered action
	// handler.
	ErrActionHandler = errors.New("action handler error")
)
