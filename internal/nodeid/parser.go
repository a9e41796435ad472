// internal/nodeid/parser.go
package nodeid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// addressRegex matches `name`, `name#1`, `0/name` and `0/name#1`.
var addressRegex = regexp.MustCompile(`^(?:(\d+)/)?([A-Za-z][A-Za-z0-9_]*)(?:#(\d+))?$`)

// Parse creates an Address from its string form. Missing device and
// instance numbers default to zero.
func Parse(rawID string) (Address, error) {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		return Address{}, fmt.Errorf("block id cannot be empty")
	}

	matches := addressRegex.FindStringSubmatch(rawID)
	if matches == nil {
		return Address{}, fmt.Errorf("invalid block id format: %q", rawID)
	}

	addr := Address{Name: matches[2]}
	var err error
	if matches[1] != "" {
		if addr.Device, err = strconv.Atoi(matches[1]); err != nil {
			return Address{}, fmt.Errorf("invalid device number in %q: %w", rawID, err)
		}
	}
	if matches[3] != "" {
		if addr.Instance, err = strconv.Atoi(matches[3]); err != nil {
			return Address{}, fmt.Errorf("invalid instance number in %q: %w", rawID, err)
		}
	}
	return addr, nil
}

// Canonical normalizes a block id, e.g. "Radio" becomes "0/Radio#0".
func Canonical(rawID string) (string, error) {
	addr, err := Parse(rawID)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

// ParseEndpoint parses `<block id>:<port>`. The port is required.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	idx := strings.LastIndexByte(raw, ':')
	if idx < 0 {
		return Endpoint{}, fmt.Errorf("endpoint %q has no port, expected <block>:<port>", raw)
	}

	port, err := strconv.Atoi(raw[idx+1:])
	if err != nil || port < 0 {
		return Endpoint{}, fmt.Errorf("endpoint %q has an invalid port number", raw)
	}
	addr, err := Parse(raw[:idx])
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q: %w", raw, err)
	}
	return Endpoint{Block: addr, Port: port}, nil
}
