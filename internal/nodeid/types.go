// internal/nodeid/types.go
package nodeid

import "fmt"

// Address is the structured form of a block id.
type Address struct {
	Device   int
	Name     string
	Instance int
}

// String serializes the address into its canonical form.
func (a Address) String() string {
	return fmt.Sprintf("%d/%s#%d", a.Device, a.Name, a.Instance)
}

// Endpoint is one port of a block.
type Endpoint struct {
	Block Address
	Port  int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Block, e.Port)
}
