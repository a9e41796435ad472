// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package model

import (
	"fmt"
	"strings"

	"github.com/vk/rfnocgo/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// Description is the user's graph definition.
type Description struct {
	Blocks      []*Block
	Connections []*Connection
	Streamers   []*Streamer
}

// NewDescription creates and returns an initialized Description.
func NewDescription() *Description {
	return &Description{
		Blocks:      []*Block{},
		Connections: []*Connection{},
		Streamers:   []*Streamer{},
	}
}

// Block is one `block` definition.
type Block struct {
	// ID is the canonical block id.
	ID            string
	Type          string
	Params        map[string]cty.Value
	Properties    []PropertySetting
	FSInformation *FSInfo
}

// PropertySetting is one entry of a block's `properties` map. A key of
// "freq:1" addresses instance 1 of "freq".
type PropertySetting struct {
	ID       string
	Instance int
	Value    cty.Value
}

func (p PropertySetting) String() string {
	return fmt.Sprintf("%s:%d", p.ID, p.Instance)
}

// Connection is one `connect` definition.
type Connection struct {
	From nodeid.Endpoint
	To   nodeid.Endpoint
	// Kind is "static" or "dynamic".
	Kind          string
	Forward       bool
	Propagate     bool
	FSInformation *FSInfo
}

func (c *Connection) String() string {
	return fmt.Sprintf("%s -> %s", c.From, c.To)
}

// Direction of a host streamer.
type Direction string

const (
	RX Direction = "rx"
	TX Direction = "tx"
)

// DefaultQueueDepth is the async message queue depth of a streamer that does
// not set one.
const DefaultQueueDepth = 32

// Streamer is one `streamer` definition.
type Streamer struct {
	Name      string
	Direction Direction
	// Port is the block output (RX) or input (TX) the streamer attaches to.
	Port          nodeid.Endpoint
	QueueDepth    int
	FSInformation *FSInfo
}

// Block looks a block up by id. The id is canonicalized first.
func (d *Description) Block(id string) (*Block, bool) {
	canonical, err := nodeid.Canonical(id)
	if err != nil {
		return nil, false
	}
	for _, b := range d.Blocks {
		if b.ID == canonical {
			return b, true
		}
	}
	return nil, false
}

// Validate checks the parts of the description that need no registry:
// unique ids, known endpoints and known streamer directions.
func (d *Description) Validate() error {
	var errs []string
	blocks := make(map[string]*Block, len(d.Blocks))
	for _, b := range d.Blocks {
		if prev, ok := blocks[b.ID]; ok {
			errs = append(errs, fmt.Sprintf("block '%s' is defined in both %s and %s", b.ID, prev.FSInformation, b.FSInformation))
			continue
		}
		blocks[b.ID] = b
	}

	for _, c := range d.Connections {
		for _, ep := range []nodeid.Endpoint{c.From, c.To} {
			if _, ok := blocks[ep.Block.String()]; !ok {
				errs = append(errs, fmt.Sprintf("connection %s in %s refers to undefined block '%s'", c, c.FSInformation, ep.Block))
			}
		}
	}

	streamers := make(map[string]bool, len(d.Streamers))
	for _, s := range d.Streamers {
		if streamers[s.Name] {
			errs = append(errs, fmt.Sprintf("streamer '%s' is defined more than once", s.Name))
		}
		streamers[s.Name] = true
		if blocks[s.Name] != nil {
			errs = append(errs, fmt.Sprintf("streamer '%s' shares its name with a block", s.Name))
		}
		if s.Direction != RX && s.Direction != TX {
			errs = append(errs, fmt.Sprintf("streamer '%s' has unknown direction '%s', expected 'rx' or 'tx'", s.Name, s.Direction))
		}
		if _, ok := blocks[s.Port.Block.String()]; !ok {
			errs = append(errs, fmt.Sprintf("streamer '%s' refers to undefined block '%s'", s.Name, s.Port.Block))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid graph description:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
