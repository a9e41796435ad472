// Package regs is the register access contract blocks program hardware
// through. Bit layouts stay with the blocks; this package only moves 32-bit
// words.
package regs

import (
	"fmt"
	"sync"

	"github.com/vk/rfnocgo/internal/action"
)

// Iface reads and writes 32-bit registers of one block. A nil time means
// "now"; otherwise the access is queued for that device time.
type Iface interface {
	Poke32(addr uint32, data uint32, t *action.TimeSpec) error
	Peek32(addr uint32, t *action.TimeSpec) (uint32, error)
}

// Write is one recorded Poke32.
type Write struct {
	Addr uint32
	Data uint32
	Time *action.TimeSpec
}

// Memory is an Iface backed by a map. It records every write so simulations
// and tests can inspect the traffic a block generated.
type Memory struct {
	mu     sync.Mutex
	values map[uint32]uint32
	writes []Write
	// Limit rejects addresses at or above it when non-zero.
	Limit uint32
}

var _ Iface = (*Memory)(nil)

// NewMemory returns an empty register space.
func NewMemory() *Memory {
	return &Memory{values: make(map[uint32]uint32)}
}

func (m *Memory) Poke32(addr uint32, data uint32, t *action.TimeSpec) error {
	if err := m.check(addr); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[addr] = data
	w := Write{Addr: addr, Data: data}
	if t != nil {
		ts := *t
		w.Time = &ts
	}
	m.writes = append(m.writes, w)
	return nil
}

// Peek32 returns the last value written, or zero.
func (m *Memory) Peek32(addr uint32, _ *action.TimeSpec) (uint32, error) {
	if err := m.check(addr); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[addr], nil
}

// Set preloads a register without recording a write, e.g. to model a
// read-only status register.
func (m *Memory) Set(addr, data uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[addr] = data
}

// Writes returns a copy of the write log.
func (m *Memory) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.writes...)
}

// LastWrite returns the most recent write to addr.
func (m *Memory) LastWrite(addr uint32) (Write, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.writes) - 1; i >= 0; i-- {
		if m.writes[i].Addr == addr {
			return m.writes[i], true
		}
	}
	return Write{}, false
}

func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[uint32]uint32)
	m.writes = nil
}

func (m *Memory) check(addr uint32) error {
	if m.Limit != 0 && addr >= m.Limit {
		return fmt.Errorf("register address 0x%04x out of range (limit 0x%04x)", addr, m.Limit)
	}
	return nil
}
