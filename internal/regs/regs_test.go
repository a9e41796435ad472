package regs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rfnocgo/internal/action"
)

func TestMemory(t *testing.T) {
	t.Run("poke then peek", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Poke32(0x10, 0xdead, nil))
		v, err := m.Peek32(0x10, nil)
		require.NoError(t, err)
		assert.Equal(t, uint32(0xdead), v)

		v, err = m.Peek32(0x14, nil)
		require.NoError(t, err)
		assert.Zero(t, v)
	})

	t.Run("write log keeps timestamps", func(t *testing.T) {
		m := NewMemory()
		ts := action.TimeSpec{FullSecs: 2, FracSecs: 0.5}
		require.NoError(t, m.Poke32(0x10, 1, nil))
		require.NoError(t, m.Poke32(0x10, 2, &ts))
		ts.FullSecs = 99

		w, ok := m.LastWrite(0x10)
		require.True(t, ok)
		assert.Equal(t, uint32(2), w.Data)
		require.NotNil(t, w.Time)
		assert.Equal(t, 2.5, w.Time.Seconds())
		assert.Len(t, m.Writes(), 2)

		_, ok = m.LastWrite(0x20)
		assert.False(t, ok)
	})

	t.Run("set is not logged", func(t *testing.T) {
		m := NewMemory()
		m.Set(0x40, 7)
		v, err := m.Peek32(0x40, nil)
		require.NoError(t, err)
		assert.Equal(t, uint32(7), v)
		assert.Empty(t, m.Writes())
	})

	t.Run("limit", func(t *testing.T) {
		m := NewMemory()
		m.Limit = 0x100
		assert.Error(t, m.Poke32(0x100, 1, nil))
		_, err := m.Peek32(0x200, nil)
		assert.Error(t, err)
		assert.NoError(t, m.Poke32(0xfc, 1, nil))
	})

	t.Run("reset", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Poke32(0x10, 1, nil))
		m.Reset()
		assert.Empty(t, m.Writes())
		v, _ := m.Peek32(0x10, nil)
		assert.Zero(t, v)
	})
}
