package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rfnocgo/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

const rxChain = `
block "0/Radio#0" {
  type   = "radio"
  params = { channels = 2 }
  properties = {
    master_clock_rate = 200e6
    "freq:1"          = 2.4e9
    "freq:0"          = 1e9
  }
}

block "DDC" {
  type = "ddc"
}

connect {
  from = "0/Radio#0:0"
  to   = "DDC:0"
  kind = "static"
}

connect {
  from      = "DDC:0"
  to        = "0/Radio#0:0"
  forward   = false
  propagate = false
}

streamer "rx0" {
  direction   = "RX"
  port        = "0/DDC#0:0"
  queue_depth = 4
}
`

func TestParse(t *testing.T) {
	desc, err := Parse([]byte(rxChain), "rx.hcl")
	require.NoError(t, err)

	t.Run("blocks", func(t *testing.T) {
		require.Len(t, desc.Blocks, 2)
		radio, ok := desc.Block("Radio")
		require.True(t, ok, "short ids are canonicalized")
		assert.Equal(t, "0/Radio#0", radio.ID)
		assert.Equal(t, "radio", radio.Type)
		assert.True(t, radio.Params["channels"].RawEquals(cty.NumberIntVal(2)))
		assert.Equal(t, "rx.hcl", radio.FSInformation.FilePath)

		var keys []string
		for _, p := range radio.Properties {
			keys = append(keys, p.String())
		}
		assert.Equal(t, []string{"freq:0", "freq:1", "master_clock_rate:0"}, keys)
		assert.True(t, radio.Properties[1].Value.RawEquals(cty.NumberFloatVal(2.4e9)))

		ddc, ok := desc.Block("0/DDC#0")
		require.True(t, ok)
		assert.Empty(t, ddc.Params)
		assert.Empty(t, ddc.Properties)
	})

	t.Run("connections", func(t *testing.T) {
		require.Len(t, desc.Connections, 2)
		fwd := desc.Connections[0]
		assert.Equal(t, "static", fwd.Kind)
		assert.True(t, fwd.Forward)
		assert.True(t, fwd.Propagate)
		assert.Equal(t, nodeid.Endpoint{Block: nodeid.Address{Name: "DDC"}}, fwd.To)

		back := desc.Connections[1]
		assert.Equal(t, "dynamic", back.Kind, "kind defaults to dynamic")
		assert.False(t, back.Forward)
		assert.False(t, back.Propagate)
	})

	t.Run("streamers", func(t *testing.T) {
		require.Len(t, desc.Streamers, 1)
		s := desc.Streamers[0]
		assert.Equal(t, RX, s.Direction)
		assert.Equal(t, 4, s.QueueDepth)
		assert.Equal(t, "0/DDC#0:0", s.Port.String())
	})
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "syntax error",
			src:     `block "A" {`,
			wantErr: "failed to parse",
		},
		{
			name:    "missing type",
			src:     `block "A" {}`,
			wantErr: "failed to decode",
		},
		{
			name:    "bad block id",
			src:     `block "0/#1" { type = "fifo" }`,
			wantErr: "invalid block id",
		},
		{
			name:    "properties not an object",
			src:     "block \"A\" {\n type = \"fifo\"\n properties = 3\n}",
			wantErr: "expected an object",
		},
		{
			name:    "malformed instance",
			src:     "block \"A\" {\n type = \"fifo\"\n properties = { \"mtu:x\" = 1 }\n}",
			wantErr: "malformed instance",
		},
		{
			name:    "duplicate block",
			src:     "block \"A\" { type = \"fifo\" }\nblock \"0/A#0\" { type = \"fifo\" }",
			wantErr: "block '0/A#0' is defined in both",
		},
		{
			name:    "dangling connection",
			src:     "block \"A\" { type = \"fifo\" }\nconnect {\n from = \"A:0\"\n to = \"B:0\"\n}",
			wantErr: "undefined block '0/B#0'",
		},
		{
			name:    "unknown edge kind",
			src:     "block \"A\" { type = \"fifo\" }\nconnect {\n from = \"A:0\"\n to = \"A:0\"\n kind = \"wireless\"\n}",
			wantErr: "unknown kind 'wireless'",
		},
		{
			name:    "endpoint without port",
			src:     "block \"A\" { type = \"fifo\" }\nconnect {\n from = \"A\"\n to = \"A:0\"\n}",
			wantErr: "has no port",
		},
		{
			name:    "unknown streamer direction",
			src:     "block \"A\" { type = \"fifo\" }\nstreamer \"s\" {\n direction = \"up\"\n port = \"A:0\"\n}",
			wantErr: "unknown direction 'up'",
		},
		{
			name:    "bad queue depth",
			src:     "block \"A\" { type = \"fifo\" }\nstreamer \"s\" {\n direction = \"rx\"\n port = \"A:0\"\n queue_depth = 0\n}",
			wantErr: "queue_depth must be positive",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src), "bad.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadRecursively(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	write := func(name, src string) {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	}
	write("blocks.hcl", "block \"Radio\" { type = \"radio\" }\nblock \"DDC\" { type = \"ddc\" }")
	write("wiring/edges.hcl", "connect {\n from = \"Radio:0\"\n to = \"DDC:0\"\n}")

	t.Run("connections span files", func(t *testing.T) {
		desc, err := LoadRecursively(ctx, root)
		require.NoError(t, err)
		assert.Len(t, desc.Blocks, 2)
		require.Len(t, desc.Connections, 1)
		assert.Equal(t, filepath.Join(root, "wiring", "edges.hcl"), desc.Connections[0].FSInformation.FilePath)
	})

	t.Run("empty directory", func(t *testing.T) {
		desc, err := LoadRecursively(ctx, t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, desc.Blocks)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := LoadRecursively(ctx, filepath.Join(root, "missing"))
		assert.Error(t, err)
	})
}
