// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// A description may be split across many files and directories. Loading
// consolidates every `block`, `connect` and `streamer` found under a path
// into one Description, so connections may span files.
package model

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/vk/rfnocgo/internal/fsutil"
	"github.com/vk/rfnocgo/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// hclDescriptionFile represents the top-level structure of a file for decoding.
type hclDescriptionFile struct {
	Blocks    []*hclBlock    `hcl:"block,block"`
	Connects  []*hclConnect  `hcl:"connect,block"`
	Streamers []*hclStreamer `hcl:"streamer,block"`
}

type hclBlock struct {
	ID         string         `hcl:"id,label"`
	Type       string         `hcl:"type"`
	Params     hcl.Expression `hcl:"params,optional"`
	Properties hcl.Expression `hcl:"properties,optional"`
}

type hclConnect struct {
	From      string  `hcl:"from"`
	To        string  `hcl:"to"`
	Kind      *string `hcl:"kind,optional"`
	Forward   *bool   `hcl:"forward,optional"`
	Propagate *bool   `hcl:"propagate,optional"`
}

type hclStreamer struct {
	Name       string `hcl:"name,label"`
	Direction  string `hcl:"direction"`
	Port       string `hcl:"port"`
	QueueDepth *int   `hcl:"queue_depth,optional"`
}

// LoadRecursively finds and parses all HCL files in a path into one
// validated Description. The path may also name a single file.
func LoadRecursively(ctx context.Context, path string) (*Description, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading graph description from path", "path", path)

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to find description files in %s: %w", path, err)
	}

	desc := NewDescription()
	if len(files) == 0 {
		logger.Warn("No .hcl description files found in path, returning empty description", "path", path)
		return desc, nil
	}

	parser := hclparse.NewParser()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		if err := desc.decode(hclFile.Body, file); err != nil {
			return nil, err
		}
	}

	if err := desc.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("Graph description loaded",
		"files", len(files), "blocks", len(desc.Blocks), "connections", len(desc.Connections), "streamers", len(desc.Streamers))
	return desc, nil
}

// Parse decodes a single in-memory file. The result is validated.
func Parse(src []byte, filename string) (*Description, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	desc := NewDescription()
	if err := desc.decode(hclFile.Body, filename); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return desc, nil
}

func (d *Description) decode(body hcl.Body, filePath string) error {
	var parsed hclDescriptionFile
	if diags := gohcl.DecodeBody(body, nil, &parsed); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", filePath, diags)
	}
	info := NewFSInfo(filePath)

	for _, hb := range parsed.Blocks {
		b, err := newBlockFromHCL(hb, info)
		if err != nil {
			return fmt.Errorf("error parsing block in file %s: %w", filePath, err)
		}
		d.Blocks = append(d.Blocks, b)
	}
	for _, hc := range parsed.Connects {
		c, err := newConnectionFromHCL(hc, info)
		if err != nil {
			return fmt.Errorf("error parsing connect in file %s: %w", filePath, err)
		}
		d.Connections = append(d.Connections, c)
	}
	for _, hs := range parsed.Streamers {
		s, err := newStreamerFromHCL(hs, info)
		if err != nil {
			return fmt.Errorf("error parsing streamer in file %s: %w", filePath, err)
		}
		d.Streamers = append(d.Streamers, s)
	}
	return nil
}

func newBlockFromHCL(hb *hclBlock, info *FSInfo) (*Block, error) {
	id, err := nodeid.Canonical(hb.ID)
	if err != nil {
		return nil, err
	}
	b := &Block{ID: id, Type: hb.Type, FSInformation: info}

	if b.Params, err = evalObject(hb.Params); err != nil {
		return nil, fmt.Errorf("block '%s', params: %w", id, err)
	}
	props, err := evalObject(hb.Properties)
	if err != nil {
		return nil, fmt.Errorf("block '%s', properties: %w", id, err)
	}
	for key, v := range props {
		setting, err := parsePropertyKey(key)
		if err != nil {
			return nil, fmt.Errorf("block '%s': %w", id, err)
		}
		setting.Value = v
		b.Properties = append(b.Properties, setting)
	}
	// Map iteration order is random; apply in a stable order.
	sort.Slice(b.Properties, func(i, j int) bool {
		if b.Properties[i].ID != b.Properties[j].ID {
			return b.Properties[i].ID < b.Properties[j].ID
		}
		return b.Properties[i].Instance < b.Properties[j].Instance
	})
	return b, nil
}

// evalObject evaluates an optional object attribute without variables.
func evalObject(expr hcl.Expression) (map[string]cty.Value, error) {
	out := map[string]cty.Value{}
	if expr == nil {
		return out, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return out, nil
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("value must be known without evaluation context")
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("expected an object, got %s", val.Type().FriendlyName())
	}
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		out[k.AsString()] = v
	}
	return out, nil
}

func parsePropertyKey(key string) (PropertySetting, error) {
	id, inst, found := strings.Cut(key, ":")
	s := PropertySetting{ID: strings.TrimSpace(id)}
	if s.ID == "" {
		return s, fmt.Errorf("property key %q has an empty name", key)
	}
	if found {
		n, err := strconv.Atoi(strings.TrimSpace(inst))
		if err != nil || n < 0 {
			return s, fmt.Errorf("property key %q has a malformed instance", key)
		}
		s.Instance = n
	}
	return s, nil
}

func newConnectionFromHCL(hc *hclConnect, info *FSInfo) (*Connection, error) {
	from, err := nodeid.ParseEndpoint(hc.From)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	to, err := nodeid.ParseEndpoint(hc.To)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	c := &Connection{From: from, To: to, Kind: "dynamic", Forward: true, Propagate: true, FSInformation: info}
	if hc.Kind != nil {
		c.Kind = strings.ToLower(strings.TrimSpace(*hc.Kind))
	}
	if c.Kind != "static" && c.Kind != "dynamic" {
		return nil, fmt.Errorf("connection %s: unknown kind '%s', expected 'static' or 'dynamic'", c, c.Kind)
	}
	if hc.Forward != nil {
		c.Forward = *hc.Forward
	}
	if hc.Propagate != nil {
		c.Propagate = *hc.Propagate
	}
	return c, nil
}

func newStreamerFromHCL(hs *hclStreamer, info *FSInfo) (*Streamer, error) {
	port, err := nodeid.ParseEndpoint(hs.Port)
	if err != nil {
		return nil, fmt.Errorf("streamer '%s': %w", hs.Name, err)
	}
	s := &Streamer{
		Name:          hs.Name,
		Direction:     Direction(strings.ToLower(strings.TrimSpace(hs.Direction))),
		Port:          port,
		QueueDepth:    DefaultQueueDepth,
		FSInformation: info,
	}
	if hs.QueueDepth != nil {
		if *hs.QueueDepth < 1 {
			return nil, fmt.Errorf("streamer '%s': queue_depth must be positive", hs.Name)
		}
		s.QueueDepth = *hs.QueueDepth
	}
	return s, nil
}
