// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configdoc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/shellwatch/internal/errors"
)

const sampleSource = `package sample

// Root is the sample root.
type Root struct {
	Name   string        ` + "`hcl:\"name\"`" + `
	Server *ServerConfig ` + "`hcl:\"server,block\"`" + `
	Hooks  []HookConfig  ` + "`hcl:\"hook,block\"`" + `
}

// ServerConfig configures the server.
type ServerConfig struct {
	// Port to listen on.
	// @default: 8080
	// @min: 1
	// @max: 65535
	Port int ` + "`hcl:\"port,optional\"`" + `
	// @enum: debug, info
	Level string ` + "`hcl:\"level,optional\"`" + `
}

type HookConfig struct {
	Name    string            ` + "`hcl:\"name,label\"`" + `
	URL     string            ` + "`hcl:\"url\"`" + `
	Headers map[string]string ` + "`hcl:\"headers,optional\"`" + `
}

type unrelated struct {
	n int
}
`

func sampleSchema(t *testing.T) *Schema {
	t.Helper()
	p := NewParser()
	require.NoError(t, p.ParseSource("sample.go", sampleSource))
	s, err := p.BuildSchema("Root")
	require.NoError(t, err)
	return s
}

func TestBuildSchema(t *testing.T) {
	s := sampleSchema(t)

	require.Len(t, s.Attributes, 1)
	assert.Equal(t, "name", s.Attributes[0].HCLName)
	assert.True(t, s.Attributes[0].Required)

	require.Len(t, s.Blocks, 2)
	server := s.Blocks[0]
	assert.Equal(t, "server", server.HCLName)
	assert.Equal(t, "ServerConfig configures the server.", server.Description)
	assert.False(t, server.Multiple)
	require.Len(t, server.Fields, 2)

	port := server.Fields[0]
	assert.Equal(t, "Port to listen on.", port.Description)
	assert.Equal(t, "number", port.HCLType)
	assert.Equal(t, "8080", port.Default)
	assert.False(t, port.Required)
	require.NotNil(t, port.Min)
	require.NotNil(t, port.Max)
	assert.Equal(t, 1.0, *port.Min)
	assert.Equal(t, 65535.0, *port.Max)
	assert.Equal(t, []string{"debug", "info"}, server.Fields[1].Enum)

	hook := s.Blocks[1]
	assert.True(t, hook.Multiple)
	assert.Equal(t, []string{"name"}, hook.Labels)
	require.Len(t, hook.Fields, 2)
	assert.Equal(t, "map(string)", hook.Fields[1].HCLType)
}

func TestBuildSchema_MissingRoot(t *testing.T) {
	p := NewParser()
	require.NoError(t, p.ParseSource("sample.go", sampleSource))
	_, err := p.BuildSchema("Missing")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestParseSource_Malformed(t *testing.T) {
	err := NewParser().ParseSource("bad.go", "package x\ntype {")
	assert.True(t, errors.IsKind(err, errors.KindMalformed))
}

func TestGenerateMarkdown(t *testing.T) {
	md := GenerateMarkdown(sampleSchema(t))

	assert.Contains(t, md, "# Shellwatch Configuration")
	assert.Contains(t, md, "- [server](#server)")
	assert.Contains(t, md, "| `port` | number | no | `8080` | Port to listen on. Range: 1 to 65535. |")
	assert.Contains(t, md, "One of: `debug`, `info`.")
	assert.Contains(t, md, "hook \"name\" {")
	assert.Contains(t, md, "May appear more than once.")
}

func TestGenerateJSONSchema(t *testing.T) {
	out, err := MarshalJSONSchema(GenerateJSONSchema(sampleSchema(t)))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, []any{"name"}, doc["required"])

	props := doc["properties"].(map[string]any)
	server := props["server"].(map[string]any)
	port := server["properties"].(map[string]any)["port"].(map[string]any)
	assert.Equal(t, "integer", port["type"])
	assert.Equal(t, float64(8080), port["default"])

	hook := props["hook"].(map[string]any)
	assert.Equal(t, "array", hook["type"])
	items := hook["items"].(map[string]any)
	assert.ElementsMatch(t, []any{"name", "url"}, items["required"])
}

func TestParseDir_AgentConfig(t *testing.T) {
	p := NewParser()
	require.NoError(t, p.ParseDir("../config"))
	s, err := p.BuildSchema("Config")
	require.NoError(t, err)

	names := make(map[string]*Block)
	for _, b := range s.Blocks {
		names[b.HCLName] = b
	}
	for _, want := range []string{"log", "detector", "tracker", "syscalls", "scanner", "api", "alerting", "enrich"} {
		assert.Contains(t, names, want)
	}

	alerting := names["alerting"]
	require.Len(t, alerting.Blocks, 1)
	assert.Equal(t, "channel", alerting.Blocks[0].HCLName)
	assert.Equal(t, []string{"name"}, alerting.Blocks[0].Labels)

	log := names["log"]
	require.Len(t, log.Blocks, 1)
	assert.Equal(t, "syslog", log.Blocks[0].HCLName)
}
