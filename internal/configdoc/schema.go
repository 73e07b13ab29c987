// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configdoc

import (
	"encoding/json"
	"strconv"
	"strings"
)

// JSONSchema is the subset of JSON Schema emitted for the config.
type JSONSchema struct {
	Schema      string                 `json:"$schema,omitempty"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Type        string                 `json:"type,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
	Default     any                    `json:"default,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
	Examples    []any                  `json:"examples,omitempty"`

	AdditionalProperties *JSONSchema `json:"additionalProperties,omitempty"`
}

// GenerateJSONSchema converts the documentation schema into JSON Schema
// keyed by HCL names.
func GenerateJSONSchema(s *Schema) *JSONSchema {
	js := &JSONSchema{
		Schema:      "https://json-schema.org/draft/2020-12/schema",
		Title:       s.Title,
		Description: s.Description,
		Type:        "object",
		Properties:  make(map[string]*JSONSchema),
	}
	for _, f := range s.Attributes {
		js.Properties[f.HCLName] = fieldSchema(f)
		if f.Required {
			js.Required = append(js.Required, f.HCLName)
		}
	}
	for _, b := range s.Blocks {
		js.Properties[b.HCLName] = blockProperty(b)
	}
	return js
}

// MarshalJSONSchema renders js as indented JSON.
func MarshalJSONSchema(js *JSONSchema) (string, error) {
	data, err := json.MarshalIndent(js, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

func blockProperty(b *Block) *JSONSchema {
	obj := blockSchema(b)
	if !b.Multiple {
		return obj
	}
	return &JSONSchema{Type: "array", Description: obj.Description, Items: obj}
}

func blockSchema(b *Block) *JSONSchema {
	js := &JSONSchema{
		Title:       b.GoType,
		Description: b.Description,
		Type:        "object",
		Properties:  make(map[string]*JSONSchema),
	}
	for _, l := range b.Labels {
		js.Properties[l] = &JSONSchema{Type: "string", Description: "Block label."}
		js.Required = append(js.Required, l)
	}
	for _, f := range b.Fields {
		js.Properties[f.HCLName] = fieldSchema(f)
		if f.Required {
			js.Required = append(js.Required, f.HCLName)
		}
	}
	for _, nested := range b.Blocks {
		js.Properties[nested.HCLName] = blockProperty(nested)
	}
	return js
}

func fieldSchema(f *Field) *JSONSchema {
	js := &JSONSchema{
		Description: f.Description,
		Enum:        f.Enum,
		Minimum:     f.Min,
		Maximum:     f.Max,
	}
	switch {
	case strings.HasPrefix(f.HCLType, "list("):
		js.Type = "array"
		js.Items = &JSONSchema{Type: jsonType(strings.TrimSuffix(strings.TrimPrefix(f.HCLType, "list("), ")"))}
	case f.HCLType == "map(string)":
		js.Type = "object"
		js.AdditionalProperties = &JSONSchema{Type: "string"}
	default:
		js.Type = jsonType(f.HCLType)
	}
	if f.Default != "" {
		js.Default = typedValue(js.Type, f.Default)
	}
	if f.Example != "" {
		js.Examples = []any{typedValue(js.Type, f.Example)}
	}
	return js
}

func jsonType(hcl string) string {
	switch hcl {
	case "number":
		return "integer"
	case "bool":
		return "boolean"
	case "string":
		return "string"
	default:
		return "object"
	}
}

func typedValue(typ, v string) any {
	switch typ {
	case "integer":
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case "boolean":
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	case "array":
		var out []any
		if json.Unmarshal([]byte(v), &out) == nil {
			return out
		}
	}
	return v
}
