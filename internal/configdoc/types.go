// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configdoc

// Schema is the documentation model for the whole configuration file.
type Schema struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Attributes  []*Field `json:"attributes,omitempty"`
	Blocks      []*Block `json:"blocks,omitempty"`
}

// Block is an HCL block type such as log or channel.
type Block struct {
	HCLName     string   `json:"hcl_name"`
	GoType      string   `json:"go_type"`
	Description string   `json:"description"`
	Labels      []string `json:"labels,omitempty"`
	Fields      []*Field `json:"fields,omitempty"`
	Blocks      []*Block `json:"blocks,omitempty"`
	Multiple    bool     `json:"multiple,omitempty"`
}

// Field is an HCL attribute.
type Field struct {
	HCLName     string   `json:"hcl_name"`
	GoType      string   `json:"go_type"`
	HCLType     string   `json:"hcl_type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Default     string   `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Example     string   `json:"example,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
}

// annotation holds the @-prefixed metadata lines of a field comment.
type annotation struct {
	Default string
	Enum    []string
	Example string
	Min     *float64
	Max     *float64
}

type parsedStruct struct {
	Name   string
	Doc    string
	Fields []parsedField
}

type parsedField struct {
	Name   string
	GoType string
	Tag    hclTag
	Doc    string
}

type hclTag struct {
	Name     string
	Optional bool
	Block    bool
	Label    bool
}
