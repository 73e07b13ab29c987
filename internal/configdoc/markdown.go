// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configdoc

import (
	"fmt"
	"strings"
)

// GenerateMarkdown renders the schema as a Markdown reference.
func GenerateMarkdown(s *Schema) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", s.Title)
	if s.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", s.Description)
	}

	sb.WriteString("## Contents\n\n")
	if len(s.Attributes) > 0 {
		sb.WriteString("- [Top-level attributes](#top-level-attributes)\n")
	}
	for _, b := range s.Blocks {
		fmt.Fprintf(&sb, "- [%s](#%s)\n", b.HCLName, anchor(b.HCLName))
	}
	sb.WriteString("\n")

	if len(s.Attributes) > 0 {
		sb.WriteString("## Top-level attributes\n\n")
		writeFields(&sb, s.Attributes)
	}
	for _, b := range s.Blocks {
		writeBlock(&sb, b, 2)
	}
	return sb.String()
}

func writeBlock(sb *strings.Builder, b *Block, level int) {
	fmt.Fprintf(sb, "%s %s\n\n", strings.Repeat("#", level), b.HCLName)
	if b.Description != "" {
		fmt.Fprintf(sb, "%s\n\n", b.Description)
	}
	if b.Multiple {
		sb.WriteString("May appear more than once.\n\n")
	}

	sb.WriteString("```hcl\n")
	sb.WriteString(b.HCLName)
	for _, l := range b.Labels {
		fmt.Fprintf(sb, " %q", l)
	}
	sb.WriteString(" {\n")
	for _, f := range b.Fields {
		fmt.Fprintf(sb, "  %s = %s\n", f.HCLName, exampleValue(f))
	}
	for _, nested := range b.Blocks {
		fmt.Fprintf(sb, "  %s { ... }\n", nested.HCLName)
	}
	sb.WriteString("}\n```\n\n")

	if len(b.Fields) > 0 {
		writeFields(sb, b.Fields)
	}
	for _, nested := range b.Blocks {
		writeBlock(sb, nested, level+1)
	}
}

func writeFields(sb *strings.Builder, fields []*Field) {
	sb.WriteString("| Attribute | Type | Required | Default | Description |\n")
	sb.WriteString("|-----------|------|----------|---------|-------------|\n")
	for _, f := range fields {
		req := "no"
		if f.Required {
			req = "yes"
		}
		def := ""
		if f.Default != "" {
			def = "`" + f.Default + "`"
		}
		desc := f.Description
		if len(f.Enum) > 0 {
			desc = strings.TrimSpace(desc + " One of: `" + strings.Join(f.Enum, "`, `") + "`.")
		}
		if f.Min != nil || f.Max != nil {
			desc = strings.TrimSpace(desc + " Range: " + rangeText(f) + ".")
		}
		fmt.Fprintf(sb, "| `%s` | %s | %s | %s | %s |\n", f.HCLName, f.HCLType, req, def, escapeCell(desc))
	}
	sb.WriteString("\n")
}

func exampleValue(f *Field) string {
	v := f.Example
	if v == "" {
		v = f.Default
	}
	if v == "" && len(f.Enum) > 0 {
		v = f.Enum[0]
	}
	switch f.HCLType {
	case "string":
		if v == "" {
			return `""`
		}
		if strings.HasPrefix(v, `"`) {
			return v
		}
		return fmt.Sprintf("%q", v)
	case "bool":
		if v == "" {
			return "false"
		}
		return v
	case "number":
		if v == "" {
			return "0"
		}
		return v
	case "map(string)":
		return "{}"
	default:
		if v == "" {
			return "[]"
		}
		return v
	}
}

func rangeText(f *Field) string {
	lo, hi := "", ""
	if f.Min != nil {
		lo = fmt.Sprintf("%g", *f.Min)
	}
	if f.Max != nil {
		hi = fmt.Sprintf("%g", *f.Max)
	}
	switch {
	case lo != "" && hi != "":
		return lo + " to " + hi
	case lo != "":
		return "at least " + lo
	default:
		return "at most " + hi
	}
}

func anchor(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", "-"))
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
