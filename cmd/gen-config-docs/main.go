// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// gen-config-docs generates the configuration reference from the HCL config structs.
//
// Usage:
//
//	go run ./cmd/gen-config-docs -format=markdown -output=docs/config-reference.md
//	go run ./cmd/gen-config-docs -format=jsonschema -output=docs/config-schema.json
//	go run ./cmd/gen-config-docs -format=all -output=docs
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"grimm.is/shellwatch/internal/configdoc"
)

func main() {
	format := flag.String("format", "markdown", "Output format: markdown, jsonschema, all")
	output := flag.String("output", "", "Output file (default: stdout, or docs/ for 'all')")
	configDir := flag.String("config-dir", "internal/config", "Directory containing config Go files")
	flag.Parse()

	if err := run(*format, *output, *configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(format, output, configDir string) error {
	files, err := generate(format, configDir)
	if err != nil {
		return err
	}

	if format != "all" {
		content := files[defaultName(format)]
		if output == "" {
			fmt.Print(content)
			return nil
		}
		return writeFile(output, content)
	}

	if output == "" {
		output = "docs"
	}
	for name, content := range files {
		if err := writeFile(filepath.Join(output, name), content); err != nil {
			return err
		}
	}
	return nil
}

// generate renders the requested formats keyed by default file name.
func generate(format, configDir string) (map[string]string, error) {
	parser := configdoc.NewParser()
	if err := parser.ParseDir(configDir); err != nil {
		return nil, err
	}
	schema, err := parser.BuildSchema("Config")
	if err != nil {
		return nil, err
	}

	files := make(map[string]string)
	if format == "markdown" || format == "all" {
		files[defaultName("markdown")] = configdoc.GenerateMarkdown(schema)
	}
	if format == "jsonschema" || format == "all" {
		js, err := configdoc.MarshalJSONSchema(configdoc.GenerateJSONSchema(schema))
		if err != nil {
			return nil, err
		}
		files[defaultName("jsonschema")] = js
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return files, nil
}

func defaultName(format string) string {
	if format == "jsonschema" {
		return "config-schema.json"
	}
	return "config-reference.md"
}

func writeFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return err
	}
	fmt.Printf("Generated %s\n", path)
	return nil
}
