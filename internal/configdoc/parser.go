// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configdoc

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"grimm.is/shellwatch/internal/errors"
)

// Parser extracts hcl-tagged structs from Go source.
type Parser struct {
	fset    *token.FileSet
	structs map[string]*parsedStruct
}

// NewParser creates an empty parser.
func NewParser() *Parser {
	return &Parser{
		fset:    token.NewFileSet(),
		structs: make(map[string]*parsedStruct),
	}
}

// ParseDir parses the non-test Go files in dir.
func (p *Parser) ParseDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Attr(errors.Wrap(err, errors.KindNotFound, "failed to read config source directory"), "dir", dir)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		path := filepath.Join(dir, name)
		file, err := parser.ParseFile(p.fset, path, nil, parser.ParseComments)
		if err != nil {
			return errors.Attr(errors.Wrap(err, errors.KindMalformed, "failed to parse Go source"), "path", path)
		}
		p.collect(file)
	}
	return nil
}

// ParseSource parses a single file held in memory.
func (p *Parser) ParseSource(filename, src string) error {
	file, err := parser.ParseFile(p.fset, filename, src, parser.ParseComments)
	if err != nil {
		return errors.Attr(errors.Wrap(err, errors.KindMalformed, "failed to parse Go source"), "path", filename)
	}
	p.collect(file)
	return nil
}

func (p *Parser) collect(file *ast.File) {
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok || st.Fields == nil {
				continue
			}
			doc := gen.Doc
			if ts.Doc != nil {
				doc = ts.Doc
			}
			if ps := parseStruct(ts.Name.Name, st, doc); len(ps.Fields) > 0 {
				p.structs[ps.Name] = ps
			}
		}
	}
}

func parseStruct(name string, st *ast.StructType, doc *ast.CommentGroup) *parsedStruct {
	ps := &parsedStruct{Name: name, Doc: commentText(doc)}
	for _, f := range st.Fields.List {
		if len(f.Names) == 0 || f.Tag == nil {
			continue
		}
		raw, err := strconv.Unquote(f.Tag.Value)
		if err != nil {
			continue
		}
		tag := parseHCLTag(reflect.StructTag(raw).Get("hcl"))
		if tag.Name == "" {
			continue
		}
		text := commentText(f.Doc)
		if inline := commentText(f.Comment); inline != "" {
			text = strings.TrimSpace(text + "\n" + inline)
		}
		ps.Fields = append(ps.Fields, parsedField{
			Name:   f.Names[0].Name,
			GoType: typeString(f.Type),
			Tag:    tag,
			Doc:    text,
		})
	}
	return ps
}

func parseHCLTag(tag string) hclTag {
	if tag == "" {
		return hclTag{}
	}
	parts := strings.Split(tag, ",")
	t := hclTag{Name: parts[0]}
	for _, opt := range parts[1:] {
		switch opt {
		case "optional":
			t.Optional = true
		case "block":
			t.Block = true
		case "label":
			t.Label = true
		}
	}
	return t
}

// parseAnnotations splits a field comment into its description and annotations.
func parseAnnotations(doc string) (string, annotation) {
	var ann annotation
	var desc []string
	for _, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		key, value, ok := strings.Cut(trimmed, ":")
		if !ok || !strings.HasPrefix(key, "@") {
			if trimmed != "" {
				desc = append(desc, trimmed)
			}
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "@default":
			ann.Default = value
		case "@example":
			ann.Example = value
		case "@enum":
			for _, v := range strings.Split(value, ",") {
				if v = strings.TrimSpace(v); v != "" {
					ann.Enum = append(ann.Enum, v)
				}
			}
		case "@min":
			if n, err := strconv.ParseFloat(value, 64); err == nil {
				ann.Min = &n
			}
		case "@max":
			if n, err := strconv.ParseFloat(value, 64); err == nil {
				ann.Max = &n
			}
		}
	}
	return strings.Join(desc, " "), ann
}

func commentText(cg *ast.CommentGroup) string {
	if cg == nil {
		return ""
	}
	return strings.TrimSpace(cg.Text())
}

func typeString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + typeString(t.X)
	case *ast.ArrayType:
		return "[]" + typeString(t.Elt)
	case *ast.MapType:
		return "map[" + typeString(t.Key) + "]" + typeString(t.Value)
	case *ast.SelectorExpr:
		return typeString(t.X) + "." + t.Sel.Name
	default:
		return "unknown"
	}
}

// BuildSchema walks the struct graph from rootType.
func (p *Parser) BuildSchema(rootType string) (*Schema, error) {
	root := p.structs[rootType]
	if root == nil {
		return nil, errors.Attr(errors.New(errors.KindNotFound, "root config type not found"), "type", rootType)
	}

	s := &Schema{Title: "Shellwatch Configuration", Description: root.Doc}
	for _, f := range root.Fields {
		if f.Tag.Block {
			s.Blocks = append(s.Blocks, p.buildBlock(f, map[string]bool{rootType: true}))
		} else {
			s.Attributes = append(s.Attributes, buildField(f))
		}
	}
	return s, nil
}

func (p *Parser) buildBlock(f parsedField, seen map[string]bool) *Block {
	typeName := strings.TrimPrefix(strings.TrimPrefix(f.GoType, "[]"), "*")
	b := &Block{
		HCLName:  f.Tag.Name,
		GoType:   typeName,
		Multiple: strings.HasPrefix(f.GoType, "[]"),
	}
	b.Description, _ = parseAnnotations(f.Doc)

	ps := p.structs[typeName]
	if ps == nil || seen[typeName] {
		return b
	}
	if b.Description == "" {
		b.Description = ps.Doc
	}

	seen[typeName] = true
	defer delete(seen, typeName)
	for _, nf := range ps.Fields {
		switch {
		case nf.Tag.Label:
			b.Labels = append(b.Labels, nf.Tag.Name)
		case nf.Tag.Block:
			b.Blocks = append(b.Blocks, p.buildBlock(nf, seen))
		default:
			b.Fields = append(b.Fields, buildField(nf))
		}
	}
	return b
}

func buildField(pf parsedField) *Field {
	desc, ann := parseAnnotations(pf.Doc)
	return &Field{
		HCLName:     pf.Tag.Name,
		GoType:      pf.GoType,
		HCLType:     hclType(pf.GoType),
		Description: desc,
		Required:    !pf.Tag.Optional,
		Default:     ann.Default,
		Enum:        ann.Enum,
		Example:     ann.Example,
		Min:         ann.Min,
		Max:         ann.Max,
	}
}

func hclType(goType string) string {
	goType = strings.TrimPrefix(goType, "*")
	switch {
	case strings.HasPrefix(goType, "[]"):
		return "list(" + hclType(strings.TrimPrefix(goType, "[]")) + ")"
	case strings.HasPrefix(goType, "map["):
		return "map(string)"
	}
	switch goType {
	case "string":
		return "string"
	case "bool":
		return "bool"
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64", "float32", "float64":
		return "number"
	default:
		return "object"
	}
}
