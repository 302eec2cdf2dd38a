// Package source turns source files into declaration snapshots. Go files are
// read with go/parser; *.autoreg.yaml files are declaration tables for types
// that are not written in Go.
package source

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"strings"

	"github.com/dbsmedya/autoreg/internal/decl"
)

// Directive prefixes recognized in type doc comments.
const (
	directivePrefix     = "//autoreg:"
	directiveAbstract   = "abstract"
	directiveSkip       = "skip"
	directiveImplements = "implements"
)

// predeclared identifiers are kept verbatim instead of being qualified with
// the current package.
var predeclared = map[string]bool{
	"any": true, "comparable": true, "error": true,
	"bool": true, "byte": true, "rune": true, "string": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true, "uintptr": true,
	"float32": true, "float64": true, "complex64": true, "complex128": true,
}

// Assertion is a compile-time interface assertion such as
// var _ I = (*T)(nil). Type and Interface are qualified names.
type Assertion struct {
	Type      string
	Interface string
}

// GoFile is the result of parsing one Go file.
type GoFile struct {
	Package      string // package clause name
	Declarations []*decl.Declaration
	Assertions   []Assertion
}

// ParseGoFile parses src as a Go file whose package has the given import
// path. src may be nil, in which case the file is read from filename.
func ParseGoFile(filename string, src []byte, importPath string) (*GoFile, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	r := &resolver{pkg: importPath, imports: make(map[string]string)}
	for _, spec := range f.Imports {
		p := strings.Trim(spec.Path.Value, "`\"")
		name := importName(p)
		if spec.Name != nil {
			name = spec.Name.Name
		}
		if name == "_" || name == "." {
			continue
		}
		r.imports[name] = p
	}

	out := &GoFile{Package: f.Name.Name}
	for _, d := range f.Decls {
		gen, ok := d.(*ast.GenDecl)
		if !ok {
			continue
		}
		switch gen.Tok {
		case token.TYPE:
			for _, spec := range gen.Specs {
				ts := spec.(*ast.TypeSpec)
				doc := ts.Doc
				if doc == nil && len(gen.Specs) == 1 {
					doc = gen.Doc
				}
				if dd := r.typeSpec(ts, doc); dd != nil {
					pos := fset.Position(ts.Pos())
					dd.File = filename
					dd.Line = pos.Line
					out.Declarations = append(out.Declarations, dd)
				}
			}
		case token.VAR:
			for _, spec := range gen.Specs {
				out.Assertions = append(out.Assertions, r.assertions(spec.(*ast.ValueSpec))...)
			}
		}
	}

	return out, nil
}

type resolver struct {
	pkg     string
	imports map[string]string // local name -> import path
}

func (r *resolver) typeSpec(ts *ast.TypeSpec, doc *ast.CommentGroup) *decl.Declaration {
	// Aliases do not declare a new type.
	if ts.Assign.IsValid() {
		return nil
	}

	d := &decl.Declaration{Package: r.pkg, Name: ts.Name.Name}
	if ts.TypeParams != nil {
		for _, field := range ts.TypeParams.List {
			for _, n := range field.Names {
				d.TypeParams = append(d.TypeParams, n.Name)
			}
		}
	}

	switch t := ts.Type.(type) {
	case *ast.InterfaceType:
		d.Kind = decl.KindInterface
		for _, m := range t.Methods.List {
			if len(m.Names) > 0 {
				continue
			}
			if ref := r.typeRef(m.Type); ref != "" {
				d.Embeds = append(d.Embeds, ref)
			}
		}
	case *ast.StructType:
		for _, field := range t.Fields.List {
			if len(field.Names) > 0 {
				continue
			}
			if ref := r.typeRef(field.Type); ref != "" {
				d.Embeds = append(d.Embeds, ref)
			}
		}
	}

	r.applyDirectives(d, doc)
	return d
}

func (r *resolver) applyDirectives(d *decl.Declaration, doc *ast.CommentGroup) {
	if doc == nil {
		return
	}
	for _, c := range doc.List {
		text, ok := strings.CutPrefix(c.Text, directivePrefix)
		if !ok {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case directiveAbstract:
			d.Abstract = true
		case directiveSkip:
			d.OptOut = true
		case directiveImplements:
			for _, name := range fields[1:] {
				for _, n := range strings.Split(name, ",") {
					if n = strings.TrimSpace(n); n != "" {
						d.Implements = append(d.Implements, r.qualify(n))
					}
				}
			}
		}
	}
}

// assertions extracts `var _ I = <T value>` forms.
func (r *resolver) assertions(vs *ast.ValueSpec) []Assertion {
	if vs.Type == nil || len(vs.Values) == 0 {
		return nil
	}
	iface := r.typeRef(vs.Type)
	if iface == "" {
		return nil
	}

	var out []Assertion
	for i, name := range vs.Names {
		if name.Name != "_" || i >= len(vs.Values) {
			continue
		}
		if typ := r.valueType(vs.Values[i]); typ != "" {
			out = append(out, Assertion{Type: typ, Interface: iface})
		}
	}
	return out
}

// valueType returns the named type of (*T)(nil), T{}, &T{} or T(x).
func (r *resolver) valueType(e ast.Expr) string {
	switch v := e.(type) {
	case *ast.CompositeLit:
		return r.typeRef(v.Type)
	case *ast.UnaryExpr:
		if v.Op == token.AND {
			if lit, ok := v.X.(*ast.CompositeLit); ok {
				return r.typeRef(lit.Type)
			}
		}
	case *ast.CallExpr:
		if len(v.Args) != 1 {
			return ""
		}
		return r.typeRef(v.Fun)
	case *ast.ParenExpr:
		return r.valueType(v.X)
	}
	return ""
}

// typeRef resolves a type expression to a qualified name, or "" when the
// expression does not name a type.
func (r *resolver) typeRef(e ast.Expr) string {
	switch t := e.(type) {
	case *ast.Ident:
		return r.qualify(t.Name)
	case *ast.SelectorExpr:
		x, ok := t.X.(*ast.Ident)
		if !ok {
			return ""
		}
		if p, ok := r.imports[x.Name]; ok {
			return p + "." + t.Sel.Name
		}
		return x.Name + "." + t.Sel.Name
	case *ast.StarExpr:
		return r.typeRef(t.X)
	case *ast.ParenExpr:
		return r.typeRef(t.X)
	case *ast.IndexExpr:
		return r.typeRef(t.X)
	case *ast.IndexListExpr:
		return r.typeRef(t.X)
	}
	return ""
}

// qualify resolves a textual reference: "Name" is local to the package,
// "pkg.Name" goes through the file's imports. Unknown selectors and
// predeclared names are kept verbatim.
func (r *resolver) qualify(ref string) string {
	if predeclared[ref] {
		return ref
	}
	dot := strings.LastIndex(ref, ".")
	if dot < 0 {
		return r.pkg + "." + ref
	}
	if p, ok := r.imports[ref[:dot]]; ok {
		return p + "." + ref[dot+1:]
	}
	return ref
}

// importName guesses the package name of an import path from its last
// element, skipping a major version suffix.
func importName(p string) string {
	elem := path.Base(p)
	if len(elem) > 1 && elem[0] == 'v' && strings.Trim(elem[1:], "0123456789") == "" {
		if dir := path.Dir(p); dir != "." {
			elem = path.Base(dir)
		}
	}
	elem = strings.TrimPrefix(elem, "go-")
	elem = strings.TrimSuffix(elem, ".go")
	return strings.ReplaceAll(elem, "-", "_")
}
