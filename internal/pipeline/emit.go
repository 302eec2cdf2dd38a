package pipeline

import (
	"bytes"
	"fmt"
	"go/format"
	"go/token"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/dbsmedya/autoreg/internal/decl"
)

// GeneratedHeader is the first line of every generated file.
const GeneratedHeader = "// Code generated by autoreg. DO NOT EDIT."

// RegistryName is the identifier of the generated registry variable.
const RegistryName = "Registry"

// Artifact is one generated source file, keyed by namespace.
type Artifact struct {
	Namespace string
	Package   string
	FileName  string
	Content   []byte
}

// Emitter renders discovery sets into Go source.
type Emitter struct {
	pkg      string
	fileName string
}

// NewEmitter creates an emitter for the given package name and file name.
func NewEmitter(pkg, fileName string) *Emitter {
	return &Emitter{pkg: pkg, fileName: fileName}
}

// Emit renders set for the pass's namespace. An empty set produces no
// artifact and no error.
func (e *Emitter) Emit(pc PassContext, set DiscoverySet) (*Artifact, error) {
	if len(set) == 0 {
		return nil, nil
	}

	content, err := Render(pc.Namespace, e.pkg, set)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Namespace: pc.Namespace,
		Package:   e.pkg,
		FileName:  e.fileName,
		Content:   content,
	}, nil
}

type importSpec struct {
	path  string
	alias string
}

// Render produces the registry source for set. It is a pure function of its
// arguments: equal inputs give byte-identical output.
func Render(namespace, pkg string, set DiscoverySet) ([]byte, error) {
	imports, aliasOf := planImports(namespace, set)

	var buf bytes.Buffer
	buf.WriteString(GeneratedHeader + "\n\n")
	fmt.Fprintf(&buf, "package %s\n\n", pkg)

	buf.WriteString("import (\n\t\"reflect\"\n")
	if len(imports) > 0 {
		buf.WriteString("\n")
	}
	for _, imp := range imports {
		fmt.Fprintf(&buf, "\t%s %s\n", imp.alias, strconv.Quote(imp.path))
	}
	buf.WriteString(")\n\n")

	fmt.Fprintf(&buf, "// %s lists every discovered capability type.\n", RegistryName)
	fmt.Fprintf(&buf, "var %s = struct {\n\tAll []reflect.Type\n}{\n\tAll: []reflect.Type{\n", RegistryName)
	for _, qualified := range set {
		pkgPath, name := decl.SplitQualified(qualified)
		ref := name
		if alias, ok := aliasOf[pkgPath]; ok {
			ref = alias + "." + name
		}
		fmt.Fprintf(&buf, "\t\treflect.TypeFor[%s](),\n", ref)
	}
	buf.WriteString("\t},\n}\n")

	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to format generated registry: %w", err)
	}
	return out, nil
}

// planImports assigns an alias to every package referenced by set, except
// the namespace itself. Paths are visited in sorted order so aliases are
// stable; collisions get a numeric suffix.
func planImports(namespace string, set DiscoverySet) ([]importSpec, map[string]string) {
	var paths []string
	for _, qualified := range set {
		pkgPath, _ := decl.SplitQualified(qualified)
		if pkgPath == "" || pkgPath == namespace {
			continue
		}
		paths = append(paths, pkgPath)
	}
	slices.Sort(paths)
	paths = slices.Compact(paths)

	used := map[string]bool{"reflect": true, RegistryName: true}
	aliasOf := make(map[string]string, len(paths))
	imports := make([]importSpec, 0, len(paths))

	for _, p := range paths {
		base := sanitizeAlias(packageElem(p))
		alias := base
		for i := 2; used[alias]; i++ {
			alias = base + strconv.Itoa(i)
		}
		used[alias] = true
		aliasOf[p] = alias
		imports = append(imports, importSpec{path: p, alias: alias})
	}

	return imports, aliasOf
}

// packageElem returns the path element that names the package, skipping a
// trailing major version suffix such as /v2.
func packageElem(p string) string {
	elem := path.Base(p)
	if len(elem) > 1 && elem[0] == 'v' && strings.Trim(elem[1:], "0123456789") == "" {
		if dir := path.Dir(p); dir != "." && dir != "/" {
			return path.Base(dir)
		}
	}
	return elem
}

// sanitizeAlias turns a path element into a usable package identifier.
func sanitizeAlias(elem string) string {
	var b strings.Builder
	for _, r := range elem {
		switch {
		case r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z'):
			b.WriteRune(r)
		case '0' <= r && r <= '9':
			if b.Len() == 0 {
				b.WriteString("p")
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	alias := b.String()
	if alias == "" || alias == "_" {
		alias = "pkg"
	}
	if token.IsKeyword(alias) {
		alias += "_"
	}
	return alias
}
