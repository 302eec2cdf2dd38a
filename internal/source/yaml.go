package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dbsmedya/autoreg/internal/decl"
)

// TableSuffix marks declaration table files.
const TableSuffix = ".autoreg.yaml"

type tableFile struct {
	Package string      `yaml:"package"`
	Types   []yaml.Node `yaml:"types"`
}

type tableEntry struct {
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"`
	Abstract   bool     `yaml:"abstract"`
	OptOut     bool     `yaml:"opt_out"`
	TypeParams []string `yaml:"type_params"`
	Implements []string `yaml:"implements"`
	Embeds     []string `yaml:"embeds"`
}

// IsTableFile reports whether name is a declaration table.
func IsTableFile(name string) bool {
	return strings.HasSuffix(name, TableSuffix)
}

// EntryError reports a table entry that was dropped.
type EntryError struct {
	File string
	Line int
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// ParseTable decodes a declaration table. References without a dot that
// name a type declared in the same table resolve to package.Name; all other
// references are kept verbatim. An empty document yields no declarations.
//
// A malformed entry (undecodable, unnamed or of unknown kind) is dropped and
// reported; the remaining entries are still returned. Only a document that
// cannot be decoded at all, or has no package, is an error.
func ParseTable(filename string, data []byte) ([]*decl.Declaration, []*EntryError, error) {
	var tf tableFile
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&tf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to decode %s: %w", filename, err)
	}

	if len(tf.Types) > 0 && strings.TrimSpace(tf.Package) == "" {
		return nil, nil, fmt.Errorf("%s: package is required", filename)
	}

	var dropped []*EntryError
	drop := func(line int, err error) {
		dropped = append(dropped, &EntryError{File: filename, Line: line, Err: err})
	}

	type entry struct {
		tableEntry
		kind decl.Kind
		line int
	}
	entries := make([]entry, 0, len(tf.Types))
	local := make(map[string]bool, len(tf.Types))
	for i := range tf.Types {
		line := tf.Types[i].Line
		var e tableEntry
		if err := tf.Types[i].Decode(&e); err != nil {
			drop(line, err)
			continue
		}
		if strings.TrimSpace(e.Name) == "" {
			drop(line, errors.New("type name is required"))
			continue
		}
		kind, err := decl.ParseKind(e.Kind)
		if err != nil {
			drop(line, err)
			continue
		}
		entries = append(entries, entry{tableEntry: e, kind: kind, line: line})
		local[e.Name] = true
	}

	qualify := func(refs []string) []string {
		var out []string
		for _, ref := range refs {
			ref = strings.TrimSpace(ref)
			switch {
			case ref == "":
			case !strings.Contains(ref, ".") && local[ref]:
				out = append(out, tf.Package+"."+ref)
			default:
				out = append(out, ref)
			}
		}
		return out
	}

	decls := make([]*decl.Declaration, 0, len(entries))
	for _, e := range entries {
		decls = append(decls, &decl.Declaration{
			Package:    tf.Package,
			Name:       e.Name,
			Kind:       e.kind,
			TypeParams: e.TypeParams,
			Abstract:   e.Abstract,
			OptOut:     e.OptOut,
			Implements: qualify(e.Implements),
			Embeds:     qualify(e.Embeds),
			File:       filename,
			Line:       e.line,
		})
	}

	return decls, dropped, nil
}
