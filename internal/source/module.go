package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/mod/modfile"
)

// Module locates the Go module that contains the scanned sources.
type Module struct {
	Path string // module path from go.mod
	Dir  string // absolute directory containing go.mod
}

// FindModule walks up from dir to the nearest go.mod and reads its module
// path. If override is non-empty it is used as the module path and dir is
// taken as the module root.
func FindModule(dir, override string) (*Module, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if override != "" {
		return &Module{Path: override, Dir: abs}, nil
	}

	for cur := abs; ; {
		data, err := os.ReadFile(filepath.Join(cur, "go.mod"))
		if err == nil {
			modPath := modfile.ModulePath(data)
			if modPath == "" {
				return nil, fmt.Errorf("%s/go.mod has no module directive", cur)
			}
			return &Module{Path: modPath, Dir: cur}, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read go.mod: %w", err)
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("no go.mod found above %s (set sources.module)", abs)
		}
		cur = parent
	}
}

// ImportPath returns the import path of the package in dir, which must be
// inside the module.
func (m *Module) ImportPath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(m.Dir, abs)
	if err != nil {
		return "", fmt.Errorf("%s is outside module %s: %w", dir, m.Path, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return m.Path, nil
	}
	if rel == ".." || len(rel) > 2 && rel[:3] == "../" {
		return "", fmt.Errorf("%s is outside module %s", dir, m.Path)
	}
	return path.Join(m.Path, rel), nil
}
