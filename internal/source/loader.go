package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/dbsmedya/autoreg/internal/config"
	"github.com/dbsmedya/autoreg/internal/decl"
	"github.com/dbsmedya/autoreg/internal/logger"
)

// Matcher selects source files by doublestar patterns relative to a root.
type Matcher struct {
	Include []string
	Exclude []string
	Output  string // generated file, relative to the root; always excluded
}

// Match reports whether rel (slash or OS separated) is a source file.
func (m *Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	if m.Output != "" && rel == m.Output {
		return false
	}
	if !IsTableFile(rel) && !strings.HasSuffix(rel, ".go") {
		return false
	}
	for _, pat := range m.Exclude {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return false
		}
	}
	for _, pat := range m.Include {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// SkippedFile records a file, or a single table entry, that contributed no
// declarations.
type SkippedFile struct {
	Path   string
	Reason string
}

// Report summarizes one load.
type Report struct {
	Files        []string
	Skipped      []SkippedFile
	Declarations int
	Assertions   int
}

// Loader reads every matching file under a root into a declaration table.
type Loader struct {
	root    string
	module  string
	matcher *Matcher
	workers int
	logger  *logger.Logger
}

// NewLoader creates a loader from configuration.
func NewLoader(cfg *config.Config, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.NewNop()
	}

	root := cfg.Sources.Root
	if root == "" {
		root = "."
	}

	workers := cfg.Pipeline.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Loader{
		root:    root,
		module:  cfg.Sources.Module,
		matcher: NewMatcher(cfg),
		workers: workers,
		logger:  log,
	}
}

// NewMatcher builds the source matcher for cfg. The output path is made
// relative to the sources root.
func NewMatcher(cfg *config.Config) *Matcher {
	m := &Matcher{
		Include: cfg.Sources.Include,
		Exclude: cfg.Sources.Exclude,
	}

	root, err := filepath.Abs(cfg.Sources.Root)
	if err != nil {
		return m
	}
	out, err := filepath.Abs(cfg.OutputPath())
	if err != nil {
		return m
	}
	if rel, err := filepath.Rel(root, out); err == nil {
		m.Output = filepath.ToSlash(rel)
	}
	return m
}

// Root returns the sources root.
func (l *Loader) Root() string {
	return l.root
}

// Matcher returns the loader's file matcher.
func (l *Loader) Matcher() *Matcher {
	return l.matcher
}

// Files returns the matching files relative to the root, sorted.
func (l *Loader) Files() ([]string, error) {
	fsys := os.DirFS(l.root)
	seen := make(map[string]bool)

	for _, pat := range l.matcher.Include {
		err := doublestar.GlobWalk(fsys, pat, func(p string, d fs.DirEntry) error {
			if !d.IsDir() && l.matcher.Match(p) {
				seen[p] = true
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to glob %q: %w", pat, err)
		}
	}

	files := make([]string, 0, len(seen))
	for p := range seen {
		files = append(files, p)
	}
	slices.Sort(files)
	return files, nil
}

type parsed struct {
	decls      []*decl.Declaration
	assertions []Assertion
	dropped    []*EntryError
	skip       string
}

// Load parses every matching file concurrently and merges the results into
// one table in file order. Files that fail to parse are skipped with a
// warning. Compile-time assertions are applied to declarations of the same
// qualified name once all files are read.
func (l *Loader) Load(ctx context.Context) (*decl.Table, *Report, error) {
	files, err := l.Files()
	if err != nil {
		return nil, nil, err
	}

	var mod *Module
	if hasGoFiles(files) {
		mod, err = FindModule(l.root, l.module)
		if err != nil {
			return nil, nil, err
		}
	}

	results := make([]parsed, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = l.parseFile(rel, mod)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	report := &Report{Files: files}
	table := decl.NewTable()
	var assertions []Assertion
	for i, res := range results {
		if res.skip != "" {
			l.logger.Warnw("Skipping source file", "file", files[i], "reason", res.skip)
			report.Skipped = append(report.Skipped, SkippedFile{Path: files[i], Reason: res.skip})
			continue
		}
		for _, e := range res.dropped {
			l.logger.Warnw("Skipping table entry", "file", e.File, "line", e.Line, "reason", e.Err.Error())
			report.Skipped = append(report.Skipped, SkippedFile{
				Path:   fmt.Sprintf("%s:%d", e.File, e.Line),
				Reason: e.Err.Error(),
			})
		}
		for _, d := range res.decls {
			table.Add(d)
		}
		assertions = append(assertions, res.assertions...)
	}

	for _, a := range assertions {
		d, ok := table.Get(a.Type)
		if !ok || slices.Contains(d.Implements, a.Interface) {
			continue
		}
		d.Implements = append(d.Implements, a.Interface)
		report.Assertions++
	}
	report.Declarations = table.Len()

	l.logger.Debugw("Sources loaded",
		"files", len(files),
		"skipped", len(report.Skipped),
		"declarations", report.Declarations,
	)

	return table, report, nil
}

func (l *Loader) parseFile(rel string, mod *Module) parsed {
	full := filepath.Join(l.root, filepath.FromSlash(rel))
	data, err := os.ReadFile(full)
	if err != nil {
		return parsed{skip: err.Error()}
	}

	if IsTableFile(rel) {
		decls, dropped, err := ParseTable(rel, data)
		if err != nil {
			return parsed{skip: err.Error()}
		}
		return parsed{decls: decls, dropped: dropped}
	}

	importPath, err := mod.ImportPath(filepath.Dir(full))
	if err != nil {
		return parsed{skip: err.Error()}
	}
	f, err := ParseGoFile(rel, data, importPath)
	if err != nil {
		return parsed{skip: err.Error()}
	}
	if f.Package == "main" || strings.HasSuffix(f.Package, "_test") {
		return parsed{skip: fmt.Sprintf("package %s cannot be imported", f.Package)}
	}
	return parsed{decls: f.Declarations, assertions: f.Assertions}
}

func hasGoFiles(files []string) bool {
	return slices.ContainsFunc(files, func(f string) bool { return !IsTableFile(f) })
}
