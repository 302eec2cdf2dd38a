// Package watch re-runs discovery when source files change.
//
// Events are collected per relative path and handed to a callback once the
// tree has been quiet for the debounce period.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/dbsmedya/autoreg/internal/logger"
)

const defaultDebounce = 300 * time.Millisecond

// Paths under these patterns never trigger a pass: VCS data, the state
// directory, editor swap files and the temp files of atomic writes.
var defaultIgnores = []string{
	"**/.git/**",
	"**/.autoreg/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
	"**/.tmp-*",
}

// Config holds the parameters for a Watcher.
type Config struct {
	Root     string                // empty means the working directory
	Match    func(rel string) bool // slash separated, relative to Root; nil matches all
	Ignore   []string              // doublestar patterns added to the defaults
	Debounce time.Duration         // <= 0 selects 300ms
	OnChange func(ctx context.Context, changed []string) error
	Logger   *logger.Logger
}

// Watcher calls OnChange with the sorted set of matching paths that changed
// since the previous call. Calls never overlap.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	match    func(string) bool
	ignores  []string
	debounce time.Duration
	onChange func(context.Context, []string) error
	log      *logger.Logger
	started  atomic.Bool
}

// New watches every non-ignored directory under cfg.Root.
func New(cfg Config) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}
	for _, pat := range cfg.Ignore {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("watch: invalid ignore pattern %q", pat)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		root:     root,
		match:    cfg.Match,
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		debounce: cfg.Debounce,
		onChange: cfg.OnChange,
		log:      cfg.Logger,
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if w.log == nil {
		w.log = logger.NewNop()
	}

	if err := w.watchTree(root, nil); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run dispatches change batches until ctx is cancelled, then returns nil.
// It returns an error when fsnotify fails in a way it cannot recover from.
// Run may be called once.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.log.Warnw("Failed to close fsnotify watcher", "error", err)
		}
	}()

	b := newBatch(w.debounce, func(changed []string) {
		if ctx.Err() != nil || w.onChange == nil {
			return
		}
		if err := w.onChange(ctx, changed); err != nil {
			w.log.Errorw("Change handler failed", "error", err)
		}
	})
	defer b.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed")
			}
			w.handle(evt, b)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.log.Warnw("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) handle(evt fsnotify.Event, b *batch) {
	rel := w.relative(evt.Name)
	if w.ignored(rel) {
		return
	}

	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			// A directory moved in carries files that produce no events.
			if err := w.watchTree(evt.Name, b.add); err != nil {
				w.log.Warnw("Failed to watch new directory", "path", evt.Name, "error", err)
			}
			return
		}
	}

	if w.matches(rel) {
		b.add(rel)
	}
}

// watchTree adds dir and its non-ignored subdirectories to the watch. When
// visit is set it receives every matching file found on the way.
func (w *Watcher) watchTree(dir string, visit func(rel string)) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warnw("Skipping inaccessible path", "path", path, "error", err)
			return nil
		}
		rel := w.relative(path)
		if !d.IsDir() {
			if visit != nil && !w.ignored(rel) && w.matches(rel) {
				visit(rel)
			}
			return nil
		}
		if path != w.root && (w.ignored(rel) || w.ignored(rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", dir, err)
	}
	return nil
}

func (w *Watcher) relative(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) ignored(rel string) bool {
	return slices.ContainsFunc(w.ignores, func(pat string) bool {
		ok, _ := doublestar.Match(pat, rel)
		return ok
	})
}

func (w *Watcher) matches(rel string) bool {
	return w.match == nil || w.match(rel)
}

// batch accumulates paths until its timer fires. A fire that finds the
// previous flush still running re-arms the timer instead of overlapping it.
type batch struct {
	mu    sync.Mutex
	paths map[string]struct{}
	timer *time.Timer
	delay time.Duration
	busy  atomic.Bool
	flush func([]string)
}

func newBatch(delay time.Duration, flush func([]string)) *batch {
	return &batch{paths: make(map[string]struct{}), delay: delay, flush: flush}
}

func (b *batch) add(rel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paths[rel] = struct{}{}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.delay, b.fire)
		return
	}
	b.timer.Reset(b.delay)
}

func (b *batch) fire() {
	if !b.busy.CompareAndSwap(false, true) {
		b.mu.Lock()
		b.timer.Reset(b.delay)
		b.mu.Unlock()
		return
	}
	defer b.busy.Store(false)

	b.mu.Lock()
	changed := slices.Sorted(maps.Keys(b.paths))
	clear(b.paths)
	b.mu.Unlock()

	if len(changed) > 0 {
		b.flush(changed)
	}
}

func (b *batch) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
}
