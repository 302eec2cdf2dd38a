package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/autoreg/internal/source"
)

func startWatcher(t *testing.T, w *Watcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	// Let the event loop start before touching files.
	time.Sleep(20 * time.Millisecond)
	return cancel, errCh
}

func stopWatcher(t *testing.T, cancel context.CancelFunc, errCh <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatcher_DebounceCoalesces(t *testing.T) {
	dir := t.TempDir()

	var (
		mu        sync.Mutex
		calls     int
		collected []string
	)
	done := make(chan struct{})

	w, err := New(Config{
		Root:     dir,
		Debounce: 100 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			collected = append(collected, changed...)
			if calls == 1 {
				close(done)
			}
			return nil
		},
	})
	require.NoError(t, err)

	cancel, errCh := startWatcher(t, w)

	for _, name := range []string{"a.go", "b.go", "c.go"} {
		writeFile(t, dir, name, "package a\n")
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	time.Sleep(200 * time.Millisecond)
	stopWatcher(t, cancel, errCh)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
	for _, want := range []string{"a.go", "b.go", "c.go"} {
		assert.Contains(t, collected, want)
	}
	assert.True(t, slices.IsSorted(collected))
}

func TestWatcher_MatchFiltersEvents(t *testing.T) {
	dir := t.TempDir()
	m := &source.Matcher{
		Include: []string{"**/*.go", "**/*.autoreg.yaml"},
		Exclude: []string{"**/*_test.go"},
		Output:  "registry/autoreg_registry.go",
	}

	fired := make(chan []string, 10)
	w, err := New(Config{
		Root:     dir,
		Match:    m.Match,
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})
	require.NoError(t, err)

	cancel, errCh := startWatcher(t, w)

	writeFile(t, dir, "notes.txt", "x")
	writeFile(t, dir, "a_test.go", "package a\n")
	writeFile(t, dir, "registry/autoreg_registry.go", "package registry\n")
	time.Sleep(200 * time.Millisecond)

	select {
	case changed := <-fired:
		t.Fatalf("unexpected callback for %v", changed)
	default:
	}

	writeFile(t, dir, "plugins.autoreg.yaml", "package: x\n")

	select {
	case changed := <-fired:
		assert.Equal(t, []string{"plugins.autoreg.yaml"}, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	stopWatcher(t, cancel, errCh)
}

func TestWatcher_IgnorePatterns(t *testing.T) {
	dir := t.TempDir()

	fired := make(chan []string, 10)
	w, err := New(Config{
		Root:     dir,
		Ignore:   []string{"gen/**"},
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})
	require.NoError(t, err)

	cancel, errCh := startWatcher(t, w)

	writeFile(t, dir, "gen/out.go", "package gen\n")
	time.Sleep(200 * time.Millisecond)
	writeFile(t, dir, "main.go", "package main\n")

	select {
	case changed := <-fired:
		assert.NotContains(t, changed, "gen/out.go")
		assert.Contains(t, changed, "main.go")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	stopWatcher(t, cancel, errCh)
}

func TestWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()

	fired := make(chan []string, 10)
	w, err := New(Config{
		Root:     dir,
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})
	require.NoError(t, err)

	cancel, errCh := startWatcher(t, w)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "plugins"), 0o755))
	time.Sleep(100 * time.Millisecond)
	// Drain the directory creation batch.
	select {
	case <-fired:
	case <-time.After(time.Second):
	}

	writeFile(t, dir, "plugins/echo.go", "package plugins\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case changed := <-fired:
			if slices.Contains(changed, "plugins/echo.go") {
				stopWatcher(t, cancel, errCh)
				return
			}
		case <-deadline:
			t.Fatal("change in new subdirectory was not observed")
		}
	}
}

func TestWatcher_SkipIfBusy(t *testing.T) {
	dir := t.TempDir()

	var (
		active  atomic.Int32
		overlap atomic.Bool
		calls   atomic.Int32
	)

	w, err := New(Config{
		Root:     dir,
		Debounce: 20 * time.Millisecond,
		OnChange: func(_ context.Context, _ []string) error {
			if active.Add(1) > 1 {
				overlap.Store(true)
			}
			calls.Add(1)
			time.Sleep(150 * time.Millisecond)
			active.Add(-1)
			return nil
		},
	})
	require.NoError(t, err)

	cancel, errCh := startWatcher(t, w)

	for i := range 5 {
		writeFile(t, dir, "f.go", string(rune('a'+i)))
		time.Sleep(40 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)
	stopWatcher(t, cancel, errCh)

	assert.False(t, overlap.Load(), "callbacks ran concurrently")
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestWatcher_ContextCancel(t *testing.T) {
	w, err := New(Config{Root: t.TempDir(), Debounce: 50 * time.Millisecond})
	require.NoError(t, err)

	cancel, errCh := startWatcher(t, w)
	stopWatcher(t, cancel, errCh)
}

func TestWatcher_RunTwice(t *testing.T) {
	w, err := New(Config{Root: t.TempDir()})
	require.NoError(t, err)

	cancel, errCh := startWatcher(t, w)
	err = w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
	stopWatcher(t, cancel, errCh)
}

func TestNew_InvalidIgnorePattern(t *testing.T) {
	_, err := New(Config{Root: t.TempDir(), Ignore: []string{"[unclosed"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ignore pattern")
}

func TestNew_DefaultDebounce(t *testing.T) {
	w, err := New(Config{Root: t.TempDir()})
	require.NoError(t, err)
	defer w.fsw.Close()

	assert.Equal(t, defaultDebounce, w.debounce)
}

func TestWatcher_MovedInDirectory(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "root")
	require.NoError(t, os.Mkdir(dir, 0o755))

	fired := make(chan []string, 10)
	w, err := New(Config{
		Root:     dir,
		Match:    func(rel string) bool { return filepath.Ext(rel) == ".go" },
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})
	require.NoError(t, err)

	cancel, errCh := startWatcher(t, w)

	// Prepared outside the tree, then moved in as a whole.
	writeFile(t, base, "staged/nested/echo.go", "package nested\n")
	writeFile(t, base, "staged/notes.txt", "x")
	require.NoError(t, os.Rename(filepath.Join(base, "staged"), filepath.Join(dir, "plugins")))

	select {
	case changed := <-fired:
		assert.Equal(t, []string{"plugins/nested/echo.go"}, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("files of a moved-in directory were not reported")
	}

	stopWatcher(t, cancel, errCh)
}

func TestBatch_SkipsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	flushed := make(chan []string, 4)
	b := newBatch(10*time.Millisecond, func(changed []string) {
		flushed <- changed
		<-release
	})
	defer b.stop()

	b.add("a.go")
	first := <-flushed
	assert.Equal(t, []string{"a.go"}, first)

	// While the first flush blocks, later fires wait instead of overlapping.
	b.add("c.go")
	b.add("b.go")
	time.Sleep(50 * time.Millisecond)
	select {
	case changed := <-flushed:
		t.Fatalf("flush overlapped: %v", changed)
	default:
	}

	close(release)
	select {
	case changed := <-flushed:
		assert.Equal(t, []string{"b.go", "c.go"}, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("deferred batch never flushed")
	}
}

func TestDefaultIgnores(t *testing.T) {
	w := &Watcher{ignores: defaultIgnores}

	tests := []struct {
		path    string
		ignored bool
	}{
		{".git/config", true},
		{".git/objects/ab/cd1234", true},
		{".autoreg/discovery-0a1b2c3d.mp", true},
		{"main.go.swp", true},
		{"main.go.swo", true},
		{"backup~", true},
		{".DS_Store", true},
		{"sub/.DS_Store", true},
		{"registry/.tmp-123456", true},
		{"main.go", false},
		{"plugins/echo.autoreg.yaml", false},
		{".gitignore", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.ignored, w.ignored(tt.path))
		})
	}
}

func TestNew_IgnoresExtendDefaults(t *testing.T) {
	w, err := New(Config{Root: t.TempDir(), Ignore: []string{"gen/**"}})
	require.NoError(t, err)
	defer w.fsw.Close()

	assert.Equal(t, append(slices.Clone(defaultIgnores), "gen/**"), w.ignores)
	assert.Len(t, defaultIgnores, 7, "defaults are not modified")
}
