package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dbsmedya/autoreg/internal/decl"
	"github.com/dbsmedya/autoreg/internal/graph"
	"github.com/dbsmedya/autoreg/internal/logger"
)

// DefaultMemoSize is used when Options.MemoSize is not positive.
const DefaultMemoSize = 4096

// Options configures a Pipeline.
type Options struct {
	Whitelist Whitelist
	Namespace string   // import path of the generated package
	Package   string   // package clause of the generated file
	FileName  string   // generated file name
	Workers   int      // classification concurrency; 0 means GOMAXPROCS
	MemoSize  int      // classification memo entries
	Seed      []string // previously persisted discovery set, nil if none
	Logger    *logger.Logger
}

// Decision pairs a declaration with its classification.
type Decision struct {
	Declaration    *decl.Declaration
	Classification Classification
}

// Stats summarizes one pass.
type Stats struct {
	Declarations int
	Candidates   int
	Included     int
	MemoHits     int
	Excluded     map[Reason]int
	Duration     time.Duration
}

// Result is the outcome of one pass.
type Result struct {
	Generation uint64
	Set        DiscoverySet
	Changed    bool
	Artifact   *Artifact // nil when Set is empty
	Decisions  []Decision
	Hierarchy  *graph.Hierarchy
	Stats      Stats
}

type memoKey struct {
	decl     decl.Digest
	ancestry decl.Digest
}

// Pipeline runs discovery passes. Passes are serialized; within a pass,
// classification fans out across declarations.
type Pipeline struct {
	mu         sync.Mutex
	opts       Options
	classifier *Classifier
	aggregator *Aggregator
	emitter    *Emitter
	memo       *lru.Cache[memoKey, Classification]
	generation uint64
	artifact   *Artifact
	logger     *logger.Logger

	beforeEvaluate func(*decl.Declaration) // test hook, runs inside the fan-out
}

// New creates a pipeline. The whitelist and namespace are fixed for the
// pipeline's lifetime.
func New(opts Options) (*Pipeline, error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if opts.Package == "" {
		return nil, fmt.Errorf("package name is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.MemoSize <= 0 {
		opts.MemoSize = DefaultMemoSize
	}

	memo, err := lru.New[memoKey, Classification](opts.MemoSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create classification memo: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Pipeline{
		opts:       opts,
		classifier: NewClassifier(opts.Whitelist, opts.Namespace),
		aggregator: NewAggregator(opts.Seed),
		emitter:    NewEmitter(opts.Package, opts.FileName),
		memo:       memo,
		logger:     log.WithNamespace(opts.Namespace),
	}, nil
}

// SetLogger replaces the pipeline logger.
func (p *Pipeline) SetLogger(log *logger.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = log.WithNamespace(p.opts.Namespace)
}

// Generation returns the number of completed passes.
func (p *Pipeline) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Previous returns the discovery set of the last completed pass, or the
// seed if no pass has completed.
func (p *Pipeline) Previous() DiscoverySet {
	return p.aggregator.Previous()
}

// Run executes one pass over table. The hierarchy is built once, every
// declaration is filtered and classified concurrently, and only after all
// classifications have joined is the set aggregated, compared against the
// previous pass and rendered.
//
// If ctx is cancelled before the pass completes, Run returns ctx.Err() and
// leaves the cached set, the cached artifact and the generation untouched.
func (p *Pipeline) Run(ctx context.Context, table *decl.Table) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if table == nil {
		table = decl.NewTable()
	}

	start := time.Now()
	pc := PassContext{Generation: p.generation + 1, Namespace: p.opts.Namespace}
	log := p.logger.WithPass(pc.Generation)

	h, err := graph.BuildFromTable(table)
	if err != nil {
		return nil, fmt.Errorf("failed to build type hierarchy: %w", err)
	}
	ancestry := h.AncestryDigests()

	decls := table.All()
	decisions := make([]Decision, len(decls))
	misses := make([]*memoKey, len(decls))
	hits := make([]bool, len(decls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, d := range decls {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if p.beforeEvaluate != nil {
				p.beforeEvaluate(d)
			}
			c, key, hit := p.evaluate(d, h, ancestry)
			decisions[i] = Decision{Declaration: d, Classification: c}
			hits[i] = hit
			if !hit {
				misses[i] = key
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Barrier: a pass cancelled after the join still aborts as a whole.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	classifications := make([]Classification, len(decisions))
	stats := Stats{Declarations: len(decls), Excluded: make(map[Reason]int)}
	for i, dec := range decisions {
		c := dec.Classification
		classifications[i] = c
		if c.Reason != ReasonGeneric {
			stats.Candidates++
		}
		if hits[i] {
			stats.MemoHits++
		}
		if c.IsIncluded() {
			stats.Included++
		} else {
			stats.Excluded[c.Reason]++
			if dec.Declaration != nil {
				log.WithDecl(dec.Declaration.QualifiedName()).Debugw("Type excluded", "reason", c.Reason.String())
			}
		}
	}

	set := Aggregate(classifications)
	changed := p.aggregator.Changed(set)

	artifact := p.artifact
	if changed || (artifact == nil && len(set) > 0) {
		artifact, err = p.emitter.Emit(pc, set)
		if err != nil {
			return nil, err
		}
	}

	// Commit point: nothing above mutated pipeline state.
	p.aggregator.Commit(set)
	for i, key := range misses {
		if key != nil {
			p.memo.Add(*key, decisions[i].Classification)
		}
	}
	p.artifact = artifact
	p.generation = pc.Generation
	stats.Duration = time.Since(start)

	log.Infow("Pass complete",
		"declarations", stats.Declarations,
		"candidates", stats.Candidates,
		"discovered", len(set),
		"memo_hits", stats.MemoHits,
		"changed", changed,
		"duration", stats.Duration,
	)

	return &Result{
		Generation: pc.Generation,
		Set:        set,
		Changed:    changed,
		Artifact:   artifact,
		Decisions:  decisions,
		Hierarchy:  h,
		Stats:      stats,
	}, nil
}

// evaluate classifies one declaration, consulting the memo first. It
// returns the memo key to record on a miss, or nil when the declaration is
// not memoizable.
func (p *Pipeline) evaluate(d *decl.Declaration, h *graph.Hierarchy, ancestry map[string]decl.Digest) (Classification, *memoKey, bool) {
	if !IsCandidate(d) {
		return p.classifier.Evaluate(d, h), nil, false
	}

	digest, ok := ancestry[d.QualifiedName()]
	if !ok {
		return p.classifier.Classify(d, h), nil, false
	}

	key := memoKey{decl: d.Digest(), ancestry: digest}
	if c, ok := p.memo.Get(key); ok {
		return c, nil, true
	}
	return p.classifier.Classify(d, h), &key, false
}
