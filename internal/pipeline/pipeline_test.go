package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/autoreg/internal/decl"
)

func newTestPipeline(t *testing.T, seed []string) *Pipeline {
	t.Helper()
	p, err := New(Options{
		Whitelist: NewWhitelist("ICapability"),
		Namespace: testNamespace,
		Package:   "registry",
		FileName:  "autoreg_registry.go",
		Workers:   4,
		MemoSize:  64,
		Seed:      seed,
	})
	require.NoError(t, err)
	return p
}

func capability(name string) *decl.Declaration {
	return &decl.Declaration{Package: "Ns", Name: name, Implements: []string{"ICapability"}}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Package: "registry"})
	assert.Error(t, err)

	_, err = New(Options{Namespace: testNamespace})
	assert.Error(t, err)

	p, err := New(Options{Namespace: testNamespace, Package: "registry"})
	require.NoError(t, err)
	assert.Greater(t, p.opts.Workers, 0)
	assert.Equal(t, DefaultMemoSize, p.opts.MemoSize)
}

func TestRun_Scenarios(t *testing.T) {
	tests := []struct {
		name  string
		decls []*decl.Declaration
		want  DiscoverySet
	}{
		{
			name:  "non-abstract implementation",
			decls: []*decl.Declaration{capability("A")},
			want:  DiscoverySet{"Ns.A"},
		},
		{
			name: "abstract implementation",
			decls: []*decl.Declaration{
				{Package: "Ns", Name: "B", Abstract: true, Implements: []string{"ICapability"}},
			},
		},
		{
			name: "opt-out marker",
			decls: []*decl.Declaration{
				{Package: "Ns", Name: "C", OptOut: true, Implements: []string{"ICapability"}},
			},
		},
		{
			name: "generic type",
			decls: []*decl.Declaration{
				{Package: "Ns", Name: "D", TypeParams: []string{"T"}, Implements: []string{"ICapability"}},
			},
		},
		{
			name:  "lexicographic order",
			decls: []*decl.Declaration{capability("Zebra"), capability("Apple")},
			want:  DiscoverySet{"Ns.Apple", "Ns.Zebra"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t, nil)

			res, err := p.Run(context.Background(), decl.NewTable(tt.decls...))
			require.NoError(t, err)

			assert.Equal(t, len(tt.want), len(res.Set))
			if len(tt.want) == 0 {
				assert.Nil(t, res.Artifact, "an empty set must not produce an artifact")
				return
			}

			assert.Equal(t, tt.want, res.Set)
			require.NotNil(t, res.Artifact)
			text := string(res.Artifact.Content)
			assert.Equal(t, len(tt.want), strings.Count(text, "reflect.TypeFor["))

			last := -1
			for _, name := range tt.want {
				idx := strings.Index(text, "Ns."+strings.TrimPrefix(name, "Ns.")+"]")
				require.GreaterOrEqual(t, idx, 0, "missing %s", name)
				assert.Greater(t, idx, last)
				last = idx
			}
		})
	}
}

func TestRun_GenericExcludedAtFilter(t *testing.T) {
	p := newTestPipeline(t, nil)

	res, err := p.Run(context.Background(), decl.NewTable(
		&decl.Declaration{Package: "Ns", Name: "D", TypeParams: []string{"T"}, Implements: []string{"ICapability"}},
	))
	require.NoError(t, err)

	require.Len(t, res.Decisions, 1)
	assert.Equal(t, ReasonGeneric, res.Decisions[0].Classification.Reason)
	assert.Equal(t, 0, res.Stats.Candidates)
	assert.Equal(t, 1, res.Stats.Excluded[ReasonGeneric])
}

func TestRun_UnchangedSecondPass(t *testing.T) {
	p := newTestPipeline(t, nil)
	table := decl.NewTable(capability("Apple"), capability("Zebra"))

	first, err := p.Run(context.Background(), table)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Equal(t, uint64(1), first.Generation)

	second, err := p.Run(context.Background(), table)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, uint64(2), second.Generation)
	assert.Same(t, first.Artifact, second.Artifact, "unchanged pass must not re-render")
	assert.Equal(t, first.Artifact.Content, second.Artifact.Content)
	assert.Equal(t, 2, second.Stats.MemoHits)
}

func TestRun_IdempotentAcrossPipelines(t *testing.T) {
	decls := []*decl.Declaration{capability("Zebra"), capability("Mango"), capability("Apple")}

	a, err := newTestPipeline(t, nil).Run(context.Background(), decl.NewTable(decls...))
	require.NoError(t, err)

	// reversed arrival order
	reversed := []*decl.Declaration{decls[2], decls[1], decls[0]}
	b, err := newTestPipeline(t, nil).Run(context.Background(), decl.NewTable(reversed...))
	require.NoError(t, err)

	assert.Equal(t, a.Artifact.Content, b.Artifact.Content)
}

func TestRun_ChangeDetected(t *testing.T) {
	p := newTestPipeline(t, nil)

	_, err := p.Run(context.Background(), decl.NewTable(capability("A")))
	require.NoError(t, err)

	res, err := p.Run(context.Background(), decl.NewTable(capability("A"), capability("B")))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, DiscoverySet{"Ns.A", "Ns.B"}, res.Set)
	assert.Contains(t, string(res.Artifact.Content), "Ns.B")

	// B becomes abstract: the set shrinks back
	b := capability("B")
	b.Abstract = true
	res, err = p.Run(context.Background(), decl.NewTable(capability("A"), b))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, DiscoverySet{"Ns.A"}, res.Set)
	assert.NotContains(t, string(res.Artifact.Content), "Ns.B")
}

func TestRun_SetBecomesEmpty(t *testing.T) {
	p := newTestPipeline(t, nil)

	_, err := p.Run(context.Background(), decl.NewTable(capability("A")))
	require.NoError(t, err)

	res, err := p.Run(context.Background(), decl.NewTable())
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Empty(t, res.Set)
	assert.Nil(t, res.Artifact)
}

func TestRun_SeededUnchanged(t *testing.T) {
	p := newTestPipeline(t, []string{"Ns.A"})

	res, err := p.Run(context.Background(), decl.NewTable(capability("A")))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	require.NotNil(t, res.Artifact, "a seeded pipeline still renders its first artifact")
	assert.Contains(t, string(res.Artifact.Content), "Ns.A")
}

func TestRun_AncestorEditInvalidatesMemo(t *testing.T) {
	p := newTestPipeline(t, nil)
	sub := &decl.Declaration{Package: "Ns", Name: "Sub", Embeds: []string{"Ns.Base"}}

	res, err := p.Run(context.Background(), decl.NewTable(
		sub,
		&decl.Declaration{Package: "Ns", Name: "Base", Abstract: true, Implements: []string{"IOther"}},
	))
	require.NoError(t, err)
	assert.Empty(t, res.Set)

	// Sub itself is unchanged, but its base now implements the capability.
	res, err = p.Run(context.Background(), decl.NewTable(
		sub,
		&decl.Declaration{Package: "Ns", Name: "Base", Abstract: true, Implements: []string{"ICapability"}},
	))
	require.NoError(t, err)
	assert.Equal(t, DiscoverySet{"Ns.Sub"}, res.Set)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	p := newTestPipeline(t, nil)
	_, err := p.Run(context.Background(), decl.NewTable(capability("A")))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Run(ctx, decl.NewTable(capability("A"), capability("B")))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)

	assert.Equal(t, DiscoverySet{"Ns.A"}, p.Previous(), "cancelled pass must not touch the cached set")
	assert.Equal(t, uint64(1), p.Generation())
}

func TestRun_CancelledLeavesPipelineUsable(t *testing.T) {
	p, err := New(Options{
		Whitelist: NewWhitelist("ICapability"),
		Namespace: testNamespace,
		Package:   "registry",
		Workers:   1,
	})
	require.NoError(t, err)

	decls := make([]*decl.Declaration, 0, 200)
	for i := 0; i < 200; i++ {
		decls = append(decls, capability(fmt.Sprintf("T%03d", i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx, decl.NewTable(decls...))
	require.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, p.Previous())
	assert.Equal(t, uint64(0), p.Generation())
	assert.Equal(t, 0, p.memo.Len(), "a cancelled pass must not populate the memo")

	// The pipeline is still usable afterwards.
	res, err := p.Run(context.Background(), decl.NewTable(decls...))
	require.NoError(t, err)
	assert.Len(t, res.Set, 200)
	assert.True(t, res.Changed)
}

// cancelAt returns a pipeline with one committed pass over base and a table
// of n fresh declarations whose classification cancels ctx on the k-th
// evaluation.
func cancelAt(t *testing.T, n, k int32) (*Pipeline, *decl.Table, context.Context, *atomic.Int32) {
	t.Helper()
	p, err := New(Options{
		Whitelist: NewWhitelist("ICapability"),
		Namespace: testNamespace,
		Package:   "registry",
		Workers:   1,
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), decl.NewTable(capability("Base0"), capability("Base1")))
	require.NoError(t, err)

	decls := make([]*decl.Declaration, 0, n)
	for i := range n {
		decls = append(decls, capability(fmt.Sprintf("T%03d", i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var calls atomic.Int32
	p.beforeEvaluate = func(*decl.Declaration) {
		if calls.Add(1) == k {
			cancel()
		}
	}
	return p, decl.NewTable(decls...), ctx, &calls
}

func TestRun_CancelledDuringClassification(t *testing.T) {
	p, table, ctx, calls := cancelAt(t, 50, 2)
	memoBefore := p.memo.Len()

	res, err := p.Run(ctx, table)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)

	assert.Equal(t, int32(2), calls.Load(), "no classification starts after cancellation")
	assert.Equal(t, DiscoverySet{"Ns.Base0", "Ns.Base1"}, p.Previous())
	assert.Equal(t, uint64(1), p.Generation())
	assert.Equal(t, memoBefore, p.memo.Len())
	assert.Contains(t, string(p.artifact.Content), "Ns.Base0")
}

func TestRun_CancelledAfterJoin(t *testing.T) {
	// Cancelling while the last declaration is classified lets every
	// worker finish; the pass must still be discarded at the barrier.
	p, table, ctx, calls := cancelAt(t, 10, 10)
	memoBefore := p.memo.Len()

	res, err := p.Run(ctx, table)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)

	assert.Equal(t, int32(10), calls.Load())
	assert.Equal(t, DiscoverySet{"Ns.Base0", "Ns.Base1"}, p.Previous())
	assert.Equal(t, uint64(1), p.Generation())
	assert.Equal(t, memoBefore, p.memo.Len(), "memo is committed only with the pass")

	p.beforeEvaluate = nil
	res, err = p.Run(context.Background(), table)
	require.NoError(t, err)
	assert.Len(t, res.Set, 10)
	assert.Equal(t, uint64(2), res.Generation)
	assert.Equal(t, memoBefore+10, p.memo.Len())
}

func TestRun_NilTable(t *testing.T) {
	p := newTestPipeline(t, nil)
	res, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Set)
	assert.Nil(t, res.Artifact)
}

func TestRun_ConcurrentCallersSerialized(t *testing.T) {
	p := newTestPipeline(t, nil)
	table := decl.NewTable(capability("A"), capability("B"))

	done := make(chan *Result, 8)
	for i := 0; i < 8; i++ {
		go func() {
			res, err := p.Run(context.Background(), table)
			if err != nil {
				done <- nil
				return
			}
			done <- res
		}()
	}

	seen := make(map[uint64]bool)
	changed := 0
	for i := 0; i < 8; i++ {
		res := <-done
		require.NotNil(t, res)
		assert.False(t, seen[res.Generation], "generation %d reported twice", res.Generation)
		seen[res.Generation] = true
		if res.Changed {
			changed++
		}
	}
	assert.Equal(t, 1, changed)
	assert.Equal(t, uint64(8), p.Generation())
}
