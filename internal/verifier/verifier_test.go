package verifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/autoreg/internal/pipeline"
)

const testNamespace = "example.com/app/registry"

func render(t *testing.T, names ...string) *pipeline.Artifact {
	t.Helper()
	e := pipeline.NewEmitter("registry", "autoreg_registry.go")
	art, err := e.Emit(pipeline.PassContext{Generation: 1, Namespace: testNamespace}, pipeline.NewDiscoverySet(names...))
	require.NoError(t, err)
	return art
}

func writeArtifact(t *testing.T, art *pipeline.Artifact) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), art.FileName)
	require.NoError(t, os.WriteFile(path, art.Content, 0o644))
	return path
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier("", nil)
	require.NoError(t, err)
	assert.Equal(t, MethodSHA256, v.Method())

	for _, m := range []Method{MethodCount, MethodSHA256, MethodSkip} {
		v, err := NewVerifier(m, nil)
		require.NoError(t, err)
		assert.Equal(t, m, v.Method())
	}

	_, err = NewVerifier("crc32", nil)
	assert.ErrorContains(t, err, "crc32")
}

func TestVerify_UpToDate(t *testing.T) {
	art := render(t, "example.com/app/plugins.Echo", "example.com/app/plugins.Upper")
	path := writeArtifact(t, art)

	for _, m := range []Method{MethodCount, MethodSHA256} {
		t.Run(string(m), func(t *testing.T) {
			v, err := NewVerifier(m, nil)
			require.NoError(t, err)

			res, err := v.Verify(path, art)
			require.NoError(t, err)
			assert.True(t, res.Match)
			assert.False(t, res.Missing)
		})
	}
}

func TestVerify_Stale(t *testing.T) {
	old := render(t, "example.com/app/plugins.Echo")
	path := writeArtifact(t, old)
	want := render(t, "example.com/app/plugins.Echo", "example.com/app/plugins.Upper")

	tests := []struct {
		method Method
		check  func(t *testing.T, res *Result)
	}{
		{MethodCount, func(t *testing.T, res *Result) {
			assert.Equal(t, 2, res.ExpectedCount)
			assert.Equal(t, 1, res.ActualCount)
		}},
		{MethodSHA256, func(t *testing.T, res *Result) {
			assert.NotEqual(t, res.ExpectedHash, res.ActualHash)
			assert.Len(t, res.ActualHash, 64)
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			v, err := NewVerifier(tt.method, nil)
			require.NoError(t, err)

			res, err := v.Verify(path, want)
			assert.ErrorIs(t, err, ErrStale)
			require.NotNil(t, res)
			assert.False(t, res.Match)
			tt.check(t, res)
		})
	}
}

func TestVerify_CountToleratesEdits(t *testing.T) {
	want := render(t, "example.com/app/plugins.Echo")
	edited := append([]byte("// local edit\n"), want.Content...)
	path := filepath.Join(t.TempDir(), want.FileName)
	require.NoError(t, os.WriteFile(path, edited, 0o644))

	count, err := NewVerifier(MethodCount, nil)
	require.NoError(t, err)
	_, err = count.Verify(path, want)
	assert.NoError(t, err)

	sha, err := NewVerifier(MethodSHA256, nil)
	require.NoError(t, err)
	_, err = sha.Verify(path, want)
	assert.ErrorIs(t, err, ErrStale)
}

func TestVerify_Missing(t *testing.T) {
	v, err := NewVerifier(MethodSHA256, nil)
	require.NoError(t, err)

	res, err := v.Verify(filepath.Join(t.TempDir(), "absent.go"), render(t, "Ns.A"))
	assert.ErrorIs(t, err, ErrStale)
	assert.True(t, res.Missing)
	assert.Equal(t, 1, res.ExpectedCount)
}

func TestVerify_EmptySetNeverStale(t *testing.T) {
	v, err := NewVerifier(MethodSHA256, nil)
	require.NoError(t, err)

	res, err := v.Verify(filepath.Join(t.TempDir(), "absent.go"), nil)
	require.NoError(t, err)
	assert.True(t, res.Match)
	assert.True(t, res.Missing)

	path := writeArtifact(t, render(t, "Ns.A"))
	res, err = v.Verify(path, nil)
	require.NoError(t, err)
	assert.True(t, res.Match)
	assert.False(t, res.Missing)
}

func TestVerify_Skip(t *testing.T) {
	v, err := NewVerifier(MethodSkip, nil)
	require.NoError(t, err)

	res, err := v.Verify(filepath.Join(t.TempDir(), "absent.go"), render(t, "Ns.A"))
	require.NoError(t, err)
	assert.True(t, res.Match)
}

func TestVerify_ReadError(t *testing.T) {
	v, err := NewVerifier(MethodSHA256, nil)
	require.NoError(t, err)

	_, err = v.Verify(t.TempDir(), render(t, "Ns.A"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrStale)
}
