// Package verifier checks that a generated registry on disk matches the
// registry a fresh pass would write.
package verifier

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dbsmedya/autoreg/internal/logger"
	"github.com/dbsmedya/autoreg/internal/pipeline"
)

// Method defines how the on-disk file is compared.
type Method string

const (
	// MethodCount compares the number of registry entries only.
	MethodCount Method = "count"
	// MethodSHA256 compares the full file contents.
	MethodSHA256 Method = "sha256"
	// MethodSkip accepts any file.
	MethodSkip Method = "skip"
)

// ErrStale is returned by Verify when the file does not match.
var ErrStale = errors.New("generated registry is stale")

// entryMarker prefixes every element of the rendered registry.
var entryMarker = []byte("reflect.TypeFor[")

// Result holds the outcome of one comparison.
type Result struct {
	Path          string
	Method        Method
	ExpectedCount int
	ActualCount   int
	ExpectedHash  string
	ActualHash    string
	Missing       bool
	Match         bool
}

// Verifier compares rendered artifacts with files on disk.
type Verifier struct {
	method Method
	logger *logger.Logger
}

// NewVerifier creates a verifier. An empty method defaults to MethodSHA256.
func NewVerifier(method Method, log *logger.Logger) (*Verifier, error) {
	if method == "" {
		method = MethodSHA256
	}
	switch method {
	case MethodCount, MethodSHA256, MethodSkip:
	default:
		return nil, fmt.Errorf("unknown verification method %q", method)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Verifier{method: method, logger: log}, nil
}

// Method returns the configured comparison method.
func (v *Verifier) Method() Method {
	return v.method
}

// Verify compares the file at path with want. A nil want (empty discovery
// set) always matches: an existing file is never retracted.
func (v *Verifier) Verify(path string, want *pipeline.Artifact) (*Result, error) {
	res := &Result{Path: path, Method: v.method}

	if v.method == MethodSkip {
		v.logger.Info("Verification SKIPPED (method=skip)")
		res.Match = true
		return res, nil
	}

	actual, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		res.Missing = true
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if want == nil {
		if !res.Missing {
			v.logger.Warnw("Discovery set is empty but a generated file exists", "path", path)
		}
		res.Match = true
		return res, nil
	}

	if res.Missing {
		res.ExpectedCount = countEntries(want.Content)
		return res, fmt.Errorf("%w: %s does not exist", ErrStale, path)
	}

	switch v.method {
	case MethodCount:
		res.ExpectedCount = countEntries(want.Content)
		res.ActualCount = countEntries(actual)
		res.Match = res.ExpectedCount == res.ActualCount
	case MethodSHA256:
		res.ExpectedHash = hashContent(want.Content)
		res.ActualHash = hashContent(actual)
		res.Match = res.ExpectedHash == res.ActualHash
	}

	if !res.Match {
		v.logger.Errorw("Generated registry is out of date",
			"path", path,
			"method", v.method,
			"expected_count", res.ExpectedCount,
			"actual_count", res.ActualCount,
		)
		return res, fmt.Errorf("%w: %s differs (%s)", ErrStale, path, v.method)
	}

	v.logger.Debugw("Generated registry is up to date", "path", path, "method", v.method)
	return res, nil
}

func countEntries(content []byte) int {
	return bytes.Count(content, entryMarker)
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
