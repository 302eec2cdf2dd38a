package pipeline

import "github.com/dbsmedya/autoreg/internal/decl"

// IsCandidate is the syntactic pre-filter run on every declaration before
// classification. Generic declarations are never candidates: capability
// membership cannot be decided without instantiation information.
func IsCandidate(d *decl.Declaration) bool {
	return d != nil && !d.HasTypeParams()
}
