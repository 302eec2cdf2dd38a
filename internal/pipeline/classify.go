package pipeline

import (
	"go/token"

	"github.com/dbsmedya/autoreg/internal/decl"
	"github.com/dbsmedya/autoreg/internal/graph"
)

// Reason explains why a declaration was excluded.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonUnresolved
	ReasonGeneric
	ReasonAbstract
	ReasonOptOut
	ReasonNoInterfaces
	ReasonNoCapability
	ReasonUnexported
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "included"
	case ReasonUnresolved:
		return "unresolved"
	case ReasonGeneric:
		return "generic"
	case ReasonAbstract:
		return "abstract"
	case ReasonOptOut:
		return "opt-out"
	case ReasonNoInterfaces:
		return "no-interfaces"
	case ReasonNoCapability:
		return "no-capability"
	case ReasonUnexported:
		return "unexported"
	default:
		return "unknown"
	}
}

// Classification is the outcome for one declaration: either Included with
// the qualified name, or Excluded with a reason.
type Classification struct {
	Name    string   // qualified name; empty when excluded
	Reason  Reason   // ReasonNone when included
	Matched []string // whitelisted identifiers that qualified the type
}

// Included returns an inclusion of the named type.
func Included(name string, matched []string) Classification {
	return Classification{Name: name, Matched: matched}
}

// Excluded returns an exclusion for the given reason.
func Excluded(reason Reason) Classification {
	return Classification{Reason: reason}
}

// IsIncluded reports whether the type was discovered.
func (c Classification) IsIncluded() bool {
	return c.Reason == ReasonNone && c.Name != ""
}

// PassContext carries the values that are fixed for one pass.
type PassContext struct {
	Generation uint64 // increases by one per completed pass
	Namespace  string // import path of the generated registry package
}

// Classifier resolves candidates against a whitelist. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	whitelist Whitelist
	namespace string
}

// NewClassifier creates a classifier for the given whitelist. namespace is
// the package the registry is generated into; unexported types of any other
// package cannot be referenced from it.
func NewClassifier(whitelist Whitelist, namespace string) *Classifier {
	return &Classifier{whitelist: whitelist, namespace: namespace}
}

// Whitelist returns the classifier's whitelist.
func (c *Classifier) Whitelist() Whitelist {
	return c.whitelist
}

// Classify decides a single candidate. Checks run in order and the first
// match wins: unresolved, abstract (interfaces included), opt-out, no
// interfaces, then whitelist intersection of the transitive interface set.
// A type that would be included but is unexported outside the namespace
// package is excluded as unexported.
// The result depends only on d and the part of h reachable from it.
func (c *Classifier) Classify(d *decl.Declaration, h *graph.Hierarchy) Classification {
	if d == nil || !d.WellFormed() || h == nil {
		return Excluded(ReasonUnresolved)
	}

	name := d.QualifiedName()
	if !h.IsDeclared(name) {
		return Excluded(ReasonUnresolved)
	}

	if d.Abstract || d.IsInterface() {
		return Excluded(ReasonAbstract)
	}

	if d.OptOut {
		return Excluded(ReasonOptOut)
	}

	ifaces := h.InterfacesWith(name, c.whitelist.Contains)
	if len(ifaces) == 0 {
		return Excluded(ReasonNoInterfaces)
	}

	matched := c.whitelist.Match(ifaces)
	if len(matched) == 0 {
		return Excluded(ReasonNoCapability)
	}

	if !token.IsExported(d.Name) && d.Package != c.namespace {
		return Excluded(ReasonUnexported)
	}

	return Included(name, matched)
}

// Evaluate runs the candidate filter followed by Classify.
func (c *Classifier) Evaluate(d *decl.Declaration, h *graph.Hierarchy) Classification {
	if d == nil {
		return Excluded(ReasonUnresolved)
	}
	if !IsCandidate(d) {
		return Excluded(ReasonGeneric)
	}
	return c.Classify(d, h)
}
