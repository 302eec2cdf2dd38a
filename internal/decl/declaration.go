// Package decl defines the declaration snapshots that feed the discovery
// pipeline: one Declaration per named type, collected into a Table per pass.
package decl

import (
	"fmt"
	"go/token"
	"strings"
)

// Kind distinguishes concrete types from interfaces.
type Kind uint8

const (
	KindConcrete  Kind = 0
	KindInterface Kind = 1
)

func (k Kind) String() string {
	if k == KindInterface {
		return "interface"
	}
	return "concrete"
}

// ParseKind maps a textual kind to a Kind. Empty, "class", "struct" and
// "concrete" are concrete.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "class", "struct", "concrete":
		return KindConcrete, nil
	case "interface":
		return KindInterface, nil
	default:
		return KindConcrete, fmt.Errorf("unknown declaration kind %q", s)
	}
}

// Declaration is a snapshot of one named type declaration.
type Declaration struct {
	Package    string   // import path or namespace that owns the type
	Name       string   // unqualified type name
	Kind       Kind     // concrete or interface
	TypeParams []string // type parameter names, empty for non-generic types
	Abstract   bool     // declared abstract (//autoreg:abstract)
	OptOut     bool     // carries the opt-out marker (//autoreg:skip)
	Implements []string // interface identifiers the type declares it implements
	Embeds     []string // embedded/base type identifiers

	// Position, not part of the declaration's shape.
	File string
	Line int
}

// QualifiedName returns Package + "." + Name, or Name when Package is empty.
func (d *Declaration) QualifiedName() string {
	if d.Package == "" {
		return d.Name
	}
	return d.Package + "." + d.Name
}

// ID is the stable identity used for change tracking.
func (d *Declaration) ID() string {
	return d.QualifiedName()
}

// HasTypeParams reports whether the declaration is generic.
func (d *Declaration) HasTypeParams() bool {
	return len(d.TypeParams) > 0
}

// IsInterface reports whether the declaration is an interface.
func (d *Declaration) IsInterface() bool {
	return d.Kind == KindInterface
}

// WellFormed reports whether the declaration names a usable Go type:
// a valid identifier with a non-empty package.
func (d *Declaration) WellFormed() bool {
	return d != nil && d.Package != "" && token.IsIdentifier(d.Name)
}

// Position returns "file:line" for diagnostics, or "" when unknown.
func (d *Declaration) Position() string {
	if d.File == "" {
		return ""
	}
	if d.Line <= 0 {
		return d.File
	}
	return fmt.Sprintf("%s:%d", d.File, d.Line)
}

// SplitQualified splits "pkg/path.Name" at the last dot.
// Identifiers without a dot return an empty package.
func SplitQualified(qualified string) (pkg, name string) {
	i := strings.LastIndex(qualified, ".")
	if i < 0 {
		return "", qualified
	}
	return qualified[:i], qualified[i+1:]
}
