package decl

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

// Digest is a SHA-256 content hash.
type Digest [32]byte

// String returns the hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is unset.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// shape is the canonical encoding of a declaration. Position fields are left
// out so moving a type inside a file does not invalidate it.
type shape struct {
	Package    string   `msgpack:"p"`
	Name       string   `msgpack:"n"`
	Kind       uint8    `msgpack:"k"`
	TypeParams []string `msgpack:"t"`
	Abstract   bool     `msgpack:"a"`
	OptOut     bool     `msgpack:"o"`
	Implements []string `msgpack:"i"`
	Embeds     []string `msgpack:"e"`
}

// Digest returns the structural digest of the declaration. Two declarations
// with equal shape have equal digests regardless of Implements/Embeds order.
func (d *Declaration) Digest() Digest {
	s := shape{
		Package:    d.Package,
		Name:       d.Name,
		Kind:       uint8(d.Kind),
		TypeParams: d.TypeParams,
		Abstract:   d.Abstract,
		OptOut:     d.OptOut,
		Implements: sortedUnique(d.Implements),
		Embeds:     sortedUnique(d.Embeds),
	}
	b, err := msgpack.Marshal(&s)
	if err != nil {
		// shape only holds strings, bools and ints
		panic("decl: encode shape: " + err.Error())
	}
	return sha256.Sum256(b)
}

// HashStrings digests an ordered list of strings.
func HashStrings(items []string) Digest {
	b, err := msgpack.Marshal(items)
	if err != nil {
		panic("decl: encode strings: " + err.Error())
	}
	return sha256.Sum256(b)
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
