package graph

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"

	"github.com/dbsmedya/autoreg/internal/decl"
)

// AncestryDigests returns, for every node, a digest of everything reachable
// from it: node kinds, declared flags and edge kinds. Two nodes with the same
// name and the same ancestry digest have the same interface closure, so the
// digest is a safe memoization key for classification.
//
// Components of the condensation are digested supertypes first, so each
// component folds in the finished digests of the components it reaches.
func (h *Hierarchy) AncestryDigests() map[string]decl.Digest {
	c := h.Condense()

	order, err := c.DAG.SupertypesFirst()
	if err != nil {
		// A condensation is acyclic by construction.
		return nil
	}

	compDigests := make(map[int]decl.Digest, len(c.Components))
	for _, rep := range order {
		comp := c.Components[c.ComponentOf[rep]]

		hh := sha256.New()
		for _, m := range comp.Members {
			node := h.Nodes[m]
			writeString(hh, m)
			hh.Write([]byte{byte(node.Kind), boolByte(node.Declared)})
			for _, super := range h.GetSupers(m) {
				writeString(hh, super)
				hh.Write([]byte{byte(h.GetEdgeKind(m, super))})
			}
			hh.Write([]byte{0xff})
		}
		for _, superRep := range c.DAG.GetSupers(rep) {
			sum := compDigests[c.ComponentOf[superRep]]
			hh.Write(sum[:])
		}

		var sum decl.Digest
		copy(sum[:], hh.Sum(nil))
		compDigests[comp.ID] = sum
	}

	out := make(map[string]decl.Digest, len(h.Nodes))
	for name, id := range c.ComponentOf {
		hh := sha256.New()
		writeString(hh, name)
		comp := compDigests[id]
		hh.Write(comp[:])

		var sum decl.Digest
		copy(sum[:], hh.Sum(nil))
		out[name] = sum
	}
	return out
}

func writeString(h hash.Hash, s string) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(s)))
	h.Write(buf[:n])
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
