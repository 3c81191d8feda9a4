// Package merkle implements the fixed-depth sparse Merkle tree used both for
// document field commitments and for the entity registry. Only populated
// leaves are stored; vacant positions fall back to precomputed zero-subtree
// hashes, so an empty tree is cheap and every tree of the same depth shares
// one canonical empty root.
package merkle

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

// HashNodes hashes two child hashes into their parent. Inputs are reduced
// to canonical 32-byte fr.Element encoding so that a zero value writes 32
// zero bytes, matching the in-circuit hasher.
func HashNodes(left, right *big.Int) *big.Int {
	h := poseidon2.NewMerkleDamgardHasher()

	var lFr, rFr fr.Element
	lFr.SetBigInt(left)
	rFr.SetBigInt(right)

	lBytes := lFr.Bytes()
	rBytes := rFr.Bytes()
	h.Write(lBytes[:])
	h.Write(rBytes[:])

	return new(big.Int).SetBytes(h.Sum(nil))
}

// PrecomputeZeroHashes builds the zero-subtree hash chain:
//
//	zeroHashes[0] = zeroLeafHash
//	zeroHashes[i] = HashNodes(zeroHashes[i-1], zeroHashes[i-1])
//
// The returned slice has length depth+1 (indices 0..depth).
func PrecomputeZeroHashes(depth int, zeroLeafHash *big.Int) []*big.Int {
	zh := make([]*big.Int, depth+1)
	zh[0] = new(big.Int).Set(zeroLeafHash)
	for i := 1; i <= depth; i++ {
		zh[i] = HashNodes(zh[i-1], zh[i-1])
	}
	return zh
}

// Tree is a fixed-depth sparse Merkle tree. levels[0] holds leaves,
// levels[depth] holds the root. Positions absent from a level map take the
// zero-subtree hash for that level.
type Tree struct {
	depth      int
	levels     []map[int]*big.Int
	zeroHashes []*big.Int
}

// NewTree creates an empty tree of the given depth. Its root equals the
// depth-level zero-subtree hash until the first SetLeaf.
func NewTree(depth int, zeroLeafHash *big.Int) *Tree {
	levels := make([]map[int]*big.Int, depth+1)
	for i := range levels {
		levels[i] = make(map[int]*big.Int)
	}
	return &Tree{
		depth:      depth,
		levels:     levels,
		zeroHashes: PrecomputeZeroHashes(depth, zeroLeafHash),
	}
}

// Depth returns the fixed tree depth.
func (t *Tree) Depth() int { return t.depth }

// LeafCount returns the number of populated leaves.
func (t *Tree) LeafCount() int { return len(t.levels[0]) }

// Root returns the current root hash.
func (t *Tree) Root() *big.Int {
	if r, ok := t.levels[t.depth][0]; ok {
		return r
	}
	return t.zeroHashes[t.depth]
}

// EmptyLeafHash returns the hash a vacant leaf position resolves to.
func (t *Tree) EmptyLeafHash() *big.Int { return t.zeroHashes[0] }

// nodeAt returns the hash at (level, index), falling back to the
// zero-subtree hash for that level.
func (t *Tree) nodeAt(level, index int) *big.Int {
	if h, ok := t.levels[level][index]; ok {
		return h
	}
	return t.zeroHashes[level]
}

// LeafHash returns the hash at the given leaf index (zero-leaf hash for
// vacant positions).
func (t *Tree) LeafHash(index int) *big.Int { return t.nodeAt(0, index) }

// SetLeaf writes a leaf hash and recomputes the ancestor path up to the
// root. Passing the zero-leaf hash clears the position.
func (t *Tree) SetLeaf(index int, hash *big.Int) error {
	if index < 0 || index >= 1<<t.depth {
		return fmt.Errorf("leaf index %d out of range for depth %d", index, t.depth)
	}

	if hash.Cmp(t.zeroHashes[0]) == 0 {
		delete(t.levels[0], index)
	} else {
		t.levels[0][index] = new(big.Int).Set(hash)
	}

	idx := index
	for lvl := 0; lvl < t.depth; lvl++ {
		left := t.nodeAt(lvl, idx&^1)
		right := t.nodeAt(lvl, idx|1)
		parent := HashNodes(left, right)

		pIdx := idx / 2
		if parent.Cmp(t.zeroHashes[lvl+1]) == 0 {
			delete(t.levels[lvl+1], pIdx)
		} else {
			t.levels[lvl+1][pIdx] = parent
		}
		idx = pIdx
	}
	return nil
}

// Proof is a fixed-length Merkle opening: siblings[i] is the sibling hash
// at level i on the path from the leaf to the root. Directions are implied
// by the leaf index bits (bit i == 0 means the node is a left child at
// level i, so the sibling sits on the right).
type Proof struct {
	LeafIndex int
	Siblings  []*big.Int
}

// GetProof returns the opening for the leaf at the given index. The proof
// has exactly Depth siblings, vacant positions contributing zero-subtree
// hashes.
func (t *Tree) GetProof(index int) (*Proof, error) {
	if index < 0 || index >= 1<<t.depth {
		return nil, fmt.Errorf("leaf index %d out of range for depth %d", index, t.depth)
	}

	siblings := make([]*big.Int, t.depth)
	idx := index
	for lvl := 0; lvl < t.depth; lvl++ {
		siblings[lvl] = t.nodeAt(lvl, idx^1)
		idx /= 2
	}
	return &Proof{LeafIndex: index, Siblings: siblings}, nil
}

// VerifyProof recomputes the root from a leaf hash and an opening and
// compares it to the expected root.
func VerifyProof(leafHash *big.Int, proof *Proof, root *big.Int) bool {
	if proof == nil {
		return false
	}
	current := leafHash
	idx := proof.LeafIndex
	for _, sibling := range proof.Siblings {
		if idx%2 == 0 {
			current = HashNodes(current, sibling)
		} else {
			current = HashNodes(sibling, current)
		}
		idx /= 2
	}
	return current.Cmp(root) == 0
}

// ---------------------------------------------------------------------------
// Serialization (binary format for persistence)
// ---------------------------------------------------------------------------
//
// Format:
//   uint32(depth)
//   For each level 0..depth:
//     uint32(count)
//     For each entry:
//       uint32(index) | [32]byte(hash as big-endian fr.Element)
//
// Zero hashes are NOT stored; they are recomputed from zeroLeafHash on load.

// Save writes the tree to w in a deterministic binary format.
func (t *Tree) Save(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, uint32(t.depth)); err != nil {
		return fmt.Errorf("write depth: %w", err)
	}

	for lvl := 0; lvl <= t.depth; lvl++ {
		m := t.levels[lvl]
		if err := binary.Write(w, binary.BigEndian, uint32(len(m))); err != nil {
			return fmt.Errorf("write level %d count: %w", lvl, err)
		}

		indices := make([]int, 0, len(m))
		for idx := range m {
			indices = append(indices, idx)
		}
		sort.Ints(indices)

		for _, idx := range indices {
			if err := binary.Write(w, binary.BigEndian, uint32(idx)); err != nil {
				return fmt.Errorf("write level %d index %d: %w", lvl, idx, err)
			}
			var elem fr.Element
			elem.SetBigInt(m[idx])
			b := elem.Bytes()
			if _, err := w.Write(b[:]); err != nil {
				return fmt.Errorf("write level %d hash %d: %w", lvl, idx, err)
			}
		}
	}
	return nil
}

// Load reads a tree written by Save. The zeroLeafHash is needed to
// recompute the zero-subtree hash chain.
func Load(r io.Reader, zeroLeafHash *big.Int) (*Tree, error) {
	var depth uint32
	if err := binary.Read(r, binary.BigEndian, &depth); err != nil {
		return nil, fmt.Errorf("read depth: %w", err)
	}

	levels := make([]map[int]*big.Int, depth+1)
	for lvl := 0; lvl <= int(depth); lvl++ {
		var count uint32
		if err := binary.Read(r, binary.BigEndian, &count); err != nil {
			return nil, fmt.Errorf("read level %d count: %w", lvl, err)
		}

		m := make(map[int]*big.Int, int(count))
		var hashBuf [32]byte
		for j := 0; j < int(count); j++ {
			var idx uint32
			if err := binary.Read(r, binary.BigEndian, &idx); err != nil {
				return nil, fmt.Errorf("read level %d index: %w", lvl, err)
			}
			if _, err := io.ReadFull(r, hashBuf[:]); err != nil {
				return nil, fmt.Errorf("read level %d hash: %w", lvl, err)
			}
			var elem fr.Element
			elem.SetBytes(hashBuf[:])
			m[int(idx)] = new(big.Int)
			elem.BigInt(m[int(idx)])
		}
		levels[lvl] = m
	}

	return &Tree{
		depth:      int(depth),
		levels:     levels,
		zeroHashes: PrecomputeZeroHashes(int(depth), zeroLeafHash),
	}, nil
}
