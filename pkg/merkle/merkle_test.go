package merkle

import (
	"bytes"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

const testDepth = 5

// testZeroLeaf is H(0), the canonical vacant-leaf hash.
func testZeroLeaf() *big.Int {
	h := poseidon2.NewMerkleDamgardHasher()
	var zero fr.Element
	zeroBytes := zero.Bytes()
	h.Write(zeroBytes[:])
	return new(big.Int).SetBytes(h.Sum(nil))
}

// randomLeaf produces a random field element usable as a leaf hash.
func randomLeaf(t *testing.T) *big.Int {
	t.Helper()
	var elem fr.Element
	if _, err := elem.SetRandom(); err != nil {
		t.Fatalf("random element: %v", err)
	}
	out := new(big.Int)
	elem.BigInt(out)
	return out
}

// TestEmptyTreeCanonicalRoot verifies that every empty tree of the same
// depth shares one root, equal to the top zero-subtree hash.
func TestEmptyTreeCanonicalRoot(t *testing.T) {
	zeroLeaf := testZeroLeaf()
	a := NewTree(testDepth, zeroLeaf)
	b := NewTree(testDepth, zeroLeaf)

	if a.Root().Cmp(b.Root()) != 0 {
		t.Fatalf("empty roots differ: %s vs %s", a.Root(), b.Root())
	}
	zh := PrecomputeZeroHashes(testDepth, zeroLeaf)
	if a.Root().Cmp(zh[testDepth]) != 0 {
		t.Fatalf("empty root %s != zero-subtree hash %s", a.Root(), zh[testDepth])
	}
	if a.LeafCount() != 0 {
		t.Fatalf("empty tree has %d leaves", a.LeafCount())
	}
}

// TestSetLeafChangesRoot verifies that each leaf write changes the root
// and that clearing the leaf restores the empty root.
func TestSetLeafChangesRoot(t *testing.T) {
	zeroLeaf := testZeroLeaf()
	tree := NewTree(testDepth, zeroLeaf)
	emptyRoot := new(big.Int).Set(tree.Root())

	leaf := randomLeaf(t)
	if err := tree.SetLeaf(7, leaf); err != nil {
		t.Fatalf("set leaf: %v", err)
	}
	if tree.Root().Cmp(emptyRoot) == 0 {
		t.Fatal("root unchanged after leaf write")
	}
	if tree.LeafHash(7).Cmp(leaf) != 0 {
		t.Fatalf("leaf 7: got %s want %s", tree.LeafHash(7), leaf)
	}

	if err := tree.SetLeaf(7, zeroLeaf); err != nil {
		t.Fatalf("clear leaf: %v", err)
	}
	if tree.Root().Cmp(emptyRoot) != 0 {
		t.Fatal("root not restored after clearing the only leaf")
	}
	if tree.LeafCount() != 0 {
		t.Fatalf("leaf count %d after clear", tree.LeafCount())
	}
}

// TestProofSoundness verifies openings for populated and vacant leaves,
// and that any tampering with the revealed leaf or a sibling breaks
// verification.
func TestProofSoundness(t *testing.T) {
	zeroLeaf := testZeroLeaf()
	tree := NewTree(testDepth, zeroLeaf)

	leaves := map[int]*big.Int{}
	for _, idx := range []int{0, 3, 12, 31} {
		leaves[idx] = randomLeaf(t)
		if err := tree.SetLeaf(idx, leaves[idx]); err != nil {
			t.Fatalf("set leaf %d: %v", idx, err)
		}
	}
	root := tree.Root()

	for idx, leaf := range leaves {
		proof, err := tree.GetProof(idx)
		if err != nil {
			t.Fatalf("proof %d: %v", idx, err)
		}
		if len(proof.Siblings) != testDepth {
			t.Fatalf("proof %d: %d siblings, want %d", idx, len(proof.Siblings), testDepth)
		}
		if !VerifyProof(leaf, proof, root) {
			t.Fatalf("valid proof for leaf %d rejected", idx)
		}

		// Tampered leaf value.
		if VerifyProof(randomLeaf(t), proof, root) {
			t.Fatalf("leaf %d: tampered value accepted", idx)
		}

		// Tampered sibling.
		bad := &Proof{LeafIndex: proof.LeafIndex, Siblings: append([]*big.Int{}, proof.Siblings...)}
		bad.Siblings[2] = randomLeaf(t)
		if VerifyProof(leaf, bad, root) {
			t.Fatalf("leaf %d: tampered sibling accepted", idx)
		}
	}

	// Vacant position proves the zero leaf.
	proof, err := tree.GetProof(20)
	if err != nil {
		t.Fatalf("vacant proof: %v", err)
	}
	if !VerifyProof(zeroLeaf, proof, root) {
		t.Fatal("vacant leaf opening rejected")
	}
	if VerifyProof(randomLeaf(t), proof, root) {
		t.Fatal("vacant leaf accepted a non-zero value")
	}
}

// TestProofWrongIndex verifies a proof does not transfer between leaf
// positions.
func TestProofWrongIndex(t *testing.T) {
	zeroLeaf := testZeroLeaf()
	tree := NewTree(testDepth, zeroLeaf)

	leaf := randomLeaf(t)
	if err := tree.SetLeaf(5, leaf); err != nil {
		t.Fatalf("set leaf: %v", err)
	}

	proof, err := tree.GetProof(5)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	moved := &Proof{LeafIndex: 6, Siblings: proof.Siblings}
	if VerifyProof(leaf, moved, tree.Root()) {
		t.Fatal("proof accepted at a different index")
	}
}

// TestIndexBounds verifies out-of-range indices are rejected.
func TestIndexBounds(t *testing.T) {
	tree := NewTree(testDepth, testZeroLeaf())

	if err := tree.SetLeaf(1<<testDepth, randomLeaf(t)); err == nil {
		t.Fatal("SetLeaf accepted an out-of-range index")
	}
	if err := tree.SetLeaf(-1, randomLeaf(t)); err == nil {
		t.Fatal("SetLeaf accepted a negative index")
	}
	if _, err := tree.GetProof(1 << testDepth); err == nil {
		t.Fatal("GetProof accepted an out-of-range index")
	}
}

// TestSaveLoadRoundTrip verifies serialization preserves the root, the
// populated leaves, and proof validity.
func TestSaveLoadRoundTrip(t *testing.T) {
	zeroLeaf := testZeroLeaf()
	tree := NewTree(testDepth, zeroLeaf)
	for _, idx := range []int{1, 8, 30} {
		if err := tree.SetLeaf(idx, randomLeaf(t)); err != nil {
			t.Fatalf("set leaf %d: %v", idx, err)
		}
	}

	var buf bytes.Buffer
	if err := tree.Save(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}
	t.Logf("serialized=%d bytes", buf.Len())

	loaded, err := Load(&buf, zeroLeaf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Depth() != tree.Depth() {
		t.Fatalf("depth: got %d want %d", loaded.Depth(), tree.Depth())
	}
	if loaded.Root().Cmp(tree.Root()) != 0 {
		t.Fatal("root mismatch after load")
	}
	if loaded.LeafCount() != tree.LeafCount() {
		t.Fatalf("leaf count: got %d want %d", loaded.LeafCount(), tree.LeafCount())
	}

	for _, idx := range []int{1, 8, 30} {
		proof, err := loaded.GetProof(idx)
		if err != nil {
			t.Fatalf("proof %d after load: %v", idx, err)
		}
		if !VerifyProof(tree.LeafHash(idx), proof, loaded.Root()) {
			t.Fatalf("proof %d invalid after load", idx)
		}
	}
}

// TestSaveLoadEmpty verifies an empty tree round-trips.
func TestSaveLoadEmpty(t *testing.T) {
	zeroLeaf := testZeroLeaf()
	tree := NewTree(testDepth, zeroLeaf)

	var buf bytes.Buffer
	if err := tree.Save(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(&buf, zeroLeaf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Root().Cmp(tree.Root()) != 0 {
		t.Fatal("empty root mismatch after load")
	}
	if loaded.LeafCount() != 0 {
		t.Fatalf("leaf count %d for empty tree", loaded.LeafCount())
	}
}

func BenchmarkSetLeaf(b *testing.B) {
	tree := NewTree(16, testZeroLeaf())
	leaf := make([]byte, 31)
	if _, err := rand.Read(leaf); err != nil {
		b.Fatal(err)
	}
	hash := new(big.Int).SetBytes(leaf)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tree.SetLeaf(i&0xffff, hash)
	}
}
