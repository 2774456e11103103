package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func leafAt(i int) []byte {
	h := sha256.Sum256([]byte{byte(i)})
	return h[:]
}

func TestBuildTreeSingleLeaf(t *testing.T) {
	leaf := leafAt(0)
	tree, err := BuildTree([][]byte{leaf})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !bytes.Equal(tree.Root(), leaf) {
		t.Errorf("single leaf root mismatch: got %x, want %x", tree.Root(), leaf)
	}
}

func TestBuildTreeTwoLeaves(t *testing.T) {
	leaf1, leaf2 := leafAt(0), leafAt(1)
	tree, err := BuildTree([][]byte{leaf1, leaf2})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := hashPair(leaf1, leaf2)
	if !bytes.Equal(tree.Root(), want) {
		t.Errorf("two leaf root mismatch: got %x, want %x", tree.Root(), want)
	}
}

func TestGenerateProofTwoLeaves(t *testing.T) {
	leaf1, leaf2 := leafAt(0), leafAt(1)
	tree, err := BuildTree([][]byte{leaf1, leaf2})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	proof0, err := tree.GenerateProof(0)
	if err != nil {
		t.Fatalf("generate proof 0: %v", err)
	}
	if len(proof0.Path) != 1 || proof0.Path[0].Position != Right {
		t.Fatalf("leaf 0 path mismatch: %+v", proof0.Path)
	}
	if ok, err := VerifyProof(leaf1, proof0, tree.Root()); err != nil || !ok {
		t.Fatalf("leaf 0 verify: ok=%v err=%v", ok, err)
	}

	proof1, err := tree.GenerateProof(1)
	if err != nil {
		t.Fatalf("generate proof 1: %v", err)
	}
	if len(proof1.Path) != 1 || proof1.Path[0].Position != Left {
		t.Fatalf("leaf 1 path mismatch: %+v", proof1.Path)
	}
	if ok, err := VerifyProof(leaf2, proof1, tree.Root()); err != nil || !ok {
		t.Fatalf("leaf 1 verify: ok=%v err=%v", ok, err)
	}
}

func TestGenerateProofFourLeavesNoDuplication(t *testing.T) {
	leaves := [][]byte{leafAt(0), leafAt(1), leafAt(2), leafAt(3)}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	left := hashPair(leaves[0], leaves[1])
	right := hashPair(leaves[2], leaves[3])
	want := hashPair(left, right)
	if !bytes.Equal(tree.Root(), want) {
		t.Errorf("four-leaf root mismatch: got %x, want %x", tree.Root(), want)
	}

	for i, leaf := range leaves {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			t.Fatalf("generate proof %d: %v", i, err)
		}
		if len(proof.Path) != 2 {
			t.Errorf("leaf %d: path length = %d, want 2 (no duplication at 4 leaves)", i, len(proof.Path))
		}
		if ok, err := VerifyProof(leaf, proof, tree.Root()); err != nil || !ok {
			t.Errorf("leaf %d: verify ok=%v err=%v", i, ok, err)
		}
	}
}

// TestFiveLeafBatchDuplicatesOnceAtLeafLevel is the canonical 5-leaf
// inclusion-proof case: a lone trailing leaf is self-paired once at
// the bottom level, then carried unchanged through the next level
// until it meets leaves 0-3's combined hash at the root.
func TestFiveLeafBatchDuplicatesOnceAtLeafLevel(t *testing.T) {
	leaves := make([][]byte, 5)
	for i := range leaves {
		leaves[i] = leafAt(i)
	}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	p01 := hashPair(leaves[0], leaves[1])
	p23 := hashPair(leaves[2], leaves[3])
	p44 := hashPair(leaves[4], leaves[4])
	p0123 := hashPair(p01, p23)
	wantRoot := hashPair(p0123, p44)
	if !bytes.Equal(tree.Root(), wantRoot) {
		t.Fatalf("root mismatch: got %x, want %x", tree.Root(), wantRoot)
	}

	proof, err := tree.GenerateProof(2)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}
	if len(proof.Path) != 3 {
		t.Fatalf("leaf 2 path length = %d, want 3: %+v", len(proof.Path), proof.Path)
	}
	wantPath := []ProofNode{
		{Hash: hex.EncodeToString(leaves[3]), Position: Right},
		{Hash: hex.EncodeToString(p01), Position: Left},
		{Hash: hex.EncodeToString(p44), Position: Right},
	}
	for i, step := range proof.Path {
		if step != wantPath[i] {
			t.Errorf("path[%d] = %+v, want %+v", i, step, wantPath[i])
		}
	}
	if ok, err := VerifyProof(leaves[2], proof, tree.Root()); err != nil || !ok {
		t.Fatalf("leaf 2 verify: ok=%v err=%v", ok, err)
	}

	// The duplicated leaf itself carries a shorter, two-step proof: its
	// self-pairing at the leaf level, then the top-level pairing with
	// leaves 0-3's combined hash.
	dupProof, err := tree.GenerateProof(4)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}
	wantDupPath := []ProofNode{
		{Hash: hex.EncodeToString(leaves[4]), Position: Right},
		{Hash: hex.EncodeToString(p0123), Position: Left},
	}
	if len(dupProof.Path) != len(wantDupPath) {
		t.Fatalf("leaf 4 path length = %d, want %d: %+v", len(dupProof.Path), len(wantDupPath), dupProof.Path)
	}
	for i, step := range dupProof.Path {
		if step != wantDupPath[i] {
			t.Errorf("dup path[%d] = %+v, want %+v", i, step, wantDupPath[i])
		}
	}
	if ok, err := VerifyProof(leaves[4], dupProof, tree.Root()); err != nil || !ok {
		t.Fatalf("leaf 4 verify: ok=%v err=%v", ok, err)
	}
}

func TestGenerateProofLargeTree(t *testing.T) {
	leaves := make([][]byte, 100)
	for i := range leaves {
		h := sha256.Sum256([]byte{byte(i), byte(i >> 8)})
		leaves[i] = h[:]
	}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, i := range []int{0, 1, 49, 50, 99} {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			t.Fatalf("generate proof %d: %v", i, err)
		}
		if ok, err := VerifyProof(leaves[i], proof, tree.Root()); err != nil || !ok {
			t.Errorf("leaf %d: verify ok=%v err=%v", i, ok, err)
		}
	}
}

func TestVerifyProofRejectsWrongLeafOrRoot(t *testing.T) {
	leaf1, leaf2 := leafAt(0), leafAt(1)
	tree, err := BuildTree([][]byte{leaf1, leaf2})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	proof, err := tree.GenerateProof(0)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}

	wrongLeaf := sha256.Sum256([]byte("wrong leaf"))
	if ok, err := VerifyProof(wrongLeaf[:], proof, tree.Root()); err != nil || ok {
		t.Errorf("expected wrong leaf to fail verification, ok=%v err=%v", ok, err)
	}

	wrongRoot := sha256.Sum256([]byte("wrong root"))
	if ok, err := VerifyProof(leaf1, proof, wrongRoot[:]); err != nil || ok {
		t.Errorf("expected wrong root to fail verification, ok=%v err=%v", ok, err)
	}
}

func TestBuildTreeEmptyRejected(t *testing.T) {
	if _, err := BuildTree([][]byte{}); err != ErrEmptyTree {
		t.Errorf("expected ErrEmptyTree, got %v", err)
	}
}

func TestBuildTreeInvalidLeafHashRejected(t *testing.T) {
	if _, err := BuildTree([][]byte{[]byte("not 32 bytes")}); err == nil {
		t.Error("expected error for non-32-byte leaf")
	}
}
