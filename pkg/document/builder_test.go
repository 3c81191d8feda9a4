package document

import (
	"math/big"
	"testing"

	"github.com/attestra/compliance-zkproof/pkg/crypto"
	"github.com/attestra/compliance-zkproof/pkg/layout"
	"github.com/attestra/compliance-zkproof/pkg/merkle"
)

// TestBuildDeterminism verifies that two documents with identical
// normalized field values produce identical roots, regardless of source
// value representation.
func TestBuildDeterminism(t *testing.T) {
	l, _ := layout.Builtin(layout.DomainLegalEntity)
	doc, _ := Sample(layout.DomainLegalEntity)

	t1, err := Build(l, doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t2, err := Build(l, doc)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if t1.Root().Cmp(t2.Root()) != 0 {
		t.Fatal("same document produced different roots")
	}

	// Different value representations normalizing identically.
	la, _ := layout.Builtin(layout.DomainShippingDocument)
	a, _ := Sample(layout.DomainShippingDocument)
	b, _ := Sample(layout.DomainShippingDocument)
	a["cargoItems"] = 4
	b["cargoItems"] = 4.0 // JSON sources report numbers as floats
	ta, err := Build(la, a)
	if err != nil {
		t.Fatalf("build a: %v", err)
	}
	tb, err := Build(la, b)
	if err != nil {
		t.Fatalf("build b: %v", err)
	}
	if ta.Root().Cmp(tb.Root()) != 0 {
		t.Fatal("int vs float count broke root determinism")
	}

	// A changed field value must change the root.
	c, _ := Sample(layout.DomainShippingDocument)
	c["vesselName"] = "MV Other Ship"
	tc, err := Build(la, c)
	if err != nil {
		t.Fatalf("build c: %v", err)
	}
	if ta.Root().Cmp(tc.Root()) == 0 {
		t.Fatal("changed field left the root unchanged")
	}
}

// TestBuildMissingMandatoryListsAll verifies the error carries every
// missing mandatory field at once, sorted.
func TestBuildMissingMandatoryListsAll(t *testing.T) {
	l, _ := layout.Builtin(layout.DomainLegalEntity)
	doc, _ := Sample(layout.DomainLegalEntity)
	delete(doc, "legalName")
	doc["entityStatus"] = ""  // empty normalization counts as missing
	doc["legalJurisdiction"] = nil

	_, err := Build(l, doc)
	mErr, ok := err.(*MissingMandatoryFieldError)
	if !ok {
		t.Fatalf("got %T (%v), want MissingMandatoryFieldError", err, err)
	}
	want := []string{"entityStatus", "legalJurisdiction", "legalName"}
	if len(mErr.Fields) != len(want) {
		t.Fatalf("fields: got %v want %v", mErr.Fields, want)
	}
	for i := range want {
		if mErr.Fields[i] != want[i] {
			t.Fatalf("fields: got %v want %v", mErr.Fields, want)
		}
	}
	if mErr.DocumentType != layout.DomainLegalEntity {
		t.Fatalf("document type %s", mErr.DocumentType)
	}
}

// TestOpeningSoundness verifies each populated slot opens against the
// root, and that a mutated revealed value fails verification.
func TestOpeningSoundness(t *testing.T) {
	l, _ := layout.Builtin(layout.DomainLegalEntity)
	doc, _ := Sample(layout.DomainLegalEntity)
	tree, err := Build(l, doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	root := tree.Root()

	for _, spec := range l.Fields {
		slot, ok := tree.Slot(spec.Slot)
		if !ok {
			t.Fatalf("slot %d (%s) not populated", spec.Slot, spec.Name)
		}
		opening, err := tree.Opening(spec.Slot)
		if err != nil {
			t.Fatalf("opening %d: %v", spec.Slot, err)
		}
		if !merkle.VerifyProof(slot.Hash, opening, root) {
			t.Fatalf("opening for %s rejected", spec.Name)
		}

		// Re-derive the leaf hash from a mutated value vector.
		mutated := append([]*big.Int{}, slot.Values...)
		mutated[0] = new(big.Int).Add(mutated[0], big.NewInt(1))
		if merkle.VerifyProof(crypto.HashLeaf(mutated...), opening, root) {
			t.Fatalf("mutated value for %s still verifies", spec.Name)
		}
	}

	// Unpopulated slots open to the zero leaf.
	opening, err := tree.Opening(10)
	if err != nil {
		t.Fatalf("vacant opening: %v", err)
	}
	if !merkle.VerifyProof(crypto.ZeroLeafHash(), opening, root) {
		t.Fatal("vacant slot does not open to the zero leaf")
	}
}

// TestBundleNormalization verifies bundle components hash as one unit in
// declaration order and that array-valued components join
// deterministically.
func TestBundleNormalization(t *testing.T) {
	l, _ := layout.Builtin(layout.DomainLegalEntity)
	doc, _ := Sample(layout.DomainLegalEntity)
	tree, err := Build(l, doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	slot, ok := tree.SlotByName("headquartersAddress")
	if !ok {
		t.Fatal("headquartersAddress slot missing")
	}
	if len(slot.Values) != 5 {
		t.Fatalf("bundle width %d, want 5", len(slot.Values))
	}

	// A single-element addressLines array equals the joined string form.
	alt, _ := Sample(layout.DomainLegalEntity)
	alt["headquartersAddress"] = map[string]any{
		"addressLines": "14 Harbour Way",
		"city":         "London",
		"region":       "Greater London",
		"postalCode":   "E14 9GE",
		"country":      "GB",
	}
	altTree, err := Build(l, alt)
	if err != nil {
		t.Fatalf("build alt: %v", err)
	}
	if tree.Root().Cmp(altTree.Root()) != 0 {
		t.Fatal("array vs scalar component broke determinism")
	}

	// A missing bundle component contributes the empty encoding but still
	// builds.
	partial, _ := Sample(layout.DomainLegalEntity)
	partial["headquartersAddress"] = map[string]any{"city": "London"}
	partialTree, err := Build(l, partial)
	if err != nil {
		t.Fatalf("build partial: %v", err)
	}
	if partialTree.Root().Cmp(tree.Root()) == 0 {
		t.Fatal("partial bundle produced the full bundle's root")
	}
}

// TestEntityKeyHash verifies the entity key hash depends only on the
// designated key slot.
func TestEntityKeyHash(t *testing.T) {
	l, _ := layout.Builtin(layout.DomainLegalEntity)
	doc, _ := Sample(layout.DomainLegalEntity)
	tree, err := Build(l, doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	key := tree.EntityKeyHash()
	if key.Sign() == 0 {
		t.Fatal("entity key hash is zero")
	}

	// Changing an unrelated field leaves the key unchanged.
	other, _ := Sample(layout.DomainLegalEntity)
	other["legalName"] = "Different Name Ltd"
	otherTree, err := Build(l, other)
	if err != nil {
		t.Fatalf("build other: %v", err)
	}
	if otherTree.EntityKeyHash().Cmp(key) != 0 {
		t.Fatal("entity key changed with an unrelated field")
	}

	// Changing the key field changes the key.
	rekeyed, _ := Sample(layout.DomainLegalEntity)
	rekeyed["lei"] = "529900XXXXXXXXXXXX99"
	rekeyedTree, err := Build(l, rekeyed)
	if err != nil {
		t.Fatalf("build rekeyed: %v", err)
	}
	if rekeyedTree.EntityKeyHash().Cmp(key) == 0 {
		t.Fatal("entity key unchanged after key field change")
	}
}

// TestSampleDocumentsBuild verifies every shipped sample document builds
// against its layout.
func TestSampleDocumentsBuild(t *testing.T) {
	for _, domain := range layout.Domains() {
		l, _ := layout.Builtin(domain)
		doc, ok := Sample(domain)
		if !ok {
			t.Fatalf("no sample for %s", domain)
		}
		if _, err := Build(l, doc); err != nil {
			t.Fatalf("sample %s: %v", domain, err)
		}
	}
}
