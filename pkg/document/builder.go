// Package document converts parsed compliance documents into fixed-depth
// Merkle trees. Building is a pure function of the layout and the parsed
// object: identical normalized field values always produce identical roots.
package document

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/attestra/compliance-zkproof/config"
	"github.com/attestra/compliance-zkproof/pkg/crypto"
	"github.com/attestra/compliance-zkproof/pkg/field"
	"github.com/attestra/compliance-zkproof/pkg/layout"
	"github.com/attestra/compliance-zkproof/pkg/merkle"
)

// MissingMandatoryFieldError reports every missing mandatory field at once;
// compliance review workflows need the complete gap list, not just the
// first hit.
type MissingMandatoryFieldError struct {
	DocumentType string
	Fields       []string
}

func (e *MissingMandatoryFieldError) Error() string {
	return fmt.Sprintf("document %s: missing mandatory fields: %s", e.DocumentType, strings.Join(e.Fields, ", "))
}

// Slot holds one populated tree position: the normalized component values
// (one for plain fields, several for bundles) and their leaf hash.
type Slot struct {
	Spec   layout.FieldSpec
	Values []*big.Int
	Hash   *big.Int
}

// Tree is an immutable document Merkle tree. Only the root and selected
// openings survive downstream; the tree itself is discarded after proof
// generation.
type Tree struct {
	Layout *layout.DocumentLayout
	slots  map[int]*Slot
	tree   *merkle.Tree
}

// Build normalizes a parsed document against its layout and commits every
// slot into a fixed-depth Merkle tree. Missing or null fields take their
// canonical empty encoding; missing mandatory fields abort with a
// MissingMandatoryFieldError listing all of them.
func Build(l *layout.DocumentLayout, doc map[string]any) (*Tree, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	if missing := missingMandatory(l, doc); len(missing) > 0 {
		return nil, &MissingMandatoryFieldError{DocumentType: l.Type, Fields: missing}
	}

	t := merkle.NewTree(config.DocTreeDepth, crypto.ZeroLeafHash())
	slots := make(map[int]*Slot, len(l.Fields))

	for _, spec := range l.Fields {
		values := normalizeSlot(spec, doc[spec.Name])
		hash := crypto.HashLeaf(values...)
		if err := t.SetLeaf(spec.Slot, hash); err != nil {
			return nil, fmt.Errorf("document %s: %w", l.Type, err)
		}
		slots[spec.Slot] = &Slot{Spec: spec, Values: values, Hash: hash}
	}

	return &Tree{Layout: l, slots: slots, tree: t}, nil
}

// missingMandatory returns the sorted names of mandatory fields that are
// absent, null, or normalize to the empty encoding.
func missingMandatory(l *layout.DocumentLayout, doc map[string]any) []string {
	var missing []string
	for _, name := range l.MandatoryFields() {
		spec, _ := l.Field(name)
		raw, present := doc[name]
		if !present || raw == nil {
			missing = append(missing, name)
			continue
		}
		empty := true
		for _, v := range normalizeSlot(spec, raw) {
			if v.Sign() != 0 {
				empty = false
				break
			}
		}
		if empty {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// normalizeSlot produces the component value vector for one slot.
func normalizeSlot(spec layout.FieldSpec, raw any) []*big.Int {
	if len(spec.Bundle) > 0 {
		return normalizeBundle(spec, raw)
	}
	return []*big.Int{normalizeValue(spec.Encoding, raw)}
}

// normalizeBundle extracts each declared component from a nested object, in
// declaration order. A missing component contributes the empty encoding.
func normalizeBundle(spec layout.FieldSpec, raw any) []*big.Int {
	obj, _ := raw.(map[string]any)
	values := make([]*big.Int, len(spec.Bundle))
	for i, comp := range spec.Bundle {
		var v any
		if obj != nil {
			v = obj[comp]
		}
		values[i] = field.EncodeString(strings.TrimSpace(componentString(v)))
	}
	return values
}

// componentString flattens a bundle component to text. Array components
// (e.g. address lines) join with a comma so they stay one element.
func componentString(v any) string {
	switch x := v.(type) {
	case []string:
		return strings.Join(x, ",")
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = field.Stringify(e)
		}
		return strings.Join(parts, ",")
	default:
		return field.Stringify(v)
	}
}

// normalizeValue applies the per-encoding normalization policy.
func normalizeValue(enc layout.Encoding, raw any) *big.Int {
	switch enc {
	case layout.EncodingBoolean:
		return field.EncodeBool(field.Stringify(raw) == "true")
	case layout.EncodingCount:
		return field.EncodeCount(raw)
	case layout.EncodingDate:
		return field.EncodeDate(field.Stringify(raw))
	default: // pattern, enum, opaque
		return field.EncodeString(strings.TrimSpace(field.Stringify(raw)))
	}
}

// Root returns the document tree root.
func (t *Tree) Root() *big.Int { return t.tree.Root() }

// Slot returns the populated slot at an index, or false for vacant
// positions.
func (t *Tree) Slot(index int) (*Slot, bool) {
	s, ok := t.slots[index]
	return s, ok
}

// SlotByName returns the populated slot for a field name.
func (t *Tree) SlotByName(name string) (*Slot, bool) {
	spec, ok := t.Layout.Field(name)
	if !ok {
		return nil, false
	}
	return t.Slot(spec.Slot)
}

// Opening returns the Merkle opening for a slot index.
func (t *Tree) Opening(index int) (*merkle.Proof, error) {
	return t.tree.GetProof(index)
}

// EntityKeyHash returns the Poseidon2 hash of the layout's designated
// entity key slot value. This is the public identity the registry keys on.
func (t *Tree) EntityKeyHash() *big.Int {
	s, ok := t.SlotByName(t.Layout.EntityKeyField)
	if !ok {
		return big.NewInt(0)
	}
	return crypto.HashElements(s.Values...)
}
