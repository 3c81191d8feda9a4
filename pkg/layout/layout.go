// Package layout defines the field layout registry: the fixed mapping from
// semantic field name to document-tree slot index, shared by the tree
// builder and the circuit witness preparation. A layout is immutable for a
// live document type; historical proofs depend on it.
package layout

import (
	"fmt"

	"github.com/attestra/compliance-zkproof/config"
)

// Encoding selects how a raw field value normalizes before hashing.
type Encoding string

const (
	// EncodingPattern marks a string expected to match a fixed structural
	// pattern (e.g. a two-letter country code). Encoded like an enum value.
	EncodingPattern Encoding = "pattern"
	// EncodingEnum marks a string drawn from a small canonical set
	// (statuses, categories).
	EncodingEnum Encoding = "enum"
	// EncodingBoolean marks a true/false flag, encoded as 1/0.
	EncodingBoolean Encoding = "boolean"
	// EncodingCount marks an array field encoded as its length
	// (existence/threshold checks only).
	EncodingCount Encoding = "count"
	// EncodingDate marks a date string, normalized to UTC unix seconds for
	// temporal predicates.
	EncodingDate Encoding = "date"
	// EncodingOpaque marks free-form text hashed as-is (truncated).
	EncodingOpaque Encoding = "opaque"
)

// FieldSpec describes one slot of a document layout. A non-empty Bundle
// lists the source field names grouped into this slot; the slot then hashes
// all components together and opens as a unit.
type FieldSpec struct {
	Name      string
	Slot      int
	Encoding  Encoding
	Mandatory bool
	Bundle    []string
}

// Width returns the number of field elements the slot's leaf hash absorbs.
func (f FieldSpec) Width() int {
	if len(f.Bundle) > 0 {
		return len(f.Bundle)
	}
	return 1
}

// DocumentLayout is the versioned slot assignment for one document type.
// EntityKeyField names the field whose hash identifies the entity in the
// registry and in proof public outputs.
type DocumentLayout struct {
	Type           string
	Version        int
	EntityKeyField string
	Fields         []FieldSpec
}

// Validate checks the layout invariants: slot and name bijections, slot
// indices within the fixed tree, bundle widths within bounds, and a
// resolvable entity key field.
func (l *DocumentLayout) Validate() error {
	slots := make(map[int]string, len(l.Fields))
	names := make(map[string]int, len(l.Fields))
	for _, f := range l.Fields {
		if f.Slot < 0 || f.Slot >= config.DocSlotCount {
			return fmt.Errorf("layout %s: field %s slot %d out of range [0, %d)", l.Type, f.Name, f.Slot, config.DocSlotCount)
		}
		if prev, dup := slots[f.Slot]; dup {
			return fmt.Errorf("layout %s: slot %d assigned to both %s and %s", l.Type, f.Slot, prev, f.Name)
		}
		if _, dup := names[f.Name]; dup {
			return fmt.Errorf("layout %s: field %s declared twice", l.Type, f.Name)
		}
		if len(f.Bundle) > config.MaxBundleWidth {
			return fmt.Errorf("layout %s: bundle %s has %d components, max %d", l.Type, f.Name, len(f.Bundle), config.MaxBundleWidth)
		}
		slots[f.Slot] = f.Name
		names[f.Name] = f.Slot
	}
	if _, ok := names[l.EntityKeyField]; !ok {
		return fmt.Errorf("layout %s: entity key field %s not declared", l.Type, l.EntityKeyField)
	}
	return nil
}

// Field returns the spec for a field name.
func (l *DocumentLayout) Field(name string) (FieldSpec, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// FieldBySlot returns the spec occupying a slot.
func (l *DocumentLayout) FieldBySlot(slot int) (FieldSpec, bool) {
	for _, f := range l.Fields {
		if f.Slot == slot {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// MandatoryFields returns the names of every mandatory field, in slot order.
func (l *DocumentLayout) MandatoryFields() []string {
	var out []string
	for slot := 0; slot < config.DocSlotCount; slot++ {
		if f, ok := l.FieldBySlot(slot); ok && f.Mandatory {
			out = append(out, f.Name)
		}
	}
	return out
}
