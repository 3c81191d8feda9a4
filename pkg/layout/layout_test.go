package layout

import (
	"testing"

	"github.com/attestra/compliance-zkproof/config"
)

// TestBuiltinLayoutsValid verifies every shipped layout passes its own
// invariants.
func TestBuiltinLayoutsValid(t *testing.T) {
	for _, domain := range Domains() {
		l, ok := Builtin(domain)
		if !ok {
			t.Fatalf("builtin layout missing for %s", domain)
		}
		if err := l.Validate(); err != nil {
			t.Fatalf("layout %s: %v", domain, err)
		}
		if l.Type != domain {
			t.Fatalf("layout %s declares type %s", domain, l.Type)
		}
		if _, ok := l.Field(l.EntityKeyField); !ok {
			t.Fatalf("layout %s: entity key field %s unresolvable", domain, l.EntityKeyField)
		}
	}
}

func TestValidateRejectsSlotCollision(t *testing.T) {
	l := &DocumentLayout{
		Type:           "test-doc",
		Version:        1,
		EntityKeyField: "a",
		Fields: []FieldSpec{
			{Name: "a", Slot: 0, Encoding: EncodingOpaque},
			{Name: "b", Slot: 0, Encoding: EncodingOpaque},
		},
	}
	if err := l.Validate(); err == nil {
		t.Fatal("slot collision accepted")
	}
}

func TestValidateRejectsDuplicateName(t *testing.T) {
	l := &DocumentLayout{
		Type:           "test-doc",
		Version:        1,
		EntityKeyField: "a",
		Fields: []FieldSpec{
			{Name: "a", Slot: 0, Encoding: EncodingOpaque},
			{Name: "a", Slot: 1, Encoding: EncodingOpaque},
		},
	}
	if err := l.Validate(); err == nil {
		t.Fatal("duplicate field name accepted")
	}
}

func TestValidateRejectsSlotOutOfRange(t *testing.T) {
	l := &DocumentLayout{
		Type:           "test-doc",
		Version:        1,
		EntityKeyField: "a",
		Fields: []FieldSpec{
			{Name: "a", Slot: config.DocSlotCount, Encoding: EncodingOpaque},
		},
	}
	if err := l.Validate(); err == nil {
		t.Fatal("out-of-range slot accepted")
	}
}

func TestValidateRejectsOversizedBundle(t *testing.T) {
	bundle := make([]string, config.MaxBundleWidth+1)
	for i := range bundle {
		bundle[i] = string(rune('a' + i))
	}
	l := &DocumentLayout{
		Type:           "test-doc",
		Version:        1,
		EntityKeyField: "a",
		Fields: []FieldSpec{
			{Name: "a", Slot: 0, Encoding: EncodingOpaque},
			{Name: "b", Slot: 1, Encoding: EncodingOpaque, Bundle: bundle},
		},
	}
	if err := l.Validate(); err == nil {
		t.Fatal("oversized bundle accepted")
	}
}

func TestValidateRejectsMissingEntityKey(t *testing.T) {
	l := &DocumentLayout{
		Type:           "test-doc",
		Version:        1,
		EntityKeyField: "missing",
		Fields: []FieldSpec{
			{Name: "a", Slot: 0, Encoding: EncodingOpaque},
		},
	}
	if err := l.Validate(); err == nil {
		t.Fatal("unresolvable entity key field accepted")
	}
}

func TestWidth(t *testing.T) {
	plain := FieldSpec{Name: "a", Slot: 0}
	if plain.Width() != 1 {
		t.Fatalf("plain width %d", plain.Width())
	}
	bundled := FieldSpec{Name: "b", Slot: 1, Bundle: []string{"x", "y", "z"}}
	if bundled.Width() != 3 {
		t.Fatalf("bundle width %d", bundled.Width())
	}
}

func TestMandatoryFieldsSlotOrder(t *testing.T) {
	l, _ := Builtin(DomainLegalEntity)
	got := l.MandatoryFields()
	want := []string{"lei", "legalName", "entityStatus", "registrationStatus",
		"legalJurisdiction", "initialRegistrationDate", "nextRenewalDate"}
	if len(got) != len(want) {
		t.Fatalf("mandatory fields: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mandatory fields: got %v want %v", got, want)
		}
	}
}
