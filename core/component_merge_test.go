package core

import "testing"

func TestDecodeComponentParsesIdentity(t *testing.T) {
	c, err := DecodeComponent([]byte(`{"kind":"identity","id":"e1","name":"Rock"}`))
	if err != nil {
		t.Fatalf("DecodeComponent() error: %v", err)
	}
	identity, ok := c.(Identity)
	if !ok || identity.ID != "e1" || identity.Name != "Rock" {
		t.Fatalf("DecodeComponent() = %+v", c)
	}
}

func TestDecodeComponentUnknownKindFails(t *testing.T) {
	if _, err := DecodeComponent([]byte(`{"kind":"not_a_real_kind"}`)); err != ErrUnknownComponent {
		t.Fatalf("DecodeComponent() error = %v, want ErrUnknownComponent", err)
	}
}

func TestDecodeComponentMalformedJSONFails(t *testing.T) {
	if _, err := DecodeComponent([]byte(`not json`)); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestShallowMergeComponentOverridesTopLevelFieldsOnly(t *testing.T) {
	// Armor carries `omitempty`, so a zero-value override leaves the base's
	// Armor untouched; Health/MaxHealth don't, so the override always wins
	// on those fields.
	base := Durability{Health: 10, MaxHealth: 100, Armor: 5}
	override := Durability{Health: 50, MaxHealth: 100}

	merged, err := shallowMergeComponent(base, override)
	if err != nil {
		t.Fatalf("shallowMergeComponent() error: %v", err)
	}
	dur := merged.(Durability)
	if dur.Health != 50 {
		t.Fatalf("merged.Health = %v, want 50 (override applied)", dur.Health)
	}
	if dur.MaxHealth != 100 || dur.Armor != 5 {
		t.Fatalf("merged = %+v, want base's MaxHealth/Armor preserved", dur)
	}
}

func TestShallowMergeComponentPreservesBaseKind(t *testing.T) {
	base := Identity{ID: "e1", Name: "Original"}
	override := Identity{Name: "Renamed"}

	merged, err := shallowMergeComponent(base, override)
	if err != nil {
		t.Fatalf("shallowMergeComponent() error: %v", err)
	}
	if merged.Kind() != KindIdentity {
		t.Fatalf("merged.Kind() = %v, want %v", merged.Kind(), KindIdentity)
	}
	identity := merged.(Identity)
	if identity.ID != "e1" || identity.Name != "Renamed" {
		t.Fatalf("merged = %+v", identity)
	}
}
