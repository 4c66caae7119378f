package ckey

import (
	"strings"
	"testing"
)

func TestDerive_Stable(t *testing.T) {
	// WHAT: Identical namespace + parts derive the identical key.
	// WHY: Cache correctness depends on keys being reproducible across
	// processes and time.
	a := Derive("product", "https://example.com/p/1", "en", "v3")
	b := Derive("product", "https://example.com/p/1", "en", "v3")
	if a != b {
		t.Errorf("same inputs derived different keys: %s vs %s", a, b)
	}
}

func TestDerive_FixedLength(t *testing.T) {
	// WHAT: Every key is 64 hex chars regardless of input size.
	// WHY: Keys are used as filenames and column values; length must be fixed.
	for _, parts := range [][]string{nil, {"a"}, {strings.Repeat("x", 10000)}} {
		k := Derive("ns", parts...)
		if len(k) != 64 {
			t.Errorf("Derive(%d parts) length = %d, want 64", len(parts), len(k))
		}
	}
}

func TestDerive_PartChange(t *testing.T) {
	// WHAT: Changing any single part changes the key.
	// WHY: A version bump must invalidate exactly the stages keyed on it.
	base := Derive("run", "snapkey", "detectors-v2", "scoring-v5")
	for _, variant := range [][]string{
		{"snapkey2", "detectors-v2", "scoring-v5"},
		{"snapkey", "detectors-v3", "scoring-v5"},
		{"snapkey", "detectors-v2", "scoring-v6"},
	} {
		if Derive("run", variant...) == base {
			t.Errorf("variant %v collided with base key", variant)
		}
	}
}

func TestDerive_OrderMatters(t *testing.T) {
	// WHAT: Reordering parts changes the key.
	// WHY: The serialization is positional; parts carry meaning by position.
	if Derive("ns", "a", "b") == Derive("ns", "b", "a") {
		t.Error("reordered parts derived the same key")
	}
}

func TestDerive_NamespaceSeparation(t *testing.T) {
	// WHAT: The same parts under different namespaces derive different keys.
	// WHY: A product key must never collide with a snapshot key.
	if Derive("product", "x") == Derive("snapshot", "x") {
		t.Error("namespaces share a hash domain")
	}
}

func TestDerive_UnambiguousFraming(t *testing.T) {
	// WHAT: Part boundaries are part of the serialization.
	// WHY: "ab"+"c" and "a"+"bc" are different inputs and need different keys.
	if Derive("ns", "ab", "c") == Derive("ns", "a", "bc") {
		t.Error("concatenation ambiguity: frame boundaries not hashed")
	}
}

func TestDeriveMap_IterationOrderIndependent(t *testing.T) {
	// WHAT: DeriveMap yields a stable key regardless of map construction order.
	// WHY: Go map iteration is randomized; keys must not be.
	m1 := map[string]string{"locale": "en", "market": "us", "flag": "1"}
	m2 := map[string]string{"flag": "1", "market": "us", "locale": "en"}
	want := DeriveMap("opts", m1, "base")
	for i := 0; i < 20; i++ {
		if got := DeriveMap("opts", m2, "base"); got != want {
			t.Fatalf("iteration %d: got %s, want %s", i, got, want)
		}
	}
}

func TestKey_Short(t *testing.T) {
	// WHAT: Short() truncates to 12 chars for logs.
	k := Derive("ns", "a")
	if len(k.Short()) != 12 {
		t.Errorf("Short() length = %d, want 12", len(k.Short()))
	}
	if !strings.HasPrefix(string(k), k.Short()) {
		t.Error("Short() is not a prefix of the key")
	}
}
