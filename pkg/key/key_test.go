package key

import "testing"

type upperCanon struct{}

func (upperCanon) Canonicalize(keyword, value string) (string, error) {
	return value + "!", nil
}

func TestKeySetGet(t *testing.T) {
	k := New()
	if err := k.Set("class", "od"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	v, ok := k.Get("class")
	if !ok || v != "od" {
		t.Errorf("Get(class) = %q, %v, want %q, true", v, ok, "od")
	}
	if !k.Has("class") {
		t.Error("Has(class) = false, want true")
	}
	if k.Has("expver") {
		t.Error("Has(expver) = true, want false")
	}
}

func TestKeyTypedCanonicalizesOnSet(t *testing.T) {
	k := NewTyped(upperCanon{})
	if err := k.Set("param", "130"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	v, _ := k.Get("param")
	if v != "130!" {
		t.Errorf("Get(param) = %q, want %q", v, "130!")
	}
}

func TestKeyUnset(t *testing.T) {
	k := New()
	k.Set("a", "1")
	k.Set("b", "2")
	k.Unset("a")
	if k.Has("a") {
		t.Error("Has(a) = true after Unset, want false")
	}
	if got := k.Keywords(); len(got) != 1 || got[0] != "b" {
		t.Errorf("Keywords() = %v, want [b]", got)
	}
	// Unsetting an absent keyword is a no-op, not an error.
	k.Unset("nope")
}

func TestKeyKeywordsPreservesInsertionOrder(t *testing.T) {
	k := New()
	k.Set("z", "1")
	k.Set("a", "2")
	k.Set("m", "3")
	want := []string{"z", "a", "m"}
	got := k.Keywords()
	if len(got) != len(want) {
		t.Fatalf("Keywords() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keywords()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestKeyEqualIgnoresOrder(t *testing.T) {
	a := New()
	a.Set("class", "od")
	a.Set("stream", "oper")

	b := New()
	b.Set("stream", "oper")
	b.Set("class", "od")

	if !a.Equal(b) {
		t.Error("Equal() = false for keys with same dictionary, different order")
	}

	b.Set("extra", "x")
	if a.Equal(b) {
		t.Error("Equal() = true for keys with different size")
	}
}

func TestKeyEqualNil(t *testing.T) {
	a := New()
	if a.Equal(nil) {
		t.Error("Equal(nil) = true, want false")
	}
}

func TestKeyCloneIsIndependent(t *testing.T) {
	a := New()
	a.Set("class", "od")
	b := a.Clone()
	b.Set("class", "rd")
	b.Set("extra", "1")

	v, _ := a.Get("class")
	if v != "od" {
		t.Errorf("original mutated through clone: Get(class) = %q, want od", v)
	}
	if a.Has("extra") {
		t.Error("original gained a keyword set only on the clone")
	}
}

func TestKeyRequestReflectsValues(t *testing.T) {
	k := New()
	k.Set("class", "od")
	k.Set("stream", "oper")
	req := k.Request()
	if req["class"] != "od" || req["stream"] != "oper" || len(req) != 2 {
		t.Errorf("Request() = %v, want {class:od, stream:oper}", req)
	}
}

func TestKeyStringUsesInsertionOrder(t *testing.T) {
	k := New()
	k.Set("class", "od")
	k.Set("expver", "xxxx")
	k.Set("stream", "oper")
	if got, want := k.String(), "od:xxxx:oper"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestKeyCanonicalStringIsOrderIndependent(t *testing.T) {
	a := New()
	a.Set("class", "od")
	a.Set("stream", "oper")

	b := New()
	b.Set("stream", "oper")
	b.Set("class", "od")

	if a.CanonicalString() != b.CanonicalString() {
		t.Errorf("CanonicalString() differs by insertion order: %q vs %q", a.CanonicalString(), b.CanonicalString())
	}
}

func TestKeyLen(t *testing.T) {
	k := New()
	if k.Len() != 0 {
		t.Errorf("Len() = %d, want 0", k.Len())
	}
	k.Set("a", "1")
	k.Set("b", "2")
	if k.Len() != 2 {
		t.Errorf("Len() = %d, want 2", k.Len())
	}
}
