package canonicaljson

import "testing"

func TestMarshalSortsKeys(t *testing.T) {
	in := map[string]any{"b": 1, "a": 2, "c": map[string]any{"z": 1, "y": 2}}
	out, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"a":2,"b":1,"c":{"y":2,"z":1}}`
	if string(out) != want {
		t.Fatalf("got %s, want %s", out, want)
	}
}

func TestIsFixedPoint(t *testing.T) {
	b, err := Marshal(map[string]any{"a": 1, "b": []any{"x", "y"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !IsFixedPoint(b) {
		t.Fatalf("expected %s to be a fixed point", b)
	}
	if IsFixedPoint([]byte(`{"b":1,"a":2}`)) {
		t.Fatalf("unsorted object must not be a fixed point")
	}
}

func TestMarshalBoundedRejectsOversize(t *testing.T) {
	in := map[string]any{"a": "0123456789"}
	if _, err := MarshalBounded(in, 4); err != ErrTooBig {
		t.Fatalf("expected ErrTooBig, got %v", err)
	}
}

func TestSHA256HexDeterministic(t *testing.T) {
	a := SHA256Hex([]byte("hello"))
	b := SHA256Hex([]byte("hello"))
	if a != b {
		t.Fatalf("expected deterministic digest")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}
