package apierrors

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeFieldOrder(t *testing.T) {
	env := NewFieldErrors(InvalidQueryParameter, "invalid query parameter: limit", "req-unknown",
		[]FieldError{{Parameter: "limit", Reason: "invalid", Value: "bad"}})
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"code":"InvalidQueryParameter","message":"invalid query parameter: limit","details":{"field_errors":[{"parameter":"limit","reason":"invalid","value":"bad"}]},"request_id":"req-unknown"}`
	if string(b) != want {
		t.Fatalf("got %s, want %s", b, want)
	}
}

func TestNewFallsBackToInternalForUnknownCode(t *testing.T) {
	env := New(Code("NotARealCode"), "oops", "req-1", nil)
	if env.Code != Internal {
		t.Fatalf("expected fallback to Internal, got %s", env.Code)
	}
}

func TestStatusForKnownAndUnknown(t *testing.T) {
	if StatusFor(RateLimited) != 429 {
		t.Fatalf("expected 429 for RateLimited")
	}
	if StatusFor(Code("bogus")) != 500 {
		t.Fatalf("expected 500 fallback for unknown code")
	}
}

func TestMustValidateRegistryCoversAllCodes(t *testing.T) {
	for _, c := range List() {
		if _, ok := Meta(c); !ok {
			t.Fatalf("code %s missing metadata", c)
		}
	}
}
