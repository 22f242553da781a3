package ids

import (
	"strings"
	"testing"
)

func TestNewIsSortable(t *testing.T) {
	a := New()
	b := New()
	if a >= b {
		t.Fatalf("expected monotonic ids, got %s then %s", a, b)
	}
	if !Valid(a) {
		t.Fatalf("expected %s to be valid", a)
	}
}

func TestNewPrefixed(t *testing.T) {
	id := NewPrefixed(" ACC ")
	if !strings.HasPrefix(id, "acc_") {
		t.Fatalf("unexpected prefix: %s", id)
	}
	if !Valid(id) {
		t.Fatalf("expected %s to be valid", id)
	}
	if Valid("acc_not-a-ulid") {
		t.Fatalf("expected invalid id to be rejected")
	}
	if strings.Contains(NewPrefixed(""), "_") {
		t.Fatalf("empty prefix must not add separator")
	}
}
