package ids

import (
	"testing"
	"time"
)

func TestNewIsSortableAndValid(t *testing.T) {
	a := New()
	b := New()
	if !Valid(a) || !Valid(b) {
		t.Fatalf("expected valid ids, got %q %q", a, b)
	}
	if a >= b {
		t.Fatalf("ids not monotonic: %s >= %s", a, b)
	}
}

func TestNewAtOrdersByTimestamp(t *testing.T) {
	early := NewAt(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	late := NewAt(time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC))
	if early >= late {
		t.Fatalf("expected %s < %s", early, late)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "not-an-id", "01HZZZZZZZZZZZZZZZZZZZZZZZZZZ"} {
		if Valid(in) {
			t.Fatalf("Valid(%q) = true", in)
		}
	}
}
