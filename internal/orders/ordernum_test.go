package orders

import (
	"strings"
	"testing"
	"time"
)

func TestNewOrderNumberFormat(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	n, err := NewOrderNumber("ZC", at)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(n, "ZC20260825") {
		t.Fatalf("unexpected prefix: %s", n)
	}
	if len(n) != len("ZC20260825")+orderNumberRandomLen {
		t.Fatalf("unexpected length: %s", n)
	}
	for _, r := range n[len("ZC20260825"):] {
		if !strings.ContainsRune(orderNumberAlphabet, r) {
			t.Fatalf("character %q outside alphabet in %s", r, n)
		}
	}
}

func TestNewOrderNumberVaries(t *testing.T) {
	t.Parallel()

	at := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n, err := NewOrderNumber("ZC", at)
		if err != nil {
			t.Fatal(err)
		}
		if seen[n] {
			t.Fatalf("collision after %d draws: %s", i, n)
		}
		seen[n] = true
	}
}
