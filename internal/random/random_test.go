package random

import (
	"strings"
	"testing"
)

func TestString_LengthAndAlphabet(t *testing.T) {
	for _, n := range []int{0, 1, 16, 32} {
		s := String(n)
		if len(s) != n {
			t.Errorf("String(%d) length = %d", n, len(s))
		}
		for _, c := range s {
			if !strings.ContainsRune(Alphabet, c) {
				t.Errorf("String(%d) produced %q outside alphabet", n, c)
			}
		}
	}
}

func TestString_NotRepeating(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := String(16)
		if seen[s] {
			t.Fatalf("String(16) repeated %q", s)
		}
		seen[s] = true
	}
}
