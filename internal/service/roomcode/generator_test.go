package roomcode

import (
	"strings"
	"testing"
)

func TestGeneratorProducesUppercaseCodes(t *testing.T) {
	gen, err := New(0)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	for i := 0; i < 100; i++ {
		code := gen.Next()
		if len(code) != DefaultLength {
			t.Fatalf("expected length %d, got %q", DefaultLength, code)
		}
		if strings.ToUpper(code) != code {
			t.Fatalf("expected uppercase code, got %q", code)
		}
		for _, r := range code {
			if !strings.ContainsRune(Alphabet, r) {
				t.Fatalf("unexpected character %q in %q", r, code)
			}
		}
	}
}
