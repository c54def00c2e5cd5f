package roomname

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerate_Shape(t *testing.T) {
	for i := 0; i < 50; i++ {
		name, err := Generate(nil)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		parts := strings.Split(name, "-")
		if len(parts) != Words {
			t.Fatalf("%q has %d words", name, len(parts))
		}
		for _, p := range parts {
			if p == "" {
				t.Fatalf("%q has an empty word", name)
			}
		}
	}
}

func TestGenerate_SkipsTaken(t *testing.T) {
	first, err := Generate(nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	calls := 0
	got, err := Generate(func(name string) bool {
		calls++
		return calls < 3 || name == first
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if calls < 3 {
		t.Fatalf("taken consulted %d times", calls)
	}
	if got == first {
		t.Fatalf("returned a taken name")
	}
}

func TestGenerate_GivesUpWhenEverythingTaken(t *testing.T) {
	calls := 0
	name, err := Generate(func(string) bool {
		calls++
		return true
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err=%v, want ErrExhausted", err)
	}
	if name != "" {
		t.Fatalf("name=%q, want empty", name)
	}
	if calls != maxAttempts {
		t.Fatalf("taken consulted %d times, want %d", calls, maxAttempts)
	}
}
