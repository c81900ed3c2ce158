package invite

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"testing"
)

var hexCode = regexp.MustCompile(`^[0-9a-f]{12}$`)

func TestCodeKnownValue(t *testing.T) {
	t.Parallel()

	full := fmt.Sprintf("%x", sha256.Sum256([]byte("99")))
	if got := Code(99); got != full[:12] {
		t.Fatalf("Code(99) = %q, want %q", got, full[:12])
	}
}

func TestCodeShapeAndDeterminism(t *testing.T) {
	t.Parallel()

	ids := []int64{0, 1, 99, -42, 777000, 1 << 40}
	for _, id := range ids {
		first := Code(id)
		if !hexCode.MatchString(first) {
			t.Errorf("Code(%d) = %q, want 12 lowercase hex chars", id, first)
		}
		if again := Code(id); again != first {
			t.Errorf("Code(%d) not deterministic: %q != %q", id, first, again)
		}
	}
}

func TestCodeDistinct(t *testing.T) {
	t.Parallel()

	seen := make(map[string]int64, 10000)
	for id := int64(1); id <= 10000; id++ {
		c := Code(id)
		if prev, ok := seen[c]; ok {
			t.Fatalf("Code(%d) collides with Code(%d): %q", id, prev, c)
		}
		seen[c] = id
	}
}

func TestMatches(t *testing.T) {
	t.Parallel()

	prompt := "Send your invite code (if any | reply to this):\n" + Code(99)
	if !Matches(prompt, 99) {
		t.Fatal("Matches() = false for own code")
	}
	if Matches(prompt, 100) {
		t.Fatal("Matches() = true for another user")
	}
	if Matches("", 99) {
		t.Fatal("Matches() = true for empty text")
	}
}
