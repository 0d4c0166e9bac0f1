package knowledge

import (
	"strings"
	"testing"
)

func TestCollectionName(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := CollectionName("session-42")
		b := CollectionName("session-42")
		if a != b {
			t.Errorf("CollectionName not deterministic: %q vs %q", a, b)
		}
	})

	t.Run("prefixed and sanitized", func(t *testing.T) {
		got := CollectionName("user@example.com/chat")
		if !strings.HasPrefix(got, "thread_user_example_com_chat_") {
			t.Errorf("CollectionName() = %q", got)
		}
		for _, r := range got {
			if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
				t.Errorf("CollectionName() = %q contains %q", got, r)
			}
		}
	})

	t.Run("sanitization collisions stay distinct", func(t *testing.T) {
		// Both sanitize to a_b; the hash suffix keeps them apart.
		a := CollectionName("a-b")
		b := CollectionName("a.b")
		if a == b {
			t.Errorf("CollectionName(%q) == CollectionName(%q) == %q", "a-b", "a.b", a)
		}
	})
}
