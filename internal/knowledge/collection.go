package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CollectionName derives the vector index collection for a thread.
// Non [A-Za-z0-9_] runes map to '_'; a short content hash of the raw ID
// keeps distinct thread IDs collision-free after sanitization
// (e.g. "a-b" and "a.b" both sanitize to "a_b").
func CollectionName(threadID string) string {
	var b strings.Builder
	for _, r := range threadID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	sum := sha256.Sum256([]byte(threadID))
	return "thread_" + b.String() + "_" + hex.EncodeToString(sum[:4])
}
