package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// NewID generates a unique session ID using a timestamp prefix and random suffix.
// Format: YYYYMMDD-HHMMSS-RANDOM (e.g., "20240115-143052-a1b2c3")
// This format:
//   - Sorts chronologically by default
//   - Is human-readable for debugging
//   - Has enough randomness to prevent collisions
func NewID() string {
	now := time.Now()
	random := make([]byte, 3) // 6 hex chars
	rand.Read(random)
	return fmt.Sprintf("%s-%s",
		now.Format("20060102-150405"),
		hex.EncodeToString(random),
	)
}

// ParseIDTime extracts the timestamp from a session ID.
// Returns zero time if parsing fails.
func ParseIDTime(id string) time.Time {
	if len(id) < 15 {
		return time.Time{}
	}
	t, _ := time.Parse("20060102-150405", id[:15])
	return t
}

// ShortID returns a shortened version of the session ID for display.
// Example: "20240115-143052-a1b2c3" -> "240115-1430"
func ShortID(id string) string {
	if len(id) < 15 {
		return id
	}
	// Skip first 2 chars (century), take YYMMDD-HHMM
	return id[2:8] + "-" + id[9:13]
}

// ExpandShortID turns a ShortID back into a full-ID prefix.
// Anything that does not look like a ShortID is returned unchanged.
func ExpandShortID(short string) string {
	if len(short) == 11 && short[6] == '-' {
		return "20" + short
	}
	return short
}

// MatchesRef reports whether id is referenced by ref, which may be the full
// id, a ShortID or any unambiguous prefix of either.
func MatchesRef(id, ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}
	return strings.HasPrefix(id, ref) || strings.HasPrefix(id, ExpandShortID(ref))
}
