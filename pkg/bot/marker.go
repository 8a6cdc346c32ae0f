package bot

import "strings"

// Marker is the reserved invisible prefix (two U+2063 INVISIBLE SEPARATOR
// code points) added to every message the relay sends. It never appears in
// natural text, so any inbound message starting with it is unconditionally
// the relay's own output.
const Marker = "\u2063\u2063"

// IsMarked reports whether a raw message body carries the outbound marker.
func IsMarked(body string) bool {
	return strings.HasPrefix(body, Marker)
}
