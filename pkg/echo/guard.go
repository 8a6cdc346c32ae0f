// Package echo tracks messages the relay itself produced so that redelivered
// or echoed events are not translated again.
package echo

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultTTL bounds how long echo and dedup entries stay valid. Long enough
// to absorb redelivery jitter, short enough that a legitimately repeated
// human message is not blacklisted forever.
const DefaultTTL = 120 * time.Second

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeBody collapses whitespace runs, trims, and lowercases. Used only
// for echo comparisons, never for translation input.
func NormalizeBody(text string) string {
	return strings.ToLower(strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " ")))
}

// Guard is a set of time-bounded caches detecting the relay's own output.
//
// Expired entries are swept lazily on every operation; there is no background
// timer.
type Guard struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time

	processedIDs    map[string]time.Time // message id → expiry, redelivery dedup
	recentBotIDs    map[string]time.Time // ids the relay sent, consumed on match
	recentBotBodies map[string]time.Time // normalized body → expiry, id-less fallback
	pendingBodies   map[string]time.Time // bodies in flight between send and echo
}

// NewGuard creates a guard with the given entry TTL. ttl <= 0 uses
// DefaultTTL.
func NewGuard(ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{
		ttl:             ttl,
		now:             time.Now,
		processedIDs:    make(map[string]time.Time),
		recentBotIDs:    make(map[string]time.Time),
		recentBotBodies: make(map[string]time.Time),
		pendingBodies:   make(map[string]time.Time),
	}
}

// MarkAndCheckProcessed reports whether the message id was already handled,
// recording it if not. An empty id is never considered processed.
func (g *Guard) MarkAndCheckProcessed(messageID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep()

	if messageID == "" {
		return false
	}
	if _, ok := g.processedIDs[messageID]; ok {
		return true
	}
	g.processedIDs[messageID] = g.now().Add(g.ttl)
	return false
}

// IsLikelyEcho reports whether an inbound event is an observation of a
// message the relay sent. An id match is authoritative and consumed; the
// body match applies only to self-authored messages.
func (g *Guard) IsLikelyEcho(messageID string, fromMe bool, body string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep()

	if messageID != "" {
		if _, ok := g.recentBotIDs[messageID]; ok {
			delete(g.recentBotIDs, messageID)
			return true
		}
	}

	if !fromMe {
		return false
	}
	key := NormalizeBody(body)
	if key == "" {
		return false
	}

	now := g.now()
	if expireAt, ok := g.pendingBodies[key]; ok && expireAt.After(now) {
		return true
	}

	expireAt, ok := g.recentBotBodies[key]
	if !ok {
		return false
	}
	if !expireAt.After(now) {
		delete(g.recentBotBodies, key)
		return false
	}
	return true
}

// MarkPendingBody marks an outbound body as in flight between the send call
// and the arrival of its echo event.
func (g *Guard) MarkPendingBody(body string) {
	key := NormalizeBody(body)
	if key == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep()
	g.pendingBodies[key] = g.now().Add(g.ttl)
}

// ClearPendingBody removes the in-flight mark once the send has settled.
func (g *Guard) ClearPendingBody(body string) {
	key := NormalizeBody(body)
	if key == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep()
	delete(g.pendingBodies, key)
}

// RememberSent records the id and normalized body of a message the relay
// just sent.
func (g *Guard) RememberSent(sentMessageID, body string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep()

	expireAt := g.now().Add(g.ttl)
	if sentMessageID != "" {
		g.recentBotIDs[sentMessageID] = expireAt
	}
	if key := NormalizeBody(body); key != "" {
		g.recentBotBodies[key] = expireAt
	}
}

// sweep drops expired entries. Callers must hold g.mu.
func (g *Guard) sweep() {
	now := g.now()
	for _, entries := range []map[string]time.Time{
		g.processedIDs,
		g.recentBotIDs,
		g.recentBotBodies,
		g.pendingBodies,
	} {
		for key, expireAt := range entries {
			if !expireAt.After(now) {
				delete(entries, key)
			}
		}
	}
}
