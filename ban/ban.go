// Package ban implements the server-wide K/G/Z-line ban engine and the
// glob-style mask matching shared with channel +b/+e/+I lists.
package ban

import (
	"path"
	"strings"
	"sync"
	"time"
)

// Kind distinguishes the scope of a server ban.
type Kind uint8

const (
	// KindKLine bans a nick!user@host mask from this server only.
	KindKLine Kind = iota
	// KindGLine marks a ban as network-wide. Entries are held only in this
	// server's engine; they are not sent to linked servers.
	KindGLine
	// KindZLine bans by address mask. Masks are globs matched by MatchMask;
	// CIDR notation is not interpreted.
	KindZLine
)

// Entry is one server ban record.
type Entry struct {
	Kind      Kind
	Mask      string
	Reason    string
	SetBy     string
	SetAt     time.Time
	ExpiresAt time.Time // zero value means permanent
}

// Expired reports whether the entry's timer has lapsed as of now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Engine holds the active server ban list and matches connecting/ matches
// connected clients against it.
type Engine struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewEngine builds an empty ban engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Add appends a ban entry.
func (e *Engine) Add(entry Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
}

// Remove deletes every ban entry of the given kind with an exact mask match.
// Returns true if at least one entry was removed.
func (e *Engine) Remove(kind Kind, mask string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := false
	kept := e.entries[:0]
	for _, entry := range e.entries {
		if entry.Kind == kind && strings.EqualFold(entry.Mask, mask) {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	e.entries = kept
	return removed
}

// Match returns the first non-expired ban entry of the given kind whose mask
// matches candidate, or false if none matches. Expired entries are lazily
// pruned on every call.
func (e *Engine) Match(kind Kind, candidate string) (Entry, bool) {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.entries[:0]
	var found Entry
	ok := false
	for _, entry := range e.entries {
		if entry.Expired(now) {
			continue
		}
		kept = append(kept, entry)
		if !ok && entry.Kind == kind && MatchMask(entry.Mask, candidate) {
			found = entry
			ok = true
		}
	}
	e.entries = kept
	return found, ok
}

// List returns a snapshot of every active (non-expired) ban of the given
// kind, for server management commands.
func (e *Engine) List(kind Kind) []Entry {
	now := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Entry
	for _, entry := range e.entries {
		if entry.Kind == kind && !entry.Expired(now) {
			out = append(out, entry)
		}
	}
	return out
}

// MatchMask reports whether candidate matches an IRC glob mask ('*' and '?'
// wildcards, case-insensitive), used for nick!user@host bans, Z-lines, and
// channel +b/+e/+I.
func MatchMask(mask, candidate string) bool {
	pattern := strings.ToLower(translateGlob(mask))
	ok, err := path.Match(pattern, strings.ToLower(strings.ReplaceAll(candidate, "/", "\x00")))
	if err != nil {
		return false
	}
	return ok
}

// translateGlob rewrites IRC mask wildcards ('*', '?') into path.Match
// syntax, escaping path.Match's own special characters ('[', ']', '\')
// since IRC masks do not use them as wildcards. '/' is mapped to NUL (as
// MatchMask does for the candidate) so that '*' also spans slashes.
func translateGlob(mask string) string {
	var b strings.Builder
	for i := 0; i < len(mask); i++ {
		switch mask[i] {
		case '[', ']', '\\':
			b.WriteByte('\\')
			b.WriteByte(mask[i])
		case '/':
			b.WriteByte(0)
		default:
			b.WriteByte(mask[i])
		}
	}
	return b.String()
}
