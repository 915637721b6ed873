/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package corvid

import (
	"strings"
	"sync"
	"time"
)

// WhoWasMaxHistory bounds the number of historical entries retained per nick.
const WhoWasMaxHistory = 5

// WhoWasEntry records a single past appearance of a nickname on the network.
type WhoWasEntry struct {
	Nick    string
	Name    string
	Host    string
	Real    string
	Server  string
	QuitAt  time.Time
}

// WhoWasStore keeps a short, bounded history of recently disconnected users,
// indexed by the lowercased nick they were last known by.
type WhoWasStore struct {
	mu      sync.RWMutex
	history map[string][]WhoWasEntry
}

// NewWhoWasStore initializes an empty WhoWasStore.
func NewWhoWasStore() *WhoWasStore {
	return &WhoWasStore{
		history: make(map[string][]WhoWasEntry),
	}
}

// Record appends an entry to the given nick's history, evicting the oldest
// entry once WhoWasMaxHistory is exceeded.
func (w *WhoWasStore) Record(entry WhoWasEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := strings.ToLower(entry.Nick)
	entries := append(w.history[key], entry)
	if len(entries) > WhoWasMaxHistory {
		entries = entries[len(entries)-WhoWasMaxHistory:]
	}
	w.history[key] = entries
}

// Get returns the recorded history for a nick, most recent last.
func (w *WhoWasStore) Get(nick string) []WhoWasEntry {
	w.mu.RLock()
	defer w.mu.RUnlock()

	entries := w.history[strings.ToLower(nick)]
	out := make([]WhoWasEntry, len(entries))
	copy(out, entries)
	return out
}
