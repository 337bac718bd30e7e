// Package directory holds the in-memory mirror of the registry: the live
// peerID -> {endpoint, reputation} view every consensus component reads
// on its hot path (spec §4.2).
package directory

import "sync"

// ExclusionThreshold is the minimum reputation a peer must hold to be
// counted toward quorum numerators/denominators (spec §3/§4.7).
const ExclusionThreshold = 50

// Entry mirrors one registry record.
type Entry struct {
	PeerID     string
	URL        string
	Reputation int
}

// Reputable reports whether e's reputation clears the exclusion threshold.
func (e Entry) Reputable() bool {
	return e.Reputation >= ExclusionThreshold
}

// Table is the peer-local, mutex-guarded directory. Writers are the
// directory-port listener (on join) and the reputation controller (on
// adjustment); readers are the acceptor and proposer hot paths.
type Table struct {
	mu      sync.RWMutex
	entries map[string]Entry
	selfID  string
}

// New builds an empty table for the peer identified by selfID.
func New(selfID string) *Table {
	return &Table{entries: make(map[string]Entry), selfID: selfID}
}

// Put inserts or overwrites the entry for id.
func (t *Table) Put(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[e.PeerID] = e
}

// SetReputation updates only the reputation field for id, leaving the URL
// untouched; a no-op if id is unknown.
func (t *Table) SetReputation(id string, reputation int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return
	}
	e.Reputation = reputation
	t.entries[id] = e
}

// Get returns a copy of id's entry.
func (t *Table) Get(id string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	return e, ok
}

// All returns a snapshot of every entry, safe to range over without
// holding the table's lock.
func (t *Table) All() map[string]Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Entry, len(t.entries))
	for id, e := range t.entries {
		out[id] = e
	}
	return out
}

// Peers returns every entry except selfID.
func (t *Table) Peers() map[string]Entry {
	all := t.All()
	delete(all, t.selfID)
	return all
}

// ReputablePeers returns every entry except selfID whose reputation clears
// ExclusionThreshold — the set counted toward quorum (spec §4.6/§4.7).
func (t *Table) ReputablePeers() map[string]Entry {
	out := make(map[string]Entry)
	for id, e := range t.Peers() {
		if e.Reputable() {
			out[id] = e
		}
	}
	return out
}

// Len returns the number of entries, including self.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
