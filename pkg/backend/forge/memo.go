package forge

import (
	"sync"
	"time"
)

type branchMemoEntry struct {
	branches []string
	expires  time.Time
}

// branchMemo is a short-lived memo of branch listings per repository.
// It only smooths bursts within a single refresh cycle; durable
// caching is the cache decorator's job.
type branchMemo struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]branchMemoEntry
	now     func() time.Time
}

func newBranchMemo(ttl time.Duration) *branchMemo {
	return &branchMemo{
		ttl:     ttl,
		entries: make(map[string]branchMemoEntry),
		now:     time.Now,
	}
}

func (m *branchMemo) get(owner, name string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[owner+"/"+name]
	if !ok {
		return nil, false
	}
	if m.now().After(entry.expires) {
		delete(m.entries, owner+"/"+name)
		return nil, false
	}
	return entry.branches, true
}

func (m *branchMemo) put(owner, name string, branches []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[owner+"/"+name] = branchMemoEntry{
		branches: branches,
		expires:  m.now().Add(m.ttl),
	}
}
