package academic

import (
	"sort"
	"sync"
)

type lockKind int

// Acquisition order: requests, then groups, then students.
const (
	lockRequest lockKind = iota
	lockGroup
	lockStudent
)

type lockKey struct {
	kind lockKind
	id   string
}

func requestKey(id string) lockKey { return lockKey{kind: lockRequest, id: id} }
func groupKey(id string) lockKey   { return lockKey{kind: lockGroup, id: id} }
func studentKey(id string) lockKey { return lockKey{kind: lockStudent, id: id} }

// lockTable hands out one mutex per entity. Entries are never evicted; the
// table grows with the number of distinct entities touched.
type lockTable struct {
	mu    sync.Mutex
	locks map[lockKey]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[lockKey]*sync.Mutex)}
}

func (t *lockTable) get(k lockKey) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.locks[k]
	if !ok {
		m = &sync.Mutex{}
		t.locks[k] = m
	}
	return m
}

// acquire locks every key in the global order and returns the matching release.
// Empty ids and duplicates are skipped.
func (t *lockTable) acquire(keys ...lockKey) func() {
	ordered := make([]lockKey, 0, len(keys))
	seen := make(map[lockKey]struct{}, len(keys))
	for _, k := range keys {
		if k.id == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].kind != ordered[j].kind {
			return ordered[i].kind < ordered[j].kind
		}
		return ordered[i].id < ordered[j].id
	})

	held := make([]*sync.Mutex, 0, len(ordered))
	for _, k := range ordered {
		m := t.get(k)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
