package usecase

import (
	"sort"
	"sync"
	"time"
)

// compactThreshold is the number of purged head slots tolerated before the
// backing slice is compacted
const compactThreshold = 64

// ViolationLedger keeps sliding-window violation timestamps per (group, user)
// and per group. Each key has its own lock; the maps are only locked for lookup.
type ViolationLedger struct {
	mu     sync.RWMutex
	users  map[userKey]*timeline
	groups map[string]*timeline
}

type userKey struct {
	groupID string
	userID  string
}

// NewViolationLedger creates an empty ledger
func NewViolationLedger() *ViolationLedger {
	return &ViolationLedger{
		users:  make(map[userKey]*timeline),
		groups: make(map[string]*timeline),
	}
}

// RecordViolation appends a violation for the user and the group aggregate.
// Recording the same event twice counts it twice.
func (l *ViolationLedger) RecordViolation(groupID, userID string, ts time.Time) {
	l.withUser(groupID, userID, true, func(t *timeline) { t.add(ts) })
	l.withGroup(groupID, true, func(t *timeline) { t.add(ts) })
}

// RecordAndCount appends a violation and returns the user and group counts in
// (now-window, now] including it. Append and count happen under the same key
// lock, so concurrent callers for one user each observe a distinct count.
// The user key is always locked before the group key.
func (l *ViolationLedger) RecordAndCount(groupID, userID string, ts time.Time, window time.Duration, now time.Time) (user, group int) {
	l.withUser(groupID, userID, true, func(t *timeline) {
		t.add(ts)
		user = t.count(window, now)
	})
	l.withGroup(groupID, true, func(t *timeline) {
		t.add(ts)
		group = t.count(window, now)
	})
	return user, group
}

// CountUserViolations counts the user's violations in (now-window, now]
func (l *ViolationLedger) CountUserViolations(groupID, userID string, window time.Duration, now time.Time) int {
	var n int
	l.withUser(groupID, userID, false, func(t *timeline) { n = t.count(window, now) })
	return n
}

// CountGroupViolations counts all violations of the group in (now-window, now]
func (l *ViolationLedger) CountGroupViolations(groupID string, window time.Duration, now time.Time) int {
	var n int
	l.withGroup(groupID, false, func(t *timeline) { n = t.count(window, now) })
	return n
}

// ResetUser forgets the user's violations; the group aggregate is kept
func (l *ViolationLedger) ResetUser(groupID, userID string) {
	l.withUser(groupID, userID, false, func(t *timeline) { t.reset() })
}

// ResetGroup forgets the group aggregate; per-user timelines are kept
func (l *ViolationLedger) ResetGroup(groupID string) {
	l.withGroup(groupID, false, func(t *timeline) { t.reset() })
}

// Sweep drops every key whose newest violation is older than maxAge and
// returns the number of keys removed
func (l *ViolationLedger) Sweep(maxAge time.Duration, now time.Time) int {
	cutoff := now.Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, t := range l.users {
		if t.retire(cutoff) {
			delete(l.users, k)
			removed++
		}
	}
	for k, t := range l.groups {
		if t.retire(cutoff) {
			delete(l.groups, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked user and group keys
func (l *ViolationLedger) Len() (users, groups int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.users), len(l.groups)
}

func (l *ViolationLedger) withUser(groupID, userID string, create bool, fn func(*timeline)) {
	key := userKey{groupID: groupID, userID: userID}
	for {
		t := lookup(&l.mu, l.users, key, create)
		if t == nil {
			return
		}
		if t.run(fn) {
			return
		}
		// The timeline was swept between lookup and lock; look it up again
	}
}

func (l *ViolationLedger) withGroup(groupID string, create bool, fn func(*timeline)) {
	for {
		t := lookup(&l.mu, l.groups, groupID, create)
		if t == nil {
			return
		}
		if t.run(fn) {
			return
		}
	}
}

func lookup[K comparable](mu *sync.RWMutex, m map[K]*timeline, key K, create bool) *timeline {
	mu.RLock()
	t, ok := m[key]
	mu.RUnlock()
	if ok || !create {
		return t
	}

	mu.Lock()
	defer mu.Unlock()
	if t, ok = m[key]; ok {
		return t
	}
	t = &timeline{}
	m[key] = t
	return t
}

// timeline is an ordered deque of timestamps; ts[head:] are live
type timeline struct {
	mu      sync.Mutex
	ts      []time.Time
	head    int
	retired bool
}

// run executes fn under the timeline lock; false means the timeline is retired
func (t *timeline) run(fn func(*timeline)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.retired {
		return false
	}
	fn(t)
	return true
}

func (t *timeline) add(ts time.Time) {
	n := len(t.ts)
	if n == t.head || !ts.Before(t.ts[n-1]) {
		t.ts = append(t.ts, ts)
		return
	}

	// Out-of-order insert keeps the deque sorted
	live := t.ts[t.head:]
	i := sort.Search(len(live), func(i int) bool { return live[i].After(ts) })
	t.ts = append(t.ts, time.Time{})
	copy(t.ts[t.head+i+1:], t.ts[t.head+i:])
	t.ts[t.head+i] = ts
}

// count purges entries at or before now-window and counts those not after now
func (t *timeline) count(window time.Duration, now time.Time) int {
	t.purge(now.Add(-window))
	live := t.ts[t.head:]
	return sort.Search(len(live), func(i int) bool { return live[i].After(now) })
}

func (t *timeline) purge(cutoff time.Time) {
	for t.head < len(t.ts) && !t.ts[t.head].After(cutoff) {
		t.ts[t.head] = time.Time{}
		t.head++
	}
	if t.head == len(t.ts) {
		t.ts = t.ts[:0]
		t.head = 0
		return
	}
	if t.head >= compactThreshold && t.head*2 >= len(t.ts) {
		n := copy(t.ts, t.ts[t.head:])
		t.ts = t.ts[:n]
		t.head = 0
	}
}

func (t *timeline) reset() {
	t.ts = t.ts[:0]
	t.head = 0
}

// retire marks the timeline dead if it holds nothing newer than cutoff
func (t *timeline) retire(cutoff time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.purge(cutoff)
	if t.head < len(t.ts) {
		return false
	}
	t.retired = true
	return true
}
