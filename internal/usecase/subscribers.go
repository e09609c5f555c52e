package usecase

import (
	"math/rand"
	"sync"
	"time"

	"incidentproxy/internal/domain"
)

// SubscriberDirectory answers "who receives this incident" from a
// cached snapshot: the configured witness list shuffled once, then
// partitioned by group. The snapshot is rebuilt after its TTL so
// long-running processes pick up a fresh shuffle order now and then.
type SubscriberDirectory struct {
	witnesses []domain.Witness
	ttl       time.Duration
	now       Clock
	shuffle   func([]domain.Witness)

	mu       sync.Mutex
	snapshot map[string][]domain.Witness
	order    []string
	expires  time.Time
}

func NewSubscriberDirectory(witnesses []domain.Witness, ttl time.Duration) *SubscriberDirectory {
	return &SubscriberDirectory{
		witnesses: witnesses,
		ttl:       ttl,
		now:       time.Now,
		shuffle: func(list []domain.Witness) {
			rand.Shuffle(len(list), func(i, j int) {
				list[i], list[j] = list[j], list[i]
			})
		},
	}
}

// NewStableSubscriberDirectory keeps the configured order, used by
// tests that assert on iteration order.
func NewStableSubscriberDirectory(witnesses []domain.Witness, ttl time.Duration, now Clock) *SubscriberDirectory {
	return &SubscriberDirectory{
		witnesses: witnesses,
		ttl:       ttl,
		now:       now,
		shuffle:   func([]domain.Witness) {},
	}
}

// Groups returns group names in snapshot order and the witnesses per
// group. With a non-empty target list only matching witnesses are
// returned: a group target selects the whole group, a URL or name
// target selects a single witness, keeping its group.
func (d *SubscriberDirectory) Groups(targets []string) ([]string, map[string][]domain.Witness) {
	d.mu.Lock()
	if d.snapshot == nil || d.now().After(d.expires) {
		d.rebuild()
	}
	order, snapshot := d.order, d.snapshot
	d.mu.Unlock()

	if len(targets) == 0 {
		return order, snapshot
	}

	filteredOrder := make([]string, 0, len(order))
	filtered := make(map[string][]domain.Witness)
	for _, group := range order {
		for _, witness := range snapshot[group] {
			if !matchesAny(witness, targets) {
				continue
			}
			if _, ok := filtered[group]; !ok {
				filteredOrder = append(filteredOrder, group)
			}
			filtered[group] = append(filtered[group], witness)
		}
	}
	return filteredOrder, filtered
}

// AnyMatch reports whether at least one configured witness matches the
// target list. Replay uses it to avoid fruitless storage scans.
func (d *SubscriberDirectory) AnyMatch(targets []string) bool {
	if len(d.witnesses) == 0 {
		return false
	}
	if len(targets) == 0 {
		return true
	}
	for _, witness := range d.witnesses {
		if matchesAny(witness, targets) {
			return true
		}
	}
	return false
}

func matchesAny(witness domain.Witness, targets []string) bool {
	for _, target := range targets {
		if witness.Matches(target) {
			return true
		}
	}
	return false
}

// rebuild is called with the lock held.
func (d *SubscriberDirectory) rebuild() {
	shuffled := make([]domain.Witness, len(d.witnesses))
	copy(shuffled, d.witnesses)
	d.shuffle(shuffled)

	snapshot := make(map[string][]domain.Witness)
	var order []string
	for _, witness := range shuffled {
		group := witness.Group
		if group == "" {
			group = domain.DefaultGroup
		}
		if _, ok := snapshot[group]; !ok {
			order = append(order, group)
		}
		snapshot[group] = append(snapshot[group], witness)
	}
	d.snapshot = snapshot
	d.order = order
	d.expires = d.now().Add(d.ttl)
}
