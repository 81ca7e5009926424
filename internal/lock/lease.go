// Package lock provides the per-feed refresh lease. At most one refresh may
// hold a feed's lease at a time; leases expire after a TTL so a worker that
// dies mid-refresh cannot wedge a feed.
package lock

import (
	"errors"
	"sync"
	"time"
)

// ErrAlreadyHeld is returned when a feed's lease is held by an in-flight
// refresh that has not expired.
var ErrAlreadyHeld = errors.New("refresh lease already held")

type lease struct {
	token     uint64
	expiresAt time.Time
}

// Manager hands out feed-keyed leases with expiry.
type Manager struct {
	mu     sync.Mutex
	leases map[int64]lease
	next   uint64
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		leases: make(map[int64]lease),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Acquire takes the lease for feedID, returning a release function. It fails
// with ErrAlreadyHeld if an unexpired lease exists. The release function is
// safe to call after expiry; it never revokes a successor's lease.
func (m *Manager) Acquire(feedID int64) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.leases[feedID]; ok && m.now().Before(l.expiresAt) {
		return nil, ErrAlreadyHeld
	}

	m.next++
	token := m.next
	m.leases[feedID] = lease{token: token, expiresAt: m.now().Add(m.ttl)}

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if l, ok := m.leases[feedID]; ok && l.token == token {
			delete(m.leases, feedID)
		}
	}, nil
}

// Held reports whether feedID currently has an unexpired lease.
func (m *Manager) Held(feedID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leases[feedID]
	return ok && m.now().Before(l.expiresAt)
}
