/* publication.go
 * Contains the projection from a finished draft to the published match and the start lock helpers
 * Authors: Zachary Bower
 */

package logic

import (
	"inhouse-bot/api/store"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BuildPublishedMatch copies the rosters and map of a finished draft into a fresh match document. The queue is
// always empty and no server lifecycle field is carried over
func BuildPublishedMatch(d store.Draft, publishedAt time.Time) store.Match {
	src := d.Clone()
	m := store.NewMatch()
	m.State = store.StateBanningMap
	m.Team1 = src.Team1
	m.Team2 = src.Team2
	m.Map = src.Map
	m.MapPool = src.MapPool
	m.BannedMaps = src.BannedMaps
	m.PublishedAt = &publishedAt
	return m
}

// IsPublicationOf reports whether m is already the published copy of d: same map and the same rosters in order
func IsPublicationOf(m store.Match, d store.Draft) bool {
	return m.PublishedAt != nil &&
		m.Map == d.Map &&
		slices.Equal(m.Team1.Players, d.Team1.Players) &&
		slices.Equal(m.Team2.Players, d.Team2.Players)
}

// ClaimLock decides whether a lock can be taken. A held lock older than ttl is treated as abandoned and can be
// reclaimed. A ttl of zero disables reclamation
// Preconditions: Receives whether the lock is held, when it was taken, the current time and the ttl
// Postconditions: Returns a new token and true if the caller now owns the lock
func ClaimLock(held bool, lockedAt *time.Time, now time.Time, ttl time.Duration) (string, bool) {
	if held {
		if ttl <= 0 {
			return "", false
		}
		if lockedAt != nil && now.Sub(*lockedAt) < ttl {
			return "", false
		}
	}
	return uuid.NewString(), true
}

// Edge reports false to true changes of a predicate. It is safe for concurrent use
type Edge struct {
	mu   sync.Mutex
	last bool
}

// Observe records the latest value and returns true only if the previous value was false
func (e *Edge) Observe(v bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rising := v && !e.last
	e.last = v
	return rising
}
