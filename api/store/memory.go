/* memory.go
 * Contains MemoryStore, an in-process implementation of Interface used for local development and tests. Transactions
 * are optimistic: the function runs against a snapshot and the commit is rejected if a document it touched changed
 * in the meantime, in which case the function is run again
 * Authors: Zachary Bower
 */

package store

import (
	"context"
	"runtime"
	"sync"
	"time"
)

const defaultMaxAttempts = 50

type MemoryStore struct {
	// MaxAttempts bounds how many times a conflicting transaction is re-run before ErrConflict is returned
	MaxAttempts int

	mu        sync.Mutex
	draft     *Draft
	match     *Match
	links     map[string]string
	nextSubID int
	draftSubs map[int]*subscription[Draft]
	matchSubs map[int]*subscription[Match]
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		MaxAttempts: defaultMaxAttempts,
		links:       make(map[string]string),
		draftSubs:   make(map[int]*subscription[Draft]),
		matchSubs:   make(map[int]*subscription[Match]),
	}
}

func (s *MemoryStore) GetDraft(ctx context.Context) (Draft, bool, error) {
	if err := ctx.Err(); err != nil {
		return Draft{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return Draft{}, false, nil
	}
	return s.draft.Clone(), true, nil
}

func (s *MemoryStore) GetMatch(ctx context.Context) (Match, bool, error) {
	if err := ctx.Err(); err != nil {
		return Match{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.match == nil {
		return Match{}, false, nil
	}
	return s.match.Clone(), true, nil
}

func (s *MemoryStore) SetMatch(ctx context.Context, m Match) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetMatch(ctx, m)
	})
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := s.begin()
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s.commit(tx) {
			return nil
		}
		runtime.Gosched()
	}
	return ErrConflict
}

func (s *MemoryStore) SubscribeDraft(ctx context.Context, onChange func(Change[Draft]), onError func(error)) (func(), error) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	sub := newSubscription(onChange)
	if s.draft != nil {
		c := s.draft.Clone()
		sub.push(Change[Draft]{After: &c})
	}
	s.draftSubs[id] = sub
	s.mu.Unlock()

	return s.unsubscriber(ctx, sub.done, func() {
		s.mu.Lock()
		delete(s.draftSubs, id)
		s.mu.Unlock()
		sub.close()
	}), nil
}

func (s *MemoryStore) SubscribeMatch(ctx context.Context, onChange func(Change[Match]), onError func(error)) (func(), error) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	sub := newSubscription(onChange)
	if s.match != nil {
		c := s.match.Clone()
		sub.push(Change[Match]{After: &c})
	}
	s.matchSubs[id] = sub
	s.mu.Unlock()

	return s.unsubscriber(ctx, sub.done, func() {
		s.mu.Lock()
		delete(s.matchSubs, id)
		s.mu.Unlock()
		sub.close()
	}), nil
}

func (s *MemoryStore) LinkPlayer(ctx context.Context, chatID string, playerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[chatID] = playerID
	return nil
}

func (s *MemoryStore) LinkedPlayer(ctx context.Context, chatID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	playerID, ok := s.links[chatID]
	if !ok {
		return "", ErrNotFound
	}
	return playerID, nil
}

// Close stops every subscription
func (s *MemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.draftSubs {
		sub.close()
		delete(s.draftSubs, id)
	}
	for id, sub := range s.matchSubs {
		sub.close()
		delete(s.matchSubs, id)
	}
	return nil
}

func (s *MemoryStore) unsubscriber(ctx context.Context, done <-chan struct{}, unsubscribe func()) func() {
	var once sync.Once
	stop := func() { once.Do(unsubscribe) }
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return stop
}

type memoryTx struct {
	draft        *Draft
	match        *Match
	draftVersion int64
	matchVersion int64
	touchedDraft bool
	touchedMatch bool
	newDraft     *Draft
	newMatch     *Match
}

func (s *MemoryStore) begin() *memoryTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memoryTx{}
	if s.draft != nil {
		d := s.draft.Clone()
		tx.draft = &d
		tx.draftVersion = d.Version
	}
	if s.match != nil {
		m := s.match.Clone()
		tx.match = &m
		tx.matchVersion = m.Version
	}
	return tx
}

// commit applies the buffered writes if no document the transaction touched has changed since begin
func (s *MemoryStore) commit(tx *memoryTx) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.touchedDraft && versionOf(s.draft) != tx.draftVersion {
		return false
	}
	if tx.touchedMatch && matchVersionOf(s.match) != tx.matchVersion {
		return false
	}

	now := time.Now().UTC()
	if tx.newDraft != nil {
		before := s.draft
		d := tx.newDraft.Clone()
		d.ID = currentDocID
		d.Version = tx.draftVersion + 1
		d.UpdatedAt = now
		s.draft = &d
		for _, sub := range s.draftSubs {
			after := d.Clone()
			var prev *Draft
			if before != nil {
				p := before.Clone()
				prev = &p
			}
			sub.push(Change[Draft]{Before: prev, After: &after})
		}
	}
	if tx.newMatch != nil {
		before := s.match
		m := tx.newMatch.Clone()
		m.ID = currentDocID
		m.Version = tx.matchVersion + 1
		m.UpdatedAt = now
		s.match = &m
		for _, sub := range s.matchSubs {
			after := m.Clone()
			var prev *Match
			if before != nil {
				p := before.Clone()
				prev = &p
			}
			sub.push(Change[Match]{Before: prev, After: &after})
		}
	}
	return true
}

func (t *memoryTx) GetDraft(ctx context.Context) (Draft, bool, error) {
	t.touchedDraft = true
	if t.newDraft != nil {
		return t.newDraft.Clone(), true, nil
	}
	if t.draft == nil {
		return Draft{}, false, nil
	}
	return t.draft.Clone(), true, nil
}

func (t *memoryTx) GetMatch(ctx context.Context) (Match, bool, error) {
	t.touchedMatch = true
	if t.newMatch != nil {
		return t.newMatch.Clone(), true, nil
	}
	if t.match == nil {
		return Match{}, false, nil
	}
	return t.match.Clone(), true, nil
}

func (t *memoryTx) SetDraft(ctx context.Context, d Draft) error {
	t.touchedDraft = true
	c := d.Clone()
	t.newDraft = &c
	return nil
}

func (t *memoryTx) SetMatch(ctx context.Context, m Match) error {
	t.touchedMatch = true
	c := m.Clone()
	t.newMatch = &c
	return nil
}

func versionOf(d *Draft) int64 {
	if d == nil {
		return 0
	}
	return d.Version
}

func matchVersionOf(m *Match) int64 {
	if m == nil {
		return 0
	}
	return m.Version
}

// subscription delivers changes to one subscriber in commit order on its own goroutine. push never blocks so it is
// safe to call while holding the store lock
type subscription[T any] struct {
	mu      sync.Mutex
	pending []Change[T]
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newSubscription[T any](onChange func(Change[T])) *subscription[T] {
	sub := &subscription[T]{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go sub.run(onChange)
	return sub
}

func (s *subscription[T]) push(c Change[T]) {
	s.mu.Lock()
	s.pending = append(s.pending, c)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription[T]) run(onChange func(Change[T])) {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			batch := s.pending
			s.pending = nil
			s.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, c := range batch {
				select {
				case <-s.done:
					return
				default:
				}
				onChange(c)
			}
		}
	}
}

func (s *subscription[T]) close() {
	s.once.Do(func() { close(s.done) })
}
