/* memory_test.go
 * Contains unit tests for memory.go
 * Authors: Zachary Bower
 */

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// region transactions

func TestMemoryStore_EmptyReads(t *testing.T) {
	s := NewMemoryStore()

	_, found, err := s.GetDraft(context.Background())
	assert.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.GetMatch(context.Background())
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_TransactionWritesVersionAndID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		d := NewDraft()
		d.Queue = []string{"p1"}
		return tx.SetDraft(ctx, d)
	})
	require.NoError(t, err)

	d, found, err := s.GetDraft(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, currentDocID, d.ID)
	assert.Equal(t, int64(1), d.Version)
	assert.Equal(t, []string{"p1"}, d.Queue)
	assert.False(t, d.UpdatedAt.IsZero())

	err = s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		d, _, err := tx.GetDraft(ctx)
		if err != nil {
			return err
		}
		d.Queue = append(d.Queue, "p2")
		return tx.SetDraft(ctx, d)
	})
	require.NoError(t, err)

	d, _, _ = s.GetDraft(ctx)
	assert.Equal(t, int64(2), d.Version)
	assert.Equal(t, []string{"p1", "p2"}, d.Queue)
}

func TestMemoryStore_TransactionReadsOwnWrites(t *testing.T) {
	s := NewMemoryStore()

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		m := NewMatch()
		m.Map = "de_nuke"
		if err := tx.SetMatch(ctx, m); err != nil {
			return err
		}
		got, found, err := tx.GetMatch(ctx)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "de_nuke", got.Map)
		return nil
	})
	assert.NoError(t, err)
}

func TestMemoryStore_AbortedTransactionWritesNothing(t *testing.T) {
	s := NewMemoryStore()
	boom := errors.New("boom")

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		_ = tx.SetDraft(ctx, NewDraft())
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, found, _ := s.GetDraft(context.Background())
	assert.False(t, found)
}

func TestMemoryStore_ReturnedDocumentsDoNotAlias(t *testing.T) {
	d := NewDraft()
	d.Queue = []string{"p1"}
	s := NewSeededMemoryStore(&d, nil)

	got, _, _ := s.GetDraft(context.Background())
	got.Queue[0] = "mutated"

	again, _, _ := s.GetDraft(context.Background())
	assert.Equal(t, "p1", again.Queue[0])
}

func TestMemoryStore_ConflictRetriesUntilSerialised(t *testing.T) {
	s := NewSeededMemoryStore(&Draft{}, nil)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				d, _, err := tx.GetDraft(ctx)
				if err != nil {
					return err
				}
				d.Queue = append(d.Queue, SamplePlayers(workers)[i])
				return tx.SetDraft(ctx, d)
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	d, _, _ := s.GetDraft(ctx)
	assert.Len(t, d.Queue, workers)
	assert.ElementsMatch(t, SamplePlayers(workers), d.Queue)
}

func TestMemoryStore_ConflictExhaustsAttempts(t *testing.T) {
	s := NewSeededMemoryStore(&Draft{}, nil)
	s.MaxAttempts = 3
	ctx := context.Background()

	attempts := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		attempts++
		if _, _, err := tx.GetDraft(ctx); err != nil {
			return err
		}
		// A competing writer commits between our read and our commit every time
		require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, inner Tx) error {
			d, _, _ := inner.GetDraft(ctx)
			return inner.SetDraft(ctx, d)
		}))
		return tx.SetDraft(ctx, NewDraft())
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 3, attempts)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

// endregion

// region subscriptions

type recorder[T any] struct {
	mu      sync.Mutex
	changes []Change[T]
}

func (r *recorder[T]) record(c Change[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder[T]) snapshot() []Change[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Change[T]{}, r.changes...)
}

func TestMemoryStore_SubscribeDraftDeliversInitialThenChangesInOrder(t *testing.T) {
	d := NewDraft()
	s := NewSeededMemoryStore(&d, nil)
	ctx := context.Background()

	rec := &recorder[Draft]{}
	unsubscribe, err := s.SubscribeDraft(ctx, rec.record, nil)
	require.NoError(t, err)
	defer unsubscribe()

	for _, p := range SamplePlayers(5) {
		p := p
		require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			d, _, _ := tx.GetDraft(ctx)
			d.Queue = append(d.Queue, p)
			return tx.SetDraft(ctx, d)
		}))
	}

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 6 }, time.Second, 5*time.Millisecond)

	changes := rec.snapshot()
	assert.Nil(t, changes[0].Before)
	assert.Empty(t, changes[0].After.Queue)
	for i := 1; i < len(changes); i++ {
		require.NotNil(t, changes[i].Before)
		assert.Len(t, changes[i].Before.Queue, i-1)
		assert.Len(t, changes[i].After.Queue, i)
		assert.Equal(t, changes[i].Before.Version+1, changes[i].After.Version)
	}
}

func TestMemoryStore_SubscribeMatchWithoutDocument(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := &recorder[Match]{}
	unsubscribe, err := s.SubscribeMatch(ctx, rec.record, nil)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, s.SetMatch(ctx, NewMatch()))

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, rec.snapshot()[0].Before)
}

func TestMemoryStore_SlowSubscriberDoesNotBlockWriters(t *testing.T) {
	s := NewSeededMemoryStore(&Draft{}, nil)
	ctx := context.Background()

	release := make(chan struct{})
	rec := &recorder[Draft]{}
	unsubscribe, err := s.SubscribeDraft(ctx, func(c Change[Draft]) {
		<-release
		rec.record(c)
	}, nil)
	require.NoError(t, err)
	defer unsubscribe()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			d, _, _ := tx.GetDraft(ctx)
			return tx.SetDraft(ctx, d)
		}))
	}
	close(release)

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 11 }, time.Second, 5*time.Millisecond)
}

func TestMemoryStore_UnsubscribeStopsDelivery(t *testing.T) {
	s := NewSeededMemoryStore(&Draft{}, nil)
	ctx := context.Background()

	rec := &recorder[Draft]{}
	unsubscribe, err := s.SubscribeDraft(ctx, rec.record, nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetDraft(ctx, NewDraft())
	}))

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1)
}

func TestMemoryStore_ContextCancelUnsubscribes(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := s.SubscribeDraft(ctx, func(Change[Draft]) {}, nil)
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.draftSubs) == 0
	}, time.Second, 5*time.Millisecond)
}

// endregion

// region player links

func TestMemoryStore_PlayerLinks(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.LinkedPlayer(ctx, "discord-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.LinkPlayer(ctx, "discord-1", "76561198000000001"))
	require.NoError(t, s.LinkPlayer(ctx, "discord-1", "76561198000000002"))

	got, err := s.LinkedPlayer(ctx, "discord-1")
	assert.NoError(t, err)
	assert.Equal(t, "76561198000000002", got)
}

// endregion
