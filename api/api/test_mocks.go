/* test_mocks.go
 * Contains mock collaborators for testing the API package and its consumers
 * Authors: Zachary Bower
 */

package api

import (
	"context"
	"inhouse-bot/api/external"
	"inhouse-bot/api/logic"
	"inhouse-bot/api/store"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// MockCommandSender records every command and returns Err
type MockCommandSender struct {
	Err   error
	Delay time.Duration

	calls    atomic.Int32
	mu       sync.Mutex
	commands []string
}

// SendCommand mock implementation
func (m *MockCommandSender) SendCommand(ctx context.Context, serverID string, command string) error {
	m.calls.Add(1)
	m.mu.Lock()
	m.commands = append(m.commands, command)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.Err
}

// Calls returns how many commands were sent
func (m *MockCommandSender) Calls() int {
	return int(m.calls.Load())
}

// Commands returns the command lines sent so far
func (m *MockCommandSender) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.commands...)
}

// MockScheduler records the deadlines it was given
type MockScheduler struct {
	mu        sync.Mutex
	Scheduled []time.Time
}

// Schedule mock implementation
func (m *MockScheduler) Schedule(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scheduled = append(m.Scheduled, at)
}

// Times returns the deadlines scheduled so far
func (m *MockScheduler) Times() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time{}, m.Scheduled...)
}

// SequenceRand returns its values in order and then repeats the last one
type SequenceRand struct {
	mu     sync.Mutex
	Values []int
}

// IntN mock implementation
func (r *SequenceRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Values) == 0 {
		return 0
	}
	v := r.Values[0]
	if len(r.Values) > 1 {
		r.Values = r.Values[1:]
	}
	return v % n
}

// FailingStore wraps a store and calls BeforeTransaction with the 1-based call number before every RunTransaction.
// A non-nil error fails that call without running it
type FailingStore struct {
	store.Interface
	BeforeTransaction func(call int) error

	mu    sync.Mutex
	calls int
}

// RunTransaction mock implementation
func (f *FailingStore) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	f.mu.Lock()
	f.calls++
	call, hook := f.calls, f.BeforeTransaction
	f.mu.Unlock()

	if hook != nil {
		if err := hook(call); err != nil {
			return err
		}
	}
	return f.Interface.RunTransaction(ctx, fn)
}

// FailCall returns a BeforeTransaction hook that fails only the given call with err
func FailCall(n int, err error) func(int) error {
	return func(call int) error {
		if call == n {
			return err
		}
		return nil
	}
}

// NewTestAPI creates an API over the given store with the default rules, a clock fixed at now, a name for every
// sample player and the given command sender
func NewTestAPI(s store.Interface, commands external.CommandSender, now time.Time) *API {
	cfg := Config{
		ServerID:       "server-1",
		PublicBaseURL:  "https://inhouse.example.com",
		CommandTimeout: time.Second,
		LockTTL:        time.Minute,
		CancelCommand:  DefaultCancelCommand,
	}
	a, err := NewAPI(s, commands, external.StaticResolver{UseIDFallback: true}, cfg, logic.DefaultRules(), zap.NewNop())
	if err != nil {
		panic(err)
	}
	a.Now = func() time.Time { return now }
	a.Rand = &SequenceRand{Values: []int{0, 0}}
	return a
}
