/* store_interface.go
 * Contains the Store interface for dependency injection and testing
 * Authors: Zachary Bower
 */

package store

import (
	"context"
	"errors"
)

var (
	// ErrConflict is returned when a transaction could not commit because of concurrent writers. The whole operation
	// can be retried
	ErrConflict = errors.New("transaction conflict, retry the operation")
	// ErrNotFound is returned by lookups that have no matching document
	ErrNotFound = errors.New("document not found")
)

// Tx is the view a transaction function has of the store. Reads observe a consistent snapshot, writes are full
// replacements that are buffered until commit
type Tx interface {
	GetDraft(ctx context.Context) (Draft, bool, error)
	GetMatch(ctx context.Context) (Match, bool, error)
	SetDraft(ctx context.Context, d Draft) error
	SetMatch(ctx context.Context, m Match) error
}

// TxFunc is run inside a transaction. Returning an error aborts the transaction and nothing is written
type TxFunc func(ctx context.Context, tx Tx) error

// Interface defines the methods that Store implements.
// This allows for mocking in tests.
type Interface interface {
	GetDraft(ctx context.Context) (Draft, bool, error)
	GetMatch(ctx context.Context) (Match, bool, error)
	SetMatch(ctx context.Context, m Match) error
	RunTransaction(ctx context.Context, fn TxFunc) error

	// Subscriptions deliver the current document (if any) and then every committed write, in commit order, on a
	// goroutine owned by the subscription. onError is only called when the subscription has stopped for good
	SubscribeDraft(ctx context.Context, onChange func(Change[Draft]), onError func(error)) (func(), error)
	SubscribeMatch(ctx context.Context, onChange func(Change[Match]), onError func(error)) (func(), error)

	LinkPlayer(ctx context.Context, chatID string, playerID string) error
	LinkedPlayer(ctx context.Context, chatID string) (string, error)

	Close(ctx context.Context) error
}

// Ensure both implementations satisfy Interface
var (
	_ Interface = (*Store)(nil)
	_ Interface = (*MemoryStore)(nil)
)
